package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pippin-db/pippin/core"
)

// noteElement is the demo's only element type: an arbitrary text note. The
// core never looks inside it — only WriteBuf/ReadBuf/Equal matter.
type noteElement struct {
	Text string
}

func (n *noteElement) WriteBuf(w io.Writer) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.Text)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, n.Text)
	return err
}

func (n *noteElement) ReadBuf(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("note: buffer too short")
	}
	l := binary.BigEndian.Uint32(buf[:4])
	if uint32(len(buf)-4) < l {
		return fmt.Errorf("note: truncated text")
	}
	n.Text = string(buf[4 : 4+l])
	return nil
}

func (n *noteElement) Equal(other core.Element) bool {
	o, ok := other.(*noteElement)
	return ok && o.Text == n.Text
}

func noteFactory() core.Element { return &noteElement{} }
