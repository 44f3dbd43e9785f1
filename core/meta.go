package core

import (
	"bytes"
	"encoding/binary"
)

// Meta is the commit/state metadata: a monotonic timestamp, a monotonic
// sequence number, and opaque extension bytes supplied by the host's
// Control capability (Control.MakeCommitMeta). Meta contributes to a
// PartState's statesum via Meta.sum.
type Meta struct {
	Number    uint64
	Timestamp int64 // seconds since epoch
	Ext       []byte
}

// sum hashes the metadata fields with SHA-256 for inclusion in the
// state's statesum.
func (m Meta) sum() Sum {
	var buf bytes.Buffer
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], m.Number)
	buf.Write(num[:])
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp))
	buf.Write(ts[:])
	buf.Write(m.Ext)
	return SumFromBytes(buf.Bytes())
}

// Clone returns a deep copy of m so callers can mutate Ext independently.
func (m Meta) Clone() Meta {
	out := m
	if m.Ext != nil {
		out.Ext = append([]byte(nil), m.Ext...)
	}
	return out
}
