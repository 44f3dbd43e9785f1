package core

import (
	"encoding/binary"
	"io"
)

// Shared big-endian primitive readers/writers for the snapshot and
// commit-log codecs. Every multi-byte integer in Pippin's wire format is
// big-endian (spec.md §6).

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &ReadError{Msg: "unexpected EOF"}
	}
	return buf, nil
}

func readU64(r io.Reader) (uint64, error) {
	buf, err := readExact(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func readU16(r io.Reader) (uint16, error) {
	buf, err := readExact(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func padLen(n int) int {
	return (16 - n%16) % 16
}

func writeMetaBlock(w io.Writer, meta Meta) error {
	var buf []byte
	appendU64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU64(meta.Number)
	appendU64(uint64(meta.Timestamp))
	var extLen [2]byte
	binary.BigEndian.PutUint16(extLen[:], uint16(len(meta.Ext)))
	buf = append(buf, extLen[:]...)
	buf = append(buf, meta.Ext...)
	buf = append(buf, make([]byte, padLen(len(buf)))...)
	_, err := w.Write(buf)
	return err
}

func readMetaBlock(r io.Reader) (Meta, error) {
	number, err := readU64(r)
	if err != nil {
		return Meta{}, err
	}
	ts, err := readU64(r)
	if err != nil {
		return Meta{}, err
	}
	extLen, err := readU16(r)
	if err != nil {
		return Meta{}, err
	}
	ext, err := readExact(r, int(extLen))
	if err != nil {
		return Meta{}, err
	}
	consumed := 8 + 8 + 2 + int(extLen)
	if pad := padLen(consumed); pad > 0 {
		if _, err := readExact(r, pad); err != nil {
			return Meta{}, err
		}
	}
	return Meta{Number: number, Timestamp: int64(ts), Ext: ext}, nil
}
