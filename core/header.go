package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// Logger is the minimal facade the header codec uses to report non-fatal
// anomalies (an unrecognized-but-preserved header tag). Per the core's
// "no global state" rule, nothing in this package calls a logging library
// directly — callers inject a Logger, or omit one and get silence.
type Logger interface {
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any) {}

// NopLogger discards every message. It is the default when no Logger is supplied.
var NopLogger Logger = nopLogger{}

// HeaderKind distinguishes a snapshot header from a commit-log header; each
// carries a different 8-byte magic.
type HeaderKind int

const (
	HeaderSnapshot HeaderKind = iota
	HeaderCommitLog
)

var (
	snapshotMagic  = [8]byte{'P', 'I', 'P', 'P', 'I', 'N', 'S', 'S'}
	commitLogMagic = [8]byte{'P', 'I', 'P', 'P', 'I', 'N', 'C', 'L'}
)

// Accepted on read; VersionCurrent is always the one written.
const (
	VersionLegacy1 = 20150929
	VersionLegacy2 = 20160105
	VersionCurrent = 20160201
)

func validVersion(v int) bool {
	return v == VersionLegacy1 || v == VersionLegacy2 || v == VersionCurrent
}

// UnknownBlock preserves a header tag this codec doesn't recognize but whose
// marker byte was uppercase A-Z (the "preserve if known-shaped, warn" rule).
type UnknownBlock struct {
	Tag     byte
	Payload []byte
}

// Header is the parsed form of the 16-byte-block header that precedes every
// snapshot and commit-log file.
type Header struct {
	Kind     HeaderKind
	Version  uint32
	Name     string
	PartID   *uint64 // snapshots only
	Remarks  []string
	UserData [][]byte
	Unknown  []UnknownBlock
}

func validateHeaderName(name string) error {
	if len(name) < 1 || len(name) > 16 {
		return &ArgError{Msg: "repo name must be 1-16 bytes"}
	}
	if !utf8.ValidString(name) {
		return &ArgError{Msg: "repo name must be valid UTF-8"}
	}
	return nil
}

func magicFor(kind HeaderKind) [8]byte {
	if kind == HeaderSnapshot {
		return snapshotMagic
	}
	return commitLogMagic
}

func encodeLen(n int) (byte, error) {
	switch {
	case n >= 1 && n <= 9:
		return '0' + byte(n), nil
	case n >= 10 && n <= 35:
		return 'A' + byte(n-10), nil
	default:
		return 0, &OtherError{Msg: "header block too large to encode (max 35*16 bytes)"}
	}
}

func decodeLen(b byte) (int, error) {
	switch {
	case b >= '1' && b <= '9':
		return int(b - '0'), nil
	case b >= 'A' && b <= 'Z':
		return int(b-'A') + 10, nil
	default:
		return 0, &ReadError{Msg: fmt.Sprintf("invalid Q-block length nibble %q", b)}
	}
}

// writeTagBlock emits tagBytes as a single H-block (<=15 bytes) or a Q-section
// sized to the smallest number of 16-byte blocks that fits it.
func writeTagBlock(buf *bytes.Buffer, tagBytes []byte) error {
	if len(tagBytes) <= 15 {
		block := make([]byte, 16)
		block[0] = 'H'
		copy(block[1:], tagBytes)
		buf.Write(block)
		return nil
	}
	n := 1
	for n*16-2 < len(tagBytes) {
		n++
	}
	lenByte, err := encodeLen(n)
	if err != nil {
		return err
	}
	block := make([]byte, n*16)
	block[0] = 'Q'
	block[1] = lenByte
	copy(block[2:], tagBytes)
	buf.Write(block)
	return nil
}

func partidTag(id uint64) []byte {
	out := make([]byte, 0, 15)
	out = append(out, []byte("PARTID ")...)
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], id)
	return append(out, be[:]...)
}

const sumTagPayload = "SUM SHA-2 256\x00\x00"

// WriteHeader serializes h in the current wire version (VersionCurrent is
// always written, regardless of h.Version) followed by its trailing
// SHA-256 checksum.
func WriteHeader(w io.Writer, h Header) error {
	if err := validateHeaderName(h.Name); err != nil {
		return err
	}
	if h.PartID != nil && h.Kind != HeaderSnapshot {
		return &ArgError{Msg: "PARTID is only valid in a snapshot header"}
	}

	var body bytes.Buffer
	magic := magicFor(h.Kind)
	body.Write(magic[:])
	body.WriteString(fmt.Sprintf("%08d", VersionCurrent))

	nameBlock := make([]byte, 16)
	copy(nameBlock, h.Name)
	body.Write(nameBlock)

	if h.PartID != nil {
		if err := writeTagBlock(&body, partidTag(*h.PartID)); err != nil {
			return err
		}
	}
	for _, r := range h.Remarks {
		if !utf8.ValidString(r) {
			return &ArgError{Msg: "remark must be valid UTF-8"}
		}
		if err := writeTagBlock(&body, append([]byte{'R'}, []byte(r)...)); err != nil {
			return err
		}
	}
	for _, u := range h.UserData {
		if err := writeTagBlock(&body, append([]byte{'U'}, u...)); err != nil {
			return err
		}
	}
	for _, u := range h.Unknown {
		if err := writeTagBlock(&body, append([]byte{u.Tag}, u.Payload...)); err != nil {
			return err
		}
	}
	if err := writeTagBlock(&body, []byte(sumTagPayload)); err != nil {
		return err
	}

	sum := sha256.Sum256(body.Bytes())
	if _, err := w.Write(body.Bytes()); err != nil {
		return &IoError{Op: "write header body", Err: err}
	}
	if _, err := w.Write(sum[:]); err != nil {
		return &IoError{Op: "write header checksum", Err: err}
	}
	return nil
}

// ReadHeader parses and checksum-verifies a header, discarding warnings
// about preserved-but-unrecognized tags.
func ReadHeader(r io.Reader) (Header, error) {
	return ReadHeaderWithLogger(r, NopLogger)
}

// ReadHeaderWithLogger is ReadHeader but routes "unknown tag preserved"
// warnings to logger instead of discarding them.
func ReadHeaderWithLogger(r io.Reader, logger Logger) (Header, error) {
	if logger == nil {
		logger = NopLogger
	}
	sr := NewSumReader(r)
	var pos int64

	readN := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(sr, buf); err != nil {
			return nil, &ReadError{Msg: "unexpected EOF in header", Pos: pos, Span: ReadSpan{0, n}}
		}
		pos += int64(n)
		return buf, nil
	}

	block0, err := readN(16)
	if err != nil {
		return Header{}, err
	}
	var kind HeaderKind
	switch {
	case bytes.Equal(block0[:8], snapshotMagic[:]):
		kind = HeaderSnapshot
	case bytes.Equal(block0[:8], commitLogMagic[:]):
		kind = HeaderCommitLog
	default:
		return Header{}, &ReadError{Msg: "bad magic", Pos: 0, Span: ReadSpan{0, 8}}
	}
	version, err := strconv.Atoi(string(block0[8:16]))
	if err != nil || !validVersion(version) {
		return Header{}, &ReadError{Msg: fmt.Sprintf("unsupported header version %q", block0[8:16]), Pos: 8, Span: ReadSpan{8, 8}}
	}

	nameBlock, err := readN(16)
	if err != nil {
		return Header{}, err
	}
	name := string(bytes.TrimRight(nameBlock, "\x00"))
	if err := validateHeaderName(name); err != nil {
		return Header{}, &ReadError{Msg: err.Error(), Pos: 16, Span: ReadSpan{0, 16}}
	}

	h := Header{Kind: kind, Version: uint32(version), Name: name}
	sawSum := false
	for !sawSum {
		blockStart := pos
		marker, err := readN(1)
		if err != nil {
			return Header{}, err
		}
		var payload []byte
		switch marker[0] {
		case 'H':
			payload, err = readN(15)
		case 'Q':
			var lenByte []byte
			lenByte, err = readN(1)
			if err != nil {
				return Header{}, err
			}
			var n int
			n, err = decodeLen(lenByte[0])
			if err != nil {
				return Header{}, &ReadError{Msg: err.Error(), Pos: pos - 1, Span: ReadSpan{0, 1}}
			}
			payload, err = readN(n*16 - 2)
		default:
			return Header{}, &ReadError{Msg: fmt.Sprintf("unknown block marker %q", marker[0]), Pos: blockStart, Span: ReadSpan{0, 1}}
		}
		if err != nil {
			return Header{}, err
		}

		switch {
		case bytes.HasPrefix(payload, []byte("SUM ")):
			if string(bytes.TrimRight(payload, "\x00")) != "SUM SHA-2 256" {
				return Header{}, &ReadError{Msg: "unsupported checksum algorithm", Pos: blockStart, Span: ReadSpan{0, len(payload)}}
			}
			sawSum = true
		case bytes.HasPrefix(payload, []byte("PARTID ")):
			if kind != HeaderSnapshot {
				return Header{}, &ReadError{Msg: "PARTID only valid in snapshot header", Pos: blockStart}
			}
			if h.PartID != nil {
				return Header{}, &ReadError{Msg: "repeated PARTID block", Pos: blockStart}
			}
			if len(payload) < 15 {
				return Header{}, &ReadError{Msg: "truncated PARTID block", Pos: blockStart}
			}
			id := binary.BigEndian.Uint64(payload[7:15])
			h.PartID = &id
		case len(payload) > 0 && payload[0] == 'R':
			remark := string(bytes.TrimRight(payload[1:], "\x00"))
			if !utf8.ValidString(remark) {
				return Header{}, &ReadError{Msg: "remark is not valid UTF-8", Pos: blockStart}
			}
			h.Remarks = append(h.Remarks, remark)
		case len(payload) > 0 && payload[0] == 'U':
			h.UserData = append(h.UserData, append([]byte(nil), bytes.TrimRight(payload[1:], "\x00")...))
		case len(payload) > 0 && payload[0] >= 'A' && payload[0] <= 'Z':
			logger.Warnf("pippin: header: unrecognized tag %q preserved", payload[0])
			h.Unknown = append(h.Unknown, UnknownBlock{Tag: payload[0], Payload: append([]byte(nil), bytes.TrimRight(payload[1:], "\x00")...)})
		default:
			// lowercase or punctuation leading byte: silently skipped, per spec.
		}
	}

	checksum := sr.Sum()
	trailing, err := readTrailingSum(r)
	if err != nil {
		return Header{}, err
	}
	if checksum != trailing {
		return Header{}, &ReadError{Msg: "header checksum invalid", Pos: pos}
	}
	return h, nil
}

func readTrailingSum(r io.Reader) (Sum, error) {
	var buf [32]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Sum{}, &ReadError{Msg: "unexpected EOF reading header checksum"}
	}
	return Sum(buf), nil
}
