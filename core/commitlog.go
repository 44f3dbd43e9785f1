package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

var (
	commitLogBodyMagic = []byte("COMMIT LOG\x00\x00\x00\x00\x00\x00") // 16 bytes
	commitMarker       = []byte("COMMIT\x00\x00")                     // 8 bytes
)

// WriteCommitLogMagic writes the body marker that follows a commit-log
// file's header, before any commit records.
func WriteCommitLogMagic(w io.Writer) error {
	_, err := w.Write(commitLogBodyMagic)
	if err != nil {
		return &IoError{Op: "write commit log magic", Err: err}
	}
	return nil
}

// ReadCommitLogMagic consumes and validates the commit-log body marker.
func ReadCommitLogMagic(r io.Reader) error {
	magic, err := readExact(r, 16)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, commitLogBodyMagic) {
		return &ReadError{Msg: "bad commit log magic"}
	}
	return nil
}

func encodeCommitBody(c *Commit) ([]byte, error) {
	var body bytes.Buffer
	if len(c.Parents) == 0 || len(c.Parents) > 2 {
		return nil, &OtherError{Msg: "commit must have 1 or 2 parents"}
	}
	body.WriteByte(byte(len(c.Parents)))
	for _, p := range c.Parents {
		body.Write(p[:])
	}
	if err := writeMetaBlock(&body, c.Meta); err != nil {
		return nil, err
	}
	if err := writeU64(&body, uint64(len(c.Changes))); err != nil {
		return nil, err
	}
	for _, id := range sortedChangeIDs(c.Changes) {
		ch := c.Changes[id]
		body.WriteByte(byte(ch.Kind))
		if err := writeU64(&body, uint64(id)); err != nil {
			return nil, err
		}
		switch ch.Kind {
		case ChangeInsert, ChangeReplace:
			var payload bytes.Buffer
			if err := ch.Value.WriteBuf(&payload); err != nil {
				return nil, &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
			}
			if err := writeU64(&body, uint64(payload.Len())); err != nil {
				return nil, err
			}
			body.Write(payload.Bytes())
		case ChangeRemove:
			// no payload
		case ChangeMove:
			if err := writeU64(&body, uint64(ch.MoveTo)); err != nil {
				return nil, err
			}
		default:
			return nil, &OtherError{Msg: "unknown change kind"}
		}
	}
	body.Write(c.Statesum[:])
	return body.Bytes(), nil
}

// WriteCommitRecord appends one self-checksummed commit record.
func WriteCommitRecord(w io.Writer, c *Commit) error {
	body, err := encodeCommitBody(c)
	if err != nil {
		return err
	}
	if _, err := w.Write(commitMarker); err != nil {
		return &IoError{Op: "write commit marker", Err: err}
	}
	if err := writeU64(w, uint64(len(body))); err != nil {
		return &IoError{Op: "write commit record length", Err: err}
	}
	if _, err := w.Write(body); err != nil {
		return &IoError{Op: "write commit record body", Err: err}
	}
	sum := sha256.Sum256(body)
	if _, err := w.Write(sum[:]); err != nil {
		return &IoError{Op: "write commit record checksum", Err: err}
	}
	return nil
}

func readSoft(r io.Reader, n int) ([]byte, bool) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, false
	}
	return buf, true
}

func decodeCommitBody(body []byte, factory ElementFactory) (*Commit, error) {
	r := bytes.NewReader(body)
	parentCountB, err := readExact(r, 1)
	if err != nil {
		return nil, err
	}
	parentCount := int(parentCountB[0])
	if parentCount < 1 || parentCount > 2 {
		return nil, &ReadError{Msg: "invalid parent count in commit record"}
	}
	parents := make([]Sum, parentCount)
	for i := range parents {
		pb, err := readExact(r, 32)
		if err != nil {
			return nil, err
		}
		copy(parents[i][:], pb)
	}
	meta, err := readMetaBlock(r)
	if err != nil {
		return nil, err
	}
	changeCount, err := readU64(r)
	if err != nil {
		return nil, err
	}
	changes := make(map[EltId]Change, changeCount)
	for i := uint64(0); i < changeCount; i++ {
		tagB, err := readExact(r, 1)
		if err != nil {
			return nil, err
		}
		id, err := readU64(r)
		if err != nil {
			return nil, err
		}
		kind := ChangeKind(tagB[0])
		var ch Change
		ch.Kind = kind
		switch kind {
		case ChangeInsert, ChangeReplace:
			plen, err := readU64(r)
			if err != nil {
				return nil, err
			}
			payload, err := readExact(r, int(plen))
			if err != nil {
				return nil, err
			}
			elt := factory()
			if err := elt.ReadBuf(payload); err != nil {
				return nil, &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
			}
			ch.Value = elt
		case ChangeRemove:
			// no payload
		case ChangeMove:
			to, err := readU64(r)
			if err != nil {
				return nil, err
			}
			ch.MoveTo = EltId(to)
		default:
			return nil, &ReadError{Msg: "unknown change tag in commit record"}
		}
		changes[EltId(id)] = ch
	}
	statesumB, err := readExact(r, 32)
	if err != nil {
		return nil, err
	}
	var statesum Sum
	copy(statesum[:], statesumB)
	return &Commit{Statesum: statesum, Parents: parents, Changes: changes, Meta: meta}, nil
}

// ReadCommitRecords reads every commit record from r until EOF or a
// truncated/corrupt trailing record is found. A truncated tail record is
// dropped silently (spec.md §4.7's append-tolerance rule) and is not an
// error; any other decode failure on an otherwise complete, checksummed
// record is returned as an error since that indicates real corruption, not
// a torn write.
func ReadCommitRecords(r io.Reader, factory ElementFactory) ([]*Commit, error) {
	var commits []*Commit
	for {
		marker, ok := readSoft(r, 8)
		if !ok {
			return commits, nil
		}
		if !bytes.Equal(marker, commitMarker) {
			return commits, nil // not a commit marker: trailing garbage, treat as end of usable log
		}
		lenBytes, ok := readSoft(r, 8)
		if !ok {
			return commits, nil
		}
		recLen := binary.BigEndian.Uint64(lenBytes)
		body, ok := readSoft(r, int(recLen))
		if !ok {
			return commits, nil
		}
		sumBytes, ok := readSoft(r, 32)
		if !ok {
			return commits, nil
		}
		computed := sha256.Sum256(body)
		if !bytes.Equal(sumBytes, computed[:]) {
			return commits, nil // torn write: checksum over a truncated record never matches
		}
		c, err := decodeCommitBody(body, factory)
		if err != nil {
			return commits, err
		}
		commits = append(commits, c)
	}
}
