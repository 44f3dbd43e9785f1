package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sort"
)

var (
	snapshotBodyMagic = []byte("SNAPSHOT")
	elementMarker     = []byte("ELEMENT\x00")
	movedMarker       = []byte("MOVED\x00\x00\x00")
	statesumMarker    = []byte("STATESUM")
)

func sortedEltIDs(m map[EltId]Element) []EltId {
	ids := make([]EltId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedMoved(m map[EltId]EltId) []EltId {
	ids := make([]EltId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WriteSnapshot writes the full body of a snapshot file (the part that
// follows the header) for s, always in the current per-record-checksummed
// layout.
func WriteSnapshot(w io.Writer, s *PartState) error {
	sw := NewSumWriter(w)
	if _, err := sw.Write(snapshotBodyMagic); err != nil {
		return &IoError{Op: "write snapshot magic", Err: err}
	}
	if err := writeU64(sw, uint64(len(s.elements))); err != nil {
		return &IoError{Op: "write element count", Err: err}
	}
	for _, id := range sortedEltIDs(s.elements) {
		if err := writeElementRecord(sw, id, s.elements[id]); err != nil {
			return err
		}
	}
	if _, err := sw.Write(movedMarker); err != nil {
		return &IoError{Op: "write moved marker", Err: err}
	}
	if err := writeU64(sw, uint64(len(s.moved))); err != nil {
		return &IoError{Op: "write moved count", Err: err}
	}
	for _, from := range sortedMoved(s.moved) {
		if err := writeU64(sw, uint64(from)); err != nil {
			return err
		}
		if err := writeU64(sw, uint64(s.moved[from])); err != nil {
			return err
		}
	}
	if err := writeStatesumBlock(sw, s); err != nil {
		return err
	}
	sum := sw.Sum()
	if _, err := w.Write(sum[:]); err != nil {
		return &IoError{Op: "write snapshot checksum", Err: err}
	}
	return nil
}

func writeElementRecord(w io.Writer, id EltId, value Element) error {
	var rec bytes.Buffer
	rec.Write(elementMarker)
	if err := writeU64(&rec, uint64(id)); err != nil {
		return err
	}
	var payload bytes.Buffer
	if err := value.WriteBuf(&payload); err != nil {
		return &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
	}
	if err := writeU64(&rec, uint64(payload.Len())); err != nil {
		return err
	}
	rec.Write(payload.Bytes())
	rec.Write(make([]byte, padLen(rec.Len())))
	recSum := sha256.Sum256(rec.Bytes())
	if _, err := w.Write(rec.Bytes()); err != nil {
		return &IoError{Op: "write element record", Err: err}
	}
	if _, err := w.Write(recSum[:]); err != nil {
		return &IoError{Op: "write element record checksum", Err: err}
	}
	return nil
}

func writeStatesumBlock(w io.Writer, s *PartState) error {
	if _, err := w.Write(statesumMarker); err != nil {
		return err
	}
	sum := s.Statesum()
	if _, err := w.Write(sum[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(len(s.parents))}); err != nil {
		return err
	}
	for _, p := range s.parents {
		if _, err := w.Write(p[:]); err != nil {
			return err
		}
	}
	return writeMetaBlock(w, s.meta)
}

// ReadSnapshot parses a snapshot body written after a header of the given
// wire version. Versions older than VersionCurrent lack per-element-record
// checksums (spec.md §9's resolved open question); ReadSnapshot still
// validates the overall trailing checksum and the reconstructed statesum in
// both cases.
func ReadSnapshot(r io.Reader, version uint32, factory ElementFactory) (*PartState, error) {
	sr := NewSumReader(r)
	perRecordChecksum := version == VersionCurrent

	magic, err := readExact(sr, 8)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, snapshotBodyMagic) {
		return nil, &ReadError{Msg: "bad snapshot magic"}
	}
	count, err := readU64(sr)
	if err != nil {
		return nil, err
	}
	elements := make(map[EltId]Element, count)
	elemAcc := Sum{}
	for i := uint64(0); i < count; i++ {
		id, value, err := readElementRecord(sr, factory, perRecordChecksum)
		if err != nil {
			return nil, err
		}
		elements[id] = value
		es, err := eltSum(id, value)
		if err != nil {
			return nil, err
		}
		elemAcc = elemAcc.XOR(es)
	}

	movedHdr, err := readExact(sr, 8)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(movedHdr, movedMarker) {
		return nil, &ReadError{Msg: "bad moved-section marker"}
	}
	movedCount, err := readU64(sr)
	if err != nil {
		return nil, err
	}
	moved := make(map[EltId]EltId, movedCount)
	for i := uint64(0); i < movedCount; i++ {
		from, err := readU64(sr)
		if err != nil {
			return nil, err
		}
		to, err := readU64(sr)
		if err != nil {
			return nil, err
		}
		moved[EltId(from)] = EltId(to)
	}

	ssHdr, err := readExact(sr, 8)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ssHdr, statesumMarker) {
		return nil, &ReadError{Msg: "bad statesum marker"}
	}
	storedSumBytes, err := readExact(sr, 32)
	if err != nil {
		return nil, err
	}
	var storedSum Sum
	copy(storedSum[:], storedSumBytes)
	parentCountB, err := readExact(sr, 1)
	if err != nil {
		return nil, err
	}
	parents := make([]Sum, parentCountB[0])
	for i := range parents {
		pb, err := readExact(sr, 32)
		if err != nil {
			return nil, err
		}
		copy(parents[i][:], pb)
	}
	meta, err := readMetaBlock(sr)
	if err != nil {
		return nil, err
	}

	computed := sr.Sum()
	trailing, err := readTrailingSum(r)
	if err != nil {
		return nil, err
	}
	if computed != trailing {
		return nil, &ReadError{Msg: "snapshot checksum invalid"}
	}

	ps := &PartState{
		statesum: elemAcc.XOR(meta.sum()),
		parents:  parents,
		elements: elements,
		moved:    moved,
		meta:     meta,
		elemAcc:  elemAcc,
	}
	if ps.statesum != storedSum {
		return nil, &ReadError{Msg: "snapshot statesum does not match recomputed value"}
	}
	return ps, nil
}

func readElementRecord(r io.Reader, factory ElementFactory, perRecordChecksum bool) (EltId, Element, error) {
	var rec bytes.Buffer
	tee := io.TeeReader(r, &rec)
	marker, err := readExact(tee, 8)
	if err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(marker, elementMarker) {
		return 0, nil, &ReadError{Msg: "bad element record marker"}
	}
	idBytes, err := readExact(tee, 8)
	if err != nil {
		return 0, nil, err
	}
	id := EltId(binary.BigEndian.Uint64(idBytes))
	lenBytes, err := readExact(tee, 8)
	if err != nil {
		return 0, nil, err
	}
	plen := binary.BigEndian.Uint64(lenBytes)
	payload, err := readExact(tee, int(plen))
	if err != nil {
		return 0, nil, err
	}
	pad := padLen(rec.Len())
	if pad > 0 {
		if _, err := readExact(tee, pad); err != nil {
			return 0, nil, err
		}
	}
	elt := factory()
	if err := elt.ReadBuf(payload); err != nil {
		return 0, nil, &PatchOpError{Kind: PatchElementOp, Msg: err.Error()}
	}
	if perRecordChecksum {
		storedBytes, err := readExact(r, 32)
		if err != nil {
			return 0, nil, err
		}
		computed := sha256.Sum256(rec.Bytes())
		if !bytes.Equal(storedBytes, computed[:]) {
			return 0, nil, &ReadError{Msg: "element record checksum invalid"}
		}
	}
	return id, elt, nil
}
