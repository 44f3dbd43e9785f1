package core

import (
	"bytes"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	meta := Meta{Number: 3, Timestamp: 100}
	genesis := NewGenesisPartState(Meta{})
	mut := genesis.CloneMut(1)
	if _, err := mut.Insert(nil, newStrElement("one")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := mut.Insert(nil, newStrElement("two")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	state := mut.Freeze(meta)

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, state); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(&buf, VersionCurrent, strElementFactory)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Statesum() != state.Statesum() {
		t.Fatalf("statesum mismatch: got %x, want %x", got.Statesum(), state.Statesum())
	}
	if got.Len() != 2 {
		t.Fatalf("got %d elements, want 2", got.Len())
	}
}

func TestSnapshotRejectsCorruptChecksum(t *testing.T) {
	genesis := NewGenesisPartState(Meta{})
	mut := genesis.CloneMut(1)
	mut.Insert(nil, newStrElement("x"))
	state := mut.Freeze(Meta{Number: 1})

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, state); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xFF
	if _, err := ReadSnapshot(bytes.NewReader(corrupt), VersionCurrent, strElementFactory); err == nil {
		t.Fatalf("expected checksum error on corrupted snapshot")
	}
}

func TestSnapshotEmptyGenesis(t *testing.T) {
	genesis := NewGenesisPartState(Meta{Number: 0})
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, genesis); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(&buf, VersionCurrent, strElementFactory)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Len() != 0 || got.Statesum() != genesis.Statesum() {
		t.Fatalf("genesis round trip mismatch")
	}
}
