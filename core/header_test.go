package core

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	partID := uint64(42)
	h := Header{
		Kind:     HeaderSnapshot,
		Version:  VersionCurrent,
		Name:     "myrepo",
		PartID:   &partID,
		Remarks:  []string{"hand-written remark"},
		UserData: [][]byte{[]byte("user data block")},
	}
	var buf bytes.Buffer
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got.Kind != h.Kind || got.Name != h.Name || got.Version != h.Version {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if got.PartID == nil || *got.PartID != partID {
		t.Fatalf("PartID round trip failed: got %v", got.PartID)
	}
	if len(got.UserData) != 1 || string(got.UserData[0]) != "user data block" {
		t.Fatalf("UserData round trip failed: got %v", got.UserData)
	}
}

func TestHeaderRejectsBadName(t *testing.T) {
	var buf bytes.Buffer
	err := WriteHeader(&buf, Header{Kind: HeaderCommitLog, Version: VersionCurrent, Name: ""})
	if err == nil {
		t.Fatalf("expected error for empty repo name")
	}
	err = WriteHeader(&buf, Header{Kind: HeaderCommitLog, Version: VersionCurrent, Name: "this-name-is-way-too-long-for-a-header"})
	if err == nil {
		t.Fatalf("expected error for over-long repo name")
	}
}

func TestHeaderTruncatedReadFails(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, Header{Kind: HeaderCommitLog, Version: VersionCurrent, Name: "x"}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := ReadHeader(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected error reading a truncated header")
	}
}
