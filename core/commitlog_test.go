package core

import (
	"bytes"
	"testing"
)

func buildTestCommit(t *testing.T, parent *PartState, text string) (*Commit, *PartState) {
	t.Helper()
	mut := parent.CloneMut(1)
	if _, err := mut.Insert(nil, newStrElement(text)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	child := mut.Freeze(Meta{Number: parent.Meta().Number + 1, Timestamp: int64(parent.Meta().Number) + 1})
	commit, changed := FromDiff(parent, child)
	if !changed {
		t.Fatalf("expected FromDiff to report a change")
	}
	return commit, child
}

func TestCommitLogRoundTrip(t *testing.T) {
	genesis := NewGenesisPartState(Meta{})
	commit, _ := buildTestCommit(t, genesis, "hello")

	var buf bytes.Buffer
	if err := WriteCommitLogMagic(&buf); err != nil {
		t.Fatalf("WriteCommitLogMagic: %v", err)
	}
	if err := WriteCommitRecord(&buf, commit); err != nil {
		t.Fatalf("WriteCommitRecord: %v", err)
	}

	if err := ReadCommitLogMagic(bytes.NewReader(buf.Bytes()[:16])); err != nil {
		t.Fatalf("ReadCommitLogMagic: %v", err)
	}
	rest := bytes.NewReader(buf.Bytes()[16:])
	commits, err := ReadCommitRecords(rest, strElementFactory)
	if err != nil {
		t.Fatalf("ReadCommitRecords: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(commits))
	}
	if commits[0].Statesum != commit.Statesum {
		t.Fatalf("statesum mismatch after round trip")
	}
}

// A commit log is append-only and may be observed mid-write by a crashed
// process; a trailing partial record must be silently dropped, not treated
// as corruption of the records that came before it.
func TestCommitLogTruncationTolerance(t *testing.T) {
	genesis := NewGenesisPartState(Meta{})
	c1, s1 := buildTestCommit(t, genesis, "first")
	c2, _ := buildTestCommit(t, s1, "second")

	var buf bytes.Buffer
	if err := WriteCommitRecord(&buf, c1); err != nil {
		t.Fatalf("WriteCommitRecord: %v", err)
	}
	if err := WriteCommitRecord(&buf, c2); err != nil {
		t.Fatalf("WriteCommitRecord: %v", err)
	}
	full := buf.Bytes()
	truncated := full[:len(full)-3] // chop into the middle of the second record

	commits, err := ReadCommitRecords(bytes.NewReader(truncated), strElementFactory)
	if err != nil {
		t.Fatalf("ReadCommitRecords on truncated log: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("got %d commits from truncated log, want 1 (the second, partial record dropped)", len(commits))
	}
	if commits[0].Statesum != c1.Statesum {
		t.Fatalf("surviving commit statesum mismatch")
	}
}

func TestCommitLogMagicRejectsGarbage(t *testing.T) {
	if err := ReadCommitLogMagic(bytes.NewReader([]byte("not a commit log"))); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}
