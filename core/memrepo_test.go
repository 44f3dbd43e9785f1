package core

import (
	"io"
	"testing"
)

func TestMemRepoIONewSSThenRead(t *testing.T) {
	repo := NewMemRepoIO()
	w, ok, err := repo.NewSS(0)
	if err != nil || !ok {
		t.Fatalf("NewSS: ok=%v err=%v", ok, err)
	}
	if _, err := w.Write([]byte("snapshot bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !repo.HasSS(0) {
		t.Fatalf("expected HasSS(0) true after NewSS+Close")
	}
	rc, ok, err := repo.ReadSS(0)
	if err != nil || !ok {
		t.Fatalf("ReadSS: ok=%v err=%v", ok, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "snapshot bytes" {
		t.Fatalf("got %q, want %q", data, "snapshot bytes")
	}
}

func TestMemRepoIONewSSRefusesExisting(t *testing.T) {
	repo := NewMemRepoIO()
	w, _, _ := repo.NewSS(0)
	w.Write([]byte("x"))
	w.Close()
	_, ok, err := repo.NewSS(0)
	if err != nil {
		t.Fatalf("NewSS on existing: unexpected error %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false creating an already-existing snapshot")
	}
}

func TestMemRepoIOAppendSSCL(t *testing.T) {
	repo := NewMemRepoIO()
	w, _, _ := repo.NewSSCL(0, 0)
	w.Write([]byte("AAA"))
	w.Close()

	aw, ok, err := repo.AppendSSCL(0, 0)
	if err != nil || !ok {
		t.Fatalf("AppendSSCL: ok=%v err=%v", ok, err)
	}
	aw.Write([]byte("BBB"))
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rc, ok, err := repo.ReadSSCL(0, 0)
	if err != nil || !ok {
		t.Fatalf("ReadSSCL: ok=%v err=%v", ok, err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "AAABBB" {
		t.Fatalf("got %q, want %q", data, "AAABBB")
	}
}

func TestMemRepoIOAppendMissingFileReportsNotFound(t *testing.T) {
	repo := NewMemRepoIO()
	_, ok, err := repo.AppendSSCL(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false appending to a nonexistent file")
	}
}

func TestMemRepoIOReadOnlyRejectsWrites(t *testing.T) {
	repo := NewMemRepoIO()
	repo.SetReadOnly(true)
	if _, _, err := repo.NewSS(0); err != ErrReadOnly {
		t.Fatalf("NewSS on read-only repo: err = %v, want ErrReadOnly", err)
	}
	if _, _, err := repo.NewSSCL(0, 0); err != ErrReadOnly {
		t.Fatalf("NewSSCL on read-only repo: err = %v, want ErrReadOnly", err)
	}
}

func TestMemRepoIOReadMissingReturnsNotFound(t *testing.T) {
	repo := NewMemRepoIO()
	_, ok, err := repo.ReadSS(5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false reading a missing snapshot")
	}
}

func TestMemControlMakeCommitMetaIsMonotonic(t *testing.T) {
	ctrl := NewMemControl(strElementFactory)
	m1 := ctrl.MakeCommitMeta(Meta{})
	m2 := ctrl.MakeCommitMeta(Meta{})
	if m2.Timestamp <= m1.Timestamp {
		t.Fatalf("expected strictly increasing timestamps, got %d then %d", m1.Timestamp, m2.Timestamp)
	}
}

func TestCountingSnapshotPolicyThreshold(t *testing.T) {
	p := NewCountingSnapshotPolicy(3)
	if p.WantSnapshot() {
		t.Fatalf("fresh policy should not want a snapshot")
	}
	p.Count(2, 0)
	if p.WantSnapshot() {
		t.Fatalf("policy should not want a snapshot below threshold")
	}
	p.Count(1, 0)
	if !p.WantSnapshot() {
		t.Fatalf("policy should want a snapshot at threshold")
	}
	p.Reset()
	if p.WantSnapshot() {
		t.Fatalf("policy should not want a snapshot right after Reset")
	}
}

func TestCountingSnapshotPolicyForce(t *testing.T) {
	p := NewCountingSnapshotPolicy(0)
	if p.WantSnapshot() {
		t.Fatalf("everyCommits=0 should never want a snapshot on its own")
	}
	p.ForceSnapshot()
	if !p.WantSnapshot() {
		t.Fatalf("expected ForceSnapshot to make WantSnapshot true")
	}
}
