package fsrepo

import (
	"io"
	"testing"

	"github.com/pippin-db/pippin/core"
	"github.com/pippin-db/pippin/internal/testutil"
)

// noopElement is the minimal core.Element used to exercise Backend through a
// real Partition without depending on cmd/pippin-demo's noteElement.
type noopElement string

func (e *noopElement) WriteBuf(w io.Writer) error {
	_, err := io.WriteString(w, string(*e))
	return err
}

func (e *noopElement) ReadBuf(buf []byte) error {
	*e = noopElement(buf)
	return nil
}

func (e *noopElement) Equal(other core.Element) bool {
	o, ok := other.(*noopElement)
	return ok && *o == *e
}

func newNoopElement(s string) core.Element {
	e := noopElement(s)
	return &e
}

func noopFactory() core.Element {
	var e noopElement
	return &e
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })
	b, err := NewBackend(sb.Root, "test", 4, false, nil, nil)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestBackendNewSSWriteAndRead(t *testing.T) {
	b := newTestBackend(t)
	w, ok, err := b.NewSS(0)
	if err != nil || !ok {
		t.Fatalf("NewSS: ok=%v err=%v", ok, err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !b.HasSS(0) {
		t.Fatalf("expected HasSS(0) true")
	}
	rc, ok, err := b.ReadSS(0)
	if err != nil || !ok {
		t.Fatalf("ReadSS: ok=%v err=%v", ok, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
	if n := b.SSLen(); n != 1 {
		t.Fatalf("SSLen() = %d, want 1", n)
	}
}

func TestBackendReadUsesCacheOnSecondCall(t *testing.T) {
	b := newTestBackend(t)
	w, _, _ := b.NewSS(0)
	w.Write([]byte("cached"))
	w.Close()

	rc1, _, err := b.ReadSS(0)
	if err != nil {
		t.Fatalf("ReadSS (cold): %v", err)
	}
	rc1.Close()
	if _, ok := b.cache.Get(b.ssPath(0)); !ok {
		t.Fatalf("expected the path to be cached after first read")
	}
	rc2, _, err := b.ReadSS(0)
	if err != nil {
		t.Fatalf("ReadSS (warm): %v", err)
	}
	data, _ := io.ReadAll(rc2)
	rc2.Close()
	if string(data) != "cached" {
		t.Fatalf("got %q from cache, want %q", data, "cached")
	}
}

func TestBackendNewSSRefusesExisting(t *testing.T) {
	b := newTestBackend(t)
	w, _, _ := b.NewSS(0)
	w.Write([]byte("x"))
	w.Close()
	_, ok, err := b.NewSS(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false creating an already-existing snapshot file")
	}
}

func TestBackendAppendInvalidatesCache(t *testing.T) {
	b := newTestBackend(t)
	w, _, _ := b.NewSSCL(0, 0)
	w.Write([]byte("AAA"))
	w.Close()

	rc, _, _ := b.ReadSSCL(0, 0)
	io.ReadAll(rc)
	rc.Close()

	aw, ok, err := b.AppendSSCL(0, 0)
	if err != nil || !ok {
		t.Fatalf("AppendSSCL: ok=%v err=%v", ok, err)
	}
	aw.Write([]byte("BBB"))
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rc2, _, _ := b.ReadSSCL(0, 0)
	data, _ := io.ReadAll(rc2)
	rc2.Close()
	if string(data) != "AAABBB" {
		t.Fatalf("got %q, want %q (cache should have been invalidated)", data, "AAABBB")
	}
}

func TestBackendReadOnlyRejectsWrites(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()
	b, err := NewBackend(sb.Root, "ro", 4, true, nil, nil)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if _, _, err := b.NewSS(0); err != core.ErrReadOnly {
		t.Fatalf("NewSS on read-only backend: err = %v, want ErrReadOnly", err)
	}
	if _, _, err := b.AppendSSCL(0, 0); err != core.ErrReadOnly {
		t.Fatalf("AppendSSCL on read-only backend: err = %v, want ErrReadOnly", err)
	}
}

func TestCIDForSumIsStableAndNonEmpty(t *testing.T) {
	sum := core.SumFromBytes([]byte("pippin"))
	a, err := CIDForSum(sum)
	if err != nil {
		t.Fatalf("CIDForSum: %v", err)
	}
	b, err := CIDForSum(sum)
	if err != nil {
		t.Fatalf("CIDForSum: %v", err)
	}
	if a != b {
		t.Fatalf("CIDForSum not deterministic: %q vs %q", a, b)
	}
	if a == "" {
		t.Fatalf("expected a non-empty CID string")
	}
}

func TestBackendPartitionRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctrl := NewControl(b, noopFactory, core.NewCountingSnapshotPolicy(0), nil, nil)
	p, err := core.CreatePartition(ctrl, "rt", 1)
	if err != nil {
		t.Fatalf("CreatePartition: %v", err)
	}
	tip, err := p.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	mut := tip.CloneMut(p.PartitionID())
	if _, err := mut.Insert(nil, newNoopElement("value")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := p.PushState(mut); err != nil {
		t.Fatalf("PushState: %v", err)
	}
	if err := p.WriteFast(); err != nil {
		t.Fatalf("WriteFast: %v", err)
	}

	reopened, err := core.OpenPartition(ctrl, true)
	if err != nil {
		t.Fatalf("OpenPartition: %v", err)
	}
	reopenedTip, err := reopened.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if reopenedTip.Len() != 1 {
		t.Fatalf("reopened tip has %d elements, want 1", reopenedTip.Len())
	}
}
