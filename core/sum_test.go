package core

import "testing"

func TestSumXORSelfInverse(t *testing.T) {
	a := SumFromBytes([]byte("alpha"))
	b := SumFromBytes([]byte("beta"))
	if got := a.XOR(b).XOR(b); got != a {
		t.Fatalf("XOR(XOR(a,b),b) = %x, want %x", got, a)
	}
}

func TestSumCompareTotalOrder(t *testing.T) {
	a := Sum{0x01}
	b := Sum{0x02}
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func TestSumHexSpaced(t *testing.T) {
	s := SumFromBytes([]byte("x"))
	raw := s.Hex(false)
	spaced := s.Hex(true)
	if len(raw) != 64 {
		t.Fatalf("raw hex length = %d, want 64", len(raw))
	}
	if len(spaced) != 64+15 {
		t.Fatalf("spaced hex length = %d, want %d", len(spaced), 64+15)
	}
}

func TestParseSumPrefixAndMatch(t *testing.T) {
	s := SumFromBytes([]byte("content"))
	full := s.Hex(false)
	prefix, err := ParseSumPrefix(full[:8])
	if err != nil {
		t.Fatalf("ParseSumPrefix: %v", err)
	}
	if !s.MatchesPrefix(prefix) {
		t.Fatalf("expected sum to match its own prefix")
	}
	other := SumFromBytes([]byte("different"))
	if other.MatchesPrefix(prefix) && other != s {
		// extremely unlikely collision; only fail if prefixes genuinely differ
		otherPrefix, _ := ParseSumPrefix(other.Hex(false)[:8])
		if string(otherPrefix) == string(prefix) {
			t.Skip("accidental prefix collision between unrelated sums")
		}
	}
}

func TestParseSumPrefixRejectsBadHex(t *testing.T) {
	if _, err := ParseSumPrefix("not-hex!"); err == nil {
		t.Fatalf("expected error for invalid hex digit")
	}
	if _, err := ParseSumPrefix(""); err == nil {
		t.Fatalf("expected error for empty prefix")
	}
}

func TestParseSumPrefixToleratesWhitespaceAndOddLength(t *testing.T) {
	prefix, err := ParseSumPrefix("AB CD E")
	if err != nil {
		t.Fatalf("ParseSumPrefix: %v", err)
	}
	if len(prefix) != 2 {
		t.Fatalf("expected dangling nibble dropped, got %d bytes", len(prefix))
	}
}

func TestSumWriterMatchesDirectHash(t *testing.T) {
	var buf discardWriter
	sw := NewSumWriter(&buf)
	data := []byte("streamed content")
	if _, err := sw.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := sw.Sum(), SumFromBytes(data); got != want {
		t.Fatalf("SumWriter digest = %x, want %x", got, want)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
