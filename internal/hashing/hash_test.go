package hashing

import (
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := Sum(data)
	b := Sum(data)
	if a != b {
		t.Fatalf("Sum is not deterministic: %s != %s", a, b)
	}
}

func TestStreamingEquivalence(t *testing.T) {
	data := []byte("streaming equivalence must hold for any split of the input")

	want := Sum(data)

	for _, split := range []int{0, 1, 5, len(data) / 2, len(data)} {
		h := NewStreaming(nil)
		h.Write(data[:split])
		h.Write(data[split:])
		got := h.Finalize()
		if got != want {
			t.Fatalf("split %d: streaming digest %s != whole digest %s", split, got, want)
		}
	}
}

func TestKeyedHashChangesDigest(t *testing.T) {
	data := []byte("same bytes, different key")
	plain := Sum(data)
	keyed := SumKeyed([]byte("seed-1"), data)
	if plain == keyed {
		t.Fatalf("keyed digest unexpectedly equals unkeyed digest")
	}

	keyedAgain := SumKeyed([]byte("seed-1"), data)
	if keyed != keyedAgain {
		t.Fatalf("keyed hashing is not deterministic for a fixed seed")
	}

	otherSeed := SumKeyed([]byte("seed-2"), data)
	if keyed == otherSeed {
		t.Fatalf("different seeds produced the same digest")
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := Sum([]byte("round trip"))
	parsed, err := ParseDigest(d.String())
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != d {
		t.Fatalf("parsed digest %s != original %s", parsed, d)
	}
}

func TestParseDigestRejectsBadInput(t *testing.T) {
	cases := []string{"", "not-hex", "abcd", "00112233"}
	for _, c := range cases {
		if _, err := ParseDigest(c); err == nil {
			t.Fatalf("ParseDigest(%q) unexpectedly succeeded", c)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	a := Digest{0x00, 0x01}
	b := Digest{0x00, 0x02}
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

func TestZeroDigest(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Fatalf("zero-value Digest should report IsZero")
	}
	if Sum(nil).IsZero() {
		t.Fatalf("hash of empty input should not be the zero digest")
	}
}
