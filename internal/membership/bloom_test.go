package membership

import (
	"fmt"
	"testing"

	"github.com/coldvault/chunkvault/internal/hashing"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	digests := make([]hashing.Digest, 0, 500)
	for i := 0; i < 500; i++ {
		d := hashing.Sum([]byte{byte(i), byte(i >> 8)})
		digests = append(digests, d)
		f.Insert(d)
	}
	for _, d := range digests {
		if !f.MightContain(d) {
			t.Fatalf("false negative for digest %s", d)
		}
	}
}

func TestFalsePositiveRateBounded(t *testing.T) {
	const n = 2000
	const targetRate = 0.02
	f := New(n, targetRate)

	inserted := make(map[hashing.Digest]bool, n)
	for i := 0; i < n; i++ {
		d := hashing.Sum([]byte(fmt.Sprintf("member-%d", i)))
		inserted[d] = true
		f.Insert(d)
	}

	falsePositives := 0
	trials := 20000
	for i := 0; i < trials; i++ {
		d := hashing.Sum([]byte(fmt.Sprintf("absent-%d", i+1_000_000)))
		if inserted[d] {
			continue // astronomically unlikely, but be correct
		}
		if f.MightContain(d) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	// Allow generous slack: this is a statistical property, not an
	// exact bound, and we want a stable, non-flaky test.
	if rate > targetRate*3 {
		t.Fatalf("false positive rate %.4f exceeds 3x target %.4f", rate, targetRate)
	}
}

func TestNoDeletionAPI(t *testing.T) {
	// Filter intentionally exposes no Delete/Remove method; this test
	// documents that absence as a contract, not an oversight.
	f := New(10, 0.01)
	d := hashing.Sum([]byte("x"))
	f.Insert(d)
	if !f.MightContain(d) {
		t.Fatalf("expected membership after insert")
	}
}
