// Package membership implements the probabilistic "might contain digest?"
// hint of §4.4. It is pure optimization: C5/C6 remain the source of
// truth, and the testsuite must pass with this package entirely absent
// (spec.md §9). The bit array is a github.com/RoaringBitmap/roaring
// bitmap rather than a raw []uint64 word array — a Bloom filter's bit
// array is exactly the positional integer set Roaring is built to
// compress, and it gives the filter a real cardinality estimate for
// free via GetCardinality.
package membership

import (
	"encoding/binary"
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/coldvault/chunkvault/internal/hashing"
)

// Filter is a Bloom filter over hashing.Digest keys with no false
// negatives and a bounded false-positive rate at the configured
// expected insertion count.
type Filter struct {
	bits *roaring.Bitmap
	m    uint32 // number of bits
	k    uint32 // number of hash probes
	n    uint64 // insertions so far (for stats only)
}

// New creates a Filter sized for expectedInsertions distinct digests at
// targetFalsePositiveRate, using the standard optimal-parameters
// formulas m = -n*ln(p)/(ln2)^2, k = (m/n)*ln2.
func New(expectedInsertions uint64, targetFalsePositiveRate float64) *Filter {
	if expectedInsertions == 0 {
		expectedInsertions = 1
	}
	if targetFalsePositiveRate <= 0 || targetFalsePositiveRate >= 1 {
		targetFalsePositiveRate = 0.01
	}

	n := float64(expectedInsertions)
	ln2 := math.Ln2
	m := math.Ceil(-n * math.Log(targetFalsePositiveRate) / (ln2 * ln2))
	k := math.Round((m / n) * ln2)
	if k < 1 {
		k = 1
	}

	return &Filter{
		bits: roaring.New(),
		m:    uint32(m),
		k:    uint32(k),
	}
}

// Insert records d as present. After Insert(d) returns, MightContain(d)
// is guaranteed to return true (no false negatives).
func (f *Filter) Insert(d hashing.Digest) {
	h1, h2 := splitHashes(d)
	for i := uint32(0); i < f.k; i++ {
		f.bits.Add(probe(h1, h2, i, f.m))
	}
	f.n++
}

// MightContain reports whether d may have been inserted. A false result
// is definitive; a true result may be a false positive at a rate bounded
// by the rate this Filter was constructed with, as long as the number of
// insertions stays at or below the configured expectation.
func (f *Filter) MightContain(d hashing.Digest) bool {
	h1, h2 := splitHashes(d)
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Contains(probe(h1, h2, i, f.m)) {
			return false
		}
	}
	return true
}

// Insertions returns the number of Insert calls observed so far.
func (f *Filter) Insertions() uint64 { return f.n }

// Bits returns the size of the bit array (m).
func (f *Filter) Bits() uint32 { return f.m }

// EstimatedCardinality reports Roaring's set cardinality of the
// underlying bit array, a rough cross-check against Insertions when the
// filter isn't yet saturated.
func (f *Filter) EstimatedCardinality() uint64 {
	return f.bits.GetCardinality()
}

// probe computes the i-th bit position via Kirsch-Mitzenmacher double
// hashing: position_i = (h1 + i*h2) mod m.
func probe(h1, h2 uint64, i uint32, m uint32) uint32 {
	combined := h1 + uint64(i)*h2
	return uint32(combined % uint64(m))
}

// splitHashes derives two independent 64-bit hashes from a digest by
// reading its first and last 8 bytes; blake3 output bits are uniformly
// distributed, so non-overlapping slices of the digest are independent
// enough for double hashing.
func splitHashes(d hashing.Digest) (uint64, uint64) {
	h1 := binary.LittleEndian.Uint64(d[0:8])
	h2 := binary.LittleEndian.Uint64(d[hashing.Size-8 : hashing.Size])
	if h2 == 0 {
		h2 = 1 // avoid every probe landing on h1 when h2 is degenerate
	}
	return h1, h2
}
