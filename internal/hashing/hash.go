// Package hashing provides the cryptographic digest primitive used to give
// every chunk its content identity, as specified in §4.1.
package hashing

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the width, in bytes, of a Digest produced by this package.
const Size = 32

// Digest is a fixed-width cryptographic hash. Its total ordering is
// lexicographic over the raw bytes.
type Digest [Size]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest (used as a sentinel for
// "no digest", e.g. an empty file's chunk list).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare returns -1, 0 or 1 as d is lexicographically less than, equal to,
// or greater than other.
func (d Digest) Compare(other Digest) int {
	for i := range d {
		if d[i] != other[i] {
			if d[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ParseDigest decodes a hex string produced by Digest.String back into a
// Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("hashing: invalid digest %q: %w", s, err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("hashing: invalid digest length: got %d, want %d", len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// Sum computes the digest of data in one call.
func Sum(data []byte) Digest {
	return SumKeyed(nil, data)
}

// SumKeyed computes the digest of data under an optional key of any length
// (see deriveKey). A nil or empty key falls back to the unkeyed hash,
// matching C3's hasher_seed option (an empty seed means "no keying").
func SumKeyed(key []byte, data []byte) Digest {
	h := newHasher(key)
	h.Write(data) //nolint:errcheck // hash.Hash.Write never fails
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Hasher is the streaming counterpart of Sum: repeated Write calls followed
// by Finalize must equal Sum over the concatenation of everything written.
type Hasher struct {
	h *blake3.Hasher
}

// NewStreaming returns a new streaming Hasher, optionally keyed.
func NewStreaming(key []byte) *Hasher {
	return &Hasher{h: newHasher(key)}
}

// Write implements io.Writer. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Finalize returns the digest of everything written so far. The Hasher
// remains usable afterwards (blake3 finalization does not consume state).
func (h *Hasher) Finalize() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// Reset clears the Hasher so it can be reused for a new stream.
func (h *Hasher) Reset() {
	h.h.Reset()
}

func newHasher(key []byte) *blake3.Hasher {
	if len(key) == 0 {
		return blake3.New(Size, nil)
	}
	k := deriveKey(key)
	return blake3.New(Size, k[:])
}

// deriveKey stretches or truncates an arbitrary-length seed into the
// 32-byte key blake3's keyed mode requires, by hashing it through the
// unkeyed hasher. This lets C3's hasher_seed option accept a seed of any length.
func deriveKey(seed []byte) [32]byte {
	var out [32]byte
	sum := blake3.Sum256(seed)
	copy(out[:], sum[:])
	return out
}
