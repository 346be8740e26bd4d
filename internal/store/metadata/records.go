package metadata

import (
	"github.com/coldvault/chunkvault/internal/hashing"
	"github.com/coldvault/chunkvault/pkg/codec/cborcanon"
)

// snapshotRecord is the value stored at snap:<id>.
type snapshotRecord struct {
	RootPath  string `cbor:"root_path"`
	CreatedAt int64  `cbor:"created_at"`
	Sealed    bool   `cbor:"sealed"`
}

// fileEntryRecord is the value stored at file:<id>:<path-tuple>.
type fileEntryRecord struct {
	Size    uint64   `cbor:"size"`
	Mtime   int64    `cbor:"mtime"`
	Mode    uint32   `cbor:"mode"`
	Digests [][]byte `cbor:"digests"` // ordered, one per chunk index
}

// digestRecord is the value stored at digest:<hex>.
type digestRecord struct {
	Length   uint64 `cbor:"length"`
	RefCount uint64 `cbor:"ref_count"`
}

func (r fileEntryRecord) digestList() []hashing.Digest {
	out := make([]hashing.Digest, len(r.Digests))
	for i, b := range r.Digests {
		copy(out[i][:], b)
	}
	return out
}

func encodeDigests(digests []hashing.Digest) [][]byte {
	out := make([][]byte, len(digests))
	for i, d := range digests {
		b := make([]byte, hashing.Size)
		copy(b, d[:])
		out[i] = b
	}
	return out
}

func encodeValue(v any) ([]byte, error) {
	return cborcanon.Marshal(v)
}

func decodeValue(data []byte, v any) error {
	return cborcanon.Unmarshal(data, v)
}
