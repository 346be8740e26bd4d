package metadata

import (
	"time"

	"github.com/coldvault/chunkvault/internal/hashing"
)

// SnapshotID identifies one backup run. Never reused, even after a
// restart, since it is a random UUIDv4 (github.com/google/uuid).
type SnapshotID string

// FileEntry describes one regular file captured by a snapshot.
type FileEntry struct {
	Path         []string // canonical path components, e.g. ["a", "b", "c.bin"]
	Size         uint64   // logical size: sum of chunk lengths
	Mtime        time.Time
	Mode         uint32
	Digests      []hashing.Digest // chunk digests, in index order
	ChunkLengths []uint64         // chunk byte lengths, parallel to Digests
}

// SnapshotDescriptor is the lightweight summary returned by
// list_snapshots, per spec.md §4.6.
type SnapshotDescriptor struct {
	ID        SnapshotID
	RootPath  string
	CreatedAt time.Time
	Sealed    bool
}

// Snapshot is a fully loaded snapshot: its descriptor plus every File
// Entry it recorded.
type Snapshot struct {
	SnapshotDescriptor
	Files []FileEntry
}

// IndexStats reports catalog-wide counters, per spec.md §4.6 stats().
type IndexStats struct {
	DistinctDigests    uint64
	TotalLogicalBytes  uint64
	TotalStoredBytes   uint64
	DeduplicationRatio float64
}
