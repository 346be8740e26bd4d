// Package content implements the write-once, digest-keyed blob store of
// §4.5/§6. It has no direct analog in the teacher's chunk stores at this
// exact on-disk fan-out, but its durability discipline (write to a temp
// file, fsync, rename into place) and its per-digest in-flight tracking
// follow beenet's pkg/content.ContentFetcher, which guards an
// activeFetches map with a plain sync.Mutex rather than reaching for a
// sync.Map.
package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldvault/chunkvault/internal/codec"
	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/coldvault/chunkvault/internal/hashing"
	"github.com/coldvault/chunkvault/internal/obslog"
)

// PutOutcome reports whether Put performed the physical write.
type PutOutcome int

const (
	Inserted PutOutcome = iota
	AlreadyPresent
)

func (o PutOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "already_present"
}

// Config configures a Store.
type Config struct {
	// RootDir is the store's root directory; objects/ and tmp/ are
	// created beneath it.
	RootDir string

	// Codec transforms payload bytes between the digest's identity
	// (always computed over plaintext) and the on-disk representation.
	// A nil Codec defaults to codec.Identity{}.
	Codec codec.Codec

	// Verify re-hashes bytes read back by Get before returning them.
	Verify bool

	// OrphanGrace is how old an unfinished tmp/ file must be before
	// Open deletes it. Zero uses a one-hour default.
	OrphanGrace time.Duration
}

// Stats reports store-wide counters, per spec.md §4.5 stats().
type Stats struct {
	DistinctDigests  uint64
	TotalStoredBytes uint64
	Insertions       uint64
	DedupHits        uint64
}

// Store is a write-once, digest-keyed blob store rooted at a directory.
type Store struct {
	rootDir string
	codec   codec.Codec
	verify  bool

	mu       sync.Mutex                // guards digests and inFlight
	digests  map[hashing.Digest]uint64 // digest -> stored payload length
	inFlight map[hashing.Digest]*sync.WaitGroup

	insertions atomic.Uint64
	dedupHits  atomic.Uint64
}

// Open opens (creating if necessary) the content store rooted at
// cfg.RootDir, sweeping any orphaned tmp/ files older than
// cfg.OrphanGrace, per spec.md §4.5's failure model.
func Open(cfg Config) (*Store, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("content: RootDir must be set")
	}
	c := cfg.Codec
	if c == nil {
		c = codec.Identity{}
	}
	grace := cfg.OrphanGrace
	if grace <= 0 {
		grace = time.Hour
	}

	objectsDir := filepath.Join(cfg.RootDir, "objects")
	tmpDir := filepath.Join(cfg.RootDir, "tmp")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, errs.IoError(objectsDir, err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, errs.IoError(tmpDir, err)
	}

	s := &Store{
		rootDir:  cfg.RootDir,
		codec:    c,
		verify:   cfg.Verify,
		digests:  make(map[hashing.Digest]uint64),
		inFlight: make(map[hashing.Digest]*sync.WaitGroup),
	}

	if err := s.sweepOrphans(tmpDir, grace); err != nil {
		return nil, err
	}
	if err := s.loadExisting(objectsDir); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sweepOrphans(tmpDir string, grace time.Duration) error {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return errs.IoError(tmpDir, err)
	}
	cutoff := time.Now().Add(-grace)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(tmpDir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errs.IoError(path, err)
			}
			obslog.Debug("removed orphan temp file", "path", path)
		}
	}
	return nil
}

// loadExisting walks objects/ to populate the in-memory digest index so
// Contains is O(1) and Stats needs no disk access after open, without
// re-deriving anything from the metadata index (C5 is the source of truth for "what bytes exist").
func (s *Store) loadExisting(objectsDir string) error {
	return filepath.WalkDir(objectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errs.IoError(path, err)
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		digest, parseErr := hashing.ParseDigest(name)
		if parseErr != nil {
			// Not one of our object files; ignore.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errs.IoError(path, err)
		}
		s.digests[digest] = uint64(info.Size())
		return nil
	})
}

// objectPath returns the fan-out path objects/XX/YY/<hex> for digest.
func (s *Store) objectPath(digest hashing.Digest) string {
	h := digest.String()
	return filepath.Join(s.rootDir, "objects", h[0:2], h[2:4], h)
}

// Contains reports whether digest's bytes are already stored.
func (s *Store) Contains(digest hashing.Digest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.digests[digest]
	return ok
}

// Put stores payload under digest, or confirms it is already present. Two
// concurrent Puts for the same digest serialize on an in-flight wait
// group so exactly one physical write occurs; the loser observes
// AlreadyPresent without writing anything (it only reads the stored
// object back, see below).
//
// A dedup hit is only ever reported after the incoming bytes are
// confirmed identical to what's already stored under digest. Content
// addressing assumes digest collisions don't happen; if one ever does,
// spec §4.5 treats it as a fatal invariant violation rather than silent
// data loss, so Put returns DigestCollision instead of AlreadyPresent.
func (s *Store) Put(ctx context.Context, digest hashing.Digest, payload []byte) (PutOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Cancelled()
	}

	s.mu.Lock()
	if _, ok := s.digests[digest]; ok {
		s.mu.Unlock()
		return s.confirmDedup(digest, payload)
	}
	if wg, inFlight := s.inFlight[digest]; inFlight {
		s.mu.Unlock()
		wg.Wait()
		s.mu.Lock()
		_, ok := s.digests[digest]
		s.mu.Unlock()
		if ok {
			return s.confirmDedup(digest, payload)
		}
		// The writer that held inFlight failed; fall through and try
		// ourselves rather than returning a false AlreadyPresent.
		return s.Put(ctx, digest, payload)
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	s.inFlight[digest] = wg
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, digest)
		s.mu.Unlock()
		wg.Done()
	}()

	if err := s.writeObject(digest, payload); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.digests[digest] = uint64(len(payload))
	s.mu.Unlock()
	s.insertions.Add(1)
	return Inserted, nil
}

// confirmDedup is reached whenever digest already has bytes on disk. It
// reads those bytes back and compares them against incoming before
// reporting AlreadyPresent, so a second writer that computed the same
// digest over different content is caught rather than silently folded
// into the first writer's object.
func (s *Store) confirmDedup(digest hashing.Digest, incoming []byte) (PutOutcome, error) {
	stored, err := s.readStored(digest)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(stored, incoming) {
		return 0, errs.DigestCollision(digest.String())
	}
	s.dedupHits.Add(1)
	return AlreadyPresent, nil
}

// readStored reads and decodes the object already on disk for digest,
// without the presence check or Verify re-hash Get performs — the
// caller already knows digest is present and is comparing raw bytes,
// not re-deriving the digest.
func (s *Store) readStored(digest hashing.Digest) ([]byte, error) {
	path := s.objectPath(digest)
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.ReadErrorAt(0, err)
	}
	plain, err := s.codec.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("content: decode %s: %w", digest, err)
	}
	return plain, nil
}

func (s *Store) writeObject(digest hashing.Digest, plain []byte) error {
	payload, err := s.codec.Encode(plain)
	if err != nil {
		return fmt.Errorf("content: encode %s: %w", digest, err)
	}

	tmpDir := filepath.Join(s.rootDir, "tmp")
	tmp, err := os.CreateTemp(tmpDir, "obj-*")
	if err != nil {
		return errs.IoError(tmpDir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errs.IoError(tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.IoError(tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.IoError(tmpPath, err)
	}

	finalPath := s.objectPath(digest)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return errs.IoError(filepath.Dir(finalPath), err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errs.IoError(finalPath, err)
	}
	return nil
}

// Get returns the stored bytes for digest, or Missing if absent.
func (s *Store) Get(digest hashing.Digest) ([]byte, error) {
	s.mu.Lock()
	_, ok := s.digests[digest]
	s.mu.Unlock()
	if !ok {
		return nil, errs.Missing(digest.String())
	}

	path := s.objectPath(digest)
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.ReadErrorAt(0, err)
	}
	defer f.Close()

	encoded, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.ReadErrorAt(0, err)
	}
	plain, err := s.codec.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("content: decode %s: %w", digest, err)
	}

	if s.verify {
		if got := hashing.Sum(plain); got != digest {
			return nil, errs.IntegrityFailure(digest.String())
		}
	}
	return plain, nil
}

// Stats returns a snapshot of store-wide counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var totalBytes uint64
	for _, n := range s.digests {
		totalBytes += n
	}
	return Stats{
		DistinctDigests:  uint64(len(s.digests)),
		TotalStoredBytes: totalBytes,
		Insertions:       s.insertions.Load(),
		DedupHits:        s.dedupHits.Load(),
	}
}

// Close is a no-op beyond documenting the contract: every Put that
// returned successfully is already durable (fsync happened before
// rename), so there is nothing left to flush.
func (s *Store) Close() error { return nil }
