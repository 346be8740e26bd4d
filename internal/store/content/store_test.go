package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/coldvault/chunkvault/internal/hashing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{RootDir: t.TempDir(), Verify: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	data := []byte("hello chunkvault")
	digest := hashing.Sum(data)

	outcome, err := s.Put(context.Background(), digest, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if outcome != Inserted {
		t.Fatalf("expected Inserted, got %v", outcome)
	}

	got, err := s.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestDuplicatePutReportsAlreadyPresent(t *testing.T) {
	s := openTestStore(t)
	data := []byte("duplicate me")
	digest := hashing.Sum(data)

	if _, err := s.Put(context.Background(), digest, data); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	outcome, err := s.Put(context.Background(), digest, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if outcome != AlreadyPresent {
		t.Fatalf("expected AlreadyPresent, got %v", outcome)
	}

	stats := s.Stats()
	if stats.Insertions != 1 {
		t.Fatalf("expected 1 insertion, got %d", stats.Insertions)
	}
	if stats.DedupHits != 1 {
		t.Fatalf("expected 1 dedup hit, got %d", stats.DedupHits)
	}
	if stats.TotalStoredBytes != uint64(len(data)) {
		t.Fatalf("expected stored bytes unchanged at %d, got %d", len(data), stats.TotalStoredBytes)
	}
}

func TestGetMissingDigestFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(hashing.Sum([]byte("never inserted")))
	if err == nil {
		t.Fatalf("expected error for missing digest")
	}
}

func TestConcurrentPutsSameDigestYieldOnePhysicalWrite(t *testing.T) {
	s := openTestStore(t)
	data := []byte("contended payload")
	digest := hashing.Sum(data)

	const workers = 8
	const attemptsPerWorker = 125 // 1000 total, matching spec.md's concurrency scenario

	var mu sync.Mutex
	inserted, alreadyPresent := 0, 0

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < attemptsPerWorker; i++ {
				outcome, err := s.Put(context.Background(), digest, data)
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				mu.Lock()
				if outcome == Inserted {
					inserted++
				} else {
					alreadyPresent++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("expected exactly 1 Inserted, got %d", inserted)
	}
	if alreadyPresent != workers*attemptsPerWorker-1 {
		t.Fatalf("expected %d AlreadyPresent, got %d", workers*attemptsPerWorker-1, alreadyPresent)
	}

	got, err := s.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("stored bytes corrupted under concurrent put")
	}
}

// TestPutDetectsDigestCollision simulates spec.md §4.5's fatal
// invariant violation directly: a second Put under the same digest but
// with different bytes (as would happen if two distinct payloads ever
// hashed the same) must be reported as DigestCollision, never silently
// folded into AlreadyPresent.
func TestPutDetectsDigestCollision(t *testing.T) {
	s := openTestStore(t)
	digest := hashing.Sum([]byte("the original bytes"))

	if _, err := s.Put(context.Background(), digest, []byte("the original bytes")); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	_, err := s.Put(context.Background(), digest, []byte("a different payload entirely"))
	if err == nil {
		t.Fatal("expected DigestCollision, got nil error")
	}
	if !errors.Is(err, errs.DigestCollision("")) {
		t.Fatalf("expected DigestCollision, got %v", err)
	}
}

func TestOpenSweepsOrphanTempFiles(t *testing.T) {
	root := t.TempDir()
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		t.Fatalf("mkdir tmp: %v", err)
	}
	orphan := filepath.Join(tmpDir, "obj-orphan")
	if err := os.WriteFile(orphan, []byte("leftover"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(orphan, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := Open(Config{RootDir: root, OrphanGrace: 0}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphan temp file to be removed, stat err = %v", err)
	}
}
