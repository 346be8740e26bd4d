package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coldvault/chunkvault/internal/events"
)

// TestBackupDedupsIdenticalFiles covers spec.md §8's "dedup of
// identical files" scenario: two files with the same bytes must share
// every chunk, so only one of them contributes newly stored bytes.
func TestBackupDedupsIdenticalFiles(t *testing.T) {
	r := newTestRig(t)
	payload := bytes.Repeat([]byte("chunkvault"), 1000)
	r.writeFile(t, "a.bin", payload)
	r.writeFile(t, "b.bin", payload)

	res, err := Backup(context.Background(), r.sourceD, r.content, r.index, r.pool, nil, defaultOpts(), nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if res.FilesProcessed != 2 {
		t.Fatalf("FilesProcessed = %d, want 2", res.FilesProcessed)
	}
	if res.FilesFailed != 0 {
		t.Fatalf("FilesFailed = %d, want 0", res.FilesFailed)
	}
	if res.BytesNewlyStored != uint64(len(payload)) {
		t.Errorf("BytesNewlyStored = %d, want %d (second file should dedup entirely)", res.BytesNewlyStored, len(payload))
	}
	if res.ChunksCreated == 0 {
		t.Errorf("ChunksCreated = 0, want > 0")
	}
}

// TestBackupStoresUniqueFiles covers the "unique files" scenario:
// distinct content never dedups against each other, and total newly
// stored bytes equals the sum of both files.
func TestBackupStoresUniqueFiles(t *testing.T) {
	r := newTestRig(t)
	r.writeFile(t, "a.bin", bytes.Repeat([]byte{0xAA}, 5000))
	r.writeFile(t, "b.bin", bytes.Repeat([]byte{0xBB}, 7000))

	res, err := Backup(context.Background(), r.sourceD, r.content, r.index, r.pool, nil, defaultOpts(), nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if res.BytesNewlyStored != 12000 {
		t.Errorf("BytesNewlyStored = %d, want 12000 (no dedup expected)", res.BytesNewlyStored)
	}
}

// TestBackupPartialOverlap covers the "partial overlap" scenario: a
// file sharing only its first chunk with an earlier file should
// contribute newly stored bytes for everything past that shared chunk.
func TestBackupPartialOverlap(t *testing.T) {
	r := newTestRig(t)
	opts := defaultOpts()
	opts.ChunkSize = 16

	shared := bytes.Repeat([]byte{0x01}, 16)
	r.writeFile(t, "a.bin", append(append([]byte{}, shared...), bytes.Repeat([]byte{0x02}, 16)...))
	r.writeFile(t, "b.bin", append(append([]byte{}, shared...), bytes.Repeat([]byte{0x03}, 16)...))

	res, err := Backup(context.Background(), r.sourceD, r.content, r.index, r.pool, nil, opts, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	// 3 distinct 16-byte chunks total: shared, 0x02-run, 0x03-run.
	if res.BytesNewlyStored != 48 {
		t.Errorf("BytesNewlyStored = %d, want 48 (one shared chunk, two unique)", res.BytesNewlyStored)
	}
}

// TestBackupRestoreRoundTrip covers the "full round-trip" scenario:
// every byte written must come back identical after Backup then
// Restore, across several files of different sizes.
func TestBackupRestoreRoundTrip(t *testing.T) {
	r := newTestRig(t)
	files := map[string][]byte{
		"top.bin":          bytes.Repeat([]byte("r1"), 2048),
		"nested/deep.bin":  bytes.Repeat([]byte("r2"), 37),
		"nested/empty.bin": {},
	}
	for path, data := range files {
		r.writeFile(t, path, data)
	}

	backupRes, err := Backup(context.Background(), r.sourceD, r.content, r.index, r.pool, nil, defaultOpts(), nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backupRes.FilesFailed != 0 {
		t.Fatalf("FilesFailed = %d, want 0", backupRes.FilesFailed)
	}

	restoreRes, err := Restore(context.Background(), backupRes.SnapshotID, r.targetD, r.index, r.content,
		RestoreOptions{VerifyIntegrity: true}, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restoreRes.FilesRestored != len(files) {
		t.Fatalf("FilesRestored = %d, want %d", restoreRes.FilesRestored, len(files))
	}

	for path, want := range files {
		got, err := readRestored(r.targetD, path)
		if err != nil {
			t.Fatalf("read restored %s: %v", path, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("restored %s mismatch: got %d bytes, want %d", path, len(got), len(want))
		}
	}
}

// TestBackupConcurrentDuplicateInserts covers the "concurrent duplicate
// inserts" scenario: many files sharing identical content, chunked
// concurrently, must still settle on exactly one physical write per
// digest with no DigestCollision and no lost files.
func TestBackupConcurrentDuplicateInserts(t *testing.T) {
	r := newTestRig(t)
	payload := bytes.Repeat([]byte("concurrent-dedup"), 500)
	const fileCount = 12
	for i := 0; i < fileCount; i++ {
		r.writeFile(t, namedFile(i), payload)
	}

	opts := defaultOpts()
	opts.MaxParallelFiles = 8
	opts.MaxParallelChunks = 8

	res, err := Backup(context.Background(), r.sourceD, r.content, r.index, r.pool, nil, opts, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if res.FilesProcessed != fileCount {
		t.Fatalf("FilesProcessed = %d, want %d", res.FilesProcessed, fileCount)
	}
	if res.BytesNewlyStored != uint64(len(payload)) {
		t.Errorf("BytesNewlyStored = %d, want %d (all %d files share one digest set)", res.BytesNewlyStored, len(payload), fileCount)
	}
}

// TestBackupAbortsOnCancellationLeavesSnapshotUnsealed covers the
// "crash recovery" scenario at the orchestrator level: a run whose
// context is cancelled as soon as the first file starts (before any of
// its chunks is read) must return an error instead of a result, and
// must leave the snapshot unsealed so a later reopen rolls it back per
// spec.md §4.6.
func TestBackupAbortsOnCancellationLeavesSnapshotUnsealed(t *testing.T) {
	r := newTestRig(t)
	r.writeFile(t, "a.bin", bytes.Repeat([]byte{0x9}, 50000))
	r.writeFile(t, "b.bin", bytes.Repeat([]byte{0x8}, 50000))

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	sink := events.Func(func(e events.Event) {
		if e.Kind == events.KindFileStarted {
			once.Do(cancel)
		}
	})

	opts := defaultOpts()
	opts.MaxParallelFiles = 1
	opts.MaxParallelChunks = 1

	_, err := Backup(ctx, r.sourceD, r.content, r.index, r.pool, nil, opts, sink)
	if err == nil {
		t.Fatal("Backup: expected an error from a cancelled run, got nil")
	}
	if !errors.Is(err, context.Canceled) && !isEOF(err) {
		// The run was cancelled mid-flight; accept any error here, the
		// real assertion is the unsealed-snapshot state checked below.
		t.Logf("Backup returned %v (run was cancelled mid-flight)", err)
	}

	descs, err := r.index.ListSnapshots(context.Background())
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("ListSnapshots returned %d entries, want 1", len(descs))
	}
	if descs[0].Sealed {
		t.Error("snapshot was sealed despite the run aborting; rollback would never trigger on reopen")
	}
}

func namedFile(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + ".bin"
}
