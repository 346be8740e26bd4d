package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/coldvault/chunkvault/internal/events"
	"github.com/coldvault/chunkvault/internal/hashing"
	"github.com/coldvault/chunkvault/internal/obslog"
	"github.com/coldvault/chunkvault/internal/store/content"
	"github.com/coldvault/chunkvault/internal/store/metadata"
)

// RestoreOptions configures one Restore run, per spec.md §4.8's inputs.
type RestoreOptions struct {
	OverwriteExisting bool
	VerifyIntegrity   bool
}

// RestoreResult is the summary returned by Restore, per spec.md §4.8.
type RestoreResult struct {
	FilesRestored int
	BytesRestored uint64
	ChunksRead    int
	Duration      time.Duration
}

// Restore reconstructs every File Entry of the snapshot id under
// targetDir, fetching chunk bytes from store and, when
// opts.VerifyIntegrity is set, verifying them against their recorded
// digests before writing.
func Restore(
	ctx context.Context,
	id metadata.SnapshotID,
	targetDir string,
	index *metadata.Store,
	store *content.Store,
	opts RestoreOptions,
	sink events.Sink,
) (*RestoreResult, error) {
	if sink == nil {
		sink = events.Nop{}
	}
	start := time.Now()

	snap, err := index.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, entry := range snap.Files {
		if err := ctx.Err(); err != nil {
			return nil, errs.Cancelled()
		}

		destPath := filepath.Join(append([]string{targetDir}, entry.Path...)...)
		bytesWritten, err := restoreFile(ctx, destPath, entry, store, opts, sink)
		if err != nil {
			return nil, err
		}

		result.FilesRestored++
		result.BytesRestored += bytesWritten
		result.ChunksRead += len(entry.Digests)
		sink.Notify(events.Event{Kind: events.KindFileCompleted, Time: time.Now(), Path: destPath, Bytes: bytesWritten})
	}

	result.Duration = time.Since(start)
	return result, nil
}

func restoreFile(ctx context.Context, destPath string, entry metadata.FileEntry, store *content.Store, opts RestoreOptions, sink events.Sink) (bytesWritten uint64, err error) {
	sink.Notify(events.Event{Kind: events.KindFileStarted, Time: time.Now(), Path: destPath})

	if !opts.OverwriteExisting {
		if _, statErr := os.Lstat(destPath); statErr == nil {
			return 0, errs.TargetExists(destPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, errs.IoError(destPath, err)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(entry.Mode))
	if err != nil {
		return 0, errs.IoError(destPath, err)
	}

	cleanupPartial := func() {
		out.Close()
		if rmErr := os.Remove(destPath); rmErr != nil && !os.IsNotExist(rmErr) {
			obslog.Warn("failed to remove partially written file after restore error", "path", destPath, "error", rmErr)
		}
	}

	for _, digest := range entry.Digests {
		if err := ctx.Err(); err != nil {
			cleanupPartial()
			return 0, errs.Cancelled()
		}

		data, err := store.Get(digest)
		if err != nil {
			cleanupPartial()
			sink.Notify(events.Event{Kind: events.KindFileFailed, Time: time.Now(), Path: destPath, Err: err})
			return 0, err
		}

		if opts.VerifyIntegrity {
			if got := hashing.Sum(data); got != digest {
				cleanupPartial()
				err := errs.IntegrityFailure(digest.String())
				sink.Notify(events.Event{Kind: events.KindFileFailed, Time: time.Now(), Path: destPath, Err: err})
				return 0, err
			}
		}

		n, writeErr := out.Write(data)
		if writeErr != nil {
			cleanupPartial()
			return 0, errs.IoError(destPath, writeErr)
		}
		bytesWritten += uint64(n)
	}

	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return 0, errs.IoError(destPath, err)
	}

	if err := os.Chtimes(destPath, entry.Mtime, entry.Mtime); err != nil {
		return bytesWritten, errs.IoError(destPath, err)
	}
	if err := os.Chmod(destPath, os.FileMode(entry.Mode)); err != nil {
		return bytesWritten, errs.IoError(destPath, err)
	}

	return bytesWritten, nil
}
