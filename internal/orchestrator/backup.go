// Package orchestrator implements the backup and restore procedures of
// §4.7/§4.8, wiring C2-C6 together. Its concurrency shape is grounded on
// beenet's pkg/content.ContentFetcher: a channel semaphore for
// backpressure control (cf.semaphore) plus a sync.WaitGroup join, here
// generalized from "bound concurrent chunk fetches" to "bound
// concurrent file pipelines and bound concurrent chunk processing".
package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldvault/chunkvault/internal/bufpool"
	"github.com/coldvault/chunkvault/internal/chunker"
	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/coldvault/chunkvault/internal/events"
	"github.com/coldvault/chunkvault/internal/hashing"
	"github.com/coldvault/chunkvault/internal/membership"
	"github.com/coldvault/chunkvault/internal/obslog"
	"github.com/coldvault/chunkvault/internal/store/content"
	"github.com/coldvault/chunkvault/internal/store/metadata"
)

// BackupOptions configures one Backup run, per spec.md §4.7's inputs.
type BackupOptions struct {
	ChunkSize         uint32
	VerifyIntegrity   bool
	MaxParallelFiles  int
	MaxParallelChunks int
	HasherSeed        []byte
}

// BackupResult is the summary returned by Backup, per spec.md §4.7.
type BackupResult struct {
	SnapshotID       metadata.SnapshotID
	FilesProcessed   int
	FilesFailed      int
	FilesSkipped     int
	BytesProcessed   uint64
	ChunksCreated    int
	BytesNewlyStored uint64
	Duration         time.Duration
}

// Backup walks sourceRoot, chunks and deduplicates every regular file
// against content and filter, and records the result in index under a
// freshly begun snapshot, which it seals on success.
func Backup(
	ctx context.Context,
	sourceRoot string,
	content *content.Store,
	index *metadata.Store,
	pool *bufpool.Pool,
	filter *membership.Filter, // nil is legal: spec.md §9 says the testsuite must pass without it
	opts BackupOptions,
	sink events.Sink,
) (*BackupResult, error) {
	if sink == nil {
		sink = events.Nop{}
	}
	if opts.MaxParallelFiles <= 0 {
		opts.MaxParallelFiles = 1
	}
	if opts.MaxParallelChunks <= 0 {
		opts.MaxParallelChunks = 1
	}

	start := time.Now()
	snapshotID, err := index.BeginSnapshot(ctx, sourceRoot, start)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &backupRun{
		ctx:      runCtx,
		cancel:   cancel,
		content:  content,
		index:    index,
		pool:     pool,
		filter:   filter,
		opts:     opts,
		sink:     sink,
		snapshot: snapshotID,
		fileSem:  make(chan struct{}, opts.MaxParallelFiles),
		chunkSem: make(chan struct{}, opts.MaxParallelChunks),
	}

	walkErr := b.run(sourceRoot)

	if walkErr != nil || ctx.Err() != nil {
		obslog.Warn("backup aborting, leaving snapshot unsealed for rollback on next open", "snapshot_id", snapshotID, "error", walkErr)
		// Best-effort: the snapshot stays unsealed, so a future reopen
		// of the index rolls it back per spec.md §4.6's durability
		// contract even if this process cannot do it itself right now.
		if walkErr == nil {
			walkErr = errs.Cancelled()
		}
		return nil, walkErr
	}

	if err := index.SealSnapshot(ctx, snapshotID); err != nil {
		return nil, err
	}

	return &BackupResult{
		SnapshotID:       snapshotID,
		FilesProcessed:   int(b.filesProcessed.Load()),
		FilesFailed:      int(b.filesFailed.Load()),
		FilesSkipped:     int(b.filesSkipped.Load()),
		BytesProcessed:   b.bytesProcessed.Load(),
		ChunksCreated:    int(b.chunksCreated.Load()),
		BytesNewlyStored: b.bytesNewlyStored.Load(),
		Duration:         time.Since(start),
	}, nil
}

type backupRun struct {
	ctx      context.Context
	cancel   context.CancelFunc
	content  *content.Store
	index    *metadata.Store
	pool     *bufpool.Pool
	filter   *membership.Filter
	opts     BackupOptions
	sink     events.Sink
	snapshot metadata.SnapshotID

	fileSem  chan struct{}
	chunkSem chan struct{}

	filesProcessed   atomic.Int64
	filesFailed      atomic.Int64
	filesSkipped     atomic.Int64
	bytesProcessed   atomic.Uint64
	chunksCreated    atomic.Int64
	bytesNewlyStored atomic.Uint64

	wg       sync.WaitGroup
	mu       sync.Mutex
	firstErr error
}

func (b *backupRun) run(sourceRoot string) error {
	err := walkPreOrder(sourceRoot, func(e walkEntry) error {
		if b.ctx.Err() != nil {
			return b.ctx.Err()
		}
		switch e.kind {
		case kindDir:
			return nil
		case kindRegular:
			rel, err := filepath.Rel(sourceRoot, e.path)
			if err != nil {
				return err
			}
			b.scheduleFile(e.path, rel, e.info)
			return nil
		default:
			b.filesSkipped.Add(1)
			cause := skipCause(e.kind)
			b.sink.Notify(events.Event{Kind: events.KindFileSkipped, Time: time.Now(), Path: e.path, SkipCause: cause})
			obslog.Debug("skipping non-regular entry", "path", e.path, "cause", cause)
			return nil
		}
	})
	b.wg.Wait()

	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstErr
}

func skipCause(k entryKind) string {
	switch k {
	case kindSymlink:
		return "symlink"
	case kindSocket:
		return "socket"
	case kindDevice:
		return "device"
	default:
		return "other"
	}
}

func (b *backupRun) scheduleFile(absPath, relPath string, info os.FileInfo) {
	select {
	case b.fileSem <- struct{}{}:
	case <-b.ctx.Done():
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.fileSem }()
		b.processFile(absPath, relPath, info)
	}()
}

func (b *backupRun) processFile(absPath, relPath string, info os.FileInfo) {
	b.sink.Notify(events.Event{Kind: events.KindFileStarted, Time: time.Now(), Path: relPath})

	entry, err := b.chunkFile(absPath, relPath, info)
	if err != nil {
		var fatal *fatalStoreError
		if errors.As(err, &fatal) {
			// Store/index-level failure: spec §7 aborts the whole
			// backup and leaves the snapshot unsealed for rollback,
			// rather than dropping just this file.
			b.failRun(fatal.Unwrap())
			return
		}
		b.filesFailed.Add(1)
		b.sink.Notify(events.Event{Kind: events.KindFileFailed, Time: time.Now(), Path: relPath, Err: err})
		obslog.Warn("file failed during backup", "path", relPath, "error", err)
		return
	}

	if err := b.index.AppendFile(b.ctx, b.snapshot, *entry); err != nil {
		b.failRun(err)
		return
	}

	b.filesProcessed.Add(1)
	b.bytesProcessed.Add(entry.Size)
	b.sink.Notify(events.Event{Kind: events.KindFileCompleted, Time: time.Now(), Path: relPath, Bytes: entry.Size})
}

func (b *backupRun) chunkFile(absPath, relPath string, info os.FileInfo) (*metadata.FileEntry, error) {
	c, err := chunker.Open(absPath, chunker.Options{
		ChunkSize:  b.opts.ChunkSize,
		HasherSeed: b.opts.HasherSeed,
		Verify:     b.opts.VerifyIntegrity,
	}, b.pool)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var digests []hashing.Digest
	var lengths []uint64
	var size uint64

	for {
		rec, err := c.Next(b.ctx)
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, err
		}

		if err := b.storeChunk(rec); err != nil {
			c.Ack(rec)
			return nil, err
		}

		digests = append(digests, rec.Digest)
		lengths = append(lengths, uint64(rec.Length))
		size += uint64(rec.Length)
		c.Ack(rec)
	}

	return &metadata.FileEntry{
		Path:         pathTuple(relPath),
		Size:         size,
		Mtime:        info.ModTime(),
		Mode:         uint32(info.Mode().Perm()),
		Digests:      digests,
		ChunkLengths: lengths,
	}, nil
}

func (b *backupRun) storeChunk(rec *chunker.Record) error {
	select {
	case b.chunkSem <- struct{}{}:
	case <-b.ctx.Done():
		return &fatalStoreError{err: errs.Cancelled()}
	}
	defer func() { <-b.chunkSem }()

	if b.filter != nil && !b.filter.MightContain(rec.Digest) {
		return b.insertChunk(rec)
	}

	if b.content.Contains(rec.Digest) {
		b.sink.Notify(events.Event{Kind: events.KindChunkDeduped, Time: time.Now(), Digest: rec.Digest.String(), Bytes: uint64(rec.Length)})
		return nil
	}
	return b.insertChunk(rec)
}

// fatalStoreError marks an error as a store/index-level failure rather
// than a per-file one. Errors from chunking the source file itself
// (opening it, a ReadError, a cancelled buffer or read) stay file-level;
// anything from content.Put (disk full, I/O failure, a DigestCollision
// invariant violation) or the chunk semaphore's cancellation path aborts
// the whole run instead of being recorded as "this file failed".
type fatalStoreError struct{ err error }

func (e *fatalStoreError) Error() string { return e.err.Error() }
func (e *fatalStoreError) Unwrap() error { return e.err }

func (b *backupRun) insertChunk(rec *chunker.Record) error {
	outcome, err := b.content.Put(b.ctx, rec.Digest, rec.Data)
	if err != nil {
		return &fatalStoreError{err: err}
	}
	switch outcome {
	case content.Inserted:
		if b.filter != nil {
			b.filter.Insert(rec.Digest)
		}
		b.chunksCreated.Add(1)
		b.bytesNewlyStored.Add(uint64(rec.Length))
		b.sink.Notify(events.Event{Kind: events.KindChunkInserted, Time: time.Now(), Digest: rec.Digest.String(), Bytes: uint64(rec.Length)})
	case content.AlreadyPresent:
		b.sink.Notify(events.Event{Kind: events.KindChunkDeduped, Time: time.Now(), Digest: rec.Digest.String(), Bytes: uint64(rec.Length)})
	}
	return nil
}

func (b *backupRun) failRun(err error) {
	b.mu.Lock()
	if b.firstErr == nil {
		b.firstErr = err
	}
	b.mu.Unlock()
	b.cancel()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// pathTuple splits a relative filesystem path into its canonical
// component tuple, per spec.md §6's path_tuple representation.
func pathTuple(relPath string) []string {
	return strings.Split(filepath.ToSlash(relPath), "/")
}
