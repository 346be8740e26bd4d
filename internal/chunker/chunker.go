// Package chunker implements the fixed-size file chunker specified in
// §4.3. It is the lazy, buffer-pooled generalization of beenet's
// pkg/content.ChunkFile, which read an entire file into a slice of
// *Chunk up front; here the caller pulls one record at a time and
// acknowledges it before the chunker reclaims the buffer, matching the
// explicit buffer-ownership/acknowledgment discipline called for in
// spec.md §9.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coldvault/chunkvault/internal/bufpool"
	"github.com/coldvault/chunkvault/internal/hashing"
)

// Options configures a Chunker.
type Options struct {
	// ChunkSize is the target chunk length in bytes. Every chunk has
	// length == ChunkSize except possibly the last.
	ChunkSize uint32

	// HasherSeed is the keying parameter passed to the hasher.
	HasherSeed []byte

	// Verify, if set, rehashes the bytes read before handing the
	// record to the caller, to catch mid-I/O corruption.
	Verify bool
}

// Record is one emitted chunk: the bytes at [Offset, Offset+Length) of
// the source, their digest, and their position in the chunk sequence.
//
// Data is owned by the Chunker until the caller calls Ack; the caller
// must not retain Data past Ack unless it has copied it first.
type Record struct {
	Index  int
	Offset uint64
	Length uint32
	Digest hashing.Digest
	Data   []byte
}

// ReadError reports a source read failure while reading a chunk, whether
// or not some of its bytes had already been read, or a failed Verify
// reread. Offset is the start offset of that chunk.
type ReadError struct {
	Offset uint64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("chunker: read error at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Chunker splits a single file into an ordered, lazy sequence of Records.
// A Chunker is single-file and not safe for concurrent use; the caller
// (C7/C8) runs multiple Chunkers concurrently across files.
type Chunker struct {
	opts   Options
	pool   *bufpool.Pool
	file   *os.File
	reader io.Reader // file bounded to the length observed at Open
	size   int64     // file length observed at Open
	offset uint64
	index  int
	done   bool

	pending *Record // awaiting Ack from the last Next call
}

// Open starts chunking the file at path. The file's length is stat'd
// once here and every subsequent read is bounded to it, so per spec.md
// §4.3 a file that grows while the backup runs never has its new tail
// captured: only bytes present at open are committed to chunks.
func Open(path string, opts Options, pool *bufpool.Pool) (*Chunker, error) {
	if opts.ChunkSize == 0 {
		return nil, fmt.Errorf("chunker: chunk_size must be non-zero")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunker: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunker: stat %s: %w", path, err)
	}
	size := info.Size()
	return &Chunker{opts: opts, pool: pool, file: f, reader: io.LimitReader(f, size), size: size}, nil
}

// Close releases the underlying file handle and any unacknowledged
// buffer. Safe to call multiple times.
func (c *Chunker) Close() error {
	if c.pending != nil {
		c.pool.Release(c.pending.Data)
		c.pending = nil
	}
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// Next produces the next Record, or (nil, io.EOF) once the file has been
// fully consumed. The caller must call Ack on the returned Record before
// calling Next again, or call Close to abandon the stream early.
//
// Per spec.md §4.3 edge cases: an empty file yields (nil, io.EOF)
// immediately; a file whose length is an exact multiple of ChunkSize has
// no trailing short chunk; bytes appended by a concurrent writer after
// Open are never read, since every read is bounded by the length
// observed at Open, not by the file's current size.
func (c *Chunker) Next(ctx context.Context) (*Record, error) {
	if c.pending != nil {
		return nil, fmt.Errorf("chunker: previous record not acknowledged")
	}
	if c.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := c.pool.Acquire(ctx, int(c.opts.ChunkSize))
	if err != nil {
		return nil, err
	}
	buf = buf[:c.opts.ChunkSize]

	n, readErr := io.ReadFull(c.reader, buf)
	switch {
	case readErr == nil:
		// full chunk, more may follow
	case errors.Is(readErr, io.ErrUnexpectedEOF) || errors.Is(readErr, io.EOF):
		c.done = true
		if n == 0 {
			c.pool.Release(buf)
			return nil, io.EOF
		}
	default:
		c.pool.Release(buf)
		return nil, &ReadError{Offset: c.offset, Err: readErr}
	}

	data := buf[:n]
	digest := hashing.SumKeyed(c.opts.HasherSeed, data)
	if c.opts.Verify {
		if err := c.verifyChunk(ctx, data, digest); err != nil {
			c.pool.Release(buf)
			return nil, err
		}
	}

	rec := &Record{
		Index:  c.index,
		Offset: c.offset,
		Length: uint32(n),
		Digest: digest,
		Data:   data,
	}
	c.index++
	c.offset += uint64(n)
	c.pending = rec
	return rec, nil
}

// verifyChunk independently rereads the bytes just consumed, via a
// pread at their fixed offset rather than through c.reader's sequential
// position, and rehashes that fresh copy. Re-hashing the buf slice
// already in hand would be deterministic and could never catch
// anything; only an independent reread can catch mid-I/O corruption,
// per spec.md §4.3's documented purpose for Verify.
func (c *Chunker) verifyChunk(ctx context.Context, data []byte, digest hashing.Digest) error {
	check, err := c.pool.Acquire(ctx, len(data))
	if err != nil {
		return err
	}
	defer c.pool.Release(check)
	check = check[:len(data)]

	if _, err := c.file.ReadAt(check, int64(c.offset)); err != nil {
		return &ReadError{Offset: c.offset, Err: fmt.Errorf("chunker: verify reread: %w", err)}
	}
	if again := hashing.SumKeyed(c.opts.HasherSeed, check); again != digest {
		return &ReadError{Offset: c.offset, Err: fmt.Errorf("chunker: verify mismatch after reread")}
	}
	return nil
}

// Ack acknowledges the Record returned by the last Next call, returning
// its buffer to the pool. The caller must not use rec.Data after Ack.
func (c *Chunker) Ack(rec *Record) {
	if c.pending == rec {
		c.pending = nil
	}
	c.pool.Release(rec.Data)
}
