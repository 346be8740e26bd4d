// Package metadata implements the durable, transactional catalog of
// §4.6: snapshots, the files they recorded, and digest reference counts.
// It is directly grounded on dittofs's pkg/metadata/store/badger: the
// same prefixed-key-over-a-single-KV-store design (encoding.go), the
// same db.Update/txn wrapper idiom (transaction.go), generalized from a
// filesystem's inode graph to a flat snapshot/file/digest schema. Values
// are canonical CBOR (pkg/codec/cborcanon, adapted from beenet) instead
// of dittofs's JSON, so two encodings of an equal record are always
// byte-identical — useful for the export format in §6.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/coldvault/chunkvault/internal/hashing"
	"github.com/coldvault/chunkvault/internal/obslog"
)

// Config configures a Store.
type Config struct {
	// Path is the BadgerDB directory.
	Path string
}

// Store is the metadata index: a single BadgerDB database holding the
// snap:/file:/digest: key namespace.
type Store struct {
	db   *badger.DB
	path string
}

// Open opens (creating if necessary) the index at cfg.Path, then rolls
// back any unsealed snapshot left over from a crash between
// begin_snapshot and seal_snapshot, per spec.md §4.6's durability
// contract.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("metadata: Path must be set")
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(slogBridge{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.IoError(cfg.Path, err)
	}
	s := &Store{db: db, path: cfg.Path}
	if err := s.rollbackUnsealed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSnapshot creates a new, unsealed snapshot rooted at rootPath and
// returns its id. The id is a random UUIDv4, so it is never reused even
// across restarts.
func (s *Store) BeginSnapshot(ctx context.Context, rootPath string, timestamp time.Time) (SnapshotID, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Cancelled()
	}
	id := SnapshotID(uuid.NewString())
	rec := snapshotRecord{RootPath: rootPath, CreatedAt: timestamp.Unix(), Sealed: false}
	data, err := encodeValue(rec)
	if err != nil {
		return "", fmt.Errorf("metadata: encode snapshot record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keySnap(string(id)), data)
	})
	if err != nil {
		return "", errs.IoError(s.path, err)
	}
	obslog.Debug("snapshot started", "snapshot_id", id, "root", rootPath)
	return id, nil
}

// AppendFile records one File Entry against an unsealed snapshot,
// incrementing the reference count of every digest it references in
// the same transaction, so the operation is atomic end to end.
func (s *Store) AppendFile(ctx context.Context, id SnapshotID, entry FileEntry) error {
	if err := ctx.Err(); err != nil {
		return errs.Cancelled()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		snap, err := getSnapshotRecord(txn, id)
		if err != nil {
			return err
		}
		if snap.Sealed {
			return errs.SealedSnapshot(string(id))
		}

		rec := fileEntryRecord{
			Size:    entry.Size,
			Mtime:   entry.Mtime.Unix(),
			Mode:    entry.Mode,
			Digests: encodeDigests(entry.Digests),
		}
		data, err := encodeValue(rec)
		if err != nil {
			return fmt.Errorf("metadata: encode file entry: %w", err)
		}
		if err := txn.Set(keyFile(string(id), entry.Path), data); err != nil {
			return err
		}

		for i, d := range entry.Digests {
			var length uint64
			if i < len(entry.ChunkLengths) {
				length = entry.ChunkLengths[i]
			}
			if err := bumpDigestRefCount(txn, d, 1, length); err != nil {
				return err
			}
		}
		return nil
	})
}

// SealSnapshot atomically marks id read-only. Concurrent readers either
// see the snapshot as wholly unsealed or wholly sealed.
func (s *Store) SealSnapshot(ctx context.Context, id SnapshotID) error {
	if err := ctx.Err(); err != nil {
		return errs.Cancelled()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		snap, err := getSnapshotRecord(txn, id)
		if err != nil {
			return err
		}
		snap.Sealed = true
		data, err := encodeValue(snap)
		if err != nil {
			return fmt.Errorf("metadata: encode snapshot record: %w", err)
		}
		return txn.Set(keySnap(string(id)), data)
	})
}

// ListSnapshots returns every known snapshot's descriptor.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled()
	}
	var out []SnapshotDescriptor
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixSnap)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var rec snapshotRecord
			if err := item.Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
				return err
			}
			out = append(out, SnapshotDescriptor{
				ID:        SnapshotID(id),
				RootPath:  rec.RootPath,
				CreatedAt: time.Unix(rec.CreatedAt, 0).UTC(),
				Sealed:    rec.Sealed,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadSnapshot loads a snapshot's descriptor and every File Entry it
// recorded.
func (s *Store) LoadSnapshot(ctx context.Context, id SnapshotID) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled()
	}
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getSnapshotRecord(txn, id)
		if err != nil {
			return err
		}
		snap.SnapshotDescriptor = SnapshotDescriptor{
			ID:        id,
			RootPath:  rec.RootPath,
			CreatedAt: time.Unix(rec.CreatedAt, 0).UTC(),
			Sealed:    rec.Sealed,
		}

		prefix := keyFilePrefix(string(id))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			path := pathFromKey(item.Key(), prefix)
			var fe fileEntryRecord
			if err := item.Value(func(val []byte) error { return decodeValue(val, &fe) }); err != nil {
				return err
			}
			snap.Files = append(snap.Files, FileEntry{
				Path:    path,
				Size:    fe.Size,
				Mtime:   time.Unix(fe.Mtime, 0).UTC(),
				Mode:    fe.Mode,
				Digests: fe.digestList(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snap.Files, func(i, j int) bool { return pathKey(snap.Files[i].Path) < pathKey(snap.Files[j].Path) })
	return &snap, nil
}

// Stats computes catalog-wide counters by scanning the digest: and
// file: prefixes, per spec.md §4.6 and the derived ratio of §8.
func (s *Store) Stats(ctx context.Context) (IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return IndexStats{}, errs.Cancelled()
	}
	var stats IndexStats
	err := s.db.View(func(txn *badger.Txn) error {
		digestPrefix := []byte(prefixDigest)
		dOpts := badger.DefaultIteratorOptions
		dOpts.Prefix = digestPrefix
		dit := txn.NewIterator(dOpts)
		defer dit.Close()
		for dit.Seek(digestPrefix); dit.ValidForPrefix(digestPrefix); dit.Next() {
			var rec digestRecord
			if err := dit.Item().Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
				return err
			}
			stats.DistinctDigests++
			stats.TotalStoredBytes += rec.Length
		}

		filePrefix := []byte(prefixFile)
		fOpts := badger.DefaultIteratorOptions
		fOpts.Prefix = filePrefix
		fit := txn.NewIterator(fOpts)
		defer fit.Close()
		for fit.Seek(filePrefix); fit.ValidForPrefix(filePrefix); fit.Next() {
			var rec fileEntryRecord
			if err := fit.Item().Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
				return err
			}
			stats.TotalLogicalBytes += rec.Size
		}
		return nil
	})
	if err != nil {
		return IndexStats{}, err
	}
	if stats.TotalStoredBytes > 0 {
		stats.DeduplicationRatio = float64(stats.TotalLogicalBytes) / float64(stats.TotalStoredBytes)
	}
	return stats, nil
}

// rollbackUnsealed deletes every unsealed snapshot found on open,
// together with its File Entries, and reverses the digest ref-count
// increments those entries made — so a crash between begin_snapshot and
// seal_snapshot leaves no trace, per spec.md §4.6.
func (s *Store) rollbackUnsealed() error {
	return s.db.Update(func(txn *badger.Txn) error {
		var unsealed []string

		prefix := []byte(prefixSnap)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec snapshotRecord
			if err := item.Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
				it.Close()
				return err
			}
			if !rec.Sealed {
				unsealed = append(unsealed, string(item.Key()[len(prefix):]))
			}
		}
		it.Close()

		for _, id := range unsealed {
			obslog.Warn("rolling back unsealed snapshot found on open", "snapshot_id", id)
			if err := rollbackSnapshot(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func rollbackSnapshot(txn *badger.Txn, id string) error {
	filePrefix := keyFilePrefix(id)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = filePrefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	var entries []fileEntryRecord
	for it.Seek(filePrefix); it.ValidForPrefix(filePrefix); it.Next() {
		item := it.Item()
		key := append([]byte(nil), item.Key()...)
		var rec fileEntryRecord
		if err := item.Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
			it.Close()
			return err
		}
		keys = append(keys, key)
		entries = append(entries, rec)
	}
	it.Close()

	for i, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
		for _, d := range entries[i].digestList() {
			if err := bumpDigestRefCount(txn, d, -1, 0); err != nil {
				return err
			}
		}
	}
	return txn.Delete(keySnap(id))
}

func getSnapshotRecord(txn *badger.Txn, id SnapshotID) (snapshotRecord, error) {
	item, err := txn.Get(keySnap(string(id)))
	if err == badger.ErrKeyNotFound {
		return snapshotRecord{}, errs.UnknownSnapshot(string(id))
	}
	if err != nil {
		return snapshotRecord{}, err
	}
	var rec snapshotRecord
	err = item.Value(func(val []byte) error { return decodeValue(val, &rec) })
	return rec, err
}

// bumpDigestRefCount adjusts digest's reference count by delta within
// an in-flight transaction, creating the record (with the given length)
// on first reference and deleting it once the count returns to zero
// (e.g. after a rollback).
func bumpDigestRefCount(txn *badger.Txn, d hashing.Digest, delta int64, length uint64) error {
	key := keyDigest(d.String())
	var rec digestRecord
	item, err := txn.Get(key)
	switch {
	case err == badger.ErrKeyNotFound:
		rec = digestRecord{Length: length, RefCount: 0}
	case err != nil:
		return err
	default:
		if err := item.Value(func(val []byte) error { return decodeValue(val, &rec) }); err != nil {
			return err
		}
		if rec.Length == 0 && length > 0 {
			rec.Length = length
		}
	}

	newCount := int64(rec.RefCount) + delta
	if newCount <= 0 {
		return txn.Delete(key)
	}
	rec.RefCount = uint64(newCount)
	data, err := encodeValue(rec)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// slogBridge forwards badger's internal logging onto internal/obslog,
// so the index's WAL/compaction chatter shows up with everything else
// instead of going straight to stderr unformatted.
type slogBridge struct{}

func (slogBridge) Errorf(format string, args ...interface{})   { obslog.Error(fmt.Sprintf(format, args...)) }
func (slogBridge) Warningf(format string, args ...interface{}) { obslog.Warn(fmt.Sprintf(format, args...)) }
func (slogBridge) Infof(format string, args ...interface{})    { obslog.Info(fmt.Sprintf(format, args...)) }
func (slogBridge) Debugf(format string, args ...interface{})   { obslog.Debug(fmt.Sprintf(format, args...)) }
