package metadata

import "strings"

// Key namespace, directly modeled on dittofs's pkg/metadata/store/badger
// prefix convention (prefixFile, prefixParent, ...): every logical table
// of spec.md §6 becomes a byte-string prefix over a single BadgerDB
// keyspace instead of a SQL table.
//
//	snap:<id>                 -> snapshotRecord
//	file:<id>:<path-tuple>    -> fileEntryRecord
//	digest:<hex>              -> digestRecord
const (
	prefixSnap   = "snap:"
	prefixFile   = "file:"
	prefixDigest = "digest:"

	pathSep = "\x1f" // unit separator; not valid in any path component
)

func keySnap(id string) []byte {
	return []byte(prefixSnap + id)
}

func keyFilePrefix(id string) []byte {
	return []byte(prefixFile + id + ":")
}

func keyFile(id string, path []string) []byte {
	return append(keyFilePrefix(id), []byte(pathKey(path))...)
}

func keyDigest(hex string) []byte {
	return []byte(prefixDigest + hex)
}

func pathKey(path []string) string {
	return strings.Join(path, pathSep)
}

func pathFromKey(fileKey, prefix []byte) []string {
	if len(fileKey) <= len(prefix) {
		return nil
	}
	return strings.Split(string(fileKey[len(prefix):]), pathSep)
}
