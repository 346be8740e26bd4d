package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
)

// entryKind classifies a directory entry for the walk's skip policy.
type entryKind int

const (
	kindDir entryKind = iota
	kindRegular
	kindSymlink
	kindSocket
	kindDevice
	kindOther
)

func classify(info os.FileInfo) entryKind {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return kindDir
	case mode.IsRegular():
		return kindRegular
	case mode&os.ModeSymlink != 0:
		return kindSymlink
	case mode&os.ModeSocket != 0:
		return kindSocket
	case mode&(os.ModeDevice|os.ModeCharDevice) != 0:
		return kindDevice
	default:
		return kindOther
	}
}

// walkEntry is one visited path, pre-classified.
type walkEntry struct {
	path string
	kind entryKind
	info os.FileInfo
}

// walkPreOrder visits root and every descendant in deterministic
// (lexicographically sorted per directory) pre-order, per spec.md
// §4.7 step 2. It uses Lstat rather than Stat so symlinks are
// classified as symlinks, never followed.
func walkPreOrder(root string, visit func(walkEntry) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	return walkOne(root, info, visit)
}

func walkOne(path string, info os.FileInfo, visit func(walkEntry) error) error {
	kind := classify(info)
	if err := visit(walkEntry{path: path, kind: kind, info: info}); err != nil {
		return err
	}
	if kind != kindDir {
		return nil
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name()
	}
	sort.Strings(names)

	for _, name := range names {
		childPath := filepath.Join(path, name)
		childInfo, err := os.Lstat(childPath)
		if err != nil {
			return err
		}
		if err := walkOne(childPath, childInfo, visit); err != nil {
			return err
		}
	}
	return nil
}
