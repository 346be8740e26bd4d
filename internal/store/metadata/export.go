package metadata

import (
	"context"
	"encoding/json"
	"fmt"
)

// exportedSnapshot and exportedFile mirror spec.md §6's canonical JSON
// snapshot shape exactly, field for field, so external tooling and
// golden-test comparisons can depend on the layout without touching
// Go internals.
type exportedSnapshot struct {
	ID        string         `json:"id"`
	Root      string         `json:"root"`
	CreatedAt int64          `json:"created_at"`
	Files     []exportedFile `json:"files"`
}

type exportedFile struct {
	Path   []string `json:"path"`
	Size   uint64   `json:"size"`
	Mtime  int64    `json:"mtime"`
	Mode   uint32   `json:"mode"`
	Chunks []string `json:"chunks"`
}

// ExportJSON renders the sealed snapshot id as the canonical JSON
// document of spec.md §6: a deterministic field order and key set,
// independent of BadgerDB's internal key/value layout, suitable for
// diffing across runs or feeding to tooling outside this module.
func (s *Store) ExportJSON(ctx context.Context, id SnapshotID) ([]byte, error) {
	snap, err := s.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	out := exportedSnapshot{
		ID:        string(snap.ID),
		Root:      snap.RootPath,
		CreatedAt: snap.CreatedAt.Unix(),
		Files:     make([]exportedFile, len(snap.Files)),
	}
	for i, f := range snap.Files {
		chunks := make([]string, len(f.Digests))
		for j, d := range f.Digests {
			chunks[j] = d.String()
		}
		out.Files[i] = exportedFile{
			Path:   f.Path,
			Size:   f.Size,
			Mtime:  f.Mtime.Unix(),
			Mode:   f.Mode,
			Chunks: chunks,
		}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("metadata: export %s: %w", id, err)
	}
	return encoded, nil
}
