package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coldvault/chunkvault/internal/bufpool"
	"github.com/coldvault/chunkvault/internal/store/content"
	"github.com/coldvault/chunkvault/internal/store/metadata"
)

// testRig bundles one content store, one metadata index, and one buffer
// pool rooted under a fresh t.TempDir(), the collaborator set every
// Backup/Restore call needs per spec.md §4.7/§4.8.
type testRig struct {
	content *content.Store
	index   *metadata.Store
	pool    *bufpool.Pool
	sourceD string
	targetD string
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	root := t.TempDir()

	cs, err := content.Open(content.Config{RootDir: filepath.Join(root, "store"), Verify: true})
	if err != nil {
		t.Fatalf("content.Open: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	idx, err := metadata.Open(metadata.Config{Path: filepath.Join(root, "index")})
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	pool, err := bufpool.New(bufpool.Config{SizeClasses: []int{4096}, MaxPerClass: 64})
	if err != nil {
		t.Fatalf("bufpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	source := filepath.Join(root, "source")
	if err := os.MkdirAll(source, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}

	return &testRig{
		content: cs,
		index:   idx,
		pool:    pool,
		sourceD: source,
		targetD: filepath.Join(root, "target"),
	}
}

func (r *testRig) writeFile(t *testing.T, relPath string, data []byte) {
	t.Helper()
	full := filepath.Join(r.sourceD, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
}

func defaultOpts() BackupOptions {
	return BackupOptions{
		ChunkSize:         4096,
		MaxParallelFiles:  4,
		MaxParallelChunks: 4,
	}
}
