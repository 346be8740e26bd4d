package commands

import (
	"fmt"

	"github.com/coldvault/chunkvault/internal/bufpool"
	"github.com/coldvault/chunkvault/internal/config"
	"github.com/coldvault/chunkvault/internal/membership"
	"github.com/coldvault/chunkvault/internal/obslog"
	"github.com/coldvault/chunkvault/internal/store/content"
	"github.com/coldvault/chunkvault/internal/store/metadata"
)

// stores bundles the opened collaborators a command needs, so each leaf
// command doesn't repeat the open/close dance.
type stores struct {
	content *content.Store
	index   *metadata.Store
	pool    *bufpool.Pool
	filter  *membership.Filter
}

// openStores loads cfg and opens the content store, metadata index, and
// buffer pool it names. The membership filter is constructed empty on
// every call: it is not loaded from disk and not seeded from the index or
// the content store, so a chunk stored by an earlier process is reported
// as definitely absent and goes straight to content.Put, which still
// finds the existing object and reports AlreadyPresent.
func openStores(cfgPath string) (*config.Config, *stores, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	obslog.Init(obslog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	pool, err := bufpool.New(bufpool.Config{
		SizeClasses:    []int{int(cfg.ChunkSize)},
		MinPerClass:    0,
		MaxPerClass:    cfg.BufferPool.MaxPerClass,
		MemoryCap:      cfg.BufferPool.MemoryCap,
		AdaptiveSizing: cfg.BufferPool.Adaptive,
		DirectAllowed:  cfg.BufferPool.DirectAllowed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open buffer pool: %w", err)
	}

	contentStore, err := content.Open(content.Config{RootDir: cfg.StoreDir, Verify: cfg.VerifyIntegrity})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	index, err := metadata.Open(metadata.Config{Path: cfg.IndexPath})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	filter := membership.New(cfg.Bloom.ExpectedInsertions, cfg.Bloom.TargetFalsePositive)

	return cfg, &stores{content: contentStore, index: index, pool: pool, filter: filter}, nil
}

func (s *stores) close() {
	s.pool.Close()
	_ = s.index.Close()
	_ = s.content.Close()
}
