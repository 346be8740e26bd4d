package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsSelfConsistent(t *testing.T) {
	cfg := Default()
	if cfg.ChunkSize <= 0 {
		t.Fatalf("expected positive chunk size, got %d", cfg.ChunkSize)
	}
	if cfg.MaxParallelFiles <= 0 || cfg.MaxParallelChunks <= 0 {
		t.Fatalf("expected positive parallelism defaults")
	}
	if cfg.Bloom.TargetFalsePositive <= 0 || cfg.Bloom.TargetFalsePositive >= 1 {
		t.Fatalf("expected false positive rate in (0,1), got %f", cfg.Bloom.TargetFalsePositive)
	}
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != Default().ChunkSize {
		t.Fatalf("expected defaults when config file absent")
	}
}

func TestLoadReadsYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "chunk_size: 1048576\nmax_parallel_files: 2\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 1048576 {
		t.Fatalf("expected chunk_size override, got %d", cfg.ChunkSize)
	}
	if cfg.MaxParallelFiles != 2 {
		t.Fatalf("expected max_parallel_files override, got %d", cfg.MaxParallelFiles)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging.level override, got %q", cfg.Logging.Level)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 1048576\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CHUNKVAULT_CHUNK_SIZE", "2097152")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 2097152 {
		t.Fatalf("expected env override to win, got %d", cfg.ChunkSize)
	}
}

func TestBareStoreDirEnvOverridesDefault(t *testing.T) {
	t.Setenv("STORE_DIR", "/mnt/backup/store")
	t.Setenv("INDEX_PATH", "/mnt/backup/index")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDir != "/mnt/backup/store" {
		t.Fatalf("expected bare STORE_DIR to override default, got %q", cfg.StoreDir)
	}
	if cfg.IndexPath != "/mnt/backup/index" {
		t.Fatalf("expected bare INDEX_PATH to override default, got %q", cfg.IndexPath)
	}
}
