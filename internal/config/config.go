// Package config loads chunkvault's configuration, following dittofs's
// pkg/config layering: environment variables override a config file,
// which overrides built-in defaults (see Load for the limits of the
// environment layer). Command-line flags are applied by the individual
// commands, not by this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is chunkvault's full runtime configuration.
type Config struct {
	// StoreDir is the root directory of the content store (objects/, tmp/).
	StoreDir string `mapstructure:"store_dir" yaml:"store_dir"`

	// IndexPath is the BadgerDB directory backing the metadata index.
	IndexPath string `mapstructure:"index_path" yaml:"index_path"`

	// ChunkSize is the fixed chunk length in bytes used to split files.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxParallelFiles bounds concurrent per-file pipelines during backup.
	MaxParallelFiles int `mapstructure:"max_parallel_files" yaml:"max_parallel_files"`

	// MaxParallelChunks bounds concurrent chunk store operations across
	// all file pipelines of a backup run; within one file, chunks are
	// processed one at a time.
	MaxParallelChunks int `mapstructure:"max_parallel_chunks" yaml:"max_parallel_chunks"`

	// VerifyIntegrity re-hashes chunk payloads read back from the content
	// store during restore, trading throughput for corruption detection.
	VerifyIntegrity bool `mapstructure:"verify_integrity" yaml:"verify_integrity"`

	BufferPool BufferPoolConfig `mapstructure:"buffer_pool" yaml:"buffer_pool"`
	Bloom      BloomConfig      `mapstructure:"bloom" yaml:"bloom"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// BufferPoolConfig tunes internal/bufpool.
type BufferPoolConfig struct {
	MaxPerClass   int           `mapstructure:"max_per_class" yaml:"max_per_class"`
	MemoryCap     int64         `mapstructure:"memory_cap_bytes" yaml:"memory_cap_bytes"`
	Adaptive      bool          `mapstructure:"adaptive" yaml:"adaptive"`
	DirectAllowed bool          `mapstructure:"direct_allowed" yaml:"direct_allowed"`
	AcquireWait   time.Duration `mapstructure:"acquire_wait" yaml:"acquire_wait"`
}

// BloomConfig tunes internal/membership.
type BloomConfig struct {
	ExpectedInsertions  uint64  `mapstructure:"expected_insertions" yaml:"expected_insertions"`
	TargetFalsePositive float64 `mapstructure:"target_false_positive_rate" yaml:"target_false_positive_rate"`
}

// LoggingConfig controls internal/obslog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

const envPrefix = "CHUNKVAULT"

// Default returns the built-in configuration used when no file, env var,
// or flag overrides a setting.
func Default() *Config {
	return &Config{
		StoreDir:          filepath.Join(defaultHome(), "store"),
		IndexPath:         filepath.Join(defaultHome(), "index"),
		ChunkSize:         4 << 20, // 4 MiB
		MaxParallelFiles:  4,
		MaxParallelChunks: 8,
		VerifyIntegrity:   true,
		BufferPool: BufferPoolConfig{
			MaxPerClass:   64,
			MemoryCap:     512 << 20, // 512 MiB
			Adaptive:      true,
			DirectAllowed: false,
			AcquireWait:   0,
		},
		Bloom: BloomConfig{
			ExpectedInsertions:  1_000_000,
			TargetFalsePositive: 0.01,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chunkvault")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chunkvault"
	}
	return filepath.Join(home, ".local", "share", "chunkvault")
}

// Load reads configuration from configPath (if non-empty and present; when
// empty, config.yaml in the working directory or in the default data
// directory) on top of the built-in defaults. A CHUNKVAULT_* environment
// variable overrides only a key that the config file also sets; when no
// config file is found, CHUNKVAULT_* variables are not read at all. The
// bare STORE_DIR and INDEX_PATH variables always apply. Command-line
// flags are not merged here.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if found {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyBareStoreEnv(cfg)
	return cfg, nil
}

// applyBareStoreEnv honors spec.md §6's bare STORE_DIR/INDEX_PATH
// environment variables, so a deployment that sets only those two (and
// never touches CHUNKVAULT_*) still works.
func applyBareStoreEnv(cfg *Config) {
	if v := os.Getenv("STORE_DIR"); v != "" {
		cfg.StoreDir = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.AddConfigPath(defaultHome())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}
