package config

import (
	"path/filepath"
	"strings"
)

// DefaultRoot is the cache directory used when none is configured.
const DefaultRoot = "/var/cache/hoard"

// ApplyDefaults fills unspecified fields with defaults.
//
// Zero values are replaced; explicit values are preserved. Backend paths
// default to subpaths of the cache root so a bare `cache.root` setting
// yields a working configuration.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyContentDefaults(&cfg.Content, cfg.Cache.Root)
	applyIndexDefaults(&cfg.Index, cfg.Cache.Root)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "sha256"
	}
}

func applyContentDefaults(cfg *ContentConfig, root string) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = root
	}
}

func applyIndexDefaults(cfg *IndexConfig, root string) {
	if cfg.Type == "" {
		cfg.Type = "file"
	}
	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.File["path"]; !ok {
		cfg.File["path"] = root
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = filepath.Join(root, "index-badger")
	}
}
