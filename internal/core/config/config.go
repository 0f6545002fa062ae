package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config carries the tunables for transcript discovery and caching.
type Config struct {
	ProjectsRoot    string        // where session transcripts live
	CacheCapacity   int           // max cached session views
	CacheTTL        time.Duration // view lifetime before forced re-parse
	ScanConcurrency int           // parallel file parses during listing
}

type tomlConfig struct {
	ProjectsRoot    string `toml:"projects_root"`
	CacheCapacity   int    `toml:"cache_capacity"`
	CacheTTL        string `toml:"cache_ttl"`
	ScanConcurrency int    `toml:"scan_concurrency"`
}

// Load reads config from ~/.config/cctrail/config.toml, falling back to
// defaults for anything absent. A missing or unreadable file is not an
// error; defaults apply.
func Load() (*Config, error) {
	cfg := &Config{
		CacheCapacity:   256,
		CacheTTL:        5 * time.Minute,
		ScanConcurrency: 8,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil // Use defaults
	}
	cfg.ProjectsRoot = filepath.Join(home, ".claude", "projects")

	tomlPath := filepath.Join(home, ".config", "cctrail", "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		var tc tomlConfig
		if _, err := toml.DecodeFile(tomlPath, &tc); err == nil {
			applyFile(cfg, tc)
		}
	}

	return cfg, nil
}

func applyFile(cfg *Config, tc tomlConfig) {
	if tc.ProjectsRoot != "" {
		cfg.ProjectsRoot = tc.ProjectsRoot
	}
	if tc.CacheCapacity > 0 {
		cfg.CacheCapacity = tc.CacheCapacity
	}
	if tc.ScanConcurrency > 0 {
		cfg.ScanConcurrency = tc.ScanConcurrency
	}
	if tc.CacheTTL != "" {
		if d, err := time.ParseDuration(tc.CacheTTL); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}
}
