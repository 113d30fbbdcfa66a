package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/labctl/internal/logging"
)

type fileConfig struct {
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	LogTimestamp bool   `toml:"log_timestamp"`
}

// loadLogConfig reads the index stream settings from lab.toml. A missing file
// means the defaults; the environment overrides either.
func loadLogConfig(path string) (logging.Config, error) {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, fs.ErrNotExist) {
		logging.ApplyEnvOverrides(&cfg)
		return cfg, nil
	}
	if err != nil {
		return logging.Config{}, fmt.Errorf("load lab config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return logging.Config{}, fmt.Errorf("load lab config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("log_level") {
		lvl, ok := logging.ParseLevel(raw.LogLevel)
		if !ok {
			return logging.Config{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.Level = lvl
	}

	if meta.IsDefined("log_format") {
		format, ok := logging.ParseFormat(raw.LogFormat)
		if !ok {
			return logging.Config{}, fmt.Errorf("parse log_format: unknown format %q", raw.LogFormat)
		}
		cfg.Format = format
	}

	if meta.IsDefined("log_timestamp") {
		cfg.Timestamp = raw.LogTimestamp
	}

	logging.ApplyEnvOverrides(&cfg)
	return cfg, nil
}
