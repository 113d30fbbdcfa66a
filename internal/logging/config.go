package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LABCTL_LOG_FORMAT"
	EnvLogTimestamp = "LABCTL_LOG_TIMESTAMP"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls how an index stream is rendered.
type Config struct {
	Level     zerolog.Level
	Format    string
	Timestamp bool
}

func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Format: FormatText, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Format: FormatJSON, Timestamp: true}
	}
}

// FromEnv returns the profile defaults with environment overrides applied.
func FromEnv(profile Profile) Config {
	cfg := DefaultConfig(profile)
	ApplyEnvOverrides(&cfg)
	return cfg
}

func ApplyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if format, ok := ParseFormat(os.Getenv(EnvLogFormat)); ok {
		cfg.Format = format
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
}

// New builds a logger writing to out according to cfg.
func New(out io.Writer, cfg Config) zerolog.Logger {
	w := out
	if cfg.Format == FormatText {
		w = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: time.RFC3339Nano,
		}
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "critical", "fatal":
		return zerolog.FatalLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func ParseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FormatJSON:
		return FormatJSON, true
	case FormatText, "console":
		return FormatText, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
