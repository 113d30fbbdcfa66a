package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvironFile is the per-lab workflow environment, read from the lab root.
const EnvironFile = "environ.toml"

// Environ holds one section per workflow.
type Environ struct {
	Binutils BinutilsEnv `toml:"binutils"`
}

type BinutilsEnv struct {
	SourceDir     string `toml:"source_dir"`
	BuildDirName  string `toml:"build_dir_name"`
	PrefixDirName string `toml:"prefix_dir_name"`
	// Jobs is the make parallelism; zero means one job per CPU.
	Jobs          int    `toml:"jobs"`
	SourceArchive string `toml:"source_archive"`
	// SourceArchiveTop is the archive's top directory; unset means infer it.
	SourceArchiveTop *string `toml:"source_archive_top"`
	// Cached lists the attributes persisted in the environment cache.
	Cached []string `toml:"cached"`
}

// BinutilsCacheable are the attributes a binutils env may cache.
var BinutilsCacheable = []string{"source_dir", "build_dir_name", "prefix_dir_name", "jobs"}

func DefaultEnviron() Environ {
	return Environ{Binutils: DefaultBinutilsEnv()}
}

func DefaultBinutilsEnv() BinutilsEnv {
	return BinutilsEnv{
		SourceDir:     "/root/binutils-gdb",
		BuildDirName:  "binutils_build",
		PrefixDirName: "usr",
		Cached:        []string{"source_dir"},
	}
}

// LoadEnviron reads path over the defaults. A missing file yields the defaults.
func LoadEnviron(path string) (Environ, error) {
	env := DefaultEnviron()
	err := loadToml(path, &env)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultEnviron(), nil
	}
	if err != nil {
		return Environ{}, err
	}
	if err := ValidateEnviron(env); err != nil {
		return Environ{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return env, nil
}

// loadToml decodes path into out, rejecting keys out does not declare.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %s", path, strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateEnviron(env Environ) error {
	if err := ValidateBinutilsEnv(env.Binutils); err != nil {
		return fmt.Errorf("binutils: %w", err)
	}
	return nil
}

func ValidateBinutilsEnv(env BinutilsEnv) error {
	if strings.TrimSpace(env.SourceDir) == "" {
		return fmt.Errorf("source_dir is required")
	}
	if err := validateDirName("build_dir_name", env.BuildDirName); err != nil {
		return err
	}
	if err := validateDirName("prefix_dir_name", env.PrefixDirName); err != nil {
		return err
	}
	if env.BuildDirName == env.PrefixDirName {
		return fmt.Errorf("build_dir_name and prefix_dir_name must differ")
	}
	if env.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative")
	}
	for _, attr := range env.Cached {
		if !slices.Contains(BinutilsCacheable, attr) {
			return fmt.Errorf("cached attribute %q is not one of %s", attr, strings.Join(BinutilsCacheable, ", "))
		}
	}
	return nil
}

// validateDirName accepts a single path segment.
func validateDirName(key, name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%s is required", key)
	case name == "." || name == "..":
		return fmt.Errorf("%s must name a directory, got %q", key, name)
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("%s must be a single path segment, got %q", key, name)
	}
	return nil
}

// Parallelism is the -j value handed to make.
func (e BinutilsEnv) Parallelism() int {
	if e.Jobs > 0 {
		return e.Jobs
	}
	return runtime.NumCPU()
}
