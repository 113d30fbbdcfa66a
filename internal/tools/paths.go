package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
)

// EnsureInDir checks that path is an existing directory and returns it absolute.
func EnsureInDir(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("input directory %s does not exist: %w", path, fs.ErrNotExist)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("input path %s: %w", path, ErrNotDirectory)
	}
	return filepath.Abs(path)
}

// EnsureInFile checks that path is an existing non-directory and returns it absolute.
func EnsureInFile(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("input file %s does not exist: %w", path, fs.ErrNotExist)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("input path %s: %w", path, ErrIsDirectory)
	}
	return filepath.Abs(path)
}

// EnsureOutDir creates path if needed and returns it absolute.
func EnsureOutDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("cannot create output directory %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path %s: %w", path, ErrNotDirectory)
	}
	return filepath.Abs(path)
}

// EnsureOutFile makes sure path can be written as a file: it is not a
// directory and its parent exists.
func EnsureOutFile(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", fmt.Errorf("output path %s: %w", path, ErrIsDirectory)
	}
	if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("cannot create parent directory %s of output file: %w", parent, err)
		}
	}
	return filepath.Abs(path)
}
