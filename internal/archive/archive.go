// Package archive unpacks source archives into the lab's variable-data tree.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/labctl/internal/tools"
)

var (
	ErrUnsupportedFormat = errors.New("archive: unsupported format")
	ErrEscape            = errors.New("archive: entry escapes destination")
	ErrTopMissing        = errors.New("archive: top directory missing after unpack")
)

// Format of an archive file, detected from its name.
type Format int

const (
	FormatTar Format = iota + 1
	FormatTarGzip
	FormatTarZstd
	FormatZip
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	case FormatZip:
		return "zip"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tar.zstd"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// File is an archive together with what is known about its layout.
type File struct {
	Path string
	// Top is the directory the archive unpacks into. Empty means the
	// entries sit at the archive root; nil means infer it.
	Top *string
}

// Unpack extracts the archive under extractDir and returns the absolute path
// of its top directory.
//
// With Top unset the archive is first extracted into a scratch directory
// inside extractDir. A lone directory found there is moved into extractDir and
// returned; otherwise every entry is moved into extractDir, which is returned.
func (f File) Unpack(extractDir string) (string, error) {
	src, err := tools.EnsureInFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	extractDir, err = tools.EnsureOutDir(extractDir)
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}

	if f.Top != nil {
		if err := Extract(src, extractDir); err != nil {
			return "", err
		}
		top := filepath.Join(extractDir, *f.Top)
		if _, err := os.Stat(top); err != nil {
			return "", fmt.Errorf("%w: %s", ErrTopMissing, top)
		}
		return filepath.Abs(top)
	}

	scratch := filepath.Join(extractDir, tools.RandName(".unpack-", "", 8))
	if err := Extract(src, scratch); err != nil {
		_ = os.RemoveAll(scratch)
		return "", err
	}
	top, err := promote(scratch, extractDir)
	if err != nil {
		_ = os.RemoveAll(scratch)
		return "", err
	}
	if err := os.Remove(scratch); err != nil {
		return "", fmt.Errorf("archive: remove %s: %w", scratch, err)
	}
	return filepath.Abs(top)
}

// promote moves the content of scratch into dest and returns the top directory.
func promote(scratch, dest string) (string, error) {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return "", fmt.Errorf("archive: read %s: %w", scratch, err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		top := filepath.Join(dest, entries[0].Name())
		if err := os.Rename(filepath.Join(scratch, entries[0].Name()), top); err != nil {
			return "", fmt.Errorf("archive: move %s: %w", top, err)
		}
		return top, nil
	}
	for _, entry := range entries {
		target := filepath.Join(dest, entry.Name())
		if err := os.Rename(filepath.Join(scratch, entry.Name()), target); err != nil {
			return "", fmt.Errorf("archive: move %s: %w", target, err)
		}
	}
	return dest, nil
}

// Extract unpacks the archive at path into dest, creating dest if needed.
func Extract(path, dest string) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", dest, err)
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	if format == FormatZip {
		return extractZip(path, dest)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	stream, err := decompress(format, f)
	if err != nil {
		return fmt.Errorf("archive: %s: %w", path, err)
	}
	defer stream.Close()

	if err := extractTar(stream, dest); err != nil {
		return fmt.Errorf("archive: %s: %w", path, err)
	}
	return nil
}

// within joins name onto dest and rejects results outside dest.
func within(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrEscape, name)
	}
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrEscape, name)
	}
	return target, nil
}

// linkWithin checks that a symlink at target pointing to link stays in dest.
func linkWithin(dest, target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("%w: %s -> %s", ErrEscape, target, link)
	}
	resolved := filepath.Join(filepath.Dir(target), link)
	rel, err := filepath.Rel(dest, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s -> %s", ErrEscape, target, link)
	}
	return nil
}

func writeFile(target string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
