package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func extractZip(path, dest string) error {
	reader, err := zip.OpenReader(path)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = reader.Close()
		return fmt.Errorf("%w: %s", ErrEscape, path)
	}
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if err := extractZipEntry(entry, dest); err != nil {
			return fmt.Errorf("archive: %s: %w", path, err)
		}
	}
	return nil
}

func extractZipEntry(entry *zip.File, dest string) error {
	target, err := within(dest, entry.Name)
	if err != nil {
		return err
	}
	mode := entry.Mode()
	if mode.IsDir() {
		return os.MkdirAll(target, mode.Perm()|0o700)
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if mode&os.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		if err := linkWithin(dest, target, string(link)); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(string(link), target)
	}
	return writeFile(target, mode, rc)
}
