package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func decompress(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatTarGzip:
		return gzip.NewReader(r)
	case FormatTarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func extractTar(r io.Reader, dest string) error {
	reader := tar.NewReader(r)
	for {
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrEscape, hdr.Name)
		}
		if err != nil {
			return err
		}
		target, err := within(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, hdr.FileInfo().Mode(), reader); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := linkWithin(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := within(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return err
			}
		default:
			// devices, fifos and the like have no place in a source tree
		}
	}
}
