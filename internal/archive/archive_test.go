package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type entry struct {
	name string
	body string
	dir  bool
	link string
}

func writeTar(t *testing.T, w io.Writer, entries []entry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.dir:
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		case e.link != "":
			hdr = &tar.Header{Name: e.name, Linkname: e.link, Typeflag: tar.TypeSymlink}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.body); err != nil {
				t.Fatalf("tar body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
}

func buildArchive(t *testing.T, name string, entries []entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	format, err := DetectFormat(name)
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	switch format {
	case FormatTar:
		writeTar(t, f, entries)
	case FormatTarGzip:
		gz := gzip.NewWriter(f)
		writeTar(t, gz, entries)
		if err := gz.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
	case FormatTarZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		writeTar(t, zw, entries)
		if err := zw.Close(); err != nil {
			t.Fatalf("zstd close: %v", err)
		}
	case FormatZip:
		zw := zip.NewWriter(f)
		for _, e := range entries {
			w, err := zw.Create(e.name)
			if err != nil {
				t.Fatalf("zip create: %v", err)
			}
			if !e.dir {
				if _, err := io.WriteString(w, e.body); err != nil {
					t.Fatalf("zip body: %v", err)
				}
			}
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("zip close: %v", err)
		}
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

var singleTop = []entry{
	{name: "binutils-2.42/", dir: true},
	{name: "binutils-2.42/configure", body: "#!/bin/sh\n"},
	{name: "binutils-2.42/gold/README", body: "gold\n"},
}

func TestUnpackInfersSingleTopDirectory(t *testing.T) {
	for _, name := range []string{"src.tar", "src.tar.gz", "src.tgz", "src.tar.zst", "src.zip"} {
		t.Run(name, func(t *testing.T) {
			archive := buildArchive(t, name, singleTop)
			dest := filepath.Join(t.TempDir(), "var")

			top, err := File{Path: archive}.Unpack(dest)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if want := filepath.Join(dest, "binutils-2.42"); top != want {
				t.Fatalf("top = %q, want %q", top, want)
			}
			if got := mustRead(t, filepath.Join(top, "gold", "README")); got != "gold\n" {
				t.Fatalf("README = %q", got)
			}
			if names := listDir(t, dest); len(names) != 1 || names[0] != "binutils-2.42" {
				t.Fatalf("scratch dir left behind: %v", names)
			}
		})
	}
}

func TestUnpackCleansScratchWhenMoveFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows: rename semantics differ")
	}
	archive := buildArchive(t, "src.tar.gz", singleTop)
	dest := t.TempDir()
	stale := filepath.Join(dest, "binutils-2.42", "leftover")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := (File{Path: archive}).Unpack(dest); err == nil {
		t.Fatalf("expected move onto a non-empty directory to fail")
	}
	if names := listDir(t, dest); len(names) != 1 || names[0] != "binutils-2.42" {
		t.Fatalf("scratch dir left behind: %v", names)
	}
}

func TestUnpackFlatArchiveReturnsExtractDir(t *testing.T) {
	archive := buildArchive(t, "flat.tar.gz", []entry{
		{name: "configure", body: "#!/bin/sh\n"},
		{name: "Makefile.in", body: "all:\n"},
	})
	dest := t.TempDir()
	top, err := File{Path: archive}.Unpack(dest)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if top != dest {
		t.Fatalf("top = %q, want %q", top, dest)
	}
	if names := listDir(t, dest); len(names) != 2 || names[0] != "Makefile.in" || names[1] != "configure" {
		t.Fatalf("unexpected entries: %v", names)
	}
}

func TestUnpackExplicitTop(t *testing.T) {
	archive := buildArchive(t, "src.tar", singleTop)

	top := "binutils-2.42"
	dest := t.TempDir()
	got, err := File{Path: archive, Top: &top}.Unpack(dest)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got != filepath.Join(dest, top) {
		t.Fatalf("top = %q", got)
	}

	root := ""
	rootDest := t.TempDir()
	if got, err := (File{Path: archive, Top: &root}).Unpack(rootDest); err != nil || got != rootDest {
		t.Fatalf("empty top = (%q, %v), want %q", got, err, rootDest)
	}

	wrong := "gdb-14"
	if _, err := (File{Path: archive, Top: &wrong}).Unpack(t.TempDir()); !errors.Is(err, ErrTopMissing) {
		t.Fatalf("expected ErrTopMissing, got %v", err)
	}
}

func TestUnpackMissingArchive(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.tar.gz")
	_, err := File{Path: missing}.Unpack(t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestExtractRejectsEscapes(t *testing.T) {
	cases := map[string][]entry{
		"parent":  {{name: "../evil", body: "x"}},
		"nested":  {{name: "a/../../evil", body: "x"}},
		"symlink": {{name: "link", link: "../../etc/passwd"}},
		"abslink": {{name: "link", link: "/etc/passwd"}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			archive := buildArchive(t, "bad.tar", entries)
			if err := Extract(archive, t.TempDir()); !errors.Is(err, ErrEscape) {
				t.Fatalf("expected ErrEscape, got %v", err)
			}
		})
	}
}

func TestExtractKeepsInternalSymlinks(t *testing.T) {
	archive := buildArchive(t, "links.tar", []entry{
		{name: "top/", dir: true},
		{name: "top/real", body: "data"},
		{name: "top/alias", link: "real"},
	})
	dest := t.TempDir()
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := mustRead(t, filepath.Join(dest, "top", "alias")); got != "data" {
		t.Fatalf("alias = %q", got)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"a.tar":       FormatTar,
		"a.TAR.GZ":    FormatTarGzip,
		"a.tgz":       FormatTarGzip,
		"a.tar.zst":   FormatTarZstd,
		"a.tzst":      FormatTarZstd,
		"dir/a.b.zip": FormatZip,
	}
	for name, want := range cases {
		got, err := DetectFormat(name)
		if err != nil || got != want {
			t.Fatalf("DetectFormat(%q) = (%v, %v), want %v", name, got, err, want)
		}
	}
	if _, err := DetectFormat("a.tar.xz"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
