package envcache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/labctl/internal/codec"
)

type toolchainEnv struct {
	SourceDir string
	Jobs      int
	Flags     []string
	BuildName string
}

func defaultEnv() toolchainEnv {
	return toolchainEnv{SourceDir: "/root/binutils-gdb", Jobs: 1, BuildName: "binutils_build"}
}

func bindEnv(t *testing.T, reg *Registry, env *toolchainEnv) {
	t.Helper()
	if err := reg.Bind("binutils", "SourceDir", &env.SourceDir); err != nil {
		t.Fatalf("bind SourceDir: %v", err)
	}
	if err := reg.Bind("binutils", "Jobs", &env.Jobs); err != nil {
		t.Fatalf("bind Jobs: %v", err)
	}
	if err := reg.Bind("binutils", "Flags", &env.Flags); err != nil {
		t.Fatalf("bind Flags: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", FileName)

	first := defaultEnv()
	reg := NewRegistry(path)
	bindEnv(t, reg, &first)
	first.SourceDir = "/src/binutils"
	first.Jobs = 16
	first.Flags = []string{"--enable-gold", "--with-pic"}
	first.BuildName = "changed-but-not-cached"
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh process: new registry, fields at declared defaults.
	second := defaultEnv()
	fresh := NewRegistry(path)
	bindEnv(t, fresh, &second)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if second.SourceDir != "/src/binutils" || second.Jobs != 16 {
		t.Fatalf("cached fields not restored: %+v", second)
	}
	if len(second.Flags) != 2 || second.Flags[0] != "--enable-gold" || second.Flags[1] != "--with-pic" {
		t.Fatalf("slice field not restored: %v", second.Flags)
	}
	if second.BuildName != "binutils_build" {
		t.Fatalf("non-cacheable field touched: %q", second.BuildName)
	}
}

func TestBindAfterLoadKeepsCachedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cached := "/cached/src"
	first := NewRegistry(path)
	if err := first.Bind("binutils", "SourceDir", &cached); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := first.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	late := NewRegistry(path)
	if err := late.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	field := "/default/src"
	if err := late.Bind("binutils", "SourceDir", &field); err != nil {
		t.Fatalf("Bind after Load: %v", err)
	}
	if field != "/cached/src" {
		t.Fatalf("late binding not restored: %q", field)
	}
	if err := late.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got string
	third := NewRegistry(path)
	if err := third.Bind("binutils", "SourceDir", &got); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := third.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "/cached/src" {
		t.Fatalf("cached value lost: %q", got)
	}
}

func TestBindAfterLoadRejectsMismatchedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	source := "/src"
	first := NewRegistry(path)
	if err := first.Bind("binutils", "SourceDir", &source); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := first.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	late := NewRegistry(path)
	if err := late.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	jobs := 3
	if err := late.Bind("binutils", "SourceDir", &jobs); err == nil {
		t.Fatalf("expected restore error")
	}
	if jobs != 3 {
		t.Fatalf("field changed on failed bind: %d", jobs)
	}
}

func TestLoadFailureAssignsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	source, err := codec.Marshal("/src/binutils")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	badJobs, err := codec.Marshal("sixteen")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data, err := codec.Marshal(map[string]map[string]codec.RawMessage{
		"binutils": {"SourceDir": source, "Jobs": badJobs},
	})
	if err != nil {
		t.Fatalf("Marshal table: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := defaultEnv()
	reg := NewRegistry(path)
	bindEnv(t, reg, &env)
	if err := reg.Load(); err == nil {
		t.Fatalf("expected restore error")
	}
	if env.SourceDir != "/root/binutils-gdb" || env.Jobs != 1 || env.Flags != nil {
		t.Fatalf("partially restored: %+v", env)
	}
}

func TestLoadMissingFileIsColdStart(t *testing.T) {
	env := defaultEnv()
	reg := NewRegistry(filepath.Join(t.TempDir(), FileName))
	bindEnv(t, reg, &env)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.SourceDir != "/root/binutils-gdb" || env.Jobs != 1 || env.Flags != nil {
		t.Fatalf("cold start changed fields: %+v", env)
	}
	if !reg.Cached("binutils", "SourceDir") {
		t.Fatalf("declared default missing from table")
	}
}

func TestOrphansSurviveSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	orphan, err := codec.Marshal("old-value")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	seed := map[string]map[string]codec.RawMessage{
		"retired":  {"Attr": orphan},
		"binutils": {"Removed": orphan},
	}
	data, err := codec.Marshal(seed)
	if err != nil {
		t.Fatalf("Marshal table: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := defaultEnv()
	reg := NewRegistry(path)
	bindEnv(t, reg, &env)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again := NewRegistry(path)
	if err := again.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.Cached("retired", "Attr") || !again.Cached("binutils", "Removed") {
		t.Fatalf("orphaned entries dropped: owners=%v", again.Owners())
	}
	if !again.Cached("binutils", "SourceDir") {
		t.Fatalf("bound entry missing after save")
	}
}

func TestBindValidation(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), FileName))
	var value string
	var nilPtr *string

	cases := []struct {
		owner, attr string
		ptr         any
	}{
		{"", "A", &value},
		{"o", "", &value},
		{"o", "A", value},
		{"o", "A", nilPtr},
		{"o", "A", nil},
	}
	for _, tc := range cases {
		if err := reg.Bind(tc.owner, tc.attr, tc.ptr); !errors.Is(err, ErrInvalidBinding) {
			t.Fatalf("Bind(%q, %q, %T) = %v, want ErrInvalidBinding", tc.owner, tc.attr, tc.ptr, err)
		}
	}

	if err := reg.Bind("o", "A", &value); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := reg.Bind("o", "A", &value); !errors.Is(err, ErrBindingExists) {
		t.Fatalf("expected ErrBindingExists, got %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg := NewRegistry(path)
	if err := reg.Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSaveCreatesParentAndLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "var")
	path := filepath.Join(dir, FileName)
	reg := NewRegistry(path)
	value := "x"
	if err := reg.Bind("o", "A", &value); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != FileName {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}
