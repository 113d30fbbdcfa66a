package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunLabRaisesIndentAndReturnsStatus(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Executable = "sh"
		cfg.Indent = func() int { return 2 }
	})
	code, err := h.logger.RunLab(context.Background(), "-c", []string{`exit "$LAB_PRINT_INDENT"`}, LabOptions{})
	if err != nil {
		t.Fatalf("RunLab: %v", err)
	}
	if code != 3 {
		t.Fatalf("child saw indent %d, want 3", code)
	}
	entries := h.entries(t)
	if len(entries) != 1 || entries[0]["message"] != "lab" || entries[0]["ret"] != float64(3) {
		t.Fatalf("unexpected index entries: %v", entries)
	}
}

func TestRunLabPassesEnvOverrides(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Executable = "sh" })
	code, err := h.logger.RunLab(context.Background(), "-c", []string{`test "$LABCTL_TEST_FLAG" = on`},
		LabOptions{Env: map[string]string{"LABCTL_TEST_FLAG": "on"}})
	if err != nil || code != 0 {
		t.Fatalf("RunLab = (%d, %v), want (0, nil)", code, err)
	}
}

func TestRunLabValidates(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Executable = "sh" })
	if _, err := h.logger.RunLab(context.Background(), "", nil, LabOptions{}); err == nil {
		t.Fatalf("expected error for empty workflow")
	}
	_, err := h.logger.RunLab(context.Background(), "wf", nil, LabOptions{Env: map[string]string{}, FullEnv: map[string]string{}})
	if !errors.Is(err, ErrConflictingEnv) {
		t.Fatalf("expected ErrConflictingEnv, got %v", err)
	}
}

func TestStartLabCapturesFromLabDir(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Executable = "sh" })
	pending, err := h.logger.StartLab(context.Background(), "-c", []string{"pwd"}, Options{})
	if err != nil {
		t.Fatalf("StartLab: %v", err)
	}
	rec, err := pending.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got := strings.TrimSpace(readFile(t, rec.Stdout))
	resolved, _ := filepath.EvalSymlinks(h.lab)
	if got != h.lab && got != resolved {
		t.Fatalf("pwd = %q, want lab dir %q", got, h.lab)
	}
}
