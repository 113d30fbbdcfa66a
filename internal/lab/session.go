// Package lab owns the per-process state of a lab command: the directory
// layout, the log root with its index stream, the console printer, the
// environment cache and the run metrics.
package lab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danmuck/labctl/internal/console"
	"github.com/danmuck/labctl/internal/envcache"
	"github.com/danmuck/labctl/internal/logging"
	"github.com/danmuck/labctl/internal/paths"
	"github.com/danmuck/labctl/internal/runlog"
	"github.com/danmuck/labctl/internal/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EnvLabDir   = "LAB_DIR"
	IndexFile   = "index"
	MetricsFile = "metrics.prom"
)

// Layout is the fixed directory structure under a lab root.
type Layout struct {
	LabDir string
	VarDir string
	DatDir string
	LogDir string
	TmpDir string
}

func NewLayout(labDir string) (Layout, error) {
	abs, err := filepath.Abs(labDir)
	if err != nil {
		return Layout{}, fmt.Errorf("lab: resolve %s: %w", labDir, err)
	}
	return Layout{
		LabDir: abs,
		VarDir: filepath.Join(abs, "var"),
		DatDir: filepath.Join(abs, "dat"),
		LogDir: filepath.Join(abs, "log"),
		TmpDir: filepath.Join(abs, "tmp"),
	}, nil
}

// Options for Open. Zero values pick the defaults.
type Options struct {
	// LabDir defaults to $LAB_DIR, then the working directory.
	LabDir string
	// Log configures the index stream; the zero value reads the environment.
	Log     logging.Config
	Printer *console.Printer
	Runner  tools.CommandRunner
	// Executable is what RunLab re-invokes; empty means the running binary.
	Executable string
	Now        func() time.Time
	Args       []string
}

// Session is the state shared by every workflow step of one process.
type Session struct {
	layout  Layout
	logRoot string
	index   *os.File
	log     zerolog.Logger
	printer *console.Printer
	cache   *envcache.Registry
	metrics *runlog.Metrics
	seq     runlog.Sequence

	runner     tools.CommandRunner
	executable string
	now        func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open allocates a fresh log root and starts the index stream in it.
func Open(opts Options) (*Session, error) {
	labDir := opts.LabDir
	if labDir == "" {
		labDir = os.Getenv(EnvLabDir)
	}
	if labDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("lab: working directory: %w", err)
		}
		labDir = wd
	}
	layout, err := NewLayout(labDir)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	printer := opts.Printer
	if printer == nil {
		printer = console.FromEnv()
	}

	logRoot, err := allocateLogRoot(layout.LogDir, now())
	if err != nil {
		return nil, err
	}
	indexPath := filepath.Join(logRoot, IndexFile)
	index, err := os.OpenFile(indexPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lab: open index %s: %w", indexPath, err)
	}

	logCfg := opts.Log
	if logCfg == (logging.Config{}) {
		logCfg = logging.FromEnv(logging.ProfileRuntime)
	}

	s := &Session{
		layout:     layout,
		logRoot:    logRoot,
		index:      index,
		log:        logging.New(zerolog.SyncWriter(index), logCfg),
		printer:    printer,
		cache:      envcache.NewRegistry(filepath.Join(layout.VarDir, envcache.FileName)),
		metrics:    runlog.NewMetrics(),
		runner:     opts.Runner,
		executable: opts.Executable,
		now:        now,
	}
	if opts.Args != nil {
		s.log.Info().Strs("argv", opts.Args).Str("lab", layout.LabDir).Msg("session")
	}
	printer.Println(indexPath)
	printer.Println()
	return s, nil
}

// allocateLogRoot creates LogDir/<stamp>.<suffix>. The leaf must not exist.
func allocateLogRoot(logDir string, at time.Time) (string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("lab: create %s: %w", logDir, err)
	}
	suffix := uuid.NewString()[:8]
	root := filepath.Join(logDir, at.Format(runlog.StampLayout)+"."+suffix)
	if err := os.Mkdir(root, 0o755); err != nil {
		return "", fmt.Errorf("lab: create log root %s: %w", root, err)
	}
	return root, nil
}

func (s *Session) Layout() Layout            { return s.layout }
func (s *Session) LogRoot() string           { return s.logRoot }
func (s *Session) IndexPath() string         { return filepath.Join(s.logRoot, IndexFile) }
func (s *Session) Printer() *console.Printer { return s.printer }
func (s *Session) Cache() *envcache.Registry { return s.cache }
func (s *Session) Metrics() *runlog.Metrics  { return s.metrics }
func (s *Session) Log() *zerolog.Logger      { return &s.log }

// Here returns a resolver for dir. Relative dirs are taken from the lab root.
func (s *Session) Here(dir string) (*paths.Resolver, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.layout.LabDir, dir)
	}
	return paths.NewResolver(dir, s.layout.LabDir, s.layout.VarDir, s.logRoot)
}

// Root is the resolver bound to the lab root itself.
func (s *Session) Root() (*paths.Resolver, error) {
	return s.Here(s.layout.LabDir)
}

// Logger returns a run logger named name. All loggers of a session share its
// index stream, run-directory sequence and metrics.
func (s *Session) Logger(name string, here *paths.Resolver) (*runlog.Logger, error) {
	return runlog.New(runlog.Config{
		Name:       name,
		Here:       here,
		Log:        s.log,
		Runner:     s.runner,
		Metrics:    s.metrics,
		Sequence:   &s.seq,
		Now:        s.now,
		Executable: s.executable,
		Indent:     s.printer.Indent,
	})
}

// Close saves the environment cache, writes the metrics textfile and closes
// the index. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.cache.Save(); err != nil {
			errs = append(errs, err)
		}
		if err := s.metrics.WriteTextfile(filepath.Join(s.logRoot, MetricsFile)); err != nil {
			errs = append(errs, err)
		}
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("lab: close index: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
