package runlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/labctl/internal/paths"
	"github.com/danmuck/labctl/internal/tools"
	"github.com/rs/zerolog"
)

// StampLayout names run directories and process log roots.
const StampLayout = "2006-01-02.15:04:05.000000"

// ConfigureFunc adjusts a command before it is started.
type ConfigureFunc func(*exec.Cmd)

// Sequence numbers run directories. One Sequence is shared by every logger of
// a process so that two invocations never get the same directory, even when
// they start within the same clock tick.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Config wires a Logger to its session.
type Config struct {
	Name     string
	Here     *paths.Resolver
	Log      zerolog.Logger
	Runner   tools.CommandRunner
	Metrics  *Metrics
	Sequence *Sequence
	Now      func() time.Time

	// Executable and Indent drive RunLab. Executable defaults to the running
	// binary.
	Executable string
	Indent     func() int
}

// Logger runs commands and records them in the index stream.
type Logger struct {
	name       string
	here       *paths.Resolver
	log        zerolog.Logger
	runner     tools.CommandRunner
	metrics    *Metrics
	seq        *Sequence
	now        func() time.Time
	executable string
	indent     func() int
}

func New(cfg Config) (*Logger, error) {
	if cfg.Here == nil {
		return nil, fmt.Errorf("runlog: logger %q needs a path resolver", cfg.Name)
	}
	l := &Logger{
		name:       cfg.Name,
		here:       cfg.Here,
		log:        cfg.Log.With().Str("logger", cfg.Name).Logger(),
		runner:     cfg.Runner,
		metrics:    cfg.Metrics,
		seq:        cfg.Sequence,
		now:        cfg.Now,
		executable: cfg.Executable,
		indent:     cfg.Indent,
	}
	if l.runner == nil {
		l.runner = tools.ExecRunner{}
	}
	if l.seq == nil {
		l.seq = &Sequence{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.indent == nil {
		l.indent = func() int { return 0 }
	}
	return l, nil
}

func (l *Logger) Name() string { return l.name }

// Here returns the resolver the logger allocates run directories with.
func (l *Logger) Here() *paths.Resolver { return l.here }

// Run executes command and waits for it. A non-zero exit is an error only
// when opts.Check is set; the record carries the exit code either way.
func (l *Logger) Run(ctx context.Context, command []string, opts Options) (Record, error) {
	pending, rec, err := l.start(ctx, command, opts)
	if err != nil {
		return rec, err
	}
	return pending.Wait()
}

// Start spawns command and returns without waiting for it. Many invocations
// may be in flight at once; Wait on the returned Pending collects the record.
// The elapsed time covers spawn to reap and is approximate when the caller
// waits late.
func (l *Logger) Start(ctx context.Context, command []string, opts Options) (*Pending, error) {
	pending, _, err := l.start(ctx, command, opts)
	return pending, err
}

// RunAll starts every command concurrently and waits for all of them. Records
// come back in input order; the error joins every failure.
func (l *Logger) RunAll(ctx context.Context, commands [][]string, opts Options) ([]Record, error) {
	return Collect(ctx, commands, func(ctx context.Context, command []string) (Record, error) {
		pending, rec, err := l.start(ctx, command, opts)
		if err != nil {
			return rec, err
		}
		return pending.Wait()
	})
}

// Pending is a spawned invocation not yet reaped.
type Pending struct {
	logger *Logger
	proc   *tools.Process
	record Record
	check  bool
	level  Level
	files  []io.Closer

	once   sync.Once
	result Record
	err    error
}

// Wait blocks until the command exits, then logs and returns its record.
// Later calls return the same outcome.
func (p *Pending) Wait() (Record, error) {
	p.once.Do(func() {
		p.result, p.err = p.finish()
	})
	return p.result, p.err
}

func (p *Pending) finish() (Record, error) {
	code, waitErr := p.proc.Wait()
	closeAll(p.files)

	rec := p.record
	rec.ExitCode = code
	rec.Elapsed = p.logger.now().Sub(rec.Start)
	p.logger.logRecord(p.level, rec, waitErr)

	if waitErr != nil {
		return rec, fmt.Errorf("runlog: wait %s: %w", ShellJoin(rec.Command), waitErr)
	}
	if p.check && code != 0 {
		return rec, &CommandFailedError{Command: rec.Command, ExitCode: code, Record: rec}
	}
	return rec, nil
}

func (l *Logger) start(ctx context.Context, command []string, opts Options) (*Pending, Record, error) {
	if err := validate(command, opts); err != nil {
		return nil, Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Record{}, err
	}

	begin := l.now()
	runDir, err := l.here.Log(paths.MakeDir, "run", fmt.Sprintf("%s-%06d", begin.Format(StampLayout), l.seq.Next()))
	if err != nil {
		return nil, Record{}, err
	}

	rec := Record{
		Command: append([]string(nil), command...),
		Input:   opts.Input,
		Dir:     opts.Dir,
		Start:   begin,
		Stdout:  filepath.Join(runDir, "stdout"),
		Stderr:  filepath.Join(runDir, "stderr"),
	}
	if rec.Dir == "" {
		rec.Dir = runDir
	}
	env := effectiveEnv(opts)
	switch {
	case opts.Env != nil:
		rec.Env = copyMap(opts.Env)
	case opts.FullEnv != nil:
		rec.Env = copyMap(opts.FullEnv)
	}

	var files []io.Closer
	stdout, err := os.Create(rec.Stdout)
	if err != nil {
		return nil, rec, fmt.Errorf("runlog: create %s: %w", rec.Stdout, err)
	}
	files = append(files, stdout)
	stderr, err := os.Create(rec.Stderr)
	if err != nil {
		closeAll(files)
		return nil, rec, fmt.Errorf("runlog: create %s: %w", rec.Stderr, err)
	}
	files = append(files, stderr)

	var stdin io.Reader
	if opts.Input != "" {
		in, err := os.Open(opts.Input)
		if err != nil {
			closeAll(files)
			return nil, rec, fmt.Errorf("runlog: open input %s: %w", opts.Input, err)
		}
		files = append(files, in)
		stdin = in
	}

	proc, err := l.runner.Start(tools.Spec{
		Name:      command[0],
		Args:      command[1:],
		Dir:       rec.Dir,
		Env:       env,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		Configure: opts.Configure,
	})
	if err != nil {
		closeAll(files)
		rec.ExitCode = tools.ExitCode(err)
		rec.Elapsed = l.now().Sub(begin)
		l.logRecord(opts.Level, rec, err)
		return nil, rec, fmt.Errorf("runlog: start %s: %w", ShellJoin(command), err)
	}

	return &Pending{
		logger: l,
		proc:   proc,
		record: rec,
		check:  opts.Check,
		level:  opts.Level,
		files:  files,
	}, rec, nil
}

func (l *Logger) logRecord(level Level, rec Record, procErr error) {
	event := l.log.WithLevel(level.zerolog()).
		Str("cwd", rec.Dir).
		Str("run", ShellJoin(rec.Command)).
		Str("in", rec.Input).
		Str("out", rec.Stdout).
		Str("err", rec.Stderr)
	if rec.Env != nil {
		event = event.Strs("env", envList(rec.Env))
	}
	if procErr != nil {
		event = event.AnErr("error", procErr)
	}
	event.Int("ret", rec.ExitCode).
		Str("elapsed", rec.Elapsed.String()).
		Msg("run")

	if l.metrics != nil {
		l.metrics.Observe(l.name, rec, procErr)
	}
}

// effectiveEnv resolves the child's environment. nil means inherit.
func effectiveEnv(opts Options) []string {
	switch {
	case opts.FullEnv != nil:
		return envList(opts.FullEnv)
	case opts.Env != nil:
		return mergeEnv(os.Environ(), opts.Env)
	default:
		return nil
	}
}

// mergeEnv returns base with overrides applied; overridden keys keep their
// position and new keys are appended in sorted order.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if value, ok := overrides[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+value)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}
	for _, kv := range envList(overrides) {
		key, _, _ := strings.Cut(kv, "=")
		if !seen[key] {
			out = append(out, kv)
		}
	}
	return out
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func closeAll(files []io.Closer) {
	for _, f := range files {
		_ = f.Close()
	}
}
