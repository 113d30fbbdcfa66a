package runlog

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/danmuck/labctl/internal/console"
	"github.com/danmuck/labctl/internal/tools"
)

// LabOptions for re-invoking the lab executable.
type LabOptions struct {
	Env     map[string]string
	FullEnv map[string]string
	Level   Level
}

// RunLab runs `<lab executable> workflow args...` from the lab root with the
// console attached and the print indent raised by one, and returns its exit
// status.
func (l *Logger) RunLab(ctx context.Context, workflow string, args []string, opts LabOptions) (int, error) {
	if workflow == "" {
		return 0, fmt.Errorf("runlog: workflow name is required")
	}
	if opts.Env != nil && opts.FullEnv != nil {
		return 0, ErrConflictingEnv
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	exe, err := l.labExecutable()
	if err != nil {
		return 0, err
	}

	env := effectiveEnv(Options{Env: opts.Env, FullEnv: opts.FullEnv})
	if env == nil {
		env = os.Environ()
	}
	env = mergeEnv(env, map[string]string{console.EnvIndent: strconv.Itoa(l.indent() + 1)})

	code, runErr := tools.ExecRunner{}.Run(tools.Spec{
		Name:   exe,
		Args:   append([]string{workflow}, args...),
		Dir:    l.here.LabDir(),
		Env:    env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})

	event := l.log.WithLevel(opts.Level.zerolog()).
		Str("lab", workflow).
		Strs("arg", args)
	switch {
	case opts.Env != nil:
		event = event.Strs("env", envList(opts.Env))
	case opts.FullEnv != nil:
		event = event.Strs("env", envList(opts.FullEnv))
	}
	if runErr != nil {
		event = event.AnErr("error", runErr)
	}
	event.Int("ret", code).Msg("lab")

	if runErr != nil {
		return code, fmt.Errorf("runlog: run lab %s: %w", workflow, runErr)
	}
	return code, nil
}

// StartLab re-invokes the lab executable like RunLab, but through Start: the
// child's output is captured in its run directory instead of the console.
func (l *Logger) StartLab(ctx context.Context, workflow string, args []string, opts Options) (*Pending, error) {
	if workflow == "" {
		return nil, fmt.Errorf("runlog: workflow name is required")
	}
	exe, err := l.labExecutable()
	if err != nil {
		return nil, err
	}
	opts.Dir = l.here.LabDir()
	return l.Start(ctx, append([]string{exe, workflow}, args...), opts)
}

func (l *Logger) labExecutable() (string, error) {
	if l.executable != "" {
		return l.executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("runlog: locate lab executable: %w", err)
	}
	return exe, nil
}
