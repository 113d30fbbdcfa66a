package runlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrEmptyCommand   = errors.New("runlog: command must not be empty")
	ErrConflictingEnv = errors.New("runlog: Env and FullEnv are mutually exclusive")
)

// Level of the index entry written for an invocation. The zero value is info.
type Level int8

const (
	LevelInfo Level = iota
	LevelDebug
	LevelTrace
	LevelWarn
	LevelError
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options for one invocation.
type Options struct {
	// Input is a file streamed to stdin. Empty means no stdin.
	Input string
	// Env overrides variables of the current process environment.
	Env map[string]string
	// FullEnv replaces the environment entirely.
	FullEnv map[string]string
	// Dir is the working directory. Empty means the invocation's run directory.
	Dir   string
	Level Level
	// Check turns a non-zero exit into a *CommandFailedError.
	Check bool
	// Configure is applied to the command right before it is started.
	Configure ConfigureFunc
}

// Record is the outcome of one invocation. It is not modified once returned.
type Record struct {
	Command  []string
	Input    string
	Dir      string
	Env      map[string]string
	Start    time.Time
	Elapsed  time.Duration
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit code.
func (r Record) Success() bool {
	return r.ExitCode == 0
}

// CommandFailedError is returned by checked invocations that exit non-zero.
type CommandFailedError struct {
	Command  []string
	ExitCode int
	Record   Record
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("runlog: command %s exited with status %d", ShellJoin(e.Command), e.ExitCode)
}

func validate(command []string, opts Options) error {
	if len(command) == 0 || command[0] == "" {
		return ErrEmptyCommand
	}
	if opts.Env != nil && opts.FullEnv != nil {
		return ErrConflictingEnv
	}
	return nil
}
