package tools

import (
	"errors"
	"io"
	"io/fs"
	"os/exec"
)

// Shell-style statuses for children that never started.
const (
	ExitNotExecutable = 126
	ExitNotFound      = 127
)

// Spec describes one process to spawn. Args excludes the program name.
type Spec struct {
	Name      string
	Args      []string
	Dir       string
	Env       []string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	Configure func(*exec.Cmd)
}

// Process is a spawned child waiting to be reaped.
type Process struct {
	cmd *exec.Cmd
}

// CommandRunner abstracts process execution for the run logger.
type CommandRunner interface {
	Start(spec Spec) (*Process, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Start spawns the process without waiting for it. Start errors map onto a
// status through ExitCode.
func (ExecRunner) Start(spec Spec) (*Process, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if spec.Configure != nil {
		spec.Configure(cmd)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Process{cmd: cmd}, nil
}

// Run spawns the process and waits for it.
func (r ExecRunner) Run(spec Spec) (int, error) {
	proc, err := r.Start(spec)
	if err != nil {
		return ExitCode(err), err
	}
	return proc.Wait()
}

// Wait reaps the child. A non-zero exit is reported through the code only;
// the error is reserved for failures to wait at all.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return ExitCode(err), err
}

// ExitCode maps a start or wait error onto a shell-style exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
		return ExitNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return ExitNotExecutable
	}
	return 1
}
