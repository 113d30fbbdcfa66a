package workflow

import (
	"context"

	"github.com/danmuck/labctl/internal/lab"
)

// Metadata is the contract for workflow identity and display data.
type Metadata struct {
	ID          string
	Name        string
	Description string
}

// StepInfo describes a step without binding it to a session.
type StepInfo struct {
	Name        string
	Description string
}

// Step is one named unit of a workflow.
type Step struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

func (s Step) Info() StepInfo {
	return StepInfo{Name: s.Name, Description: s.Description}
}

// Workflow is a set of steps bound to a session.
type Workflow interface {
	Metadata() Metadata
	Steps() []Step
	// DefaultSteps names the steps run when the caller selects none.
	DefaultSteps() []string
}

// Definition registers a workflow before any session exists.
type Definition struct {
	Metadata Metadata
	Steps    []StepInfo
	New      func(s *lab.Session) (Workflow, error)
}

// Settable workflows accept key=value overrides from the command line. Set
// runs after the environment cache is loaded, so an override also replaces
// the cached value.
type Settable interface {
	Set(key, value string) error
}
