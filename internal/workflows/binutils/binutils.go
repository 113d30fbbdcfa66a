// Package binutils configures, builds, installs and validates GNU binutils
// from a source checkout, keeping build and install trees under the lab's
// variable-data root.
package binutils

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/danmuck/labctl/internal/config"
	"github.com/danmuck/labctl/internal/console"
	"github.com/danmuck/labctl/internal/envcache"
	"github.com/danmuck/labctl/internal/lab"
	"github.com/danmuck/labctl/internal/paths"
	"github.com/danmuck/labctl/internal/runlog"
	"github.com/danmuck/labctl/internal/workflow"
)

const ID = "binutils"

var metadata = workflow.Metadata{
	ID:          ID,
	Name:        "GNU binutils",
	Description: "Configure, build, install and validate binutils with gold enabled",
}

type stepFunc func(w *Workflow, ctx context.Context) error

var steps = []struct {
	info workflow.StepInfo
	run  stepFunc
}{
	{workflow.StepInfo{Name: "prepare", Description: "create build and prefix dirs, unpack the source archive if needed"}, (*Workflow).prepare},
	{workflow.StepInfo{Name: "configure", Description: "run configure in the build dir"}, (*Workflow).configure},
	{workflow.StepInfo{Name: "build", Description: "make configure-host, then make"}, (*Workflow).build},
	{workflow.StepInfo{Name: "install", Description: "make install into the prefix dir"}, (*Workflow).install},
	{workflow.StepInfo{Name: "validate", Description: "run the installed ld.gold -v"}, (*Workflow).validate},
	{workflow.StepInfo{Name: "clean", Description: "make clean, then remove the prefix dir"}, (*Workflow).clean},
}

var defaultSteps = []string{"prepare", "configure", "build", "install", "validate"}

// Definition registers the workflow. The environment is read from the
// lab's environ.toml when the workflow is built.
func Definition() workflow.Definition {
	infos := make([]workflow.StepInfo, 0, len(steps))
	for _, step := range steps {
		infos = append(infos, step.info)
	}
	return workflow.Definition{
		Metadata: metadata,
		Steps:    infos,
		New: func(s *lab.Session) (workflow.Workflow, error) {
			environ, err := config.LoadEnviron(filepath.Join(s.Layout().LabDir, config.EnvironFile))
			if err != nil {
				return nil, err
			}
			return New(s, environ.Binutils)
		},
	}
}

// Workflow is the binutils workflow bound to one session.
type Workflow struct {
	env     config.BinutilsEnv
	labDir  string
	here    *paths.Resolver
	log     *runlog.Logger
	printer *console.Printer
}

// New binds the cacheable attributes named in env.Cached to the session's
// environment cache and restores them from it.
func New(s *lab.Session, env config.BinutilsEnv) (*Workflow, error) {
	here, err := s.Here(ID)
	if err != nil {
		return nil, err
	}
	logger, err := s.Logger(ID, here)
	if err != nil {
		return nil, err
	}
	w := &Workflow{
		env:     env,
		labDir:  s.Layout().LabDir,
		here:    here,
		log:     logger,
		printer: s.Printer(),
	}
	if err := w.bindCache(s.Cache()); err != nil {
		return nil, err
	}
	if err := config.ValidateBinutilsEnv(w.env); err != nil {
		return nil, fmt.Errorf("binutils: environment after cache load: %w", err)
	}
	return w, nil
}

func (w *Workflow) bindCache(cache *envcache.Registry) error {
	for _, attr := range w.env.Cached {
		ptr, err := w.field(attr)
		if err != nil {
			return err
		}
		if err := cache.Bind(ID, attr, ptr); err != nil {
			return err
		}
	}
	return cache.Load()
}

// field maps a config attribute onto the env field holding it.
func (w *Workflow) field(attr string) (any, error) {
	switch attr {
	case "source_dir":
		return &w.env.SourceDir, nil
	case "build_dir_name":
		return &w.env.BuildDirName, nil
	case "prefix_dir_name":
		return &w.env.PrefixDirName, nil
	case "jobs":
		return &w.env.Jobs, nil
	default:
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownSetting, attr)
	}
}

func (w *Workflow) Metadata() workflow.Metadata { return metadata }

func (w *Workflow) Steps() []workflow.Step {
	out := make([]workflow.Step, 0, len(steps))
	for _, step := range steps {
		run := step.run
		out = append(out, workflow.Step{
			Name:        step.info.Name,
			Description: step.info.Description,
			Run:         func(ctx context.Context) error { return run(w, ctx) },
		})
	}
	return out
}

func (w *Workflow) DefaultSteps() []string {
	return slices.Clone(defaultSteps)
}

// Env returns the effective environment.
func (w *Workflow) Env() config.BinutilsEnv {
	return w.env
}

// Set overrides one environment attribute. Cached attributes keep the new
// value for later runs.
func (w *Workflow) Set(key, value string) error {
	next := w.env
	switch key {
	case "source_dir":
		abs, err := filepath.Abs(value)
		if err != nil {
			return err
		}
		next.SourceDir = abs
	case "build_dir_name":
		next.BuildDirName = value
	case "prefix_dir_name":
		next.PrefixDirName = value
	case "jobs":
		jobs, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
		next.Jobs = jobs
	default:
		return fmt.Errorf("%w: %s", workflow.ErrUnknownSetting, key)
	}
	if err := config.ValidateBinutilsEnv(next); err != nil {
		return err
	}
	w.env = next
	return nil
}
