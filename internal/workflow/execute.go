package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/labctl/internal/console"
	"github.com/danmuck/labctl/internal/runlog"
)

// Select picks steps by name in the caller's order. No names selects the
// defaults. Names that match no step are skipped.
func Select(steps []Step, names, defaults []string) []Step {
	if len(names) == 0 {
		names = defaults
	}
	byName := make(map[string]Step, len(steps))
	for _, step := range steps {
		byName[step.Name] = step
	}
	selected := make([]Step, 0, len(names))
	for _, name := range names {
		if step, ok := byName[name]; ok {
			selected = append(selected, step)
		}
	}
	return selected
}

// Execute runs the selected steps of wf one after another and stops at the
// first failure. When a command failed its check, its stderr is echoed first.
func Execute(ctx context.Context, wf Workflow, names []string, printer *console.Printer) error {
	id := wf.Metadata().ID
	steps := wf.Steps()
	infos := make([]StepInfo, 0, len(steps))
	for _, step := range steps {
		infos = append(infos, step.Info())
	}
	if err := ValidateSteps(infos); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	for _, step := range Select(steps, names, wf.DefaultSteps()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		printer.Printf("%s: %s\n", id, step.Name)
		restore := printer.Nest()
		err := step.Run(ctx)
		if err != nil {
			reportFailure(printer, err)
		}
		restore()
		if err != nil {
			return fmt.Errorf("%s: step %s: %w", id, step.Name, err)
		}
	}
	return nil
}

func reportFailure(printer *console.Printer, err error) {
	var failed *runlog.CommandFailedError
	if !errors.As(err, &failed) {
		return
	}
	printer.Printf("%s exited with status %d, stderr:\n", runlog.ShellJoin(failed.Command), failed.ExitCode)
	if ferr := printer.File(failed.Record.Stderr); ferr != nil {
		printer.Printf("cannot read %s: %v\n", failed.Record.Stderr, ferr)
	}
}

// ApplySettings hands every key=value pair to wf in order.
func ApplySettings(wf Workflow, settings []string) error {
	if len(settings) == 0 {
		return nil
	}
	settable, ok := wf.(Settable)
	if !ok {
		return fmt.Errorf("%s: %w", wf.Metadata().ID, ErrNotSettable)
	}
	for _, setting := range settings {
		key, value, found := strings.Cut(setting, "=")
		if !found || strings.TrimSpace(key) == "" {
			return fmt.Errorf("%s: setting %q is not key=value", wf.Metadata().ID, setting)
		}
		if err := settable.Set(strings.TrimSpace(key), value); err != nil {
			return fmt.Errorf("%s: set %s: %w", wf.Metadata().ID, key, err)
		}
	}
	return nil
}
