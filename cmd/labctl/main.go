// labctl runs lab workflows: named steps that drive external build tools,
// with every command's output captured under the lab's log root.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/danmuck/labctl/internal/config"
	"github.com/danmuck/labctl/internal/console"
	"github.com/danmuck/labctl/internal/lab"
	"github.com/danmuck/labctl/internal/workflow"
	"github.com/danmuck/labctl/internal/workflows/binutils"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout).run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "labctl: %v\n", err)
		os.Exit(1)
	}
}

func registry() *workflow.Registry {
	r := workflow.NewRegistry()
	r.MustRegister(binutils.Definition())
	return r
}

type app struct {
	stdout    io.Writer
	workflows *workflow.Registry
}

func newApp(stdout io.Writer) *app {
	return &app{stdout: stdout, workflows: registry()}
}

const usage = `usage:
  labctl [--lab DIR] list
  labctl [--lab DIR] run <workflow> [step...] [--steps a,b] [--source-dir DIR] [--set key=value]
  labctl [--lab DIR] <workflow> [step...] [flags]
`

func (a *app) run(ctx context.Context, args []string) error {
	var labDir string
	flags := pflag.NewFlagSet("labctl", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SetInterspersed(false)
	flags.StringVar(&labDir, "lab", "", "lab root (default: $LAB_DIR, then the working directory)")
	help := flags.BoolP("help", "h", false, "show help")
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if *help || len(rest) == 0 {
		fmt.Fprint(a.stdout, usage)
		if len(rest) == 0 && !*help {
			return errors.New("missing command")
		}
		return nil
	}

	switch rest[0] {
	case "list":
		return a.list()
	case "run":
		return a.runWorkflow(ctx, labDir, rest[1:])
	default:
		if _, ok := a.workflows.Resolve(rest[0]); ok {
			return a.runWorkflow(ctx, labDir, rest)
		}
		return fmt.Errorf("unknown command or workflow %q", rest[0])
	}
}

func (a *app) list() error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, meta := range a.workflows.ListMetadata() {
		def, _ := a.workflows.Resolve(meta.ID)
		fmt.Fprintf(w, "%s\t%s\t%s\n", meta.ID, meta.Name, meta.Description)
		for _, step := range def.Steps {
			fmt.Fprintf(w, "  %s\t%s\t\n", step.Name, step.Description)
		}
	}
	return w.Flush()
}

func (a *app) runWorkflow(ctx context.Context, labDir string, args []string) (err error) {
	var steps, settings []string
	var sourceDir string
	flags := pflag.NewFlagSet("labctl run", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringSliceVar(&steps, "steps", nil, "comma separated steps to run (default: the workflow's default steps)")
	flags.StringVar(&sourceDir, "source-dir", "", "source checkout, shorthand for --set source_dir=DIR")
	flags.StringArrayVar(&settings, "set", nil, "override an environment attribute, key=value")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(a.stdout, usage+"\nrun flags:\n"+flags.FlagUsages())
			return nil
		}
		return err
	}
	positional := flags.Args()
	if len(positional) == 0 {
		return errors.New("run: workflow name is required")
	}
	def, ok := a.workflows.Resolve(positional[0])
	if !ok {
		return fmt.Errorf("run: unknown workflow %q", positional[0])
	}
	steps = append(slices.Clone(positional[1:]), steps...)
	if sourceDir != "" {
		settings = append([]string{"source_dir=" + sourceDir}, settings...)
	}

	root, err := resolveLabDir(labDir)
	if err != nil {
		return err
	}
	logCfg, err := loadLogConfig(filepath.Join(root, config.LabFile))
	if err != nil {
		return err
	}
	session, err := lab.Open(lab.Options{
		LabDir:  root,
		Log:     logCfg,
		Printer: console.New(a.stdout, console.IndentFromEnv()),
		Args:    append([]string{"labctl"}, args...),
	})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, session.Close())
	}()

	wf, err := def.New(session)
	if err != nil {
		return err
	}
	if err := workflow.ApplySettings(wf, settings); err != nil {
		return err
	}
	runErr := workflow.Execute(ctx, wf, steps, session.Printer())
	event := session.Log().Info()
	if runErr != nil {
		event = session.Log().Error().Err(runErr)
	}
	event.Str("workflow", def.Metadata.ID).Strs("steps", steps).Msg("workflow")
	return runErr
}

func resolveLabDir(flagValue string) (string, error) {
	dir := strings.TrimSpace(flagValue)
	if dir == "" {
		dir = os.Getenv(lab.EnvLabDir)
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return filepath.Abs(dir)
}
