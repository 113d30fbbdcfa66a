package binutils

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/danmuck/labctl/internal/paths"
	"github.com/danmuck/labctl/internal/runlog"
	"github.com/danmuck/labctl/internal/tools"
)

// configureFlags are passed to binutils' configure after the script path.
var configureFlags = []string{
	"--with-lib-path=/usr/lib:/usr/local/lib",
	"--enable-gold",
	"--disable-gdb",
	"--disable-werror",
	"--with-debuginfod",
	"--with-pic",
	"--with-system-zlib",
}

func (w *Workflow) buildDir(prep paths.Prep) (string, error) {
	return w.here.Var(prep, w.env.BuildDirName)
}

func (w *Workflow) prefixDir(prep paths.Prep) (string, error) {
	return w.here.Var(prep, w.env.PrefixDirName)
}

func (w *Workflow) jobsFlag() string {
	return fmt.Sprintf("-j%d", w.env.Parallelism())
}

func (w *Workflow) prepare(ctx context.Context) error {
	build, err := w.buildDir(paths.MakeDir)
	if err != nil {
		return err
	}
	prefix, err := w.prefixDir(paths.MakeDir)
	if err != nil {
		return err
	}
	w.printer.Printf("Create build directory: %s\n", build)
	w.printer.Printf("Create prefix directory: %s\n", prefix)

	if _, err := os.Stat(w.env.SourceDir); !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	file, ok := w.env.SourceArchiveFile(w.labDir)
	if !ok {
		w.printer.Printf("Source dir %s does not exist and no source archive is configured\n", w.env.SourceDir)
		return nil
	}
	dest, err := w.here.Var(paths.MakeDir, "source")
	if err != nil {
		return err
	}
	w.printer.Printf("Unpack %s into %s\n", file.Path, dest)
	top, err := file.Unpack(dest)
	if err != nil {
		return err
	}
	w.env.SourceDir = top
	w.printer.Printf("Source dir: %s\n", top)
	return nil
}

func (w *Workflow) configure(ctx context.Context) error {
	build, err := w.buildDir(0)
	if err != nil {
		return err
	}
	source, err := tools.EnsureInDir(w.env.SourceDir)
	if err != nil {
		return err
	}
	w.printer.Printf("Start configuring project, source dir: %s\n", source)
	w.printer.Printf("Build cache dir: %s\n", build)

	command := append([]string{filepath.Join(source, "configure")}, configureFlags...)
	w.printer.Println(runlog.ShellJoin(command))
	if _, err := w.log.Run(ctx, command, runlog.Options{Dir: build, Check: true}); err != nil {
		return err
	}
	w.printer.Println("Configure finished")
	return nil
}

func (w *Workflow) build(ctx context.Context) error {
	build, err := w.buildDir(0)
	if err != nil {
		return err
	}
	w.printer.Printf("Start building project, source dir: %s\n", w.env.SourceDir)
	w.printer.Printf("Build cache dir: %s\n", build)
	w.printer.Printf("Parallel jobs: %d\n", w.env.Parallelism())

	w.printer.Println("make configure-host")
	if _, err := w.log.Run(ctx, []string{"make", "configure-host", w.jobsFlag()}, runlog.Options{Dir: build, Check: true}); err != nil {
		return err
	}
	w.printer.Println("make tooldir")
	if _, err := w.log.Run(ctx, []string{"make", "tooldir=/usr", w.jobsFlag()}, runlog.Options{Dir: build, Check: true}); err != nil {
		return err
	}
	w.printer.Println("Building finished")
	return nil
}

// install does not fail on a non-zero make exit; it reports the stderr and
// carries on, since a partial install is still worth inspecting.
func (w *Workflow) install(ctx context.Context) error {
	build, err := w.buildDir(0)
	if err != nil {
		return err
	}
	prefix, err := w.prefixDir(0)
	if err != nil {
		return err
	}
	command := []string{"make", "prefix=" + prefix, "tooldir=" + prefix, "install", w.jobsFlag()}
	w.printer.Println("make install")
	rec, err := w.log.Run(ctx, command, runlog.Options{Dir: build})
	if err != nil {
		return err
	}
	if !rec.Success() {
		w.printer.Printf("Error occurred, make install exited with status %d\n", rec.ExitCode)
		if err := w.printer.File(rec.Stderr); err != nil {
			return err
		}
	}
	w.printer.Printf("Binary files are located at %s\n", prefix)
	return nil
}

func (w *Workflow) validate(ctx context.Context) error {
	prefix, err := w.prefixDir(0)
	if err != nil {
		return err
	}
	command := []string{filepath.Join(prefix, "bin", "ld.gold"), "-v"}
	w.printer.Printf("test command: %s\n", runlog.ShellJoin(command))
	rec, err := w.log.Run(ctx, command, runlog.Options{Check: true})
	if err != nil {
		return err
	}
	return w.printer.File(rec.Stdout)
}

func (w *Workflow) clean(ctx context.Context) error {
	build, err := w.buildDir(0)
	if err != nil {
		return err
	}
	prefix, err := w.prefixDir(0)
	if err != nil {
		return err
	}
	w.printer.Printf("Clean build dir: %s\n", build)
	if _, err := w.log.Run(ctx, []string{"make", "clean"}, runlog.Options{Dir: build, Check: true}); err != nil {
		return err
	}
	w.printer.Printf("Clean prefix dir: %s\n", prefix)
	if err := os.RemoveAll(prefix); err != nil {
		w.printer.Printf("Failed to remove %s: %v\n", prefix, err)
	} else {
		w.printer.Printf("Binary dir %s deleted\n", prefix)
	}
	w.printer.Println("Clean finished")
	return nil
}
