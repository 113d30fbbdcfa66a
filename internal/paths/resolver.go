// Package paths maps locations under the lab root onto mirrored locations
// under the variable-data root and the per-process log root.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Prep selects the side effects applied to a mapped path, in declaration order.
type Prep uint8

const (
	// Remove deletes whatever exists at the target. Absence is not an error.
	Remove Prep = 1 << iota
	// MakeParent creates the target's parent directory.
	MakeParent
	// MakeDir creates the target itself as a directory.
	MakeDir
)

// Resolver is bound to one reference directory. It is read-only after
// construction apart from the directories it creates on request.
type Resolver struct {
	dir    string
	labDir string
	varDir string
	logDir string
}

// NewResolver binds dir to the given roots. Relative paths are made absolute
// against the working directory.
func NewResolver(dir, labDir, varDir, logDir string) (*Resolver, error) {
	abs := make([]string, 0, 4)
	for _, p := range []string{dir, labDir, varDir, logDir} {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		abs = append(abs, a)
	}
	return &Resolver{dir: abs[0], labDir: abs[1], varDir: abs[2], logDir: abs[3]}, nil
}

func (r *Resolver) Dir() string    { return r.dir }
func (r *Resolver) LabDir() string { return r.labDir }
func (r *Resolver) VarDir() string { return r.varDir }
func (r *Resolver) LogDir() string { return r.logDir }

// Path returns the reference directory joined with segments.
func (r *Resolver) Path(segments ...string) string {
	return filepath.Join(append([]string{r.dir}, segments...)...)
}

// Var returns the isomorphic path of Path(segments...) under the
// variable-data root.
func (r *Resolver) Var(prep Prep, segments ...string) (string, error) {
	return r.mirror(r.varDir, prep, segments)
}

// Log returns the isomorphic path of Path(segments...) under the log root of
// the current process.
func (r *Resolver) Log(prep Prep, segments ...string) (string, error) {
	return r.mirror(r.logDir, prep, segments)
}

func (r *Resolver) mirror(root string, prep Prep, segments []string) (string, error) {
	rel, err := filepath.Rel(r.labDir, r.Path(segments...))
	if err != nil {
		return "", fmt.Errorf("paths: %s is not relative to lab root %s: %w", r.Path(segments...), r.labDir, err)
	}
	target := filepath.Join(root, rel)

	if prep&Remove != 0 {
		_ = os.RemoveAll(target)
	}
	if prep&MakeParent != 0 {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("paths: create parent of %s: %w", target, err)
		}
	}
	if prep&MakeDir != 0 {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return "", fmt.Errorf("paths: create %s: %w", target, err)
		}
	}
	return target, nil
}
