package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrWorkflowExists  = errors.New("workflow already exists")
	ErrWorkflowNil     = errors.New("workflow constructor is nil")
	ErrInvalidMetadata = errors.New("invalid workflow metadata")
	ErrInvalidStep     = errors.New("invalid workflow step")
	ErrNotSettable     = errors.New("workflow accepts no settings")
	ErrUnknownSetting  = errors.New("unknown setting")
)

// Registry stores workflow definitions by stable identifier.
type Registry struct {
	items map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Definition)}
}

// reserved holds labctl subcommands, which workflow ids must not shadow.
var reserved = map[string]bool{"list": true, "run": true, "help": true}

// ValidateMetadata checks required metadata fields and that the id can be
// typed as a labctl argument.
func ValidateMetadata(meta Metadata) error {
	if strings.TrimSpace(meta.Name) == "" || strings.TrimSpace(meta.Description) == "" {
		return fmt.Errorf("%w: id, name, and description are required", ErrInvalidMetadata)
	}
	if err := checkWord("id", meta.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if reserved[meta.ID] {
		return fmt.Errorf("%w: id %q is a labctl command", ErrInvalidMetadata, meta.ID)
	}
	return nil
}

// ValidateSteps checks that step names are usable as positional arguments
// and unique within a workflow.
func ValidateSteps(steps []StepInfo) error {
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		if err := checkWord("step name", step.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStep, err)
		}
		if seen[step.Name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidStep, step.Name)
		}
		seen[step.Name] = true
	}
	return nil
}

func (r *Registry) Register(def Definition) error {
	if def.New == nil {
		return ErrWorkflowNil
	}
	if err := ValidateMetadata(def.Metadata); err != nil {
		return err
	}
	if err := ValidateSteps(def.Steps); err != nil {
		return fmt.Errorf("%s: %w", def.Metadata.ID, err)
	}
	if _, ok := r.items[def.Metadata.ID]; ok {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, def.Metadata.ID)
	}
	r.items[def.Metadata.ID] = def
	return nil
}

// MustRegister is Register for package-level wiring; it panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry) Resolve(id string) (Definition, bool) {
	def, ok := r.items[id]
	return def, ok
}

// ListMetadata returns deterministic metadata ordering by id.
func (r *Registry) ListMetadata() []Metadata {
	list := make([]Metadata, 0, len(r.items))
	for _, def := range r.items {
		list = append(list, def.Metadata)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// checkWord accepts a lowercase letter followed by lowercase letters,
// digits, '-' or '_', not ending in a separator. Such words never parse as
// flags and are safe as path segments.
func checkWord(what, word string) error {
	if word == "" {
		return fmt.Errorf("%s is empty", what)
	}
	if word[0] < 'a' || word[0] > 'z' {
		return fmt.Errorf("%s %q must start with a lowercase letter", what, word)
	}
	for _, c := range word {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("%s %q contains %q", what, word, c)
		}
	}
	if last := word[len(word)-1]; last == '-' || last == '_' {
		return fmt.Errorf("%s %q ends with a separator", what, word)
	}
	return nil
}
