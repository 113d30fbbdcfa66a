// Package envcache persists selected configuration fields across lab runs.
//
// Fields are registered explicitly with Bind. Load overwrites bound fields
// with values from the cache file; Save reads them back and rewrites the
// whole file. There is no versioning: values cached under names that are no
// longer bound stay in the file until it is deleted.
package envcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/danmuck/labctl/internal/codec"
)

// FileName is the cache file name inside the variable-data root.
const FileName = ".cache"

var (
	ErrInvalidBinding = errors.New("envcache: invalid binding")
	ErrBindingExists  = errors.New("envcache: binding already exists")
)

type table map[string]map[string]codec.RawMessage

// Registry is the cache table plus the live fields bound to it. It is not
// safe for use by more than one process at a time.
type Registry struct {
	mu       sync.Mutex
	path     string
	bindings map[string]map[string]any
	table    table
}

func NewRegistry(path string) *Registry {
	return &Registry{
		path:     path,
		bindings: make(map[string]map[string]any),
		table:    make(table),
	}
}

// Path of the cache file.
func (r *Registry) Path() string {
	return r.path
}

// Bind registers *ptr as the cacheable attribute attr of owner. When the
// table already holds a value for it (Load ran first), that value is restored
// into *ptr; otherwise the current value is recorded as the declared default.
func (r *Registry) Bind(owner, attr string, ptr any) error {
	if owner == "" || attr == "" {
		return fmt.Errorf("%w: owner and attribute are required", ErrInvalidBinding)
	}
	v := reflect.ValueOf(ptr)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: %s.%s needs a non-nil pointer, got %T", ErrInvalidBinding, owner, attr, ptr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bindings[owner][attr]; ok {
		return fmt.Errorf("%w: %s.%s", ErrBindingExists, owner, attr)
	}
	if raw, ok := r.table[owner][attr]; ok {
		val, err := decode(raw, v.Elem().Type())
		if err != nil {
			return fmt.Errorf("envcache: restore %s.%s: %w", owner, attr, err)
		}
		v.Elem().Set(val)
	} else {
		raw, err := codec.Marshal(v.Elem().Interface())
		if err != nil {
			return fmt.Errorf("envcache: encode default %s.%s: %w", owner, attr, err)
		}
		r.entry(owner)[attr] = raw
	}
	if r.bindings[owner] == nil {
		r.bindings[owner] = make(map[string]any)
	}
	r.bindings[owner][attr] = ptr
	return nil
}

// Load restores bound fields from the cache file. A missing file is a cold
// start and leaves every field at its declared default. Nothing is assigned
// unless every bound value decodes.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("envcache: read %s: %w", r.path, err)
	}

	var stored table
	if err := codec.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("envcache: decode %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type restore struct {
		field reflect.Value
		val   reflect.Value
	}
	var pending []restore
	for owner, attrs := range stored {
		for attr, raw := range attrs {
			ptr, ok := r.bindings[owner][attr]
			if !ok {
				continue
			}
			field := reflect.ValueOf(ptr).Elem()
			val, err := decode(raw, field.Type())
			if err != nil {
				return fmt.Errorf("envcache: restore %s.%s: %w", owner, attr, err)
			}
			pending = append(pending, restore{field: field, val: val})
		}
	}

	for owner, attrs := range stored {
		entry := r.entry(owner)
		for attr, raw := range attrs {
			entry[attr] = raw
		}
	}
	for _, p := range pending {
		p.field.Set(p.val)
	}
	return nil
}

// decode unmarshals raw into a fresh value of type t.
func decode(raw codec.RawMessage, t reflect.Type) (reflect.Value, error) {
	tmp := reflect.New(t)
	if err := codec.Unmarshal(raw, tmp.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return tmp.Elem(), nil
}

// Save captures the live value of every bound field and writes the whole
// table, including entries nobody bound in this process.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for owner, attrs := range r.bindings {
		entry := r.entry(owner)
		for attr, ptr := range attrs {
			raw, err := codec.Marshal(reflect.ValueOf(ptr).Elem().Interface())
			if err != nil {
				return fmt.Errorf("envcache: encode %s.%s: %w", owner, attr, err)
			}
			entry[attr] = raw
		}
	}

	data, err := codec.Marshal(r.table)
	if err != nil {
		return fmt.Errorf("envcache: encode table: %w", err)
	}
	return writeFileAtomic(r.path, data)
}

// Owners lists the owners present in the table.
func (r *Registry) Owners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.table))
	for owner := range r.table {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Cached reports whether the table holds a value for owner.attr.
func (r *Registry) Cached(owner, attr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.table[owner][attr]
	return ok
}

func (r *Registry) entry(owner string) map[string]codec.RawMessage {
	entry, ok := r.table[owner]
	if !ok {
		entry = make(map[string]codec.RawMessage)
		r.table[owner] = entry
	}
	return entry
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("envcache: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("envcache: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("envcache: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("envcache: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("envcache: replace %s: %w", path, err)
	}
	return nil
}
