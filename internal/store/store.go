// Package store keeps the local registry of terminals this user has
// attached, so they can be reattached by caption or handle.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry describes one remote terminal.
type Entry struct {
	Handle       string    `yaml:"handle" json:"handle"`
	Caption      string    `yaml:"caption" json:"caption"`
	Title        string    `yaml:"title,omitempty" json:"title,omitempty"`
	Sequence     int       `yaml:"sequence" json:"sequence"`
	Endpoint     string    `yaml:"endpoint" json:"endpoint"`
	LastAttached time.Time `yaml:"last_attached" json:"last_attached"`
}

// Registry is the yaml-backed list of known terminals.
type Registry struct {
	path      string
	Terminals []Entry `yaml:"terminals"`
}

// Load reads the registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read terminal registry: %w", err)
	}

	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse terminal registry %s: %w", path, err)
	}
	return r, nil
}

// Save writes the registry atomically.
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode terminal registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".terminals-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write terminal registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write terminal registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace terminal registry: %w", err)
	}
	return nil
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// NextSequence returns one more than the highest sequence in use.
func (r *Registry) NextSequence() int {
	next := 1
	for _, e := range r.Terminals {
		if e.Sequence >= next {
			next = e.Sequence + 1
		}
	}
	return next
}

// Find looks a terminal up by handle, then by caption.
func (r *Registry) Find(ref string) (Entry, bool) {
	if i := r.index(ref); i >= 0 {
		return r.Terminals[i], true
	}
	return Entry{}, false
}

// Upsert adds e or replaces the entry with the same handle.
func (r *Registry) Upsert(e Entry) {
	for i := range r.Terminals {
		if r.Terminals[i].Handle == e.Handle {
			r.Terminals[i] = e
			return
		}
	}
	r.Terminals = append(r.Terminals, e)
}

// Remove deletes the terminal matching ref and reports whether one existed.
func (r *Registry) Remove(ref string) (Entry, bool) {
	i := r.index(ref)
	if i < 0 {
		return Entry{}, false
	}
	e := r.Terminals[i]
	r.Terminals = slices.Delete(r.Terminals, i, i+1)
	return e, true
}

// List returns the terminals ordered by sequence.
func (r *Registry) List() []Entry {
	entries := slices.Clone(r.Terminals)
	slices.SortFunc(entries, func(a, b Entry) int {
		return a.Sequence - b.Sequence
	})
	return entries
}

func (r *Registry) index(ref string) int {
	if ref == "" {
		return -1
	}
	if i := slices.IndexFunc(r.Terminals, func(e Entry) bool { return e.Handle == ref }); i >= 0 {
		return i
	}
	return slices.IndexFunc(r.Terminals, func(e Entry) bool { return e.Caption == ref })
}
