// Package modules hosts the reconnaissance modules and the runner that executes
// them on behalf of the worker pool.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// ProgressFunc reports the share of a module's own work done, in [0,1].
type ProgressFunc func(fraction float64)

// Module is one pluggable reconnaissance step.
type Module interface {
	Name() string
	// Blocking modules fail the whole job when they fail.
	Blocking() bool
	// Active modules touch the target directly and require opt-in on the request.
	Active() bool
	Execute(ctx context.Context, req model.JobRequest, progress ProgressFunc) ([]model.Finding, error)
}

// Error lets a module choose the error kind recorded for its failure.
type Error struct {
	Kind model.ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrDuplicateModule is returned when registering a name twice.
var ErrDuplicateModule = errors.New("module already registered")

// Registry maps module names to implementations.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry builds a registry holding mods.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds m under its name.
func (r *Registry) Register(m Module) error {
	if m == nil || m.Name() == "" {
		return errors.New("module name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name())
	}
	r.modules[m.Name()] = m
	return nil
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names lists registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
