package tools

import (
	"fmt"

	apperrors "github.com/dfirlabs/timesketch-mcp/internal/errors"
)

// Registry is the immutable name → Spec catalog. Built once at startup,
// safe for concurrent reads without locking.
type Registry struct {
	ordered []Spec
	byName  map[string]Spec
}

// NewRegistry builds a registry from the given specs, rejecting duplicate
// names.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		ordered: make([]Spec, 0, len(specs)),
		byName:  make(map[string]Spec, len(specs)),
	}
	for _, spec := range specs {
		if _, exists := r.byName[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", spec.Name)
		}
		if spec.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", spec.Name)
		}
		r.byName[spec.Name] = spec
		r.ordered = append(r.ordered, spec)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for startup paths: a duplicate tool name
// is a programming error, so the process aborts.
func MustNewRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a wire tool name.
func (r *Registry) Lookup(name string) (Spec, error) {
	spec, ok := r.byName[name]
	if !ok {
		return Spec{}, apperrors.New(apperrors.KindUnknownTool,
			fmt.Sprintf("no tool named %q is registered", name), nil)
	}
	return spec, nil
}

// List returns every spec in registration order, for discovery.
func (r *Registry) List() []Spec {
	out := make([]Spec, len(r.ordered))
	copy(out, r.ordered)
	return out
}
