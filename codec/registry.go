package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Factory returns a zero instance of a registered type.
// The instance must be a pointer so fields can be assigned during revival.
type Factory func() Serializable

// Registry maps type ids to factories and holds the namespace allow-list.
// It is populated once at process start and passed to New.
type Registry struct {
	namespaces map[string]struct{}
	types      map[string]Factory
}

// NewRegistry creates a registry allowing the given root namespaces.
func NewRegistry(namespaces ...string) *Registry {
	r := &Registry{
		namespaces: make(map[string]struct{}, len(namespaces)),
		types:      make(map[string]Factory),
	}
	for _, ns := range namespaces {
		r.namespaces[ns] = struct{}{}
	}
	return r
}

// Register adds a type under the id reported by the factory's instance.
// The id must live under an allowed namespace and not already be registered.
func (r *Registry) Register(f Factory) error {
	obj := f()
	if obj == nil {
		return errors.New("factory returned nil")
	}
	id := obj.TypeID()
	if err := r.checkID(id); err != nil {
		return err
	}
	key := typeKey(id)
	if _, ok := r.types[key]; ok {
		return fmt.Errorf("type %s already registered", strings.Join(id, "."))
	}
	r.types[key] = f
	return nil
}

// MustRegister is Register for process-start wiring; it panics on error.
func (r *Registry) MustRegister(fs ...Factory) *Registry {
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Resolve returns a fresh instance for the given type id.
func (r *Registry) Resolve(id []string) (Serializable, error) {
	if err := r.checkID(id); err != nil {
		return nil, invalidNamespace(id, err)
	}
	f, ok := r.types[typeKey(id)]
	if !ok {
		return nil, invalidNamespace(id, errors.New("type not registered"))
	}
	obj := f()
	if !obj.IsSerializable() {
		return nil, invalidNamespace(id, errors.New("type is not serializable"))
	}
	return obj, nil
}

// Namespaces returns the allowed root namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	out := make([]string, 0, len(r.namespaces))
	for ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// checkID rejects ids outside the allow-list and ids that name the
// bare root namespace (a type directly under the root).
func (r *Registry) checkID(id []string) error {
	if len(id) == 0 {
		return errors.New("empty type id")
	}
	if _, ok := r.namespaces[id[0]]; !ok {
		return fmt.Errorf("namespace %q not allowed", id[0])
	}
	if len(id) < 3 {
		return fmt.Errorf("type id %s is directly under the root namespace", strings.Join(id, "."))
	}
	return nil
}

func typeKey(id []string) string {
	return strings.Join(id, "/")
}
