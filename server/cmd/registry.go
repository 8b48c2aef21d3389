package cmd

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry maps sub-command names and aliases to their Spec. Lookups read an
// immutable snapshot and never block, while registrations are serialised and
// publish a new snapshot. A zero Registry is ready to use.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[registrySnapshot]
}

type registrySnapshot struct {
	tokens map[string]*Spec
	order  []*Spec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) load() *registrySnapshot {
	if s := r.snap.Load(); s != nil {
		return s
	}
	return &registrySnapshot{}
}

// Register adds a Spec to the Registry. ErrDuplicateName is returned if the
// name or an alias of the Spec is already taken, ErrInvalidArity if its
// argument bounds are inconsistent and ErrInvalidSpec if it has no name or
// handler.
func (r *Registry) Register(spec Spec) error {
	s, err := spec.validate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	for _, token := range s.Tokens() {
		if existing, ok := old.tokens[token]; ok {
			return fmt.Errorf("%w: %q is taken by %s", ErrDuplicateName, token, existing.Name)
		}
	}

	next := &registrySnapshot{
		tokens: make(map[string]*Spec, len(old.tokens)+1+len(s.Aliases)),
		order:  make([]*Spec, 0, len(old.order)+1),
	}
	for token, existing := range old.tokens {
		next.tokens[token] = existing
	}
	next.order = append(next.order, old.order...)

	stored := &s
	for _, token := range s.Tokens() {
		next.tokens[token] = stored
	}
	next.order = append(next.order, stored)
	r.snap.Store(next)
	return nil
}

// MustRegister registers all specs passed and panics if one of them cannot be
// registered. It is meant for static command tables set up at start-up.
func (r *Registry) MustRegister(specs ...Spec) {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(fmt.Sprintf("cmd: register %q: %v", spec.Name, err))
		}
	}
}

// Unregister removes the Spec with the primary name passed together with all
// of its aliases. It returns false if no such Spec was registered. Aliases are
// not accepted as name.
func (r *Registry) Unregister(name string) bool {
	name = normalise(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	target, ok := old.tokens[name]
	if !ok || target.Name != name {
		return false
	}
	next := &registrySnapshot{
		tokens: make(map[string]*Spec, len(old.tokens)),
		order:  make([]*Spec, 0, len(old.order)),
	}
	for token, existing := range old.tokens {
		if existing != target {
			next.tokens[token] = existing
		}
	}
	for _, existing := range old.order {
		if existing != target {
			next.order = append(next.order, existing)
		}
	}
	r.snap.Store(next)
	return true
}

// Resolve looks up a Spec by its name or one of its aliases, ignoring case.
func (r *Registry) Resolve(token string) (Spec, bool) {
	s, ok := r.load().tokens[normalise(token)]
	if !ok {
		return Spec{}, false
	}
	return s.clone(), true
}

// ListVisible returns every registered Spec in registration order, leaving
// out those with a Permission that allowed rejects. Aliases are not listed. A
// nil allowed only lists specs without a Permission.
func (r *Registry) ListVisible(allowed PermissionFunc) []Spec {
	snap := r.load()
	specs := make([]Spec, 0, len(snap.order))
	for _, s := range snap.order {
		if visible(*s, allowed) {
			specs = append(specs, s.clone())
		}
	}
	return specs
}

// Len returns the number of registered specs, aliases not counted.
func (r *Registry) Len() int {
	return len(r.load().order)
}

// clone returns a copy of the stored Spec that shares no slices with it.
func (s *Spec) clone() Spec {
	c := *s
	c.Aliases = slices.Clone(s.Aliases)
	return c
}

func visible(s Spec, allowed PermissionFunc) bool {
	if s.Permission == "" {
		return true
	}
	return allowed != nil && allowed(s.Permission)
}
