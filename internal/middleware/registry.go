package middleware

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownMiddleware   = errors.New("unknown middleware")
	ErrDuplicateMiddleware = errors.New("middleware already registered")
)

// Registry maps names to middleware so routes can refer to them from
// configuration. It is filled at startup; lookups after that are read-only.
type Registry struct {
	mutex   sync.RWMutex
	entries map[string]Middleware
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Middleware)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a before/after pair under name. Either hook may be nil.
func (r *Registry) Register(name string, before BeforeFunc, after AfterFunc) error {
	return r.Use(name, Hooks{Name: name, Before: before, After: after}.Middleware())
}

func (r *Registry) Use(name string, mw Middleware) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownMiddleware)
	}
	if mw == nil {
		return fmt.Errorf("middleware %q is nil", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMiddleware, key)
	}
	r.entries[key] = mw
	return nil
}

// Resolve looks every name up and composes them in the given order.
func (r *Registry) Resolve(names ...string) (Middleware, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	mws := make([]Middleware, 0, len(names))
	for _, name := range names {
		mw, ok := r.entries[normalize(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMiddleware, name)
		}
		mws = append(mws, mw)
	}
	return Chain(mws...), nil
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
