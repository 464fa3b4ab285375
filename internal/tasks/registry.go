package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Operation is a background-eligible unit of work. It takes no arguments:
// everything it needs comes from the state store, and everything it produces
// goes back there or to files.
type Operation func(ctx context.Context) error

// Definition describes a registered operation.
type Definition struct {
	Name     string
	Module   string
	Function string
	Display  string
	Run      Operation
}

// Registry maps operation names such as "azure.appinsights_query" to
// implementations. It replaces resolving code by module path at run time.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Definition)}
}

// Register adds an operation. An empty display name is derived from the
// function half of the name.
func (r *Registry) Register(name, display string, op Operation) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("register operation: name is required")
	}
	if op == nil {
		return fmt.Errorf("register operation %s: nil function", name)
	}
	module, function := SplitName(name)
	if strings.TrimSpace(display) == "" {
		display = DisplayName(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("register operation %s: already registered", name)
	}
	r.ops[name] = Definition{Name: name, Module: module, Function: function, Display: display, Run: op}
	return nil
}

// MustRegister is Register for package wiring that cannot fail at run time.
func (r *Registry) MustRegister(name, display string, op Operation) {
	if err := r.Register(name, display, op); err != nil {
		panic(err)
	}
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.ops[strings.TrimSpace(name)]
	return def, ok
}

// Resolve is Lookup that returns ErrUnknownOperation.
func (r *Registry) Resolve(name string) (Definition, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return def, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.ops[name])
	}
	return defs
}

// SplitName splits "azure.appinsights_query" into "azure" and
// "appinsights_query". A name without a dot has an empty module.
func SplitName(name string) (module, function string) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}

// DisplayName renders a human label from an operation name, e.g.
// "azure.pipeline_poll" becomes "Pipeline Poll".
func DisplayName(name string) string {
	_, function := SplitName(name)
	words := strings.FieldsFunc(function, func(r rune) bool { return r == '_' || r == '-' })
	if len(words) == 0 {
		return name
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}
