package adapters

import (
	"sort"
	"sync"

	"github.com/valetiq/valet/pkg/schema"
)

// registry is the concrete thread-safe Registry implementation.
type registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() Registry {
	return &registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry. Returns error on duplicate type.
func (r *registry) Register(a Adapter) error {
	if a == nil {
		return schema.NewError(schema.ErrCodeValidation, "adapter is nil")
	}
	stepType := a.Type()
	if stepType == "" {
		return schema.NewError(schema.ErrCodeValidation, "adapter type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[stepType]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "adapter %q already registered", stepType)
	}

	r.adapters[stepType] = a
	return nil
}

// Get retrieves an adapter by step type.
func (r *registry) Get(stepType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[stepType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownStepType, "adapter %q not registered", stepType)
	}
	return a, nil
}

// Has checks if an adapter is registered for a step type.
func (r *registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[stepType]
	return ok
}

// Types returns all registered step types, sorted.
func (r *registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
