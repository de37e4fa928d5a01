package blockdefs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ListOptions configure search and pagination behaviour.
type ListOptions struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

// Source resolves block definitions by id.
type Source interface {
	Get(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context, opt ListOptions) ([]Definition, error)
}

// Registry is a thread-safe in-memory Source. Catalog reloads swap its
// content atomically.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Put validates and stores a definition, replacing one with the same id.
func (r *Registry) Put(def Definition) error {
	def.schema = nil
	if err := def.Validate(); err != nil {
		return fmt.Errorf("validate definition %q: %w: %v", def.ID, ErrInvalidInput, err)
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	return nil
}

// Replace validates all definitions and swaps them in as the full content.
// Nothing changes when any definition is invalid.
func (r *Registry) Replace(defs []Definition) error {
	next := make(map[string]Definition, len(defs))
	now := time.Now().UTC()
	for _, def := range defs {
		def.schema = nil
		if err := def.Validate(); err != nil {
			return fmt.Errorf("validate definition %q: %w: %v", def.ID, ErrInvalidInput, err)
		}
		if _, dup := next[def.ID]; dup {
			return fmt.Errorf("definition %q declared twice: %w", def.ID, ErrInvalidInput)
		}
		if def.UpdatedAt.IsZero() {
			def.UpdatedAt = now
		}
		next[def.ID] = def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = next
	return nil
}

// Delete removes a definition.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[id]; !ok {
		return ErrNotFound
	}
	delete(r.defs, id)
	return nil
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

func (r *Registry) Get(ctx context.Context, id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("block definition %q: %w", id, ErrNotFound)
	}
	clone := def
	return &clone, nil
}

func (r *Registry) List(ctx context.Context, opt ListOptions) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Definition
	search := strings.ToLower(strings.TrimSpace(opt.Search))
	for _, def := range r.defs {
		if opt.Category != "" && def.Category != opt.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(def.Name), search) && !strings.Contains(strings.ToLower(def.ID), search) {
			continue
		}
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	start := opt.Offset
	if start > len(result) {
		return []Definition{}, nil
	}
	end := start + opt.Limit
	if opt.Limit <= 0 || end > len(result) {
		end = len(result)
	}
	return append([]Definition(nil), result[start:end]...), nil
}
