// README: Versioned scoring config registry; versions are immutable, active is a per-category pointer.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medbid/internal/types"
)

type Registry interface {
	Create(ctx context.Context, c Config) (Config, error)
	Update(ctx context.Context, name string, c Config) (Config, error)
	Activate(ctx context.Context, name string, version int) error
	Active(ctx context.Context, category types.Category) (Config, error)
	Get(ctx context.Context, name string, version int) (Config, error)
	Versions(ctx context.Context, name string) ([]Config, error)
}

type pointer struct {
	name    string
	version int
}

type MemoryRegistry struct {
	mu       sync.RWMutex
	versions map[string][]Config
	active   map[types.Category]pointer
	now      func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		versions: make(map[string][]Config),
		active:   make(map[types.Category]pointer),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRegistry) Create(_ context.Context, c Config) (Config, error) {
	c.Version = 1
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[c.Name]; ok {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigExists, c.Name)
	}
	c.Active = false
	c.CreatedAt = r.now()
	r.versions[c.Name] = []Config{c}
	return c, nil
}

// Update stores c as the next version of name; existing versions never change.
func (r *MemoryRegistry) Update(_ context.Context, name string, c Config) (Config, error) {
	c.Name = name
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.versions[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c.Version = vs[len(vs)-1].Version + 1
	c.Active = false
	c.CreatedAt = r.now()
	r.versions[name] = append(vs, c)
	return c, nil
}

// Activate points every category the version applies to at it, in one step.
func (r *MemoryRegistry) Activate(_ context.Context, name string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.lookup(name, version)
	if !ok {
		return fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
	}
	for _, cat := range c.AppliesTo.Categories() {
		r.active[cat] = pointer{name: name, version: version}
	}
	return nil
}

func (r *MemoryRegistry) Active(_ context.Context, category types.Category) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.active[category]
	if !ok {
		return DefaultConfig(), nil
	}
	c, _ := r.lookup(p.name, p.version)
	c.Active = true
	return c, nil
}

func (r *MemoryRegistry) Get(_ context.Context, name string, version int) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.lookup(name, version)
	if !ok {
		return Config{}, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
	}
	c.Active = r.isActive(c)
	return c, nil
}

func (r *MemoryRegistry) Versions(_ context.Context, name string) ([]Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs, ok := r.versions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := make([]Config, len(vs))
	for i, c := range vs {
		c.Active = r.isActive(c)
		out[i] = c
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *MemoryRegistry) lookup(name string, version int) (Config, bool) {
	for _, c := range r.versions[name] {
		if c.Version == version {
			return c, true
		}
	}
	return Config{}, false
}

func (r *MemoryRegistry) isActive(c Config) bool {
	for _, p := range r.active {
		if p.name == c.Name && p.version == c.Version {
			return true
		}
	}
	return false
}
