// README: Read-only provider directory and its in-memory implementation.
package provider

import (
	"context"
	"sort"
	"sync"

	"medbid/internal/types"
)

// Query narrows the directory; zero fields do not filter.
type Query struct {
	Category types.Category
	Region   string
	Near     *types.Point
	RadiusKm float64
	IDs      []types.ID
}

type Directory interface {
	Get(ctx context.Context, id types.ID) (*Provider, error)
	Query(ctx context.Context, q Query) ([]*Provider, error)
}

// MemoryDirectory is a Directory kept in process; Upsert is the admin path.
type MemoryDirectory struct {
	mu        sync.RWMutex
	providers map[types.ID]*Provider
}

func NewMemoryDirectory(ps ...*Provider) *MemoryDirectory {
	d := &MemoryDirectory{providers: make(map[types.ID]*Provider, len(ps))}
	for _, p := range ps {
		d.providers[p.ID] = p.Clone()
	}
	return d
}

func (d *MemoryDirectory) Upsert(_ context.Context, p *Provider) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.ID] = p.Clone()
	return nil
}

// Update applies fn to the stored provider under the directory lock.
func (d *MemoryDirectory) Update(_ context.Context, id types.ID, fn func(p *Provider)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[id]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}

func (d *MemoryDirectory) Get(_ context.Context, id types.ID) (*Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (d *MemoryDirectory) Query(_ context.Context, q Query) ([]*Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids map[types.ID]struct{}
	if len(q.IDs) > 0 {
		ids = make(map[types.ID]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = struct{}{}
		}
	}
	out := make([]*Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if ids != nil {
			if _, ok := ids[p.ID]; !ok {
				continue
			}
		}
		if !q.matches(p) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q Query) matches(p *Provider) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if q.Region != "" && p.Region != q.Region {
		return false
	}
	if q.Near != nil && q.RadiusKm > 0 {
		if p.Location.IsZero() || types.DistanceKm(*q.Near, p.Location) > q.RadiusKm {
			return false
		}
	}
	return true
}
