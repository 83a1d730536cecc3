// README: Provider registration: validates, persists and keeps the geo index in step.
package provider

import (
	"context"
	"errors"
	"fmt"

	"medbid/internal/types"
)

var ErrInvalidProvider = errors.New("invalid provider")

// Store is a Directory that also accepts writes.
type Store interface {
	Directory
	Upsert(ctx context.Context, p *Provider) error
}

type GeoIndexer interface {
	Add(ctx context.Context, p *Provider) error
	Remove(ctx context.Context, category types.Category, id types.ID) error
}

type Catalog struct {
	store Store
	geo   GeoIndexer
}

// NewCatalog wires a store with an optional geo index.
func NewCatalog(store Store, geo GeoIndexer) *Catalog {
	return &Catalog{store: store, geo: geo}
}

func (c *Catalog) Get(ctx context.Context, id types.ID) (*Provider, error) {
	return c.store.Get(ctx, id)
}

func (c *Catalog) Register(ctx context.Context, p *Provider) error {
	if err := validate(p); err != nil {
		return err
	}
	prev, err := c.store.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := c.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	if c.geo == nil {
		return nil
	}
	if prev != nil && prev.Category != p.Category {
		if err := c.geo.Remove(ctx, prev.Category, p.ID); err != nil {
			return fmt.Errorf("unindex provider: %w", err)
		}
	}
	if !p.Active || p.Location.IsZero() {
		if err := c.geo.Remove(ctx, p.Category, p.ID); err != nil {
			return fmt.Errorf("unindex provider: %w", err)
		}
		return nil
	}
	if err := c.geo.Add(ctx, p); err != nil {
		return fmt.Errorf("index provider: %w", err)
	}
	return nil
}

func validate(p *Provider) error {
	switch {
	case p == nil || p.ID == "":
		return fmt.Errorf("%w: id required", ErrInvalidProvider)
	case !p.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidProvider, p.Category)
	case p.Rating < 0 || p.Rating > 5:
		return fmt.Errorf("%w: rating must be within 0..5", ErrInvalidProvider)
	case p.SLACompliance < 0 || p.SLACompliance > 100:
		return fmt.Errorf("%w: sla compliance must be within 0..100", ErrInvalidProvider)
	case p.CapacityMax < 0 || p.CapacityCurrent < 0:
		return fmt.Errorf("%w: negative capacity", ErrInvalidProvider)
	}
	return nil
}
