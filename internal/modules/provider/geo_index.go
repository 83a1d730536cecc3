// README: Provider geo index backed by Redis GEO; narrows directory queries by radius.
package provider

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medbid/internal/types"
)

const providerGeoKeyPrefix = "medbid:providers:%s"

type RedisGeoIndex struct {
	redis *redis.Client
}

func NewRedisGeoIndex(client *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{redis: client}
}

func (g *RedisGeoIndex) Add(ctx context.Context, p *Provider) error {
	if p.Location.IsZero() {
		return nil
	}
	return g.redis.GeoAdd(ctx, geoKey(p.Category), &redis.GeoLocation{
		Name:      string(p.ID),
		Longitude: p.Location.Lng,
		Latitude:  p.Location.Lat,
	}).Err()
}

func (g *RedisGeoIndex) Remove(ctx context.Context, category types.Category, id types.ID) error {
	return g.redis.ZRem(ctx, geoKey(category), string(id)).Err()
}

// Nearby returns provider IDs within radiusKm, closest first.
func (g *RedisGeoIndex) Nearby(ctx context.Context, category types.Category, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := g.redis.GeoSearch(ctx, geoKey(category), &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func geoKey(category types.Category) string {
	return fmt.Sprintf(providerGeoKeyPrefix, string(category))
}

// GeoLookup is the subset of RedisGeoIndex the indexed directory needs.
type GeoLookup interface {
	Nearby(ctx context.Context, category types.Category, p types.Point, radiusKm float64) ([]types.ID, error)
}

// IndexedDirectory answers radius queries through a geo index and
// everything else through the wrapped directory.
type IndexedDirectory struct {
	Directory
	geo GeoLookup
}

func NewIndexedDirectory(dir Directory, geo GeoLookup) *IndexedDirectory {
	return &IndexedDirectory{Directory: dir, geo: geo}
}

func (d *IndexedDirectory) Query(ctx context.Context, q Query) ([]*Provider, error) {
	if q.Near == nil || q.RadiusKm <= 0 || q.Category == "" || len(q.IDs) > 0 {
		return d.Directory.Query(ctx, q)
	}
	ids, err := d.geo.Nearby(ctx, q.Category, *q.Near, q.RadiusKm)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	q.IDs = ids
	return d.Directory.Query(ctx, q)
}
