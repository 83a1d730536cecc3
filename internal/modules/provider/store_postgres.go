// README: Provider directory backed by PostgreSQL.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medbid/internal/types"
)

type PGDirectory struct {
	db *pgxpool.Pool
}

func NewPGDirectory(db *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{db: db}
}

const providerColumns = `id, name, category, region, lat, lng, capabilities, delivers,
       avg_turnaround_hours, rating, rating_count, sla_compliance, quality_grade,
       active, accepting_orders, capacity_current, capacity_max, price_level`

func (s *PGDirectory) Upsert(ctx context.Context, p *Provider) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO providers (`+providerColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            category = EXCLUDED.category,
            region = EXCLUDED.region,
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            capabilities = EXCLUDED.capabilities,
            delivers = EXCLUDED.delivers,
            avg_turnaround_hours = EXCLUDED.avg_turnaround_hours,
            rating = EXCLUDED.rating,
            rating_count = EXCLUDED.rating_count,
            sla_compliance = EXCLUDED.sla_compliance,
            quality_grade = EXCLUDED.quality_grade,
            active = EXCLUDED.active,
            accepting_orders = EXCLUDED.accepting_orders,
            capacity_current = EXCLUDED.capacity_current,
            capacity_max = EXCLUDED.capacity_max,
            price_level = EXCLUDED.price_level`,
		string(p.ID), p.Name, string(p.Category), p.Region, p.Location.Lat, p.Location.Lng,
		p.Capabilities, p.Delivers, p.AvgTurnaroundHours, p.Rating, p.RatingCount,
		p.SLACompliance, p.QualityGrade, p.Active, p.AcceptingOrders,
		p.CapacityCurrent, p.CapacityMax, p.PriceLevel,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", p.ID, err)
	}
	return nil
}

func (s *PGDirectory) Get(ctx context.Context, id types.ID) (*Provider, error) {
	row := s.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, string(id))
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", id, err)
	}
	return p, nil
}

func (s *PGDirectory) Query(ctx context.Context, q Query) ([]*Provider, error) {
	var (
		where []string
		args  []any
	)
	if q.Category != "" {
		args = append(args, string(q.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.Region != "" {
		args = append(args, q.Region)
		where = append(where, fmt.Sprintf("region = $%d", len(args)))
	}
	if len(q.IDs) > 0 {
		ids := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = string(id)
		}
		args = append(args, ids)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	sql := `SELECT ` + providerColumns + ` FROM providers`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY id"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		// Distance is filtered here; the geo index narrows by IDs upstream when configured.
		if !q.matches(p) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var id, category string
	err := row.Scan(
		&id, &p.Name, &category, &p.Region, &p.Location.Lat, &p.Location.Lng,
		&p.Capabilities, &p.Delivers, &p.AvgTurnaroundHours, &p.Rating, &p.RatingCount,
		&p.SLACompliance, &p.QualityGrade, &p.Active, &p.AcceptingOrders,
		&p.CapacityCurrent, &p.CapacityMax, &p.PriceLevel,
	)
	if err != nil {
		return nil, err
	}
	p.ID = types.ID(id)
	p.Category = types.Category(category)
	return &p, nil
}
