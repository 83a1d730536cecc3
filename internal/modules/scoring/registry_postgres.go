// README: Scoring config registry backed by PostgreSQL.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medbid/internal/types"
)

type PGRegistry struct {
	db *pgxpool.Pool
}

func NewPGRegistry(db *pgxpool.Pool) *PGRegistry {
	return &PGRegistry{db: db}
}

const configColumns = `c.name, c.version, c.weight_price, c.weight_speed, c.weight_quality, c.applies_to,
       c.min_bids_required, c.max_bids_considered, c.max_wait_seconds, c.created_at,
       EXISTS (SELECT 1 FROM scoring_active a WHERE a.name = c.name AND a.version = c.version)`

func (r *PGRegistry) Create(ctx context.Context, c Config) (Config, error) {
	c.Version = 1
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	c.CreatedAt = time.Now().UTC()
	c.Active = false
	if err := insertConfig(ctx, r.db, c); err != nil {
		if isUniqueViolation(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigExists, c.Name)
		}
		return Config{}, err
	}
	return c, nil
}

func (r *PGRegistry) Update(ctx context.Context, name string, c Config) (Config, error) {
	c.Name = name
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Config{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes version allocation per name until the tx ends.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "scoring_config:"+name); err != nil {
		return Config{}, fmt.Errorf("lock config %s: %w", name, err)
	}
	var latest *int
	if err := tx.QueryRow(ctx, `SELECT MAX(version) FROM scoring_configs WHERE name = $1`, name).Scan(&latest); err != nil {
		return Config{}, fmt.Errorf("latest version: %w", err)
	}
	if latest == nil {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c.Version = *latest + 1
	c.CreatedAt = time.Now().UTC()
	c.Active = false
	if err := insertConfig(ctx, tx, c); err != nil {
		if isUniqueViolation(err) {
			return Config{}, fmt.Errorf("%w: %s v%d", ErrConfigExists, name, c.Version)
		}
		return Config{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Config{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (r *PGRegistry) Activate(ctx context.Context, name string, version int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := getConfig(ctx, tx, name, version)
	if err != nil {
		return err
	}
	for _, cat := range c.AppliesTo.Categories() {
		if _, err := tx.Exec(ctx, `
            INSERT INTO scoring_active (category, name, version) VALUES ($1, $2, $3)
            ON CONFLICT (category) DO UPDATE SET name = EXCLUDED.name, version = EXCLUDED.version`,
			string(cat), name, version,
		); err != nil {
			return fmt.Errorf("activate %s v%d: %w", name, version, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PGRegistry) Active(ctx context.Context, category types.Category) (Config, error) {
	row := r.db.QueryRow(ctx, `
        SELECT `+configColumns+`
        FROM scoring_active s
        JOIN scoring_configs c ON c.name = s.name AND c.version = s.version
        WHERE s.category = $1`, string(category))
	c, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("active config for %s: %w", category, err)
	}
	return c, nil
}

func (r *PGRegistry) Get(ctx context.Context, name string, version int) (Config, error) {
	return getConfig(ctx, r.db, name, version)
}

func (r *PGRegistry) Versions(ctx context.Context, name string) ([]Config, error) {
	rows, err := r.db.Query(ctx, `SELECT `+configColumns+` FROM scoring_configs c WHERE c.name = $1 ORDER BY c.version`, name)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()
	var out []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return out, nil
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func insertConfig(ctx context.Context, q execQuerier, c Config) error {
	_, err := q.Exec(ctx, `
        INSERT INTO scoring_configs (
            name, version, weight_price, weight_speed, weight_quality, applies_to,
            min_bids_required, max_bids_considered, max_wait_seconds, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.Name, c.Version, c.Weights.Price, c.Weights.Speed, c.Weights.Quality, string(c.AppliesTo),
		c.MinBidsRequired, c.MaxBidsConsidered, int64(c.MaxWait/time.Second), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert config %s v%d: %w", c.Name, c.Version, err)
	}
	return nil
}

func getConfig(ctx context.Context, q execQuerier, name string, version int) (Config, error) {
	c, err := scanConfig(q.QueryRow(ctx, `SELECT `+configColumns+` FROM scoring_configs c WHERE c.name = $1 AND c.version = $2`, name, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
	}
	if err != nil {
		return Config{}, fmt.Errorf("get config %s v%d: %w", name, version, err)
	}
	return c, nil
}

func scanConfig(row pgx.Row) (Config, error) {
	var (
		c         Config
		appliesTo string
		waitSecs  int64
	)
	err := row.Scan(
		&c.Name, &c.Version, &c.Weights.Price, &c.Weights.Speed, &c.Weights.Quality, &appliesTo,
		&c.MinBidsRequired, &c.MaxBidsConsidered, &waitSecs, &c.CreatedAt, &c.Active,
	)
	if err != nil {
		return Config{}, err
	}
	c.AppliesTo = Applicability(appliesTo)
	c.MaxWait = time.Duration(waitSecs) * time.Second
	return c, nil
}
