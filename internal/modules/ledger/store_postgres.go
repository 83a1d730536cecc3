// README: Store backed by PostgreSQL: SELECT ... FOR UPDATE per order plus conditional writes.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"medbid/internal/modules/order"
	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

const pgUniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const orderColumns = `id, category, status, status_version, requester, payload, region, lat, lng,
       urgency, assigned_provider_id, total_amount::text, total_currency,
       created_at, status_changed_at, broadcast_at, completed_at`

const bidColumns = `id, order_id, provider_id, amount::text, currency, estimate_window, turnaround_hours,
       note, response_note, valid_until, status, quality, submitted_at, responded_at`

func (s *PGStore) CreateOrder(ctx context.Context, o *order.Order) error {
	requester, err := json.Marshal(o.Requester)
	if err != nil {
		return fmt.Errorf("marshal requester: %w", err)
	}
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO orders (
            id, category, status, status_version, requester, payload, region, lat, lng,
            urgency, created_at, status_changed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID), string(o.Category), string(o.Status), o.StatusVersion, requester, payload,
		o.Region, o.Location.Lat, o.Location.Lng, string(o.Urgency), o.CreatedAt, o.StatusChangedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: order %s already exists", order.ErrConflict, o.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PGStore) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

func getOrder(ctx context.Context, q querier, id types.ID, forUpdate bool) (*order.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	notes, err := loadNotes(ctx, q, []types.ID{id})
	if err != nil {
		return nil, err
	}
	o.Notes = notes[id]
	return o, nil
}

func (s *PGStore) ListOrders(ctx context.Context, statuses ...order.Status) ([]*order.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		sql += ` WHERE status = ANY($1)`
		args = append(args, ss)
	}
	sql += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var (
		out []*order.Order
		ids []types.ID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	notes, err := loadNotes(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range out {
		o.Notes = notes[o.ID]
	}
	return out, nil
}

func (s *PGStore) GetBid(ctx context.Context, id types.ID) (*Bid, error) {
	b, err := scanBid(s.db.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bid %s: %w", id, err)
	}
	return b, nil
}

func (s *PGStore) ListBids(ctx context.Context, orderID types.ID) ([]*Bid, error) {
	return listBids(ctx, s.db, orderID)
}

func listBids(ctx context.Context, q querier, orderID types.ID) ([]*Bid, error) {
	rows, err := q.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE order_id = $1 ORDER BY submitted_at, id`, string(orderID))
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()
	var out []*Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) ExpireSubmitted(ctx context.Context, now time.Time) ([]*Bid, error) {
	rows, err := s.db.Query(ctx, `
        UPDATE bids
        SET status = 'expired', responded_at = $1
        WHERE status = 'submitted' AND valid_until IS NOT NULL AND valid_until <= $1
        RETURNING `+bidColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire bids: %w", err)
	}
	defer rows.Close()
	var out []*Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) WithinOrder(ctx context.Context, orderID types.ID, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := getOrder(ctx, tx, orderID, true)
	if err != nil {
		return err
	}
	bids, err := listBids(ctx, tx, orderID)
	if err != nil {
		return err
	}
	ptx := &pgTx{tx: tx, order: o, version: o.StatusVersion, notes: len(o.Notes), bids: bids}
	if err := fn(ptx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx      pgx.Tx
	order   *order.Order
	version int
	notes   int
	bids    []*Bid
}

func (t *pgTx) Order() *order.Order { return t.order }

func (t *pgTx) Bids() []*Bid { return t.bids }

func (t *pgTx) SaveOrder(ctx context.Context, o *order.Order) error {
	var assigned *string
	if o.AssignedProviderID != nil {
		v := string(*o.AssignedProviderID)
		assigned = &v
	}
	var amount, currency *string
	if o.Total != nil {
		a := o.Total.Amount.String()
		c := o.Total.Currency
		amount, currency = &a, &c
	}
	tag, err := t.tx.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            assigned_provider_id = $2,
            total_amount = $3::numeric,
            total_currency = $4,
            status_changed_at = $5,
            broadcast_at = $6,
            completed_at = $7
        WHERE id = $8 AND status_version = $9`,
		string(o.Status), assigned, amount, currency,
		o.StatusChangedAt, o.BroadcastAt, o.CompletedAt,
		string(o.ID), o.StatusVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s version %d", order.ErrConflict, o.ID, o.StatusVersion)
	}
	for _, n := range o.Notes[t.notes:] {
		if _, err := t.tx.Exec(ctx, `
            INSERT INTO order_state_events (order_id, from_status, to_status, actor, note, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			string(o.ID), string(n.From), string(n.To), n.Actor, n.Text, n.At,
		); err != nil {
			return fmt.Errorf("append order event: %w", err)
		}
	}
	t.notes = len(o.Notes)
	o.StatusVersion++
	t.version = o.StatusVersion
	return nil
}

func (t *pgTx) InsertBid(ctx context.Context, b *Bid) error {
	var quality []byte
	if b.Quality != nil {
		var err error
		if quality, err = json.Marshal(b.Quality); err != nil {
			return fmt.Errorf("marshal quality: %w", err)
		}
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO bids (
            id, order_id, provider_id, amount, currency, estimate_window, turnaround_hours,
            note, valid_until, status, quality, submitted_at
        ) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(b.ID), string(b.OrderID), string(b.ProviderID), b.Amount.Amount.String(), b.Amount.Currency,
		b.Estimate.Window, b.Estimate.TurnaroundHours, b.Note, b.ValidUntil, string(b.Status),
		quality, b.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: provider %s on order %s", ErrDuplicateBid, b.ProviderID, b.OrderID)
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	t.bids = append(t.bids, b.Clone())
	return nil
}

func (t *pgTx) SetBidStatus(ctx context.Context, id types.ID, from, to BidStatus, note string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE bids
        SET status = $1, response_note = $2, responded_at = $3
        WHERE id = $4 AND status = $5`,
		string(to), note, at, string(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update bid %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if b := findBid(t.bids, id); b != nil {
		b.Status = to
		b.ResponseNote = note
		ts := at
		b.RespondedAt = &ts
	}
	return true, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                             order.Order
		id, category, status, urgency string
		requester, payload            []byte
		assigned, amount, currency    *string
		broadcastAt, completedAt      *time.Time
	)
	err := row.Scan(
		&id, &category, &status, &o.StatusVersion, &requester, &payload, &o.Region,
		&o.Location.Lat, &o.Location.Lng, &urgency, &assigned, &amount, &currency,
		&o.CreatedAt, &o.StatusChangedAt, &broadcastAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = types.ID(id)
	o.Category = types.Category(category)
	o.Status = order.Status(status)
	o.Urgency = types.Urgency(urgency)
	if err := json.Unmarshal(requester, &o.Requester); err != nil {
		return nil, fmt.Errorf("decode requester: %w", err)
	}
	if err := json.Unmarshal(payload, &o.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if assigned != nil {
		v := types.ID(*assigned)
		o.AssignedProviderID = &v
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("decode total: %w", err)
		}
		m := types.Money{Amount: d, Currency: types.DefaultCurrency}
		if currency != nil && *currency != "" {
			m.Currency = *currency
		}
		o.Total = &m
	}
	o.BroadcastAt = broadcastAt
	o.CompletedAt = completedAt
	return &o, nil
}

func scanBid(row pgx.Row) (*Bid, error) {
	var (
		b                        Bid
		id, orderID, providerID  string
		amount, currency, status string
		quality                  []byte
	)
	err := row.Scan(
		&id, &orderID, &providerID, &amount, &currency, &b.Estimate.Window, &b.Estimate.TurnaroundHours,
		&b.Note, &b.ResponseNote, &b.ValidUntil, &status, &quality, &b.SubmittedAt, &b.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	b.ID = types.ID(id)
	b.OrderID = types.ID(orderID)
	b.ProviderID = types.ID(providerID)
	b.Amount = types.Money{Amount: d, Currency: currency}
	b.Status = BidStatus(status)
	if len(quality) > 0 {
		var q provider.Quality
		if err := json.Unmarshal(quality, &q); err != nil {
			return nil, fmt.Errorf("decode quality: %w", err)
		}
		b.Quality = &q
	}
	return &b, nil
}

func loadNotes(ctx context.Context, q querier, ids []types.ID) (map[types.ID][]order.Note, error) {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	rows, err := q.Query(ctx, `
        SELECT order_id, from_status, to_status, actor, note, created_at
        FROM order_state_events
        WHERE order_id = ANY($1)
        ORDER BY id`, ss)
	if err != nil {
		return nil, fmt.Errorf("load order events: %w", err)
	}
	defer rows.Close()
	out := make(map[types.ID][]order.Note, len(ids))
	for rows.Next() {
		var orderID, from, to string
		var n order.Note
		if err := rows.Scan(&orderID, &from, &to, &n.Actor, &n.Text, &n.At); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		n.From = order.Status(from)
		n.To = order.Status(to)
		out[types.ID(orderID)] = append(out[types.ID(orderID)], n)
	}
	return out, rows.Err()
}
