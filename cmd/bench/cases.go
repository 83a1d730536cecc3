// README: Scenario checks: environment, order/bid/award flow, award race, data consistency, throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	run   string

	// Shared by the flow checks, in order.
	orderID  string
	bidIDs   []string
	raceID   string
	raceBids []string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) provider(n int) string {
	return fmt.Sprintf("bench-%s-pharm-%d", r.run, n)
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkDB},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
			return res
		}},
		{Name: "Providers: register pool", Run: registerProviders},
		{Name: "Order: create (missing payload -> 400)", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/orders", map[string]any{
				"category":  "pharmacy",
				"requester": map[string]any{"patient_id": "bench-patient"},
			}, nil, http.StatusBadRequest)
			return res
		}},
		{Name: "Order: create and broadcast", Run: createAndBroadcast},
		{Name: "Bids: submit from every provider", Run: submitBids},
		{Name: "Bids: duplicate provider -> 409", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+"/bids", map[string]any{
				"provider_id": r.provider(0), "amount": "1.00", "window": "express",
			}, nil, http.StatusConflict)
			return res
		}},
		{Name: "Evaluate: ranked breakdown", Run: evaluate},
		{Name: "Award: auto-award top bid", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+"/auto-award", nil, nil, http.StatusOK)
			return res
		}},
		{Name: "Fulfilment: in_progress -> completed", Run: fulfil},
		{Name: "Fulfilment: completed cannot cancel", Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+"/cancel", map[string]any{"reason": "late"}, nil, http.StatusConflict)
			return res
		}},
		{Name: "Concurrency: racing awards on one order", Run: raceAwards},
		{Name: "Consistency: one accepted bid per order", Run: checkAcceptedBids},
		{Name: "Consistency: every save left an audit note", Run: checkNotes},
		{Name: "Consistency: order locks released", Run: checkLocks},
		{Name: "Perf: order intake throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/orders", orderBody("bench-perf"))
		}},
	}
}

func orderBody(patient string) map[string]any {
	return map[string]any{
		"category":  "pharmacy",
		"requester": map[string]any{"patient_id": patient},
		"payload":   map[string]any{"prescriptions": []map[string]any{{"drug": "atorvastatin", "quantity": 30}}},
		"region":    "bench",
		"location":  map[string]any{"lat": 25.033, "lng": 121.565},
		"urgency":   "high",
	}
}

// call sends one JSON request, decodes into out when non-nil, and passes when the status matches.
func (r *Runner) call(ctx context.Context, method, path string, body, out any, want int) (Result, bool) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "bench-"+r.run)
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}, false
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))}, false
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Result{Status: statusFail, Latency: latency, Note: "decode: " + err.Error()}, false
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}, true
}

func checkDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func registerProviders(ctx context.Context, r *Runner) Result {
	var total time.Duration
	for i := 0; i < 3; i++ {
		res, ok := r.call(ctx, http.MethodPut, "/api/providers/"+r.provider(i), map[string]any{
			"name":             fmt.Sprintf("Bench Pharmacy %d", i),
			"category":         "pharmacy",
			"region":           "bench",
			"location":         map[string]any{"lat": 25.03 + float64(i)*0.01, "lng": 121.56},
			"active":           true,
			"accepting_orders": true,
			"capacity_max":     1000,
			"rating":           4.0 + float64(i)*0.3,
			"rating_count":     50,
			"sla_compliance":   90,
			"quality_grade":    "A",
		}, nil, http.StatusOK)
		if !ok {
			return res
		}
		total += res.Latency
	}
	return Result{Status: statusPass, Latency: total / 3}
}

func createAndBroadcast(ctx context.Context, r *Runner) Result {
	var o struct {
		ID string `json:"id"`
	}
	if res, ok := r.call(ctx, http.MethodPost, "/api/orders", orderBody("bench-"+r.run), &o, http.StatusCreated); !ok {
		return res
	}
	r.orderID = o.ID
	var bc struct {
		Providers []json.RawMessage `json:"providers"`
	}
	res, ok := r.call(ctx, http.MethodPost, "/api/orders/"+o.ID+"/broadcast", nil, &bc, http.StatusOK)
	if !ok {
		return res
	}
	if len(bc.Providers) == 0 {
		return Result{Status: statusFail, Note: "broadcast reached no providers"}
	}
	res.Note = fmt.Sprintf("order=%s providers=%d", o.ID, len(bc.Providers))
	return res
}

func submitBids(ctx context.Context, r *Runner) Result {
	windows := []string{"express", "same_day", "next_day"}
	for i := 0; i < 3; i++ {
		var b struct {
			ID string `json:"id"`
		}
		res, ok := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+"/bids", map[string]any{
			"provider_id": r.provider(i),
			"amount":      fmt.Sprintf("%d.50", 20+i*5),
			"window":      windows[i],
		}, &b, http.StatusCreated)
		if !ok {
			return res
		}
		r.bidIDs = append(r.bidIDs, b.ID)
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("bids=%d", len(r.bidIDs))}
}

func evaluate(ctx context.Context, r *Runner) Result {
	var ev struct {
		Ranked []struct {
			Score float64 `json:"score"`
		} `json:"ranked"`
	}
	res, ok := r.call(ctx, http.MethodGet, "/api/orders/"+r.orderID+"/evaluation?fresh=true", nil, &ev, http.StatusOK)
	if !ok {
		return res
	}
	if len(ev.Ranked) != len(r.bidIDs) {
		return Result{Status: statusFail, Note: fmt.Sprintf("ranked=%d want %d", len(ev.Ranked), len(r.bidIDs))}
	}
	for i := 1; i < len(ev.Ranked); i++ {
		if ev.Ranked[i].Score > ev.Ranked[i-1].Score {
			return Result{Status: statusFail, Note: "ranking not sorted by score"}
		}
	}
	res.Note = fmt.Sprintf("top=%.2f", ev.Ranked[0].Score)
	return res
}

func fulfil(ctx context.Context, r *Runner) Result {
	for _, s := range []string{"in_progress", "ready_for_pickup", "completed"} {
		if res, ok := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+"/status", map[string]any{"status": s}, nil, http.StatusOK); !ok {
			res.Note = s + ": " + res.Note
			return res
		}
	}
	return Result{Status: statusPass}
}

// raceAwards fires award, accept and auto-award concurrently at one order; exactly one may win.
func raceAwards(ctx context.Context, r *Runner) Result {
	var o struct {
		ID string `json:"id"`
	}
	if res, ok := r.call(ctx, http.MethodPost, "/api/orders", orderBody("bench-race-"+r.run), &o, http.StatusCreated); !ok {
		return res
	}
	r.raceID = o.ID
	for i := 0; i < 3; i++ {
		var b struct {
			ID string `json:"id"`
		}
		res, ok := r.call(ctx, http.MethodPost, "/api/orders/"+o.ID+"/bids", map[string]any{
			"provider_id": r.provider(i), "amount": "25.00", "window": "same_day",
		}, &b, http.StatusCreated)
		if !ok {
			return res
		}
		r.raceBids = append(r.raceBids, b.ID)
	}

	var succ, conflicts int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			bid := r.raceBids[i%len(r.raceBids)]
			var (
				method = http.MethodPost
				path   string
				body   any
			)
			switch i % 3 {
			case 0:
				path, body = "/api/orders/"+o.ID+"/award", map[string]any{"bid_id": bid}
			case 1:
				path, body = "/api/bids/"+bid+"/respond", map[string]any{"accept": true}
			default:
				path = "/api/orders/" + o.ID + "/auto-award"
			}
			b, _ := json.Marshal(body)
			req, _ := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			resp, err := r.httpc.Do(req)
			if err != nil {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusOK:
				atomic.AddInt64(&succ, 1)
			case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
				atomic.AddInt64(&conflicts, 1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("success=%d conflicts=%d", succ, conflicts)
	if succ != 1 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func checkAcceptedBids(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	for _, id := range []string{r.orderID, r.raceID} {
		var accepted int
		var assigned *string
		err := r.db.QueryRow(ctx, `
			SELECT (SELECT count(*) FROM bids WHERE order_id = $1 AND status = 'accepted'),
			       (SELECT assigned_provider_id FROM orders WHERE id = $1)`, id).Scan(&accepted, &assigned)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if accepted != 1 || assigned == nil {
			return Result{Status: statusFail, Note: fmt.Sprintf("order %s accepted=%d assigned=%v", id, accepted, assigned)}
		}
	}
	return Result{Status: statusPass}
}

func checkNotes(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	var version, notes int
	err := r.db.QueryRow(ctx, `
		SELECT o.status_version, (SELECT count(*) FROM order_state_events e WHERE e.order_id = o.id)
		FROM orders o WHERE o.id = $1`, r.orderID).Scan(&version, &notes)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	// One save may carry several notes (bid before broadcast), never zero.
	if notes < version || version == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("status_version=%d notes=%d", version, notes)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("transitions=%d", notes)}
}

func checkLocks(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	n, err := r.redis.Exists(ctx, "medbid:lock:order:"+r.raceID).Result()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if n != 0 {
		return Result{Status: statusFail, Note: "lock still held after race"}
	}
	return Result{Status: statusPass}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	b, _ := json.Marshal(payload)
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode >= 300 {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
