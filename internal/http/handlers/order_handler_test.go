// README: Handler tests over the in-memory stack: status codes and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"medbid/internal/events"
	"medbid/internal/http/handlers"
	"medbid/internal/http/middleware"
	"medbid/internal/modules/assignment"
	"medbid/internal/modules/ledger"
	"medbid/internal/modules/provider"
	"medbid/internal/modules/ranking"
	"medbid/internal/modules/scoring"
	"medbid/internal/types"
)

type testAPI struct {
	router *gin.Engine
	dir    *provider.MemoryDirectory
}

// buildTestRouter wires a minimal Gin engine with the handlers over in-memory stores.
func buildTestRouter(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := provider.NewMemoryDirectory()
	catalog := provider.NewCatalog(dir, nil)
	for _, id := range []types.ID{"pharm-a", "pharm-b"} {
		err := catalog.Register(context.Background(), &provider.Provider{
			ID: id, Category: types.CategoryPharmacy, Region: "north",
			Active: true, AcceptingOrders: true, Rating: 4.5, RatingCount: 10,
		})
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	registry := scoring.NewMemoryRegistry()
	rank := ranking.NewService(dir, 0, nil)
	l := ledger.New(ledger.NewMemoryStore(), dir, &events.Recorder{}, nil)
	orch := assignment.NewOrchestrator(l, rank, registry, nil, nil, nil, nil, nil, assignment.Options{})

	r := gin.New()
	r.Use(middleware.Actor())
	oh := handlers.NewOrderHandler(orch)
	bh := handlers.NewBidHandler(orch)
	ph := handlers.NewProviderHandler(catalog, rank)
	sh := handlers.NewScoringHandler(registry)
	r.POST("/api/orders", oh.Create)
	r.GET("/api/orders/:id", oh.Get)
	r.POST("/api/orders/:id/broadcast", oh.Broadcast)
	r.GET("/api/orders/:id/evaluation", oh.Evaluation)
	r.POST("/api/orders/:id/award", oh.Award)
	r.POST("/api/orders/:id/auto-award", oh.AutoAward)
	r.POST("/api/orders/:id/cancel", oh.Cancel)
	r.POST("/api/orders/:id/status", oh.Advance)
	r.POST("/api/orders/:id/bids", bh.Submit)
	r.GET("/api/orders/:id/bids", bh.List)
	r.POST("/api/bids/:id/respond", bh.Respond)
	r.PUT("/api/providers/:id", ph.Upsert)
	r.POST("/api/providers/rank", ph.Rank)
	r.POST("/api/scoring-configs", sh.Create)
	r.POST("/api/scoring-configs/:name/versions/:version/activate", sh.Activate)
	r.GET("/api/scoring-configs/active/:category", sh.Active)
	return &testAPI{router: r, dir: dir}
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, "clinician-1")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func (a *testAPI) createOrder(t *testing.T) string {
	t.Helper()
	w := a.do(http.MethodPost, "/api/orders", map[string]any{
		"category":  "pharmacy",
		"requester": map[string]any{"patient_id": "patient-1", "patient_name": "Lin"},
		"payload":   map[string]any{"prescriptions": []map[string]any{{"drug": "metformin", "quantity": 60}}},
		"region":    "north",
		"urgency":   "high",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	var o struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, w, &o)
	if o.Status != "pending_broadcast" {
		t.Fatalf("status = %s", o.Status)
	}
	return o.ID
}

func (a *testAPI) submitBid(t *testing.T, orderID, providerID, amount string) string {
	t.Helper()
	w := a.do(http.MethodPost, "/api/orders/"+orderID+"/bids", map[string]any{
		"provider_id": providerID, "amount": amount, "window": "same_day",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit bid: %d %s", w.Code, w.Body.String())
	}
	var b struct {
		ID string `json:"id"`
	}
	decode(t, w, &b)
	return b.ID
}

func TestCreate_RejectsBadPayload(t *testing.T) {
	a := buildTestRouter(t)
	w := a.do(http.MethodPost, "/api/orders", map[string]any{
		"category":  "pharmacy",
		"requester": map[string]any{"patient_id": "patient-1"},
		"payload":   map[string]any{"tests": []map[string]any{{"code": "CBC"}}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGet_NotFound(t *testing.T) {
	a := buildTestRouter(t)
	w := a.do(http.MethodGet, "/api/orders/missing-order", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGet_InvalidID(t *testing.T) {
	a := buildTestRouter(t)
	w := a.do(http.MethodGet, "/api/orders/bad$id", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestBroadcastBidAwardFlow(t *testing.T) {
	a := buildTestRouter(t)
	id := a.createOrder(t)

	w := a.do(http.MethodPost, "/api/orders/"+id+"/broadcast", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("broadcast: %d %s", w.Code, w.Body.String())
	}
	var bc struct {
		Providers []json.RawMessage `json:"providers"`
	}
	decode(t, w, &bc)
	if len(bc.Providers) != 2 {
		t.Fatalf("broadcast providers = %d", len(bc.Providers))
	}

	bidA := a.submitBid(t, id, "pharm-a", "30.00")
	a.submitBid(t, id, "pharm-b", "35.00")

	w = a.do(http.MethodPost, "/api/orders/"+id+"/bids", map[string]any{"provider_id": "pharm-a", "amount": "29.00", "window": "express"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate bid: expected 409, got %d", w.Code)
	}
	w = a.do(http.MethodPost, "/api/orders/"+id+"/bids", map[string]any{"provider_id": "pharm-c", "amount": "29.00", "turnaround_hours": 4})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("pharmacy bid quoting turnaround: expected 400, got %d", w.Code)
	}
	_ = a.dir.Upsert(context.Background(), &provider.Provider{
		ID: "pharm-c", Category: types.CategoryPharmacy, Region: "north", Active: true, AcceptingOrders: true,
	})
	w = a.do(http.MethodPost, "/api/orders/"+id+"/bids", map[string]any{"provider_id": "pharm-c", "amount": "29.00", "currency": "EUR", "window": "express"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bid in another currency: expected 400, got %d", w.Code)
	}

	w = a.do(http.MethodGet, "/api/orders/"+id+"/evaluation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("evaluation: %d %s", w.Code, w.Body.String())
	}

	w = a.do(http.MethodPost, "/api/orders/"+id+"/award", map[string]any{"bid_id": bidA})
	if w.Code != http.StatusOK {
		t.Fatalf("award: %d %s", w.Code, w.Body.String())
	}
	var o struct {
		Status             string `json:"status"`
		AssignedProviderID string `json:"assigned_provider_id"`
		Notes              []struct {
			Actor string `json:"actor"`
		} `json:"notes"`
	}
	decode(t, w, &o)
	if o.Status != "assigned" || o.AssignedProviderID != "pharm-a" {
		t.Fatalf("after award: %+v", o)
	}
	if last := o.Notes[len(o.Notes)-1]; last.Actor != "clinician-1" {
		t.Fatalf("award actor = %q", last.Actor)
	}

	w = a.do(http.MethodPost, "/api/orders/"+id+"/auto-award", nil)
	if w.Code != http.StatusConflict && w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("auto-award after award: got %d", w.Code)
	}

	w = a.do(http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"status": "in_progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("advance: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodPost, "/api/orders/"+id+"/status", map[string]any{"status": "assigned"})
	if w.Code != http.StatusConflict {
		t.Fatalf("illegal advance: expected 409, got %d", w.Code)
	}
}

func TestRespond_RejectThenAutoAwardInsufficient(t *testing.T) {
	a := buildTestRouter(t)
	id := a.createOrder(t)
	bid := a.submitBid(t, id, "pharm-b", "40.00")

	w := a.do(http.MethodPost, "/api/bids/"+bid+"/respond", map[string]any{"accept": false, "note": "too slow"})
	if w.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodPost, "/api/bids/"+bid+"/respond", map[string]any{"accept": true})
	if w.Code != http.StatusConflict {
		t.Fatalf("respond twice: expected 409, got %d", w.Code)
	}
	w = a.do(http.MethodPost, "/api/orders/"+id+"/auto-award", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("auto-award with no live bids: expected 422, got %d", w.Code)
	}
}

func TestCancel_ThenBidRejected(t *testing.T) {
	a := buildTestRouter(t)
	id := a.createOrder(t)
	w := a.do(http.MethodPost, "/api/orders/"+id+"/cancel", map[string]any{"reason": "duplicate order"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodPost, "/api/orders/"+id+"/bids", map[string]any{"provider_id": "pharm-a", "amount": "10", "window": "same_day"})
	if w.Code != http.StatusConflict {
		t.Fatalf("bid on cancelled order: expected 409, got %d", w.Code)
	}
}

func TestScoringConfigLifecycle(t *testing.T) {
	a := buildTestRouter(t)
	w := a.do(http.MethodPost, "/api/scoring-configs", map[string]any{
		"name":              "bad-weights",
		"weights":           map[string]any{"price": 0.9, "speed": 0.9, "quality": 0.1},
		"applies_to":        "pharmacy",
		"min_bids_required": 1,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad weights: expected 422, got %d", w.Code)
	}

	w = a.do(http.MethodPost, "/api/scoring-configs", map[string]any{
		"name":              "price-first",
		"weights":           map[string]any{"price": 0.6, "speed": 0.2, "quality": 0.2},
		"applies_to":        "pharmacy",
		"min_bids_required": 1,
		"max_wait_seconds":  600,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create config: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodPost, "/api/scoring-configs/price-first/versions/1/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodGet, "/api/scoring-configs/active/pharmacy", nil)
	var cfg struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	decode(t, w, &cfg)
	if cfg.Name != "price-first" || !cfg.Active {
		t.Fatalf("active config = %+v", cfg)
	}
	w = a.do(http.MethodPost, "/api/scoring-configs/price-first/versions/9/activate", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("activate missing version: expected 404, got %d", w.Code)
	}
}

func TestProviderUpsertAndRank(t *testing.T) {
	a := buildTestRouter(t)
	w := a.do(http.MethodPut, "/api/providers/lab-1", map[string]any{
		"category": "lab", "region": "south", "active": true, "accepting_orders": true, "rating": 4.9,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", w.Code, w.Body.String())
	}
	w = a.do(http.MethodPut, "/api/providers/lab-2", map[string]any{"category": "lab", "rating": 9})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid provider: expected 400, got %d", w.Code)
	}
	w = a.do(http.MethodPost, "/api/providers/rank", map[string]any{"category": "lab", "region": "south", "urgency": "normal"})
	if w.Code != http.StatusOK {
		t.Fatalf("rank: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Providers []struct {
			Provider struct {
				ID string `json:"id"`
			} `json:"provider"`
		} `json:"providers"`
	}
	decode(t, w, &out)
	if len(out.Providers) != 1 || out.Providers[0].Provider.ID != "lab-1" {
		t.Fatalf("ranked = %+v", out.Providers)
	}
}
