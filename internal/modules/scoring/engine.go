// README: Bid evaluation: relative price, speed and quality sub-scores blended by config weights.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"medbid/internal/modules/ledger"
	"medbid/internal/modules/order"
	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

var (
	ErrInsufficientBids = errors.New("insufficient live bids")
	ErrMixedCurrency    = errors.New("bids quoted in different currencies")
)

type Breakdown struct {
	Price   float64 `json:"price" bson:"price"`
	Speed   float64 `json:"speed" bson:"speed"`
	Quality float64 `json:"quality" bson:"quality"`
}

type Ranked struct {
	Bid        *ledger.Bid `json:"-" bson:"-"`
	BidID      types.ID    `json:"bid_id" bson:"bid_id"`
	ProviderID types.ID    `json:"provider_id" bson:"provider_id"`
	Amount     string      `json:"amount" bson:"amount"`
	Score      float64     `json:"score" bson:"score"`
	Breakdown  Breakdown   `json:"breakdown" bson:"breakdown"`
}

// References are the candidate-relative figures the sub-scores are computed against.
type References struct {
	AvgAmount    float64 `json:"avg_amount" bson:"avg_amount"`
	FastestHours float64 `json:"fastest_hours" bson:"fastest_hours"`
	BestQuality  float64 `json:"best_quality" bson:"best_quality"`
}

type Evaluation struct {
	ID            types.ID   `json:"id" bson:"_id"`
	OrderID       types.ID   `json:"order_id" bson:"order_id"`
	ConfigName    string     `json:"config_name" bson:"config_name"`
	ConfigVersion int        `json:"config_version" bson:"config_version"`
	Considered    int        `json:"considered" bson:"considered"`
	References    References `json:"references" bson:"references"`
	Ranked        []Ranked   `json:"ranked" bson:"ranked"`
	EvaluatedAt   time.Time  `json:"evaluated_at" bson:"evaluated_at"`
}

// Winner returns the top-ranked bid.
func (e *Evaluation) Winner() Ranked {
	return e.Ranked[0]
}

// Evaluate scores the live bids of o with cfg and ranks them best first.
// It never mutates bids or the order; the caller decides whether to award.
func Evaluate(o *order.Order, bids []*ledger.Bid, cfg Config, now time.Time) (*Evaluation, error) {
	live := make([]*ledger.Bid, 0, len(bids))
	for _, b := range bids {
		if b.OrderID == o.ID && ledger.IsLive(b, now) {
			live = append(live, b)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return earlier(live[i], live[j]) })
	if cfg.MaxBidsConsidered > 0 && len(live) > cfg.MaxBidsConsidered {
		live = live[:cfg.MaxBidsConsidered]
	}
	need := cfg.MinBidsRequired
	if need < 1 {
		need = 1
	}
	if len(live) < need {
		return nil, fmt.Errorf("%w: %d live, %d required", ErrInsufficientBids, len(live), need)
	}
	for _, b := range live[1:] {
		if b.Amount.Currency != live[0].Amount.Currency {
			return nil, fmt.Errorf("%w: %s and %s on order %s",
				ErrMixedCurrency, live[0].Amount.Currency, b.Amount.Currency, o.ID)
		}
	}

	refs := references(live)
	ranked := make([]Ranked, 0, len(live))
	for _, b := range live {
		bd := Breakdown{
			Price:   priceScore(b, refs.AvgAmount),
			Speed:   speedScore(b, refs.FastestHours),
			Quality: qualityScore(b),
		}
		total := bd.Price*cfg.Weights.Price + bd.Speed*cfg.Weights.Speed + bd.Quality*cfg.Weights.Quality
		ranked = append(ranked, Ranked{
			Bid:        b,
			BidID:      b.ID,
			ProviderID: b.ProviderID,
			Amount:     b.Amount.String(),
			Score:      provider.Clamp(total, 0, 100),
			Breakdown:  bd,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return earlier(ranked[i].Bid, ranked[j].Bid)
	})

	return &Evaluation{
		ID:            types.NewID(),
		OrderID:       o.ID,
		ConfigName:    cfg.Name,
		ConfigVersion: cfg.Version,
		Considered:    len(live),
		References:    refs,
		Ranked:        ranked,
		EvaluatedAt:   now,
	}, nil
}

func earlier(a, b *ledger.Bid) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

func references(live []*ledger.Bid) References {
	var refs References
	sum := decimal.Zero
	for _, b := range live {
		sum = sum.Add(b.Amount.Amount)
		if h, ok := b.Estimate.Hours(); ok && (refs.FastestHours == 0 || h < refs.FastestHours) {
			refs.FastestHours = h
		}
		if q := qualityScore(b); q > refs.BestQuality {
			refs.BestQuality = q
		}
	}
	refs.AvgAmount = sum.Div(decimal.NewFromInt(int64(len(live)))).InexactFloat64()
	return refs
}

// priceScore is 100 at half the average, 0 at or above the average.
func priceScore(b *ledger.Bid, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	return provider.Clamp((1-b.Amount.Float()/avg)*200, 0, 100)
}

func speedScore(b *ledger.Bid, fastest float64) float64 {
	h, ok := b.Estimate.Hours()
	if !ok || fastest <= 0 {
		return provider.NeutralScore
	}
	return provider.Clamp(100*fastest/h, 0, 100)
}

func qualityScore(b *ledger.Bid) float64 {
	if b.Quality == nil {
		return provider.NeutralScore
	}
	return b.Quality.Score()
}
