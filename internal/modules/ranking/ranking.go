// README: Provider ranking for broadcast: hard filters, five factors, urgency-dependent weights.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

const (
	DefaultMaxDistanceKm = 50.0
	sameRegionScore      = 70.0
	otherRegionScore     = 20.0
)

type Criteria struct {
	Category      types.Category `json:"category"`
	Region        string         `json:"region"`
	Location      types.Point    `json:"location"`
	Capabilities  []string       `json:"capabilities"`
	Urgency       types.Urgency  `json:"urgency"`
	MaxDistanceKm float64        `json:"max_distance_km"`
	MaxPrice      float64        `json:"max_price"`
	MinRating     float64        `json:"min_rating"`
	Limit         int            `json:"limit"`
}

type Factors struct {
	Location     float64 `json:"location"`
	Capability   float64 `json:"capability"`
	Quality      float64 `json:"quality"`
	Availability float64 `json:"availability"`
	Price        float64 `json:"price"`
}

type Weights Factors

var urgencyWeights = map[types.Urgency]Weights{
	types.UrgencyEmergency: {Location: 0.35, Capability: 0.15, Quality: 0.10, Availability: 0.30, Price: 0.10},
	types.UrgencyHigh:      {Location: 0.30, Capability: 0.20, Quality: 0.15, Availability: 0.25, Price: 0.10},
	types.UrgencyNormal:    {Location: 0.20, Capability: 0.20, Quality: 0.25, Availability: 0.15, Price: 0.20},
	types.UrgencyLow:       {Location: 0.10, Capability: 0.20, Quality: 0.30, Availability: 0.10, Price: 0.30},
}

// WeightsFor returns the blend for an urgency; unknown urgencies use normal.
func WeightsFor(u types.Urgency) Weights {
	if w, ok := urgencyWeights[u]; ok {
		return w
	}
	return urgencyWeights[types.UrgencyNormal]
}

type Ranked struct {
	Provider   *provider.Provider `json:"provider"`
	Score      float64            `json:"score"`
	Factors    Factors            `json:"factors"`
	DistanceKm *float64           `json:"distance_km,omitempty"`
}

type Service struct {
	dir           provider.Directory
	maxDistanceKm float64
	logger        *zap.Logger
}

func NewService(dir provider.Directory, defaultMaxDistanceKm float64, logger *zap.Logger) *Service {
	if defaultMaxDistanceKm <= 0 {
		defaultMaxDistanceKm = DefaultMaxDistanceKm
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{dir: dir, maxDistanceKm: defaultMaxDistanceKm, logger: logger}
}

// Rank returns eligible providers best first. Filtered providers are excluded, not penalized.
func (s *Service) Rank(ctx context.Context, c Criteria) ([]Ranked, error) {
	if !c.Category.Valid() {
		return nil, fmt.Errorf("rank providers: unknown category %q", c.Category)
	}
	q := provider.Query{Category: c.Category}
	if c.MaxDistanceKm > 0 && !c.Location.IsZero() {
		loc := c.Location
		q.Near = &loc
		q.RadiusKm = c.MaxDistanceKm
	}
	candidates, err := s.dir.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}

	type eligible struct {
		p    *provider.Provider
		dist *float64
	}
	var pool []eligible
	for _, p := range candidates {
		if !p.Active || !p.AcceptingOrders || p.Category != c.Category {
			continue
		}
		if c.MinRating > 0 && p.Rating < c.MinRating {
			continue
		}
		if c.MaxPrice > 0 && p.PriceLevel > c.MaxPrice {
			continue
		}
		var dist *float64
		if !c.Location.IsZero() && !p.Location.IsZero() {
			d := types.DistanceKm(c.Location, p.Location)
			dist = &d
			if c.MaxDistanceKm > 0 && d > c.MaxDistanceKm {
				continue
			}
		}
		pool = append(pool, eligible{p: p, dist: dist})
	}

	avgPrice := 0.0
	priced := 0
	for _, e := range pool {
		if e.p.PriceLevel > 0 {
			avgPrice += e.p.PriceLevel
			priced++
		}
	}
	if priced > 0 {
		avgPrice /= float64(priced)
	}

	maxDist := c.MaxDistanceKm
	if maxDist <= 0 {
		maxDist = s.maxDistanceKm
	}
	w := WeightsFor(c.Urgency)
	out := make([]Ranked, 0, len(pool))
	for _, e := range pool {
		f := Factors{
			Location:     locationScore(c, e.p, e.dist, maxDist),
			Capability:   100 * e.p.Coverage(c.Capabilities),
			Quality:      e.p.Snapshot().Score(),
			Availability: availabilityScore(e.p),
			Price:        priceScore(e.p.PriceLevel, avgPrice),
		}
		score := f.Location*w.Location + f.Capability*w.Capability + f.Quality*w.Quality +
			f.Availability*w.Availability + f.Price*w.Price
		out = append(out, Ranked{Provider: e.p, Score: provider.Clamp(score, 0, 100), Factors: f, DistanceKm: e.dist})
	}
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	s.logger.Debug("providers ranked",
		zap.String("category", string(c.Category)),
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(pool)),
		zap.Int("returned", len(out)),
	)
	return out, nil
}

// better orders by score, then rating, then provider id.
func better(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Provider.Rating != b.Provider.Rating {
		return a.Provider.Rating > b.Provider.Rating
	}
	return a.Provider.ID < b.Provider.ID
}

func locationScore(c Criteria, p *provider.Provider, dist *float64, maxDist float64) float64 {
	if dist != nil {
		return provider.Clamp(100*(1-*dist/maxDist), 0, 100)
	}
	switch {
	case c.Region == "":
		return provider.NeutralScore
	case c.Region == p.Region:
		return sameRegionScore
	default:
		return otherRegionScore
	}
}

func availabilityScore(p *provider.Provider) float64 {
	if p.CapacityMax <= 0 {
		return provider.NeutralScore
	}
	return provider.Clamp(100*float64(p.CapacityMax-p.CapacityCurrent)/float64(p.CapacityMax), 0, 100)
}

func priceScore(level, avg float64) float64 {
	if level <= 0 || avg <= 0 {
		return provider.NeutralScore
	}
	return provider.Clamp(50+(avg-level)/avg*100, 0, 100)
}
