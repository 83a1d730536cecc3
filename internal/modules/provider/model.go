// README: Provider profile, availability and frozen quality snapshot.
package provider

import (
	"errors"

	"medbid/internal/types"
)

var ErrNotFound = errors.New("provider not found")

type Provider struct {
	ID                 types.ID       `json:"id"`
	Name               string         `json:"name"`
	Category           types.Category `json:"category"`
	Region             string         `json:"region"`
	Location           types.Point    `json:"location"`
	Capabilities       []string       `json:"capabilities"`
	Delivers           bool           `json:"delivers"`
	AvgTurnaroundHours float64        `json:"avg_turnaround_hours"`
	Rating             float64        `json:"rating"`
	RatingCount        int            `json:"rating_count"`
	SLACompliance      float64        `json:"sla_compliance"`
	QualityGrade       string         `json:"quality_grade"`
	Active             bool           `json:"active"`
	AcceptingOrders    bool           `json:"accepting_orders"`
	CapacityCurrent    int            `json:"capacity_current"`
	CapacityMax        int            `json:"capacity_max"`
	PriceLevel         float64        `json:"price_level"`
}

// IsAvailable reports whether the provider can take another order.
// CapacityMax of zero means uncapped.
func (p *Provider) IsAvailable() bool {
	if !p.Active || !p.AcceptingOrders {
		return false
	}
	return p.CapacityMax == 0 || p.CapacityCurrent < p.CapacityMax
}

// Coverage returns the share of required capabilities the provider offers, in [0,1].
func (p *Provider) Coverage(required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	have := make(map[string]struct{}, len(p.Capabilities))
	for _, c := range p.Capabilities {
		have[c] = struct{}{}
	}
	n := 0
	for _, r := range required {
		if _, ok := have[r]; ok {
			n++
		}
	}
	return float64(n) / float64(len(required))
}

// Snapshot freezes the provider's current quality figures.
func (p *Provider) Snapshot() Quality {
	return Quality{
		Rating:        p.Rating,
		RatingCount:   p.RatingCount,
		SLACompliance: p.SLACompliance,
		Grade:         p.QualityGrade,
	}
}

func (p *Provider) Clone() *Provider {
	c := *p
	c.Capabilities = append([]string(nil), p.Capabilities...)
	return &c
}
