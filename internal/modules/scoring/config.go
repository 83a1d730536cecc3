// README: Scoring configuration: weights, applicability and evaluation limits.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"medbid/internal/types"
)

var (
	ErrNotFound       = errors.New("scoring config not found")
	ErrInvalidWeights = errors.New("invalid scoring weights")
	ErrInvalidConfig  = errors.New("invalid scoring config")
	ErrConfigExists   = errors.New("scoring config already exists")
)

const weightTolerance = 0.001

type Applicability string

const (
	AppliesPharmacy Applicability = "pharmacy"
	AppliesLab      Applicability = "lab"
	AppliesBoth     Applicability = "both"
)

// Categories lists the order categories a config may be active for.
func (a Applicability) Categories() []types.Category {
	switch a {
	case AppliesPharmacy:
		return []types.Category{types.CategoryPharmacy}
	case AppliesLab:
		return []types.Category{types.CategoryLab}
	case AppliesBoth:
		return []types.Category{types.CategoryPharmacy, types.CategoryLab}
	}
	return nil
}

type Weights struct {
	Price   float64 `json:"price" bson:"price"`
	Speed   float64 `json:"speed" bson:"speed"`
	Quality float64 `json:"quality" bson:"quality"`
}

func (w Weights) Validate() error {
	if w.Price < 0 || w.Speed < 0 || w.Quality < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	if sum := w.Price + w.Speed + w.Quality; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

type Config struct {
	Name              string        `json:"name"`
	Version           int           `json:"version"`
	Weights           Weights       `json:"weights"`
	AppliesTo         Applicability `json:"applies_to"`
	MinBidsRequired   int           `json:"min_bids_required"`
	MaxBidsConsidered int           `json:"max_bids_considered"`
	MaxWait           time.Duration `json:"max_wait"`
	Active            bool          `json:"active"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if len(c.AppliesTo.Categories()) == 0 {
		return fmt.Errorf("%w: unknown applicability %q", ErrInvalidConfig, c.AppliesTo)
	}
	if c.MinBidsRequired < 1 {
		return fmt.Errorf("%w: min bids required must be at least 1", ErrInvalidConfig)
	}
	if c.MaxBidsConsidered < 0 {
		return fmt.Errorf("%w: max bids considered must be non-negative", ErrInvalidConfig)
	}
	if c.MaxBidsConsidered > 0 && c.MaxBidsConsidered < c.MinBidsRequired {
		return fmt.Errorf("%w: max bids considered below min bids required", ErrInvalidConfig)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("%w: max wait must be non-negative", ErrInvalidConfig)
	}
	return c.Weights.Validate()
}

// Covers reports whether the config may score orders of category c.
func (c Config) Covers(cat types.Category) bool {
	for _, x := range c.AppliesTo.Categories() {
		if x == cat {
			return true
		}
	}
	return false
}

// DefaultConfig is used when no config is active for a category.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		Version:         0,
		Weights:         Weights{Price: 0.4, Speed: 0.3, Quality: 0.3},
		AppliesTo:       AppliesBoth,
		MinBidsRequired: 1,
		MaxWait:         30 * time.Minute,
	}
}
