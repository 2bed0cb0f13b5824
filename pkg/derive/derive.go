// Package derive computes the metrics that are not present in the raw snapshot.
// Every function here is pure and total: missing inputs produce missing outputs,
// never an error.
package derive

import (
	"math"

	"github.com/pkg/errors"
)

const (
	DaysPerYear         = 365
	DefaultDaysPerMonth = 30

	// UnknownTier is assigned to prices below the lowest tier threshold.
	UnknownTier = "unknown"
)

// PriceTier is a named lower bound. A price belongs to the highest tier whose
// Min it reaches.
type PriceTier struct {
	Name string  `yaml:"name" json:"name" validate:"required"`
	Min  float64 `yaml:"min" json:"min" validate:"gte=0"`
}

func DefaultPriceTiers() []PriceTier {
	return []PriceTier{
		{Name: "budget", Min: 0},
		{Name: "standard", Min: 100},
		{Name: "premium", Min: 200},
		{Name: "luxury", Min: 400},
	}
}

// ValidateTiers checks that tiers are named and their thresholds strictly increase.
func ValidateTiers(tiers []PriceTier) error {
	if len(tiers) == 0 {
		return errors.New("at least one price tier is required")
	}
	for i, tier := range tiers {
		if tier.Name == "" {
			return errors.Errorf("price tier %d has no name", i)
		}
		if math.IsNaN(tier.Min) || math.IsInf(tier.Min, 0) {
			return errors.Errorf("price tier '%s' has an invalid threshold", tier.Name)
		}
		if i > 0 && tier.Min <= tiers[i-1].Min {
			return errors.Errorf("price tier '%s' must start above '%s' (%.2f <= %.2f)", tier.Name, tiers[i-1].Name, tier.Min, tiers[i-1].Min)
		}
	}
	return nil
}

// Deriver holds the configuration-visible knobs of the metric derivation.
type Deriver struct {
	Tiers        []PriceTier
	DaysPerMonth float64
}

func NewDeriver(tiers []PriceTier, daysPerMonth float64) (*Deriver, error) {
	if len(tiers) == 0 {
		tiers = DefaultPriceTiers()
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	if daysPerMonth <= 0 {
		daysPerMonth = DefaultDaysPerMonth
	}
	return &Deriver{Tiers: tiers, DaysPerMonth: daysPerMonth}, nil
}

// Metrics are the derived columns of one daily listing measurement.
type Metrics struct {
	OccupancyRate    *float64
	EstimatedRevenue *float64
	PriceTier        *string
}

func (d *Deriver) Derive(price *float64, availability365 *int64) Metrics {
	occupancy := OccupancyRate(availability365)
	tier := d.PriceTier(price)
	return Metrics{
		OccupancyRate:    occupancy,
		EstimatedRevenue: EstimatedRevenue(price, occupancy, d.DaysPerMonth),
		PriceTier:        tier,
	}
}

// OccupancyRate is 1 - availability_365/365 clamped to [0, 1] and rounded to
// four decimals.
func OccupancyRate(availability365 *int64) *float64 {
	if availability365 == nil {
		return nil
	}

	rate := 1 - float64(*availability365)/DaysPerYear
	rate = math.Max(0, math.Min(1, rate))
	rate = round(rate, 4)
	return &rate
}

// EstimatedRevenue is price * occupancy * daysPerMonth rounded to cents.
func EstimatedRevenue(price, occupancy *float64, daysPerMonth float64) *float64 {
	if price == nil || occupancy == nil {
		return nil
	}
	revenue := round(*price**occupancy*daysPerMonth, 2)
	return &revenue
}

func (d *Deriver) PriceTier(price *float64) *string {
	if price == nil || math.IsNaN(*price) {
		return nil
	}

	tier := UnknownTier
	for _, t := range d.Tiers {
		if *price >= t.Min {
			tier = t.Name
		}
	}
	return &tier
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
