package snapshot

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Batch is one ingestion run: the current-state snapshot of every entity seen
// plus the measurements taken for it.
type Batch struct {
	ID            string          `json:"batch_id,omitempty" jsonschema:"description=generated when empty"`
	IngestedAt    time.Time       `json:"ingested_at" jsonschema:"required,description=effective-change boundary of this batch"`
	Hosts         []Host          `json:"hosts,omitempty"`
	Listings      []Listing       `json:"listings,omitempty"`
	Neighborhoods []Neighborhood  `json:"neighborhoods,omitempty"`
	PropertyTypes []PropertyType  `json:"property_types,omitempty"`
	Metrics       []ListingMetric `json:"metrics,omitempty"`
	Reviews       []Review        `json:"reviews,omitempty"`
}

// Prepare assigns a batch id when none is set and normalizes the ingestion
// timestamp to UTC with microsecond precision.
func (b *Batch) Prepare() error {
	if b.IngestedAt.IsZero() {
		return errors.New("batch has no ingested_at timestamp")
	}
	b.IngestedAt = b.IngestedAt.UTC().Truncate(time.Microsecond)

	if b.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "failed to generate batch id")
		}
		b.ID = id.String()
	}
	return nil
}

// Empty reports whether the batch carries no records at all.
func (b *Batch) Empty() bool {
	return len(b.Hosts) == 0 && len(b.Listings) == 0 && len(b.Neighborhoods) == 0 &&
		len(b.PropertyTypes) == 0 && len(b.Metrics) == 0 && len(b.Reviews) == 0
}

// Dates returns every distinct metric and review date, in ascending order.
func (b *Batch) Dates() []time.Time {
	dates := make([]time.Time, 0, len(b.Metrics)+len(b.Reviews))
	for _, m := range b.Metrics {
		dates = append(dates, m.MetricDate.Time)
	}
	for _, r := range b.Reviews {
		dates = append(dates, r.ReviewDate.Time)
	}

	dates = lo.UniqBy(dates, func(d time.Time) int64 { return d.Unix() })
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func sortedListings(listings []Listing) []Listing {
	sorted := make([]Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ListingID < sorted[j].ListingID })
	return sorted
}

// DeriveNeighborhoods builds reference rows out of the neighborhoods the listings
// point at. The neighborhood group becomes the city; the first listing wins.
func DeriveNeighborhoods(listings []Listing) []Neighborhood {
	named := lo.Filter(sortedListings(listings), func(l Listing, _ int) bool {
		return l.Neighborhood != nil && *l.Neighborhood != ""
	})
	named = lo.UniqBy(named, func(l Listing) string { return *l.Neighborhood })

	active := true
	return lo.Map(named, func(l Listing, _ int) Neighborhood {
		return Neighborhood{
			NeighborhoodName: *l.Neighborhood,
			City:             l.NeighborhoodGroup,
			IsActive:         &active,
		}
	})
}

// DerivePropertyTypes builds reference rows out of the property types the
// listings point at, using the room type as category.
func DerivePropertyTypes(listings []Listing) []PropertyType {
	typed := lo.Filter(sortedListings(listings), func(l Listing, _ int) bool {
		return l.PropertyType != nil && *l.PropertyType != ""
	})
	typed = lo.UniqBy(typed, func(l Listing) string { return *l.PropertyType })

	active := true
	return lo.Map(typed, func(l Listing, _ int) PropertyType {
		return PropertyType{
			PropertyTypeName: *l.PropertyType,
			PropertyCategory: l.RoomType,
			IsActive:         &active,
		}
	})
}
