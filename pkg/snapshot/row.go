package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Record is a flat column-name to value view of a snapshot record. Pointer
// fields are kept as pointers; nil means NULL.
type Record map[string]any

func toRecord(v any) (Record, error) {
	rec := Record{}
	if err := mapstructure.Decode(v, &rec); err != nil {
		return nil, errors.Wrapf(err, "failed to flatten %T", v)
	}
	return rec, nil
}

func dateValue(d *Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

func (h Host) Record() (Record, error) {
	rec, err := toRecord(h)
	if err != nil {
		return nil, err
	}
	rec["host_since"] = dateValue(h.HostSince)
	return rec, nil
}

func (l Listing) Record() (Record, error) {
	rec, err := toRecord(l)
	if err != nil {
		return nil, err
	}
	if hash := AmenitiesHash(l.Amenities); hash != "" {
		rec["amenities_hash"] = hash
	} else {
		rec["amenities_hash"] = nil
	}
	return rec, nil
}

func (n Neighborhood) Record() (Record, error) {
	return toRecord(n)
}

func (p PropertyType) Record() (Record, error) {
	return toRecord(p)
}

func (m ListingMetric) Record() (Record, error) {
	rec, err := toRecord(m)
	if err != nil {
		return nil, err
	}
	rec["metric_date"] = m.MetricDate.Time
	return rec, nil
}

func (r Review) Record() (Record, error) {
	rec, err := toRecord(r)
	if err != nil {
		return nil, err
	}
	rec["review_date"] = r.ReviewDate.Time
	return rec, nil
}

// AmenitiesHash returns an order-insensitive signature of an amenity list.
// Entries are trimmed, lower-cased and de-duplicated before hashing. A nil list
// has no signature.
func AmenitiesHash(amenities []string) string {
	if amenities == nil {
		return ""
	}

	normalized := lo.Uniq(lo.FilterMap(amenities, func(a string, _ int) (string, bool) {
		a = strings.ToLower(strings.TrimSpace(a))
		return a, a != ""
	}))
	sort.Strings(normalized)

	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return hex.EncodeToString(sum[:])
}
