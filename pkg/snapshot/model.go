// Package snapshot holds validated raw records as they arrive from the validation
// stage. It contains no load logic.
package snapshot

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Date is a calendar day. It accepts "2006-01-02" as well as RFC 3339 timestamps.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "date must be a string")
	}
	s = strings.TrimSpace(s)

	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, day := t.Date()
			d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
			return nil
		}
	}
	return errors.Errorf("cannot parse %q as a date, expected YYYY-MM-DD", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

func (Date) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "calendar date, YYYY-MM-DD",
	}
}

type Host struct {
	HostID               string   `json:"host_id" mapstructure:"host_id" jsonschema:"required,minLength=1"`
	HostName             *string  `json:"host_name,omitempty" mapstructure:"host_name"`
	HostSince            *Date    `json:"host_since,omitempty" mapstructure:"-"`
	HostResponseTime     *string  `json:"host_response_time,omitempty" mapstructure:"host_response_time"`
	HostResponseRate     *float64 `json:"host_response_rate,omitempty" mapstructure:"host_response_rate"`
	HostIsSuperhost      *bool    `json:"host_is_superhost,omitempty" mapstructure:"host_is_superhost"`
	HostListingsCount    *int64   `json:"host_listings_count,omitempty" mapstructure:"host_listings_count"`
	HostTotalListings    *int64   `json:"host_total_listings,omitempty" mapstructure:"host_total_listings"`
	HostVerifications    *string  `json:"host_verifications,omitempty" mapstructure:"host_verifications"`
	HostIdentityVerified *bool    `json:"host_identity_verified,omitempty" mapstructure:"host_identity_verified"`
}

type Listing struct {
	ListingID          string   `json:"listing_id" mapstructure:"listing_id" jsonschema:"required,minLength=1"`
	HostID             string   `json:"host_id" mapstructure:"host_id" jsonschema:"required,minLength=1"`
	ListingName        *string  `json:"listing_name,omitempty" mapstructure:"listing_name"`
	PropertyType       *string  `json:"property_type,omitempty" mapstructure:"property_type"`
	RoomType           *string  `json:"room_type,omitempty" mapstructure:"room_type"`
	Accommodates       *int64   `json:"accommodates,omitempty" mapstructure:"accommodates"`
	Bathrooms          *float64 `json:"bathrooms,omitempty" mapstructure:"bathrooms"`
	Bedrooms           *int64   `json:"bedrooms,omitempty" mapstructure:"bedrooms"`
	Beds               *int64   `json:"beds,omitempty" mapstructure:"beds"`
	Amenities          []string `json:"amenities,omitempty" mapstructure:"-"`
	CancellationPolicy *string  `json:"cancellation_policy,omitempty" mapstructure:"cancellation_policy"`
	MinimumNights      *int64   `json:"minimum_nights,omitempty" mapstructure:"minimum_nights"`
	MaximumNights      *int64   `json:"maximum_nights,omitempty" mapstructure:"maximum_nights"`
	InstantBookable    *bool    `json:"instant_bookable,omitempty" mapstructure:"instant_bookable"`
	Neighborhood       *string  `json:"neighborhood,omitempty" mapstructure:"neighborhood"`
	NeighborhoodGroup  *string  `json:"neighborhood_group,omitempty" mapstructure:"-"`
}

type Neighborhood struct {
	NeighborhoodName string  `json:"neighborhood_name" mapstructure:"neighborhood_name" jsonschema:"required,minLength=1"`
	City             *string `json:"city,omitempty" mapstructure:"city"`
	State            *string `json:"state,omitempty" mapstructure:"state"`
	Country          *string `json:"country,omitempty" mapstructure:"country"`
	GeoHash          *string `json:"geo_hash,omitempty" mapstructure:"geo_hash"`
	IsActive         *bool   `json:"is_active,omitempty" mapstructure:"is_active"`
}

type PropertyType struct {
	PropertyTypeName string  `json:"property_type_name" mapstructure:"property_type_name" jsonschema:"required,minLength=1"`
	PropertyCategory *string `json:"property_category,omitempty" mapstructure:"property_category"`
	Description      *string `json:"description,omitempty" mapstructure:"description"`
	IsActive         *bool   `json:"is_active,omitempty" mapstructure:"is_active"`
}

// ListingMetric is one daily measurement of a listing.
type ListingMetric struct {
	MetricDate         Date     `json:"metric_date" mapstructure:"-" jsonschema:"required"`
	ListingID          string   `json:"listing_id" mapstructure:"listing_id" jsonschema:"required,minLength=1"`
	Price              *float64 `json:"price,omitempty" mapstructure:"price"`
	CleaningFee        *float64 `json:"cleaning_fee,omitempty" mapstructure:"cleaning_fee"`
	SecurityDeposit    *float64 `json:"security_deposit,omitempty" mapstructure:"security_deposit"`
	MinimumNights      *int64   `json:"minimum_nights,omitempty" mapstructure:"minimum_nights"`
	MaximumNights      *int64   `json:"maximum_nights,omitempty" mapstructure:"maximum_nights"`
	Availability30     *int64   `json:"availability_30,omitempty" mapstructure:"availability_30"`
	Availability60     *int64   `json:"availability_60,omitempty" mapstructure:"availability_60"`
	Availability90     *int64   `json:"availability_90,omitempty" mapstructure:"availability_90"`
	Availability365    *int64   `json:"availability_365,omitempty" mapstructure:"availability_365"`
	NumberOfReviews    *int64   `json:"number_of_reviews,omitempty" mapstructure:"number_of_reviews"`
	ReviewScoresRating *float64 `json:"review_scores_rating,omitempty" mapstructure:"review_scores_rating"`
}

type Review struct {
	ReviewID     string  `json:"review_id" mapstructure:"review_id" jsonschema:"required,minLength=1"`
	ListingID    string  `json:"listing_id" mapstructure:"listing_id" jsonschema:"required,minLength=1"`
	ReviewDate   Date    `json:"review_date" mapstructure:"-" jsonschema:"required"`
	ReviewerID   *string `json:"reviewer_id,omitempty" mapstructure:"reviewer_id"`
	ReviewerName *string `json:"reviewer_name,omitempty" mapstructure:"reviewer_name"`
}
