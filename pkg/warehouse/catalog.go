package warehouse

// Catalog is the set of tables the loader maintains.
type Catalog struct {
	Host         *Table
	Listing      *Table
	Neighborhood *Table
	PropertyType *Table
	Date         *Table
	Metrics      *Table
	Reviews      *Table
}

// Tables returns every table in load order: Type-1, Type-2, facts.
func (c *Catalog) Tables() []*Table {
	return []*Table{
		c.Neighborhood,
		c.PropertyType,
		c.Date,
		c.Host,
		c.Listing,
		c.Metrics,
		c.Reviews,
	}
}

func (c *Catalog) Table(name string) (*Table, bool) {
	for _, t := range c.Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

func key(name string) Column {
	return Column{Name: name, Type: ColumnText}
}

func tracked(name string, typ ColumnType) Column {
	return Column{Name: name, Type: typ, Tracked: true, Nullable: true}
}

func attr(name string, typ ColumnType) Column {
	return Column{Name: name, Type: typ, Nullable: true}
}

func audit(name string, typ ColumnType) Column {
	return Column{Name: name, Type: typ, Audit: true, Nullable: true}
}

func NewCatalog() *Catalog {
	return &Catalog{
		Host: &Table{
			Name:         "dim_host",
			Kind:         KindTypeTwo,
			Description:  "Hosts, one row per version.",
			SurrogateKey: "host_key",
			NaturalKey:   "host_id",
			Columns: []Column{
				key("host_key"),
				key("host_id"),
				tracked("host_name", ColumnText),
				tracked("host_since", ColumnDate),
				tracked("host_response_time", ColumnText),
				tracked("host_response_rate", ColumnFloat),
				tracked("host_is_superhost", ColumnBoolean),
				tracked("host_listings_count", ColumnInteger),
				tracked("host_total_listings", ColumnInteger),
				tracked("host_verifications", ColumnText),
				tracked("host_identity_verified", ColumnBoolean),
			},
		},
		Listing: &Table{
			Name:         "dim_listing",
			Kind:         KindTypeTwo,
			Description:  "Listings, one row per version.",
			SurrogateKey: "listing_key",
			NaturalKey:   "listing_id",
			Columns: []Column{
				key("listing_key"),
				key("listing_id"),
				tracked("host_id", ColumnText),
				tracked("listing_name", ColumnText),
				tracked("property_type", ColumnText),
				tracked("room_type", ColumnText),
				tracked("accommodates", ColumnInteger),
				tracked("bathrooms", ColumnFloat),
				tracked("bedrooms", ColumnInteger),
				tracked("beds", ColumnInteger),
				tracked("amenities_hash", ColumnText),
				tracked("cancellation_policy", ColumnText),
				tracked("minimum_nights", ColumnInteger),
				tracked("maximum_nights", ColumnInteger),
				tracked("instant_bookable", ColumnBoolean),
				tracked("neighborhood", ColumnText),
			},
		},
		Neighborhood: &Table{
			Name:         "dim_neighborhood",
			Kind:         KindTypeOne,
			Strategy:     WriteStrategyReplace,
			SurrogateKey: "neighborhood_key",
			NaturalKey:   "neighborhood_name",
			Columns: []Column{
				key("neighborhood_key"),
				key("neighborhood_name"),
				attr("city", ColumnText),
				attr("state", ColumnText),
				attr("country", ColumnText),
				attr("geo_hash", ColumnText),
				attr("is_active", ColumnBoolean),
			},
		},
		PropertyType: &Table{
			Name:         "dim_property_type",
			Kind:         KindTypeOne,
			Strategy:     WriteStrategyReplace,
			SurrogateKey: "property_type_key",
			NaturalKey:   "property_type_name",
			Columns: []Column{
				key("property_type_key"),
				key("property_type_name"),
				attr("property_category", ColumnText),
				attr("description", ColumnText),
				attr("is_active", ColumnBoolean),
			},
		},
		Date: &Table{
			Name:        "dim_date",
			Kind:        KindTypeOne,
			Strategy:    WriteStrategyMerge,
			Description: "Calendar rows for every metric and review date ever loaded.",
			NaturalKey:  "date_key",
			Columns: []Column{
				{Name: "date_key", Type: ColumnInteger},
				attr("full_date", ColumnDate),
				attr("day_of_week", ColumnInteger),
				attr("day_name", ColumnText),
				attr("week_of_year", ColumnInteger),
				attr("month", ColumnInteger),
				attr("month_name", ColumnText),
				attr("quarter", ColumnInteger),
				attr("year", ColumnInteger),
				attr("is_weekend", ColumnBoolean),
			},
		},
		Metrics: &Table{
			Name:        "fact_listing_daily_metrics",
			Kind:        KindFact,
			Description: "Daily listing measurements at grain (date_key, listing_id).",
			Grain:       []string{"date_key", "listing_id"},
			Columns: []Column{
				{Name: "date_key", Type: ColumnInteger},
				key("listing_id"),
				attr("metric_date", ColumnDate),
				attr("listing_key", ColumnText),
				attr("host_key", ColumnText),
				attr("neighborhood_key", ColumnText),
				attr("property_type_key", ColumnText),
				attr("price", ColumnFloat),
				attr("cleaning_fee", ColumnFloat),
				attr("security_deposit", ColumnFloat),
				attr("minimum_nights", ColumnInteger),
				attr("maximum_nights", ColumnInteger),
				attr("availability_30", ColumnInteger),
				attr("availability_60", ColumnInteger),
				attr("availability_90", ColumnInteger),
				attr("availability_365", ColumnInteger),
				attr("number_of_reviews", ColumnInteger),
				attr("review_scores_rating", ColumnFloat),
				attr("occupancy_rate", ColumnFloat),
				attr("estimated_revenue", ColumnFloat),
				attr("price_tier", ColumnText),
				audit("batch_id", ColumnText),
				audit("loaded_at", ColumnTimestamp),
			},
		},
		Reviews: &Table{
			Name:        "fact_review",
			Kind:        KindFact,
			Description: "One row per review.",
			Grain:       []string{"review_id"},
			Columns: []Column{
				key("review_id"),
				attr("listing_id", ColumnText),
				attr("listing_key", ColumnText),
				attr("review_date", ColumnDate),
				attr("date_key", ColumnInteger),
				attr("reviewer_id", ColumnText),
				attr("reviewer_name", ColumnText),
				audit("batch_id", ColumnText),
				audit("loaded_at", ColumnTimestamp),
			},
		},
	}
}
