package load

import (
	"github.com/bruin-data/staywarehouse/pkg/derive"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

type recorder interface {
	Record() (snapshot.Record, error)
}

// plan is a batch converted into normalized, de-duplicated rows per table. It is
// built before a transaction is opened so an ambiguous batch never touches
// storage.
type plan struct {
	neighborhoods []warehouse.Row
	propertyTypes []warehouse.Row
	dates         []warehouse.Row
	hosts         []warehouse.Row
	listings      []warehouse.Row
	metrics       []warehouse.Row
	reviews       []warehouse.Row
}

func normalizeRecords[T recorder](t *warehouse.Table, items []T, extend func(i int, rec snapshot.Record)) ([]warehouse.Row, error) {
	rows := make([]warehouse.Row, 0, len(items))
	for i, item := range items {
		rec, err := item.Record()
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", t.Name, i)
		}
		if extend != nil {
			extend(i, rec)
		}
		row, err := t.Normalize(warehouse.Row(rec))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidBatch, "%s row %d: %s", t.Name, i, err)
		}
		rows = append(rows, row)
	}
	return dedupe(t, rows)
}

func (c *Coordinator) plan(b *snapshot.Batch) (*plan, error) {
	cat := c.catalog
	p := &plan{}
	var err error

	neighborhoods, propertyTypes := b.Neighborhoods, b.PropertyTypes
	if c.opts.DeriveReferenceDimensions {
		if len(neighborhoods) == 0 {
			neighborhoods = snapshot.DeriveNeighborhoods(b.Listings)
		}
		if len(propertyTypes) == 0 {
			propertyTypes = snapshot.DerivePropertyTypes(b.Listings)
		}
	}

	if p.neighborhoods, err = normalizeRecords(cat.Neighborhood, neighborhoods, nil); err != nil {
		return nil, err
	}
	if p.propertyTypes, err = normalizeRecords(cat.PropertyType, propertyTypes, nil); err != nil {
		return nil, err
	}
	if p.hosts, err = normalizeRecords(cat.Host, b.Hosts, nil); err != nil {
		return nil, err
	}
	if p.listings, err = normalizeRecords(cat.Listing, b.Listings, nil); err != nil {
		return nil, err
	}

	p.metrics, err = normalizeRecords(cat.Metrics, b.Metrics, func(i int, rec snapshot.Record) {
		m := b.Metrics[i]
		derived := c.deriver.Derive(m.Price, m.Availability365)
		rec["date_key"] = derive.DateKey(m.MetricDate.Time)
		rec["occupancy_rate"] = derived.OccupancyRate
		rec["estimated_revenue"] = derived.EstimatedRevenue
		rec["price_tier"] = derived.PriceTier
	})
	if err != nil {
		return nil, err
	}

	p.reviews, err = normalizeRecords(cat.Reviews, b.Reviews, func(i int, rec snapshot.Record) {
		rec["date_key"] = derive.DateKey(b.Reviews[i].ReviewDate.Time)
	})
	if err != nil {
		return nil, err
	}

	for _, day := range b.Dates() {
		row, err := cat.Date.Normalize(derive.DateRow(day))
		if err != nil {
			return nil, err
		}
		p.dates = append(p.dates, row)
	}

	return p, nil
}
