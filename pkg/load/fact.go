package load

import (
	"context"
	"fmt"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

// FactBinding decides which Type-2 version a fact row points at.
type FactBinding string

const (
	// BindLoadTime points facts at the version current when the batch is loaded.
	BindLoadTime FactBinding = "load_time"
	// BindMeasurementDate points facts at the version valid at the start of the
	// measurement day, falling back to the current version for days before the
	// first version.
	BindMeasurementDate FactBinding = "measurement_date"
)

func (b FactBinding) Valid() bool {
	return b == BindLoadTime || b == BindMeasurementDate
}

// resolver turns natural keys into surrogate keys within one transaction. It
// caches lookups since many facts point at the same listing.
type resolver struct {
	tx      warehouse.Tx
	binding FactBinding

	versions map[string]*warehouse.Version
	keys     map[string]any
}

func newResolver(tx warehouse.Tx, binding FactBinding) *resolver {
	return &resolver{
		tx:       tx,
		binding:  binding,
		versions: map[string]*warehouse.Version{},
		keys:     map[string]any{},
	}
}

func (r *resolver) version(ctx context.Context, t *warehouse.Table, nk string, day time.Time) (*warehouse.Version, error) {
	cacheKey := t.Name + ":" + nk
	if r.binding == BindMeasurementDate {
		cacheKey += "@" + day.Format(time.DateOnly)
	}
	if v, ok := r.versions[cacheKey]; ok {
		return v, nil
	}

	var v *warehouse.Version
	var err error
	if r.binding == BindMeasurementDate {
		v, err = r.tx.VersionAt(ctx, t, nk, day)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve %s '%s' at %s", t.Name, nk, day.Format(time.DateOnly))
		}
	}
	if v == nil {
		v, err = r.tx.CurrentVersion(ctx, t, nk)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve %s '%s'", t.Name, nk)
		}
	}

	r.versions[cacheKey] = v
	return v, nil
}

// key returns the surrogate key of a Type-1 row, or nil when the natural key is
// empty or unknown.
func (r *resolver) key(ctx context.Context, t *warehouse.Table, nk any) (any, error) {
	if nk == nil {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("%s:%v", t.Name, nk)
	if k, ok := r.keys[cacheKey]; ok {
		return k, nil
	}

	sk, ok, err := r.tx.LookupKey(ctx, t, nk)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s '%v'", t.Name, nk)
	}
	var k any
	if ok {
		k = sk
	}
	r.keys[cacheKey] = k
	return k, nil
}

func (c *Coordinator) loadMetrics(ctx context.Context, r *resolver, rows []warehouse.Row, w *factWriter) error {
	cat := c.catalog
	t := cat.Metrics

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		listingID := row["listing_id"].(string)
		day, _ := row["metric_date"].(time.Time)

		listing, err := r.version(ctx, cat.Listing, listingID, day)
		if err != nil {
			return err
		}
		if listing == nil {
			w.report.reject(t.Name, rowKey(t, row), fmt.Sprintf("listing '%s' has no version in %s", listingID, cat.Listing.Name))
			continue
		}

		fact := row.Clone()
		fact["listing_key"] = listing.SurrogateKey
		fact["host_key"] = nil
		if hostID, ok := listing.Attributes["host_id"].(string); ok {
			host, err := r.version(ctx, cat.Host, hostID, day)
			if err != nil {
				return err
			}
			if host != nil {
				fact["host_key"] = host.SurrogateKey
			}
		}
		if fact["neighborhood_key"], err = r.key(ctx, cat.Neighborhood, listing.Attributes["neighborhood"]); err != nil {
			return err
		}
		if fact["property_type_key"], err = r.key(ctx, cat.PropertyType, listing.Attributes["property_type"]); err != nil {
			return err
		}

		if err := w.write(ctx, t, fact); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) loadReviews(ctx context.Context, r *resolver, rows []warehouse.Row, w *factWriter) error {
	cat := c.catalog
	t := cat.Reviews

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		listingID, _ := row["listing_id"].(string)
		day, _ := row["review_date"].(time.Time)

		listing, err := r.version(ctx, cat.Listing, listingID, day)
		if err != nil {
			return err
		}
		if listing == nil {
			w.report.reject(t.Name, rowKey(t, row), fmt.Sprintf("listing '%s' has no version in %s", listingID, cat.Listing.Name))
			continue
		}

		fact := row.Clone()
		fact["listing_key"] = listing.SurrogateKey
		if err := w.write(ctx, t, fact); err != nil {
			return err
		}
	}
	return nil
}

// factWriter upserts fact rows by grain and skips rows identical to the stored
// one, ignoring audit columns.
type factWriter struct {
	tx       warehouse.Tx
	report   *Report
	batchID  string
	loadedAt time.Time
}

func (w *factWriter) write(ctx context.Context, t *warehouse.Table, row warehouse.Row) error {
	grain := make(warehouse.Row, len(t.Grain))
	for _, c := range t.Grain {
		grain[c] = row[c]
	}

	existing, err := w.tx.FindRow(ctx, t, grain)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s row %s", t.Name, rowKey(t, row))
	}

	tr := w.report.Table(t.Name)
	if existing != nil && len(warehouse.ChangedColumns(existing, row, t.ComparableNames())) == 0 {
		tr.Unchanged++
		return nil
	}

	row["batch_id"] = w.batchID
	row["loaded_at"] = w.loadedAt
	if err := w.tx.UpsertRow(ctx, t, row); err != nil {
		return errors.Wrapf(err, "failed to write %s row %s", t.Name, rowKey(t, row))
	}

	if existing == nil {
		tr.Inserted++
	} else {
		tr.Upserted++
	}
	return nil
}
