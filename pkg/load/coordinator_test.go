package load

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/memory"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_HostVersioning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)
	hostTable := warehouse.NewCatalog().Host

	report, err := c.Load(ctx, &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host("H1", false)}})
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, report.Status)
	assert.Equal(t, int64(1), report.Table("dim_host").Inserted)

	rows := rowsOf(store, "dim_host", "host_id", "H1")
	require.Len(t, rows, 1)
	v1 := rows[0]
	assert.Equal(t, t1, v1[warehouse.ColumnEffectiveFrom])
	assert.Nil(t, v1[warehouse.ColumnEffectiveTo])
	assert.Equal(t, true, v1[warehouse.ColumnIsCurrent])
	assert.Equal(t, false, v1["host_is_superhost"])

	report, err = c.Load(ctx, &snapshot.Batch{IngestedAt: t2, Hosts: []snapshot.Host{host("H1", true)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Table("dim_host").Closed)
	assert.Equal(t, int64(1), report.Table("dim_host").Inserted)

	rows = rowsOf(store, "dim_host", "host_id", "H1")
	require.Len(t, rows, 2)
	closed, _ := lo.Find(rows, func(r warehouse.Row) bool { return r["host_key"] == v1["host_key"] })
	assert.Equal(t, t2, closed[warehouse.ColumnEffectiveTo])
	assert.Equal(t, false, closed[warehouse.ColumnIsCurrent])
	assert.Equal(t, false, closed["host_is_superhost"])

	v2, _ := lo.Find(rows, func(r warehouse.Row) bool { return r[warehouse.ColumnIsCurrent] == true })
	assert.Equal(t, t2, v2[warehouse.ColumnEffectiveFrom])
	assert.Equal(t, true, v2["host_is_superhost"])
	assert.NotEqual(t, v1["host_key"], v2["host_key"])

	report, err = c.Load(ctx, &snapshot.Batch{IngestedAt: t3, Hosts: []snapshot.Host{host("H1", true)}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Table("dim_host").Inserted)
	assert.Equal(t, int64(1), report.Table("dim_host").Unchanged)

	after := rowsOf(store, "dim_host", "host_id", "H1")
	require.Len(t, after, 2)
	v2Again, _ := lo.Find(after, func(r warehouse.Row) bool { return r[warehouse.ColumnIsCurrent] == true })
	assert.Equal(t, v2, v2Again)

	assertTimeline(t, store, hostTable)
}

func TestCoordinator_RenameAndListingCountOpenVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: t1,
		Hosts:      []snapshot.Host{host("H1", false)},
		Listings:   []snapshot.Listing{listing("L1", "H1")},
	})
	require.NoError(t, err)

	busier := host("H1", false)
	busier.HostListingsCount = ptr(int64(7))
	renamed := listing("L1", "H1")
	renamed.ListingName = ptr("Renamed loft")
	report, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: t2,
		Hosts:      []snapshot.Host{busier},
		Listings:   []snapshot.Listing{renamed},
	})
	require.NoError(t, err)

	for _, table := range []string{"dim_host", "dim_listing"} {
		assert.Equal(t, int64(1), report.Table(table).Closed, table)
		assert.Equal(t, int64(1), report.Table(table).Inserted, table)
	}

	hosts := rowsOf(store, "dim_host", "is_current", true)
	require.Len(t, hosts, 1)
	assert.Equal(t, int64(7), hosts[0]["host_listings_count"])

	listings := rowsOf(store, "dim_listing", "is_current", true)
	require.Len(t, listings, 1)
	assert.Equal(t, "Renamed loft", listings[0]["listing_name"])

	assert.Len(t, rowsOf(store, "dim_listing", "listing_id", "L1"), 2)
	assertTimeline(t, store, warehouse.NewCatalog().Listing)
}

func fullBatch(at time.Time) *snapshot.Batch {
	return &snapshot.Batch{
		IngestedAt: at,
		Hosts:      []snapshot.Host{host("H1", false)},
		Listings:   []snapshot.Listing{listing("L1", "H1")},
		Metrics: []snapshot.ListingMetric{
			metric("L1", snapshot.NewDate(2024, 1, 1), 100, 73),
		},
		Reviews: []snapshot.Review{
			{ReviewID: "R1", ListingID: "L1", ReviewDate: snapshot.NewDate(2023, 12, 30), ReviewerName: ptr("Bob")},
		},
	}
}

func TestCoordinator_FullBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	report, err := c.Load(ctx, fullBatch(t1))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, report.State)
	assert.Equal(t, []State{StatePending, StateTypeOneLoaded, StateTypeTwoLoaded, StateFactsLoaded, StateCommitted},
		lo.Map(report.History, func(tr Transition, _ int) State { return tr.State }))

	listingRow := rowsOf(store, "dim_listing", "listing_id", "L1")[0]
	hostRow := rowsOf(store, "dim_host", "host_id", "H1")[0]

	facts := store.Rows("fact_listing_daily_metrics")
	require.Len(t, facts, 1)
	fact := facts[0]
	assert.Equal(t, int64(20240101), fact["date_key"])
	assert.Equal(t, 0.8, fact["occupancy_rate"])
	assert.Equal(t, 2400.0, fact["estimated_revenue"])
	assert.Equal(t, "standard", fact["price_tier"])
	assert.Equal(t, listingRow["listing_key"], fact["listing_key"])
	assert.Equal(t, hostRow["host_key"], fact["host_key"])
	assert.Equal(t, TypeOneKey("dim_neighborhood", "Harlem"), fact["neighborhood_key"])
	assert.Equal(t, TypeOneKey("dim_property_type", "Loft"), fact["property_type_key"])
	assert.Equal(t, report.BatchID, fact["batch_id"])

	neighborhoods := store.Rows("dim_neighborhood")
	require.Len(t, neighborhoods, 1)
	assert.Equal(t, "Manhattan", neighborhoods[0]["city"])

	dates := store.Rows("dim_date")
	assert.ElementsMatch(t, []any{int64(20231230), int64(20240101)},
		lo.Map(dates, func(r warehouse.Row, _ int) any { return r["date_key"] }))

	reviews := store.Rows("fact_review")
	require.Len(t, reviews, 1)
	assert.Equal(t, listingRow["listing_key"], reviews[0]["listing_key"])
	assert.Equal(t, int64(20231230), reviews[0]["date_key"])
}

func TestCoordinator_ReloadIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, fullBatch(t1))
	require.NoError(t, err)
	before := store.Rows("fact_listing_daily_metrics")

	report, err := c.Load(ctx, fullBatch(t2))
	require.NoError(t, err)

	for _, name := range []string{"dim_host", "dim_listing"} {
		assert.Equal(t, int64(0), report.Table(name).Inserted, name)
		assert.Equal(t, int64(0), report.Table(name).Closed, name)
		assert.Equal(t, int64(1), report.Table(name).Unchanged, name)
	}
	for _, name := range []string{"fact_listing_daily_metrics", "fact_review"} {
		assert.Equal(t, int64(0), report.Table(name).Inserted, name)
		assert.Equal(t, int64(0), report.Table(name).Upserted, name)
		assert.Equal(t, int64(1), report.Table(name).Unchanged, name)
	}

	assert.Equal(t, before, store.Rows("fact_listing_daily_metrics"))
	assert.Len(t, store.Rows("dim_host"), 1)
	assert.Len(t, store.Rows("dim_listing"), 1)
}

func TestCoordinator_FactGrainUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, fullBatch(t1))
	require.NoError(t, err)

	b := fullBatch(t2)
	b.Metrics = []snapshot.ListingMetric{
		metric("L1", snapshot.NewDate(2024, 1, 1), 250, 0),
		metric("L1", snapshot.NewDate(2024, 1, 2), 100, 73),
	}
	report, err := c.Load(ctx, b)
	require.NoError(t, err)

	tr := report.Table("fact_listing_daily_metrics")
	assert.Equal(t, int64(1), tr.Upserted)
	assert.Equal(t, int64(1), tr.Inserted)

	facts := rowsOf(store, "fact_listing_daily_metrics", "date_key", int64(20240101))
	require.Len(t, facts, 1)
	assert.Equal(t, 250.0, facts[0]["price"])
	assert.Equal(t, "premium", facts[0]["price_tier"])
	assert.Equal(t, report.BatchID, facts[0]["batch_id"])
	assert.Len(t, store.Rows("fact_listing_daily_metrics"), 2)
}

func TestCoordinator_ConflictingBatchWritesNothing(t *testing.T) {
	t.Parallel()

	store := &faultyStore{Store: memory.NewStore()}
	c := newCoordinator(t, store)

	report, err := c.Load(context.Background(), &snapshot.Batch{
		IngestedAt: t1,
		Hosts:      []snapshot.Host{host("H1", false), host("H1", true)},
	})
	require.ErrorIs(t, err, ErrAmbiguousBatch)

	var ambiguous *AmbiguousBatchError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "dim_host", ambiguous.Table)
	assert.Equal(t, "H1", ambiguous.Key)
	assert.Equal(t, []string{"host_is_superhost"}, ambiguous.Columns)

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StateFailed, report.State)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, int32(0), store.begins.Load())
}

func TestCoordinator_ExactDuplicatesCollapse(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	c := newCoordinator(t, store)

	b := fullBatch(t1)
	b.Hosts = append(b.Hosts, host("H1", false))
	b.Metrics = append(b.Metrics, b.Metrics[0])

	report, err := c.Load(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Table("dim_host").Inserted)
	assert.Len(t, store.Rows("dim_host"), 1)
	assert.Len(t, store.Rows("fact_listing_daily_metrics"), 1)
}

func TestCoordinator_ConflictingFactGrain(t *testing.T) {
	t.Parallel()

	c := newCoordinator(t, memory.NewStore())

	b := fullBatch(t1)
	b.Metrics = append(b.Metrics, metric("L1", snapshot.NewDate(2024, 1, 1), 101, 73))

	_, err := c.Load(context.Background(), b)
	require.ErrorIs(t, err, ErrAmbiguousBatch)
}

func TestCoordinator_DanglingFactIsRejected(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	c := newCoordinator(t, store)

	b := fullBatch(t1)
	b.Metrics = append(b.Metrics, metric("L9", snapshot.NewDate(2024, 1, 1), 80, 100))
	b.Reviews = append(b.Reviews, snapshot.Review{ReviewID: "R9", ListingID: "L9", ReviewDate: snapshot.NewDate(2024, 1, 1)})

	report, err := c.Load(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, report.Status)

	assert.Equal(t, int64(1), report.Table("fact_listing_daily_metrics").Rejected)
	assert.Equal(t, int64(1), report.Table("fact_listing_daily_metrics").Inserted)
	assert.Equal(t, int64(1), report.Table("fact_review").Rejected)
	require.Len(t, report.Rejections, 2)
	assert.Equal(t, Rejection{
		Table:  "fact_listing_daily_metrics",
		Key:    "20240101/L9",
		Reason: "listing 'L9' has no version in dim_listing",
	}, report.Rejections[0])

	assert.Empty(t, rowsOf(store, "fact_listing_daily_metrics", "listing_id", "L9"))
	assert.Len(t, rowsOf(store, "fact_listing_daily_metrics", "listing_id", "L1"), 1)
}

func TestCoordinator_TypeOneReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: t1,
		Neighborhoods: []snapshot.Neighborhood{
			{NeighborhoodName: "Harlem", City: ptr("New York")},
			{NeighborhoodName: "Bushwick", City: ptr("New York")},
		},
	})
	require.NoError(t, err)
	assert.Len(t, store.Rows("dim_neighborhood"), 2)

	report, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt:    t2,
		Neighborhoods: []snapshot.Neighborhood{{NeighborhoodName: "Harlem", City: ptr("NYC")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Table("dim_neighborhood").Removed)
	assert.Equal(t, int64(1), report.Table("dim_neighborhood").Upserted)

	rows := store.Rows("dim_neighborhood")
	require.Len(t, rows, 1)
	assert.Equal(t, "NYC", rows[0]["city"])
	assert.Equal(t, TypeOneKey("dim_neighborhood", "Harlem"), rows[0]["neighborhood_key"])

	report, err = c.Load(ctx, &snapshot.Batch{IngestedAt: t3, Hosts: []snapshot.Host{host("H1", false)}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Table("dim_neighborhood").Removed)
	assert.Len(t, store.Rows("dim_neighborhood"), 1, "a batch without neighborhoods keeps the table")
}

func TestCoordinator_ReferenceDerivationCanBeDisabled(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	c := newCoordinator(t, store, func(o *Options) { o.DeriveReferenceDimensions = false })

	_, err := c.Load(context.Background(), fullBatch(t1))
	require.NoError(t, err)
	assert.Empty(t, store.Rows("dim_neighborhood"))

	fact := store.Rows("fact_listing_daily_metrics")[0]
	assert.Nil(t, fact["neighborhood_key"])
	assert.Nil(t, fact["property_type_key"])
}

func TestCoordinator_OutOfOrderBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, &snapshot.Batch{IngestedAt: t2, Hosts: []snapshot.Host{host("H1", false)}})
	require.NoError(t, err)

	report, err := c.Load(ctx, &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host("H1", false)}})
	require.NoError(t, err, "an unchanged key is a no-op regardless of time")
	assert.Equal(t, int64(1), report.Table("dim_host").Unchanged)

	_, err = c.Load(ctx, &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host("H1", true), host("H2", true)}})
	require.ErrorIs(t, err, ErrOutOfOrderBatch)

	_, err = c.Load(ctx, &snapshot.Batch{IngestedAt: t2, Hosts: []snapshot.Host{host("H1", true)}})
	require.ErrorIs(t, err, ErrOutOfOrderBatch)

	assert.Len(t, store.Rows("dim_host"), 1)
	assert.Empty(t, rowsOf(store, "dim_host", "host_id", "H2"))
}

func TestCoordinator_StorageFailureRollsBack(t *testing.T) {
	t.Parallel()

	mem := memory.NewStore()
	store := &faultyStore{Store: mem, failUpsert: errors.New("disk full")}
	c := newCoordinator(t, store)

	report, err := c.Load(context.Background(), fullBatch(t1))
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, []State{StatePending, StateTypeOneLoaded, StateTypeTwoLoaded, StateFailed},
		lo.Map(report.History, func(tr Transition, _ int) State { return tr.State }))

	for _, name := range []string{"dim_host", "dim_listing", "dim_neighborhood", "dim_date", "fact_listing_daily_metrics"} {
		assert.Empty(t, mem.Rows(name), name)
	}

	store.failUpsert = nil
	_, err = c.Load(context.Background(), fullBatch(t1))
	require.NoError(t, err, "the writer lock must have been released")
}

func TestCoordinator_CancellationKeepsLastCommittedBatch(t *testing.T) {
	t.Parallel()

	mem := memory.NewStore()
	store := &faultyStore{Store: mem}
	c := newCoordinator(t, store)

	_, err := c.Load(context.Background(), fullBatch(t1))
	require.NoError(t, err)
	committed := mem.Rows("dim_host")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onUpsert = cancel

	b := fullBatch(t2)
	b.Hosts = []snapshot.Host{host("H1", true)}
	b.Metrics = append(b.Metrics, metric("L1", snapshot.NewDate(2024, 1, 2), 90, 10))

	report, err := c.Load(ctx, b)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, committed, mem.Rows("dim_host"))
	assert.Len(t, mem.Rows("fact_listing_daily_metrics"), 1)
}

func TestCoordinator_ConcurrentBatchesKeepOneCurrentVersion(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	c := newCoordinator(t, store)

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			b := &snapshot.Batch{
				IngestedAt: t1.Add(time.Duration(i) * time.Minute),
				Hosts:      []snapshot.Host{host("H1", i%2 == 0), host("H2", i%3 == 0)},
			}
			_, err := c.Load(context.Background(), b)
			if err != nil {
				assert.ErrorIs(t, err, ErrOutOfOrderBatch)
			}
		}(i)
	}
	wg.Wait()

	assertTimeline(t, store, warehouse.NewCatalog().Host)
}

func TestCoordinator_MeasurementDateBinding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store, func(o *Options) { o.FactBinding = BindMeasurementDate })

	_, err := c.Load(ctx, &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host("H1", false)}, Listings: []snapshot.Listing{listing("L1", "H1")}})
	require.NoError(t, err)
	original := rowsOf(store, "dim_listing", "listing_id", "L1")[0]

	moved := listing("L1", "H1")
	moved.Neighborhood = ptr("Bushwick")
	b := &snapshot.Batch{
		IngestedAt: t3,
		Listings:   []snapshot.Listing{moved},
		Metrics: []snapshot.ListingMetric{
			metric("L1", snapshot.NewDate(2024, 1, 2), 100, 73),
			metric("L1", snapshot.NewDate(2023, 6, 1), 100, 73),
			metric("L1", snapshot.NewDate(2024, 1, 3), 100, 73),
		},
	}
	_, err = c.Load(ctx, b)
	require.NoError(t, err)

	current, _ := lo.Find(rowsOf(store, "dim_listing", "listing_id", "L1"), func(r warehouse.Row) bool {
		return r[warehouse.ColumnIsCurrent] == true
	})

	keyOn := func(dateKey int64) any {
		return rowsOf(store, "fact_listing_daily_metrics", "date_key", dateKey)[0]["listing_key"]
	}
	assert.Equal(t, original["listing_key"], keyOn(20240102), "measured while the first version was valid")
	assert.Equal(t, current["listing_key"], keyOn(20230601), "measured before the first version, falls back to current")
	assert.Equal(t, original["listing_key"], keyOn(20240103), "the new version only starts later that day")
}

func TestCoordinator_LoadTimeBindingUsesCurrentVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store)

	_, err := c.Load(ctx, &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host("H1", false)}, Listings: []snapshot.Listing{listing("L1", "H1")}})
	require.NoError(t, err)

	moved := listing("L1", "H1")
	moved.Neighborhood = ptr("Bushwick")
	_, err = c.Load(ctx, &snapshot.Batch{
		IngestedAt: t3,
		Listings:   []snapshot.Listing{moved},
		Metrics:    []snapshot.ListingMetric{metric("L1", snapshot.NewDate(2024, 1, 2), 100, 73)},
	})
	require.NoError(t, err)

	current, _ := lo.Find(rowsOf(store, "dim_listing", "listing_id", "L1"), func(r warehouse.Row) bool {
		return r[warehouse.ColumnIsCurrent] == true
	})
	fact := store.Rows("fact_listing_daily_metrics")[0]
	assert.Equal(t, current["listing_key"], fact["listing_key"])
	assert.Equal(t, TypeOneKey("dim_neighborhood", "Bushwick"), fact["neighborhood_key"])
}

func TestCoordinator_InvalidBatch(t *testing.T) {
	t.Parallel()

	store := &faultyStore{Store: memory.NewStore()}
	c := newCoordinator(t, store)

	_, err := c.Load(context.Background(), &snapshot.Batch{Hosts: []snapshot.Host{host("H1", false)}})
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = c.Load(context.Background(), &snapshot.Batch{IngestedAt: t1, Hosts: []snapshot.Host{host(" ", false)}})
	require.ErrorIs(t, err, ErrInvalidBatch)

	assert.Equal(t, int32(0), store.begins.Load())
}

func TestNewCoordinator_RejectsUnknownBinding(t *testing.T) {
	t.Parallel()

	_, err := NewCoordinator(memory.NewStore(), nil, nil, Options{FactBinding: "yesterday"})
	require.ErrorContains(t, err, "unknown fact binding")
}
