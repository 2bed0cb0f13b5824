// Package warehousetest checks that a warehouse.Store behaves the same as every
// other backend by loading a short batch history through the coordinator.
package warehousetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/load"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Backend is a freshly created, empty store plus a way to read it back.
type Backend struct {
	Store warehouse.Store
	Rows  func(ctx context.Context, table *warehouse.Table) ([]warehouse.Row, error)
}

var (
	day1 = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
	day3 = day2.Add(24 * time.Hour)
)

func ptr[T any](v T) *T {
	return &v
}

func host(id string, superhost bool) snapshot.Host {
	return snapshot.Host{
		HostID:          id,
		HostName:        ptr("Alice"),
		HostSince:       ptr(snapshot.NewDate(2019, 3, 1)),
		HostIsSuperhost: ptr(superhost),
	}
}

func listing(id, neighborhood, group string) snapshot.Listing {
	return snapshot.Listing{
		ListingID:         id,
		HostID:            "H1",
		ListingName:       ptr("Sunny loft"),
		PropertyType:      ptr("Loft"),
		RoomType:          ptr("Entire home/apt"),
		Accommodates:      ptr(int64(2)),
		Bathrooms:         ptr(1.5),
		Amenities:         []string{"Wifi", "kitchen"},
		InstantBookable:   ptr(true),
		Neighborhood:      ptr(neighborhood),
		NeighborhoodGroup: ptr(group),
	}
}

func metric(listingID string, day snapshot.Date, price float64, availability int64) snapshot.ListingMetric {
	return snapshot.ListingMetric{
		MetricDate:      day,
		ListingID:       listingID,
		Price:           ptr(price),
		Availability365: ptr(availability),
	}
}

func secondBatch() *snapshot.Batch {
	return &snapshot.Batch{
		IngestedAt: day2,
		Hosts:      []snapshot.Host{host("H1", true)},
		Listings: []snapshot.Listing{
			listing("L1", "Harlem", "Manhattan"),
			listing("L2", "Bushwick", "Brooklyn"),
		},
		Metrics: []snapshot.ListingMetric{metric("L1", snapshot.NewDate(2024, 1, 2), 250, 365)},
	}
}

// Run exercises the backend returned by open. Every subtest gets its own store.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	t.Helper()

	t.Run("history", func(t *testing.T) {
		testHistory(t, open(t))
	})
	t.Run("out of order batch", func(t *testing.T) {
		testOutOfOrder(t, open(t))
	})
	t.Run("dangling facts", func(t *testing.T) {
		testDanglingFacts(t, open(t))
	})
}

func newCoordinator(t *testing.T, b Backend) *load.Coordinator {
	t.Helper()

	catalog := warehouse.NewCatalog()
	require.NoError(t, b.Store.EnsureTables(context.Background(), catalog.Tables()))

	opts := load.DefaultOptions()
	opts.Now = func() time.Time { return day3.Add(time.Hour) }
	c, err := load.NewCoordinator(b.Store, catalog, zap.NewNop().Sugar(), opts)
	require.NoError(t, err)
	return c
}

func rows(t *testing.T, b Backend, table *warehouse.Table) []warehouse.Row {
	t.Helper()

	out, err := b.Rows(context.Background(), table)
	require.NoError(t, err)
	return out
}

func testHistory(t *testing.T, b Backend) {
	ctx := context.Background()
	catalog := warehouse.NewCatalog()
	c := newCoordinator(t, b)

	report, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: day1,
		Hosts:      []snapshot.Host{host("H1", false)},
		Listings:   []snapshot.Listing{listing("L1", "Harlem", "Manhattan")},
		Metrics:    []snapshot.ListingMetric{metric("L1", snapshot.NewDate(2024, 1, 1), 100, 73)},
		Reviews: []snapshot.Review{{
			ReviewID:     "R1",
			ListingID:    "L1",
			ReviewDate:   snapshot.NewDate(2024, 1, 1),
			ReviewerName: ptr("Bob"),
		}},
	})
	require.NoError(t, err)
	require.True(t, report.Committed())

	hosts := rows(t, b, catalog.Host)
	require.Len(t, hosts, 1)
	firstHost := hosts[0]
	assert.Equal(t, day1, firstHost[warehouse.ColumnEffectiveFrom])
	assert.Nil(t, firstHost[warehouse.ColumnEffectiveTo])
	assert.Equal(t, true, firstHost[warehouse.ColumnIsCurrent])
	assert.Equal(t, time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC), firstHost["host_since"])

	listings := rows(t, b, catalog.Listing)
	require.Len(t, listings, 1)
	assert.Equal(t, snapshot.AmenitiesHash([]string{"kitchen", "wifi"}), listings[0]["amenities_hash"])
	assert.Equal(t, 1.5, listings[0]["bathrooms"])

	facts := rows(t, b, catalog.Metrics)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(20240101), facts[0]["date_key"])
	assert.Equal(t, listings[0]["listing_key"], facts[0]["listing_key"])
	assert.Equal(t, firstHost["host_key"], facts[0]["host_key"])
	assert.Equal(t, load.TypeOneKey(catalog.Neighborhood.Name, "Harlem"), facts[0]["neighborhood_key"])
	assert.Equal(t, load.TypeOneKey(catalog.PropertyType.Name, "Loft"), facts[0]["property_type_key"])
	assert.InDelta(t, 0.8, facts[0]["occupancy_rate"], 1e-9)
	assert.InDelta(t, 2400.0, facts[0]["estimated_revenue"], 1e-9)
	assert.Equal(t, "standard", facts[0]["price_tier"])
	assert.Equal(t, report.BatchID, facts[0]["batch_id"])

	reviews := rows(t, b, catalog.Reviews)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Bob", reviews[0]["reviewer_name"])
	assert.Equal(t, listings[0]["listing_key"], reviews[0]["listing_key"])

	dates := rows(t, b, catalog.Date)
	require.Len(t, dates, 1)
	assert.Equal(t, "Monday", dates[0]["day_name"])

	report, err = c.Load(ctx, secondBatch())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Table(catalog.Host.Name).Closed)
	assert.Equal(t, int64(1), report.Table(catalog.Host.Name).Inserted)
	assert.Equal(t, int64(1), report.Table(catalog.Listing.Name).Unchanged)
	assert.Equal(t, int64(1), report.Table(catalog.Listing.Name).Inserted)
	assert.Equal(t, int64(1), report.Table(catalog.Metrics.Name).Inserted)

	assertTimeline(t, catalog.Host, rows(t, b, catalog.Host))
	assertTimeline(t, catalog.Listing, rows(t, b, catalog.Listing))
	assert.Len(t, rows(t, b, catalog.Neighborhood), 2)
	assert.Len(t, rows(t, b, catalog.Date), 2)

	currentHost, ok := lo.Find(rows(t, b, catalog.Host), func(r warehouse.Row) bool {
		return r[warehouse.ColumnIsCurrent] == true
	})
	require.True(t, ok)
	latest, ok := lo.Find(rows(t, b, catalog.Metrics), func(r warehouse.Row) bool {
		return r["date_key"] == int64(20240102)
	})
	require.True(t, ok)
	assert.Equal(t, currentHost["host_key"], latest["host_key"])
	assert.Equal(t, "premium", latest["price_tier"])
	assert.InDelta(t, 0.0, latest["occupancy_rate"], 1e-9)

	before := rows(t, b, catalog.Metrics)
	report, err = c.Load(ctx, secondBatch())
	require.NoError(t, err)
	for _, table := range []*warehouse.Table{catalog.Host, catalog.Listing} {
		assert.Equal(t, int64(0), report.Table(table.Name).Inserted, table.Name)
		assert.Equal(t, int64(0), report.Table(table.Name).Closed, table.Name)
	}
	assert.Equal(t, int64(1), report.Table(catalog.Metrics.Name).Unchanged)
	assert.Equal(t, before, rows(t, b, catalog.Metrics))
	assert.Len(t, rows(t, b, catalog.Host), 2)
	assert.Len(t, rows(t, b, catalog.Listing), 2)

	report, err = c.Load(ctx, &snapshot.Batch{
		IngestedAt: day3,
		Listings:   []snapshot.Listing{listing("L2", "Bushwick", "Brooklyn")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Table(catalog.Neighborhood.Name).Removed)

	neighborhoods := rows(t, b, catalog.Neighborhood)
	require.Len(t, neighborhoods, 1)
	assert.Equal(t, "Bushwick", neighborhoods[0]["neighborhood_name"])
	assert.Equal(t, "Brooklyn", neighborhoods[0]["city"])
	assert.Equal(t, load.TypeOneKey(catalog.Neighborhood.Name, "Bushwick"), neighborhoods[0]["neighborhood_key"])
}

func testOutOfOrder(t *testing.T, b Backend) {
	ctx := context.Background()
	catalog := warehouse.NewCatalog()
	c := newCoordinator(t, b)

	_, err := c.Load(ctx, &snapshot.Batch{IngestedAt: day2, Hosts: []snapshot.Host{host("H1", false)}})
	require.NoError(t, err)

	report, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: day1,
		Hosts:      []snapshot.Host{host("H1", true), host("H2", false)},
	})
	require.ErrorIs(t, err, load.ErrOutOfOrderBatch)
	assert.Equal(t, load.StatusFailed, report.Status)

	hosts := rows(t, b, catalog.Host)
	require.Len(t, hosts, 1, "the failed batch must not leave H2 behind")
	assert.Equal(t, false, hosts[0]["host_is_superhost"])
}

func testDanglingFacts(t *testing.T, b Backend) {
	ctx := context.Background()
	catalog := warehouse.NewCatalog()
	c := newCoordinator(t, b)

	report, err := c.Load(ctx, &snapshot.Batch{
		IngestedAt: day1,
		Metrics:    []snapshot.ListingMetric{metric("ghost", snapshot.NewDate(2024, 1, 1), 80, 0)},
		Reviews:    []snapshot.Review{{ReviewID: "R9", ListingID: "ghost", ReviewDate: snapshot.NewDate(2024, 1, 1)}},
	})
	require.NoError(t, err)
	require.True(t, report.Committed())
	assert.Len(t, report.Rejections, 2)
	assert.Empty(t, rows(t, b, catalog.Metrics))
	assert.Empty(t, rows(t, b, catalog.Reviews))
	assert.Len(t, rows(t, b, catalog.Date), 1)
}

func assertTimeline(t *testing.T, table *warehouse.Table, stored []warehouse.Row) {
	t.Helper()

	byKey := lo.GroupBy(stored, func(r warehouse.Row) string {
		return r[table.NaturalKey].(string)
	})
	for nk, versions := range byKey {
		sort.Slice(versions, func(i, j int) bool {
			return versions[i][warehouse.ColumnEffectiveFrom].(time.Time).Before(versions[j][warehouse.ColumnEffectiveFrom].(time.Time))
		})

		current := lo.CountBy(versions, func(r warehouse.Row) bool { return r[warehouse.ColumnIsCurrent] == true })
		assert.Equal(t, 1, current, "%s '%s' must have exactly one current version", table.Name, nk)

		for i := 0; i < len(versions)-1; i++ {
			assert.Equal(t, versions[i+1][warehouse.ColumnEffectiveFrom], versions[i][warehouse.ColumnEffectiveTo],
				"%s '%s' version %d must end where the next one starts", table.Name, nk, i)
		}
	}
}
