package load

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/memory"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	t1 = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	t2 = t1.Add(24 * time.Hour)
	t3 = t2.Add(24 * time.Hour)
)

func ptr[T any](v T) *T {
	return &v
}

func newCoordinator(t *testing.T, store warehouse.Store, opts ...func(*Options)) *Coordinator {
	t.Helper()

	o := DefaultOptions()
	o.Now = func() time.Time { return t3.Add(time.Hour) }
	for _, opt := range opts {
		opt(&o)
	}

	c, err := NewCoordinator(store, warehouse.NewCatalog(), zap.NewNop().Sugar(), o)
	require.NoError(t, err)
	return c
}

func host(id string, superhost bool) snapshot.Host {
	return snapshot.Host{
		HostID:            id,
		HostName:          ptr("Alice"),
		HostIsSuperhost:   ptr(superhost),
		HostListingsCount: ptr(int64(1)),
	}
}

func listing(id, hostID string) snapshot.Listing {
	return snapshot.Listing{
		ListingID:         id,
		HostID:            hostID,
		ListingName:       ptr("Sunny loft"),
		PropertyType:      ptr("Loft"),
		RoomType:          ptr("Entire home/apt"),
		Accommodates:      ptr(int64(2)),
		Amenities:         []string{"wifi", "kitchen"},
		Neighborhood:      ptr("Harlem"),
		NeighborhoodGroup: ptr("Manhattan"),
	}
}

func metric(listingID string, day snapshot.Date, price float64, availability int64) snapshot.ListingMetric {
	return snapshot.ListingMetric{
		MetricDate:      day,
		ListingID:       listingID,
		Price:           ptr(price),
		Availability365: ptr(availability),
		NumberOfReviews: ptr(int64(12)),
	}
}

func rowsOf(s *memory.Store, table, column string, value any) []warehouse.Row {
	return lo.Filter(s.Rows(table), func(r warehouse.Row, _ int) bool {
		return warehouse.ValuesEqual(r[column], value)
	})
}

// assertTimeline checks that every natural key has at most one current version
// and that its intervals are contiguous and never overlap.
func assertTimeline(t *testing.T, s *memory.Store, table *warehouse.Table) {
	t.Helper()

	byKey := lo.GroupBy(s.Rows(table.Name), func(r warehouse.Row) string {
		return r[table.NaturalKey].(string)
	})
	for nk, rows := range byKey {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i][warehouse.ColumnEffectiveFrom].(time.Time).Before(rows[j][warehouse.ColumnEffectiveFrom].(time.Time))
		})

		current := lo.CountBy(rows, func(r warehouse.Row) bool { return r[warehouse.ColumnIsCurrent] == true })
		assert.Equal(t, 1, current, "%s '%s' must have exactly one current version", table.Name, nk)

		for i, r := range rows {
			last := i == len(rows)-1
			if last {
				assert.Nil(t, r[warehouse.ColumnEffectiveTo], "%s '%s' latest version must be open", table.Name, nk)
				assert.Equal(t, true, r[warehouse.ColumnIsCurrent])
				continue
			}
			assert.Equal(t, false, r[warehouse.ColumnIsCurrent])
			assert.Equal(t, rows[i+1][warehouse.ColumnEffectiveFrom], r[warehouse.ColumnEffectiveTo],
				"%s '%s' version %d must end where the next one starts", table.Name, nk, i)
		}
	}
}

// faultyStore wraps a store to count transactions and inject failures.
type faultyStore struct {
	warehouse.Store

	begins     atomic.Int32
	failUpsert error
	onUpsert   func()
}

func (s *faultyStore) Begin(ctx context.Context) (warehouse.Tx, error) {
	s.begins.Add(1)
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: s}, nil
}

type faultyTx struct {
	warehouse.Tx
	store *faultyStore
}

func (tx *faultyTx) UpsertRow(ctx context.Context, t *warehouse.Table, row warehouse.Row) error {
	if tx.store.failUpsert != nil {
		return errors.WithStack(tx.store.failUpsert)
	}
	if tx.store.onUpsert != nil {
		tx.store.onUpsert()
	}
	return tx.Tx.UpsertRow(ctx, t, row)
}
