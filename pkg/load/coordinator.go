// Package load turns one batch of snapshots into warehouse changes: Type-1
// dimensions are overwritten, Type-2 dimensions gain versions and facts are
// upserted by grain, all inside a single transaction.
package load

import (
	"context"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/derive"
	"github.com/bruin-data/staywarehouse/pkg/logger"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

type Options struct {
	FactBinding FactBinding
	// DeriveReferenceDimensions fills neighborhoods and property types from the
	// listings when the batch carries none.
	DeriveReferenceDimensions bool
	Deriver                   *derive.Deriver
	Now                       func() time.Time
}

func DefaultOptions() Options {
	d, _ := derive.NewDeriver(derive.DefaultPriceTiers(), derive.DefaultDaysPerMonth)
	return Options{
		FactBinding:               BindLoadTime,
		DeriveReferenceDimensions: true,
		Deriver:                   d,
		Now:                       time.Now,
	}
}

type Coordinator struct {
	store   warehouse.Store
	catalog *warehouse.Catalog
	deriver *derive.Deriver
	opts    Options
	logger  logger.Logger
}

func NewCoordinator(store warehouse.Store, catalog *warehouse.Catalog, logger logger.Logger, opts Options) (*Coordinator, error) {
	if opts.FactBinding == "" {
		opts.FactBinding = BindLoadTime
	}
	if !opts.FactBinding.Valid() {
		return nil, errors.Errorf("unknown fact binding '%s'", opts.FactBinding)
	}
	if opts.Deriver == nil {
		d, err := derive.NewDeriver(nil, 0)
		if err != nil {
			return nil, err
		}
		opts.Deriver = d
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if catalog == nil {
		catalog = warehouse.NewCatalog()
	}

	return &Coordinator{
		store:   store,
		catalog: catalog,
		deriver: opts.Deriver,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Load applies one batch. The returned report is never nil; when an error is
// returned the report has status failed and nothing was committed.
func (c *Coordinator) Load(ctx context.Context, batch *snapshot.Batch) (*Report, error) {
	report := &Report{
		BatchID:    batch.ID,
		IngestedAt: batch.IngestedAt,
		State:      StatePending,
		StartedAt:  c.opts.Now(),
	}
	for _, t := range c.catalog.Tables() {
		report.Table(t.Name)
	}
	m := &machine{report: report, logger: c.logger, now: c.opts.Now}
	m.record(StatePending)

	defer func() {
		report.FinishedAt = c.opts.Now()
	}()

	fail := func(err error) (*Report, error) {
		m.fail(err)
		return report, err
	}

	if err := batch.Prepare(); err != nil {
		return fail(errors.Wrap(ErrInvalidBatch, err.Error()))
	}
	report.BatchID = batch.ID
	report.IngestedAt = batch.IngestedAt

	p, err := c.plan(batch)
	if err != nil {
		return fail(err)
	}

	c.logger.Infow("loading batch", "batch_id", batch.ID, "ingested_at", batch.IngestedAt,
		"hosts", len(p.hosts), "listings", len(p.listings), "metrics", len(p.metrics), "reviews", len(p.reviews))

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fail(errors.Wrap(err, "failed to begin transaction"))
	}

	if err := c.apply(ctx, tx, batch, p, m); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			c.logger.Warnw("rollback failed", "batch_id", batch.ID, "error", rbErr)
		}
		return fail(err)
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return fail(errors.Wrap(err, "failed to commit"))
	}
	if err := m.advance(StateCommitted); err != nil {
		return fail(err)
	}
	report.Status = StatusCommitted

	c.logger.Infow("batch committed", "batch_id", batch.ID, "rejected", len(report.Rejections))
	return report, nil
}

func (c *Coordinator) apply(ctx context.Context, tx warehouse.Tx, batch *snapshot.Batch, p *plan, m *machine) error {
	cat := c.catalog
	report := m.report

	for _, step := range []struct {
		table *warehouse.Table
		rows  []warehouse.Row
	}{
		{cat.Neighborhood, p.neighborhoods},
		{cat.PropertyType, p.propertyTypes},
		{cat.Date, p.dates},
	} {
		if err := c.loadTypeOne(ctx, tx, step.table, step.rows, report); err != nil {
			return err
		}
	}
	if err := m.advance(StateTypeOneLoaded); err != nil {
		return err
	}

	if err := c.loadTypeTwo(ctx, tx, cat.Host, p.hosts, batch.IngestedAt, report); err != nil {
		return err
	}
	if err := c.loadTypeTwo(ctx, tx, cat.Listing, p.listings, batch.IngestedAt, report); err != nil {
		return err
	}
	if err := m.advance(StateTypeTwoLoaded); err != nil {
		return err
	}

	r := newResolver(tx, c.opts.FactBinding)
	w := &factWriter{
		tx:       tx,
		report:   report,
		batchID:  batch.ID,
		loadedAt: warehouse.Timestamp(c.opts.Now()),
	}
	if err := c.loadMetrics(ctx, r, p.metrics, w); err != nil {
		return err
	}
	if err := c.loadReviews(ctx, r, p.reviews, w); err != nil {
		return err
	}
	if len(report.Rejections) > 0 {
		c.logger.Warnw("rejected fact rows", "batch_id", batch.ID, "count", len(report.Rejections))
	}
	return m.advance(StateFactsLoaded)
}
