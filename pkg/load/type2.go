package load

import (
	"context"
	"sort"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func newSurrogateKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate surrogate key")
	}
	return id.String(), nil
}

// loadTypeTwo applies one batch to a Type-2 dimension. For every natural key it
// opens a first version, closes the current version and opens its successor, or
// does nothing when no tracked attribute changed. Keys are visited in sorted
// order so concurrent loads lock them in the same sequence.
func (c *Coordinator) loadTypeTwo(ctx context.Context, tx warehouse.Tx, t *warehouse.Table, rows []warehouse.Row, at time.Time, report *Report) error {
	tr := report.Table(t.Name)

	sorted := make([]warehouse.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][t.NaturalKey].(string) < sorted[j][t.NaturalKey].(string)
	})

	for _, row := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}

		nk := row[t.NaturalKey].(string)
		if err := tx.LockKey(ctx, t, nk); err != nil {
			return errors.Wrapf(err, "failed to lock %s '%s'", t.Name, nk)
		}

		current, err := tx.CurrentVersion(ctx, t, nk)
		if err != nil {
			return errors.Wrapf(err, "failed to read the current version of %s '%s'", t.Name, nk)
		}

		if current == nil {
			if err := c.openVersion(ctx, tx, t, nk, row, at); err != nil {
				return err
			}
			tr.Inserted++
			continue
		}

		changed := t.TrackedChanges(current.Attributes, row)
		if len(changed) == 0 {
			tr.Unchanged++
			continue
		}

		if !at.After(current.EffectiveFrom) {
			return errors.Wrapf(ErrOutOfOrderBatch, "%s '%s' changed at %s but its current version starts at %s",
				t.Name, nk, at.Format(time.RFC3339Nano), current.EffectiveFrom.Format(time.RFC3339Nano))
		}

		closed, err := tx.CloseVersion(ctx, t, current.SurrogateKey, at)
		if err != nil {
			return errors.Wrapf(err, "failed to close version %s of %s '%s'", current.SurrogateKey, t.Name, nk)
		}
		if closed != 1 {
			return errors.Wrapf(ErrConcurrentModification, "closing version %s of %s '%s' affected %d rows",
				current.SurrogateKey, t.Name, nk, closed)
		}
		tr.Closed++

		if err := c.openVersion(ctx, tx, t, nk, row, at); err != nil {
			return err
		}
		tr.Inserted++

		c.logger.Debugw("opened new version", "table", t.Name, "key", nk, "changed", changed)
	}

	return nil
}

func (c *Coordinator) openVersion(ctx context.Context, tx warehouse.Tx, t *warehouse.Table, nk string, row warehouse.Row, at time.Time) error {
	sk, err := newSurrogateKey()
	if err != nil {
		return err
	}

	v := &warehouse.Version{
		SurrogateKey:  sk,
		NaturalKey:    nk,
		Attributes:    make(warehouse.Row, len(t.Columns)),
		EffectiveFrom: at,
		IsCurrent:     true,
	}
	for _, name := range t.AttributeNames() {
		v.Attributes[name] = row[name]
	}

	if err := tx.InsertVersion(ctx, t, v); err != nil {
		return errors.Wrapf(err, "failed to insert version of %s '%s'", t.Name, nk)
	}
	return nil
}
