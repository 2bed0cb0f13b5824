package load

import (
	"context"
	"fmt"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/bruin-data/staywarehouse"))

// TypeOneKey derives the surrogate key of a Type-1 row from its natural key, so
// the key survives the table being replaced.
func TypeOneKey(table string, naturalKey any) string {
	return uuid.NewSHA1(keyNamespace, []byte(fmt.Sprintf("%s:%v", table, naturalKey))).String()
}

// loadTypeOne overwrites a Type-1 table with the incoming set. An empty set
// leaves the table untouched.
func (c *Coordinator) loadTypeOne(ctx context.Context, tx warehouse.Tx, t *warehouse.Table, rows []warehouse.Row, report *Report) error {
	if len(rows) == 0 {
		c.logger.Debugw("no incoming rows, keeping table as is", "table", t.Name)
		return nil
	}

	keyed := make([]warehouse.Row, len(rows))
	for i, row := range rows {
		keyed[i] = row.Clone()
		if t.SurrogateKey != "" {
			keyed[i][t.SurrogateKey] = TypeOneKey(t.Name, row[t.NaturalKey])
		}
	}

	tr := report.Table(t.Name)
	switch t.Strategy {
	case warehouse.WriteStrategyMerge:
		if err := tx.MergeRows(ctx, t, keyed); err != nil {
			return errors.Wrapf(err, "failed to merge %s", t.Name)
		}
	default:
		removed, err := tx.ReplaceRows(ctx, t, keyed)
		if err != nil {
			return errors.Wrapf(err, "failed to replace %s", t.Name)
		}
		tr.Removed += removed
	}
	tr.Upserted += int64(len(keyed))

	c.logger.Debugw("loaded type-1 dimension", "table", t.Name, "rows", len(keyed), "removed", tr.Removed)
	return nil
}
