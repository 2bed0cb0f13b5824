package load

import (
	"fmt"
	"strings"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

// rowKey renders the identifying columns of a row, e.g. "20240101/L1".
func rowKey(t *warehouse.Table, row warehouse.Row) string {
	columns := t.KeyColumns()
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprint(row[c])
	}
	return strings.Join(parts, "/")
}

func checkKeys(t *warehouse.Table, row warehouse.Row) error {
	for _, c := range t.KeyColumns() {
		switch v := row[c].(type) {
		case nil:
			return errors.Wrapf(ErrInvalidBatch, "%s row has no %s", t.Name, c)
		case string:
			if strings.TrimSpace(v) == "" {
				return errors.Wrapf(ErrInvalidBatch, "%s row has an empty %s", t.Name, c)
			}
		}
	}
	return nil
}

// dedupe collapses rows that repeat a key with identical values and fails on
// rows that repeat a key with different values. First occurrences keep their
// order.
func dedupe(t *warehouse.Table, rows []warehouse.Row) ([]warehouse.Row, error) {
	out := make([]warehouse.Row, 0, len(rows))
	seen := make(map[string]warehouse.Row, len(rows))

	for _, row := range rows {
		if err := checkKeys(t, row); err != nil {
			return nil, err
		}

		key := rowKey(t, row)
		prev, ok := seen[key]
		if !ok {
			seen[key] = row
			out = append(out, row)
			continue
		}

		if changed := warehouse.ChangedColumns(prev, row, t.ComparableNames()); len(changed) > 0 {
			return nil, &AmbiguousBatchError{Table: t.Name, Key: key, Columns: changed}
		}
	}
	return out, nil
}
