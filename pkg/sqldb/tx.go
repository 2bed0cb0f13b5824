package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Tx struct {
	tx      *sqlx.Tx
	builder *ansisql.Builder
	release func()
}

// LockKey is a no-op: the transaction already holds the database writer lock.
func (t *Tx) LockKey(context.Context, *warehouse.Table, string) error {
	return nil
}

func (t *Tx) collect(ctx context.Context, table *warehouse.Table, query string, args ...any) ([]warehouse.Row, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(table, rows)
}

func (t *Tx) single(table *warehouse.Table, rows []warehouse.Row) (*warehouse.Version, error) {
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return warehouse.VersionFromRow(table, rows[0])
	default:
		return nil, errors.Errorf("%s returned %d versions where one was expected", table.Name, len(rows))
	}
}

func (t *Tx) CurrentVersion(ctx context.Context, table *warehouse.Table, naturalKey string) (*warehouse.Version, error) {
	rows, err := t.collect(ctx, table, t.builder.CurrentVersionQuery(table, false), naturalKey, true)
	if err != nil {
		return nil, err
	}
	return t.single(table, rows)
}

func (t *Tx) VersionAt(ctx context.Context, table *warehouse.Table, naturalKey string, at time.Time) (*warehouse.Version, error) {
	at = warehouse.Timestamp(at)
	rows, err := t.collect(ctx, table, t.builder.VersionAtQuery(table), naturalKey, at, at)
	if err != nil {
		return nil, err
	}
	return t.single(table, rows)
}

func (t *Tx) CloseVersion(ctx context.Context, table *warehouse.Table, surrogateKey string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.builder.CloseVersionQuery(table), warehouse.Timestamp(at), false, surrogateKey, true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *Tx) InsertVersion(ctx context.Context, table *warehouse.Table, v *warehouse.Version) error {
	return t.exec(ctx, table, t.builder.InsertQuery(table), v.Row(table))
}

func (t *Tx) exec(ctx context.Context, table *warehouse.Table, query string, r warehouse.Row) error {
	row, err := table.Normalize(r)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, query, row.Pick(table.ColumnNames())...)
	return err
}

// ReplaceRows deletes the stored rows and inserts the new set. Dialects that
// cannot delete and re-insert a key in one transaction only delete the keys that
// left the set and upsert the rest.
func (t *Tx) ReplaceRows(ctx context.Context, table *warehouse.Table, rows []warehouse.Row) (int64, error) {
	normalized := make([]warehouse.Row, len(rows))
	keys := make([]any, len(rows))
	for i, r := range rows {
		row, err := table.Normalize(r)
		if err != nil {
			return 0, err
		}
		normalized[i] = row
		keys[i] = row[table.NaturalKey]
	}

	var removed int64
	if err := t.tx.QueryRowxContext(ctx, t.builder.CountMissingQuery(table, len(keys)), keys...).Scan(&removed); err != nil {
		return 0, errors.Wrap(err, "failed to count removed rows")
	}

	write := t.builder.InsertQuery(table)
	if t.builder.Dialect.ReplaceByUpsert {
		if _, err := t.tx.ExecContext(ctx, t.builder.DeleteMissingQuery(table, len(keys)), keys...); err != nil {
			return 0, err
		}
		write = t.builder.UpsertQuery(table, []string{table.NaturalKey})
	} else if _, err := t.tx.ExecContext(ctx, t.builder.DeleteMissingQuery(table, 0)); err != nil {
		return 0, err
	}

	for _, row := range normalized {
		if _, err := t.tx.ExecContext(ctx, write, row.Pick(table.ColumnNames())...); err != nil {
			return 0, errors.Wrapf(err, "failed to write %s row %v", table.Name, row[table.NaturalKey])
		}
	}
	return removed, nil
}

func (t *Tx) MergeRows(ctx context.Context, table *warehouse.Table, rows []warehouse.Row) error {
	q := t.builder.UpsertQuery(table, []string{table.NaturalKey})
	for _, r := range rows {
		if err := t.exec(ctx, table, q, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) LookupKey(ctx context.Context, table *warehouse.Table, naturalKey any) (string, bool, error) {
	var sk string
	err := t.tx.QueryRowxContext(ctx, t.builder.LookupKeyQuery(table), naturalKey).Scan(&sk)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sk, true, nil
}

func (t *Tx) FindRow(ctx context.Context, table *warehouse.Table, grain warehouse.Row) (warehouse.Row, error) {
	normalized, err := table.Normalize(grain)
	if err != nil {
		return nil, err
	}
	rows, err := t.collect(ctx, table, t.builder.FindRowQuery(table), normalized.Pick(table.Grain)...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *Tx) UpsertRow(ctx context.Context, table *warehouse.Table, row warehouse.Row) error {
	return t.exec(ctx, table, t.builder.UpsertQuery(table, table.Grain), row)
}

// Commit refuses to commit once ctx is done and rolls back instead.
func (t *Tx) Commit(ctx context.Context) error {
	defer t.release()

	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback()
		return errors.Wrap(err, "transaction not committed")
	}
	return t.tx.Commit()
}

func (t *Tx) Rollback(context.Context) error {
	defer t.release()

	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
