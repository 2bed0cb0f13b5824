package postgres

import (
	"context"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const advisoryLockQuery = "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))"

// SHARE ROW EXCLUSIVE conflicts with itself, so a second replace of the same
// table waits for the first transaction to end and then sees its rows.
func lockTableQuery(table string) string {
	return "LOCK TABLE " + table + " IN SHARE ROW EXCLUSIVE MODE"
}

type Tx struct {
	tx      pgx.Tx
	builder *ansisql.Builder
}

// LockKey takes a transaction-scoped advisory lock on the natural key, so two
// loads changing the same key run one after the other.
func (t *Tx) LockKey(ctx context.Context, table *warehouse.Table, naturalKey string) error {
	_, err := t.tx.Exec(ctx, advisoryLockQuery, table.Name+":"+naturalKey)
	return err
}

func (t *Tx) collect(ctx context.Context, table *warehouse.Table, query string, args ...any) ([]warehouse.Row, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect row values")
	}

	out := make([]warehouse.Row, len(collected))
	for i, r := range collected {
		row, err := table.Normalize(r)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
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
	rows, err := t.collect(ctx, table, t.builder.CurrentVersionQuery(table, true), naturalKey, true)
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
	tag, err := t.tx.Exec(ctx, t.builder.CloseVersionQuery(table), warehouse.Timestamp(at), false, surrogateKey, true)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) InsertVersion(ctx context.Context, table *warehouse.Table, v *warehouse.Version) error {
	row, err := table.Normalize(v.Row(table))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, t.builder.InsertQuery(table), row.Pick(table.ColumnNames())...)
	return err
}

func (t *Tx) identifier(table *warehouse.Table) pgx.Identifier {
	if t.builder.Schema == "" {
		return pgx.Identifier{table.Name}
	}
	return pgx.Identifier{t.builder.Schema, table.Name}
}

// ReplaceRows locks the table against concurrent replaces, empties it and
// copies the rows in.
func (t *Tx) ReplaceRows(ctx context.Context, table *warehouse.Table, rows []warehouse.Row) (int64, error) {
	keys := make([]any, len(rows))
	values := make([][]any, len(rows))
	for i, r := range rows {
		row, err := table.Normalize(r)
		if err != nil {
			return 0, err
		}
		keys[i] = row[table.NaturalKey]
		values[i] = row.Pick(table.ColumnNames())
	}

	if _, err := t.tx.Exec(ctx, lockTableQuery(t.builder.TableName(table))); err != nil {
		return 0, errors.Wrapf(err, "failed to lock %s", table.Name)
	}

	var removed int64
	if err := t.tx.QueryRow(ctx, t.builder.CountMissingQuery(table, len(keys)), keys...).Scan(&removed); err != nil {
		return 0, errors.Wrap(err, "failed to count removed rows")
	}
	if _, err := t.tx.Exec(ctx, t.builder.DeleteMissingQuery(table, 0)); err != nil {
		return 0, err
	}
	if _, err := t.tx.CopyFrom(ctx, t.identifier(table), table.ColumnNames(), pgx.CopyFromRows(values)); err != nil {
		return 0, errors.Wrapf(err, "failed to copy rows into %s", table.Name)
	}
	return removed, nil
}

func (t *Tx) upsert(ctx context.Context, table *warehouse.Table, conflict []string, r warehouse.Row) error {
	row, err := table.Normalize(r)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, t.builder.UpsertQuery(table, conflict), row.Pick(table.ColumnNames())...)
	return err
}

func (t *Tx) MergeRows(ctx context.Context, table *warehouse.Table, rows []warehouse.Row) error {
	for _, r := range rows {
		if err := t.upsert(ctx, table, []string{table.NaturalKey}, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) LookupKey(ctx context.Context, table *warehouse.Table, naturalKey any) (string, bool, error) {
	var sk string
	err := t.tx.QueryRow(ctx, t.builder.LookupKeyQuery(table), naturalKey).Scan(&sk)
	if errors.Is(err, pgx.ErrNoRows) {
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
	return t.upsert(ctx, table, table.Grain, row)
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
