// Package sqldb implements warehouse.Store on top of database/sql for the
// embedded engines. Writers are serialized per database file, so a transaction
// holds the whole database until it ends.
package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Store struct {
	db            *sqlx.DB
	builder       *ansisql.Builder
	schemaCreator *ansisql.SchemaCreator
	lockKey       string
}

// NewStore wraps an open database. path identifies the database file for the
// writer lock; in-memory databases get a lock of their own.
func NewStore(db *sqlx.DB, builder *ansisql.Builder, path string) *Store {
	if path == "" || strings.Contains(path, ":memory:") {
		path = fmt.Sprintf("%s#%s", path, uuid.NewString())
	}

	return &Store{
		db:            db,
		builder:       builder,
		schemaCreator: ansisql.NewSchemaCreator(builder),
		lockKey:       path,
	}
}

func (s *Store) Builder() *ansisql.Builder {
	return s.builder
}

func (s *Store) RunQueryWithoutResult(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return err
	}

	return nil
}

func (s *Store) EnsureTables(ctx context.Context, tables []*warehouse.Table) error {
	release, err := LockDatabase(ctx, s.lockKey)
	if err != nil {
		return err
	}
	defer release()

	return s.schemaCreator.EnsureTables(ctx, s, tables)
}

func (s *Store) Begin(ctx context.Context) (warehouse.Tx, error) {
	release, err := LockDatabase(ctx, s.lockKey)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "failed to begin %s transaction", s.builder.Dialect.Name)
	}

	return &Tx{tx: tx, builder: s.builder, release: release}, nil
}

// Rows returns every stored row of a table ordered by its primary key.
func (s *Store) Rows(ctx context.Context, table *warehouse.Table) ([]warehouse.Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted(table.ColumnNames()), ", "),
		s.builder.TableName(table),
		strings.Join(quoted(table.PrimaryKey()), ", "),
	)

	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanRows(table, rows)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func quoted(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ansisql.QuoteIdentifier(n)
	}
	return out
}

func scanRows(table *warehouse.Table, rows *sqlx.Rows) ([]warehouse.Row, error) {
	defer rows.Close()

	var out []warehouse.Row
	for rows.Next() {
		raw := make(map[string]any)
		if err := rows.MapScan(raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan row values")
		}
		row, err := table.Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
