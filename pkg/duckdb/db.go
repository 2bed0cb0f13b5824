//go:build !staywarehouse_no_duckdb

package duck

import (
	"context"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/sqldb"
	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb" //nolint:stylecheck
	"github.com/pkg/errors"
)

// NewStore opens the DuckDB database described by c.
func NewStore(ctx context.Context, c Config) (*sqldb.Store, error) {
	conn, err := sqlx.Open("duckdb", c.ToDBConnectionURI())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open duckdb")
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to connect to duckdb at '%s'", c.Path)
	}

	return sqldb.NewStore(conn, ansisql.NewBuilder(ansisql.DuckDB, c.schema()), c.Path), nil
}
