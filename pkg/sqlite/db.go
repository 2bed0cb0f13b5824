// Package sqlite stores the warehouse in a single SQLite file.
package sqlite

import (
	"context"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/sqldb"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

func NewStore(ctx context.Context, c Config) (*sqldb.Store, error) {
	conn, err := sqlx.Open("sqlite", c.ToDBConnectionURI())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	// one connection: in-memory databases live and die with it
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to connect to sqlite at '%s'", c.Path)
	}

	return sqldb.NewStore(conn, ansisql.NewBuilder(ansisql.SQLite, ""), c.Path), nil
}
