package postgres

import (
	"context"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Client is a warehouse.Store backed by a pgx connection pool.
type Client struct {
	connection    connection
	builder       *ansisql.Builder
	schemaCreator *ansisql.SchemaCreator
	isolation     pgx.TxIsoLevel
}

type connection interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

func NewClient(ctx context.Context, c Config) (*Client, error) {
	isolation, err := c.IsolationLevel()
	if err != nil {
		return nil, err
	}

	conn, err := pgxpool.New(ctx, c.ToDBConnectionURI())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create postgres connection pool")
	}

	return newClient(conn, c.Schema, isolation), nil
}

func newClient(conn connection, schema string, isolation pgx.TxIsoLevel) *Client {
	builder := ansisql.NewBuilder(ansisql.Postgres, schema)
	return &Client{
		connection:    conn,
		builder:       builder,
		schemaCreator: ansisql.NewSchemaCreator(builder),
		isolation:     isolation,
	}
}

func (c *Client) RunQueryWithoutResult(ctx context.Context, query string) error {
	_, err := c.connection.Exec(ctx, query)
	if err != nil {
		return err
	}

	return nil
}

func (c *Client) EnsureTables(ctx context.Context, tables []*warehouse.Table) error {
	return c.schemaCreator.EnsureTables(ctx, c, tables)
}

func (c *Client) Begin(ctx context.Context) (warehouse.Tx, error) {
	tx, err := c.connection.BeginTx(ctx, pgx.TxOptions{IsoLevel: c.isolation})
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin postgres transaction")
	}
	return &Tx{tx: tx, builder: c.builder}, nil
}

func (c *Client) Close() error {
	c.connection.Close()
	return nil
}
