package cmd

import (
	"context"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/config"
	duck "github.com/bruin-data/staywarehouse/pkg/duckdb"
	"github.com/bruin-data/staywarehouse/pkg/memory"
	"github.com/bruin-data/staywarehouse/pkg/postgres"
	"github.com/bruin-data/staywarehouse/pkg/sqlite"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

func openStore(ctx context.Context, w config.Warehouse) (warehouse.Store, error) {
	switch w.Type {
	case config.WarehousePostgres:
		client, err := postgres.NewClient(ctx, postgres.Config{
			URI:          w.URI,
			Schema:       w.Schema,
			PoolMaxConns: w.PoolMaxConns,
			Isolation:    w.Isolation,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.WarehouseDuckDB:
		store, err := duck.NewStore(ctx, duck.Config{Path: w.Path, Schema: w.Schema})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.WarehouseSQLite:
		store, err := sqlite.NewStore(ctx, sqlite.Config{Path: w.Path})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.WarehouseMemory:
		return memory.NewStore(), nil
	default:
		return nil, errors.Errorf("unsupported warehouse type '%s'", w.Type)
	}
}

func builderFor(dialectName, schema string) (*ansisql.Builder, error) {
	dialect, ok := ansisql.DialectByName(dialectName)
	if !ok {
		return nil, errors.Errorf("unknown SQL dialect '%s', possible values are: postgres, duckdb, sqlite", dialectName)
	}
	return ansisql.NewBuilder(dialect, schema), nil
}
