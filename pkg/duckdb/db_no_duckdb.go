//go:build staywarehouse_no_duckdb

package duck

import (
	"context"

	"github.com/bruin-data/staywarehouse/pkg/sqldb"
	"github.com/pkg/errors"
)

func NewStore(ctx context.Context, c Config) (*sqldb.Store, error) {
	return nil, errors.New("duckDB not supported")
}
