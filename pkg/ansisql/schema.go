package ansisql

import (
	"context"
	"sync"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

// SchemaCreator creates the warehouse tables once per process and remembers
// which schemas it has already ensured.
type SchemaCreator struct {
	builder         *Builder
	schemaNameCache *sync.Map
}

func NewSchemaCreator(b *Builder) *SchemaCreator {
	return &SchemaCreator{
		builder:         b,
		schemaNameCache: &sync.Map{},
	}
}

type queryRunner interface {
	RunQueryWithoutResult(ctx context.Context, query string) error
}

func (sc *SchemaCreator) CreateSchemaIfNotExist(ctx context.Context, qr queryRunner) error {
	createQuery := sc.builder.CreateSchema()
	if createQuery == "" {
		return nil
	}

	schemaName := sc.builder.Schema
	if _, exists := sc.schemaNameCache.Load(schemaName); exists {
		return nil
	}
	if err := qr.RunQueryWithoutResult(ctx, createQuery); err != nil {
		return errors.Wrapf(err, "failed to create or ensure schema: %s", schemaName)
	}
	sc.schemaNameCache.Store(schemaName, true)

	return nil
}

// EnsureTables creates the schema, the tables and their indexes when missing.
func (sc *SchemaCreator) EnsureTables(ctx context.Context, qr queryRunner, tables []*warehouse.Table) error {
	if err := sc.CreateSchemaIfNotExist(ctx, qr); err != nil {
		return err
	}

	for _, t := range tables {
		create, err := sc.builder.CreateTable(t)
		if err != nil {
			return err
		}
		for _, q := range append([]string{create}, sc.builder.CreateIndexes(t)...) {
			if err := qr.RunQueryWithoutResult(ctx, q); err != nil {
				return errors.Wrapf(err, "failed to create table %s", t.Name)
			}
		}
	}
	return nil
}
