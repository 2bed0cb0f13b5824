package ansisql

import (
	"fmt"
	"strings"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

// Builder renders statements for one dialect and schema.
type Builder struct {
	Dialect Dialect
	Schema  string
}

func NewBuilder(d Dialect, schema string) *Builder {
	if !d.Schemas {
		schema = ""
	}
	return &Builder{Dialect: d, Schema: schema}
}

// TableName returns the quoted, schema-qualified table name.
func (b *Builder) TableName(t *warehouse.Table) string {
	if b.Schema == "" {
		return QuoteIdentifier(t.Name)
	}
	return QuoteIdentifier(b.Schema + "." + t.Name)
}

func (b *Builder) indexName(t *warehouse.Table, suffix string) string {
	return QuoteIdentifier(fmt.Sprintf("%s_%s", t.Name, suffix))
}

func (b *Builder) CreateSchema() string {
	if b.Schema == "" {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdentifier(b.Schema)
}

func (b *Builder) CreateTable(t *warehouse.Table) (string, error) {
	columns := t.StoredColumns()
	columnDefs := make([]string, 0, len(columns)+3)

	for _, col := range columns {
		typ, ok := b.Dialect.Types[col.Type]
		if !ok {
			return "", errors.Errorf("%s has no type for column %s.%s (%s)", b.Dialect.Name, t.Name, col.Name, col.Type)
		}
		def := fmt.Sprintf("%s %s", QuoteIdentifier(col.Name), typ)
		if !col.Nullable {
			def += " NOT NULL"
		}
		columnDefs = append(columnDefs, def)
	}

	columnDefs = append(columnDefs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoteAll(t.PrimaryKey()), ", ")))
	for _, unique := range t.UniqueKeys() {
		columnDefs = append(columnDefs, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoteAll(unique), ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		b.TableName(t),
		strings.Join(columnDefs, ",\n    "),
	), nil
}

// CreateIndexes returns the secondary indexes of a table. Type-2 tables get a
// unique index over the natural key of current versions where the engine
// supports partial indexes, and a plain lookup index otherwise.
func (b *Builder) CreateIndexes(t *warehouse.Table) []string {
	if !b.Dialect.SecondaryIndexes {
		return nil
	}

	var indexes []string
	on := func(name string, unique bool, columns []string, where string) {
		kind := "INDEX"
		if unique {
			kind = "UNIQUE INDEX"
		}
		stmt := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, b.indexName(t, name), b.TableName(t), strings.Join(quoteAll(columns), ", "))
		if where != "" {
			stmt += " WHERE " + where
		}
		indexes = append(indexes, stmt)
	}

	switch t.Kind {
	case warehouse.KindTypeTwo:
		if b.Dialect.PartialIndexes {
			on("current_uidx", true, []string{t.NaturalKey}, QuoteIdentifier(warehouse.ColumnIsCurrent))
		} else {
			on("current_idx", false, []string{t.NaturalKey, warehouse.ColumnIsCurrent}, "")
		}
	case warehouse.KindFact:
		if _, ok := t.Column("listing_key"); ok {
			on("listing_key_idx", false, []string{"listing_key"}, "")
		}
	case warehouse.KindTypeOne:
	}
	return indexes
}

// DDL returns every statement needed to create the tables, in order.
func (b *Builder) DDL(tables []*warehouse.Table) ([]string, error) {
	var statements []string
	if s := b.CreateSchema(); s != "" {
		statements = append(statements, s)
	}
	for _, t := range tables {
		create, err := b.CreateTable(t)
		if err != nil {
			return nil, err
		}
		statements = append(statements, create)
		statements = append(statements, b.CreateIndexes(t)...)
	}
	return statements, nil
}

// Script joins statements into one executable SQL script.
func Script(statements []string) string {
	if len(statements) == 0 {
		return ""
	}
	return strings.Join(statements, ";\n\n") + ";\n"
}
