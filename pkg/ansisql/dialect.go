package ansisql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
)

// Dialect captures the differences between the SQL engines the warehouse can
// live in.
type Dialect struct {
	Name string

	// NumberedPlaceholders selects $1, $2, ... instead of ?.
	NumberedPlaceholders bool
	Types                map[warehouse.ColumnType]string

	// Schemas is false for engines without CREATE SCHEMA.
	Schemas bool
	// PartialIndexes enables the unique index on the natural key of current
	// versions.
	PartialIndexes bool
	// SecondaryIndexes is false for DuckDB, which rewrites an update of an
	// indexed column into a delete and an insert.
	SecondaryIndexes bool
	// ReplaceByUpsert makes a Type-1 replace delete only the keys that left the
	// set and upsert the rest. DuckDB checks unique constraints eagerly, so
	// deleting and re-inserting a key in one transaction fails there.
	ReplaceByUpsert bool
}

var Postgres = Dialect{
	Name:                 "postgres",
	NumberedPlaceholders: true,
	Schemas:              true,
	PartialIndexes:       true,
	SecondaryIndexes:     true,
	Types: map[warehouse.ColumnType]string{
		warehouse.ColumnText:      "TEXT",
		warehouse.ColumnInteger:   "BIGINT",
		warehouse.ColumnFloat:     "DOUBLE PRECISION",
		warehouse.ColumnBoolean:   "BOOLEAN",
		warehouse.ColumnTimestamp: "TIMESTAMPTZ",
		warehouse.ColumnDate:      "DATE",
	},
}

var DuckDB = Dialect{
	Name:            "duckdb",
	Schemas:         true,
	ReplaceByUpsert: true,
	Types: map[warehouse.ColumnType]string{
		warehouse.ColumnText:      "VARCHAR",
		warehouse.ColumnInteger:   "BIGINT",
		warehouse.ColumnFloat:     "DOUBLE",
		warehouse.ColumnBoolean:   "BOOLEAN",
		warehouse.ColumnTimestamp: "TIMESTAMP",
		warehouse.ColumnDate:      "DATE",
	},
}

var SQLite = Dialect{
	Name:             "sqlite",
	PartialIndexes:   true,
	SecondaryIndexes: true,
	Types: map[warehouse.ColumnType]string{
		warehouse.ColumnText:      "TEXT",
		warehouse.ColumnInteger:   "INTEGER",
		warehouse.ColumnFloat:     "REAL",
		warehouse.ColumnBoolean:   "BOOLEAN",
		warehouse.ColumnTimestamp: "TIMESTAMP",
		warehouse.ColumnDate:      "DATE",
	},
}

func DialectByName(name string) (Dialect, bool) {
	for _, d := range []Dialect{Postgres, DuckDB, SQLite} {
		if d.Name == name {
			return d, true
		}
	}
	return Dialect{}, false
}

// QuoteIdentifier quotes an identifier, quoting each dot-separated part on its own.
// For example, "analytics.dim_host" becomes "\"analytics\".\"dim_host\"".
func QuoteIdentifier(identifier string) string {
	parts := strings.Split(identifier, ".")
	quotedParts := make([]string, len(parts))
	for i, part := range parts {
		quotedParts[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(part, `"`, `""`))
	}
	return strings.Join(quotedParts, ".")
}

func quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	return quoted
}

// Placeholder returns the bind parameter for the n-th argument, starting at 1.
func (d Dialect) Placeholder(n int) string {
	if d.NumberedPlaceholders {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) placeholders(from, count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = d.Placeholder(from + i)
	}
	return out
}
