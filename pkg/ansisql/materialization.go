package ansisql

import (
	"fmt"
	"strings"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/samber/lo"
)

func (b *Builder) selectColumns(t *warehouse.Table) string {
	return strings.Join(quoteAll(t.ColumnNames()), ", ")
}

func (b *Builder) where(columns []string, from int) string {
	conditions := make([]string, len(columns))
	for i, c := range columns {
		conditions[i] = fmt.Sprintf("%s = %s", QuoteIdentifier(c), b.Dialect.Placeholder(from+i))
	}
	return strings.Join(conditions, " AND ")
}

// CurrentVersionQuery selects the current version of a natural key. It takes the
// natural key and true as arguments.
func (b *Builder) CurrentVersionQuery(t *warehouse.Table, forUpdate bool) string {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		b.selectColumns(t), b.TableName(t), b.where([]string{t.NaturalKey, warehouse.ColumnIsCurrent}, 1))
	if forUpdate {
		q += " FOR UPDATE"
	}
	return q
}

// VersionAtQuery selects the version whose validity interval contains a point in
// time. It takes the natural key and the point in time twice.
func (b *Builder) VersionAtQuery(t *warehouse.Table) string {
	d := b.Dialect
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s <= %s AND (%s IS NULL OR %s > %s) ORDER BY %s DESC LIMIT 1",
		b.selectColumns(t), b.TableName(t),
		QuoteIdentifier(t.NaturalKey), d.Placeholder(1),
		QuoteIdentifier(warehouse.ColumnEffectiveFrom), d.Placeholder(2),
		QuoteIdentifier(warehouse.ColumnEffectiveTo), QuoteIdentifier(warehouse.ColumnEffectiveTo), d.Placeholder(3),
		QuoteIdentifier(warehouse.ColumnEffectiveFrom),
	)
}

// CloseVersionQuery ends a current version. It takes the closing time, false,
// the surrogate key and true as arguments.
func (b *Builder) CloseVersionQuery(t *warehouse.Table) string {
	d := b.Dialect
	return fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s AND %s = %s",
		b.TableName(t),
		QuoteIdentifier(warehouse.ColumnEffectiveTo), d.Placeholder(1),
		QuoteIdentifier(warehouse.ColumnIsCurrent), d.Placeholder(2),
		QuoteIdentifier(t.SurrogateKey), d.Placeholder(3),
		QuoteIdentifier(warehouse.ColumnIsCurrent), d.Placeholder(4),
	)
}

// InsertQuery inserts one row with every stored column, in ColumnNames order.
func (b *Builder) InsertQuery(t *warehouse.Table) string {
	columns := t.ColumnNames()
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.TableName(t),
		strings.Join(quoteAll(columns), ", "),
		strings.Join(b.Dialect.placeholders(1, len(columns)), ", "),
	)
}

// UpsertQuery inserts one row or overwrites the row that conflicts on the given
// columns. Key columns are never updated.
func (b *Builder) UpsertQuery(t *warehouse.Table, conflict []string) string {
	columns := t.ColumnNames()
	keys := lo.Union(conflict, t.PrimaryKey())

	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if lo.Contains(keys, c) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", QuoteIdentifier(c), QuoteIdentifier(c)))
	}

	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return fmt.Sprintf("%s ON CONFLICT (%s) %s", b.InsertQuery(t), strings.Join(quoteAll(conflict), ", "), action)
}

// DeleteMissingQuery deletes the rows whose natural key is not among count
// arguments. With no arguments it empties the table.
func (b *Builder) DeleteMissingQuery(t *warehouse.Table, count int) string {
	if count == 0 {
		return "DELETE FROM " + b.TableName(t)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s NOT IN (%s)",
		b.TableName(t), QuoteIdentifier(t.NaturalKey), strings.Join(b.Dialect.placeholders(1, count), ", "))
}

// CountMissingQuery counts the rows a DeleteMissingQuery with the same arguments
// would delete.
func (b *Builder) CountMissingQuery(t *warehouse.Table, count int) string {
	return strings.Replace(b.DeleteMissingQuery(t, count), "DELETE FROM", "SELECT COUNT(*) FROM", 1)
}

// LookupKeyQuery selects the surrogate key of a Type-1 natural key.
func (b *Builder) LookupKeyQuery(t *warehouse.Table) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		QuoteIdentifier(t.SurrogateKey), b.TableName(t), b.where([]string{t.NaturalKey}, 1))
}

// FindRowQuery selects the fact row with the given grain, arguments in grain order.
func (b *Builder) FindRowQuery(t *warehouse.Table) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", b.selectColumns(t), b.TableName(t), b.where(t.Grain, 1))
}
