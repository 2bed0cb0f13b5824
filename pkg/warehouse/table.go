package warehouse

type Kind string

const (
	KindTypeOne Kind = "type1"
	KindTypeTwo Kind = "type2"
	KindFact    Kind = "fact"
)

// WriteStrategy decides how a Type-1 table absorbs an incoming row set.
type WriteStrategy string

const (
	// WriteStrategyReplace swaps the whole table contents for the incoming set.
	WriteStrategyReplace WriteStrategy = "replace"
	// WriteStrategyMerge overwrites rows by natural key and never deletes.
	WriteStrategyMerge WriteStrategy = "merge"
)

type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnInteger   ColumnType = "integer"
	ColumnFloat     ColumnType = "float"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnDate      ColumnType = "date"
)

// Validity columns maintained on every Type-2 table.
const (
	ColumnEffectiveFrom = "effective_from"
	ColumnEffectiveTo   = "effective_to"
	ColumnIsCurrent     = "is_current"
)

type Column struct {
	Name        string
	Type        ColumnType
	Description string
	// Tracked marks Type-2 attributes whose change opens a new version.
	Tracked bool
	// Audit columns are written but ignored when deciding whether a row changed.
	Audit bool
	// Nullable is false for keys and grain columns.
	Nullable bool
}

type Table struct {
	Name        string
	Kind        Kind
	Description string

	// SurrogateKey is empty when the natural key doubles as the key (dim_date).
	SurrogateKey string
	NaturalKey   string
	Grain        []string
	Strategy     WriteStrategy

	Columns []Column
}

// StoredColumns returns the physical columns in DDL order, including the validity
// columns for Type-2 tables.
func (t *Table) StoredColumns() []Column {
	if t.Kind != KindTypeTwo {
		return t.Columns
	}

	columns := make([]Column, 0, len(t.Columns)+3)
	columns = append(columns, t.Columns...)
	return append(columns,
		Column{Name: ColumnEffectiveFrom, Type: ColumnTimestamp},
		Column{Name: ColumnEffectiveTo, Type: ColumnTimestamp, Nullable: true},
		Column{Name: ColumnIsCurrent, Type: ColumnBoolean},
	)
}

func (t *Table) ColumnNames() []string {
	columns := t.StoredColumns()
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.StoredColumns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// AttributeNames returns every column except the surrogate key, the natural key
// and the validity columns.
func (t *Table) AttributeNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == t.SurrogateKey || c.Name == t.NaturalKey {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

func (t *Table) TrackedNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Tracked {
			names = append(names, c.Name)
		}
	}
	return names
}

// ComparableNames returns the columns that take part in change detection for
// facts and Type-1 rows: everything except audit columns.
func (t *Table) ComparableNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Audit {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// KeyColumns returns the columns that identify one incoming row: the grain for
// facts, the natural key for dimensions.
func (t *Table) KeyColumns() []string {
	if t.Kind == KindFact {
		return t.Grain
	}
	return []string{t.NaturalKey}
}

// UniqueKeys lists the uniqueness contracts the storage layer must enforce.
func (t *Table) UniqueKeys() [][]string {
	switch t.Kind {
	case KindTypeTwo:
		return [][]string{{t.NaturalKey, ColumnEffectiveFrom}}
	case KindTypeOne:
		if t.SurrogateKey == "" {
			return nil
		}
		return [][]string{{t.NaturalKey}}
	default:
		return nil
	}
}

// PrimaryKey returns the primary key columns.
func (t *Table) PrimaryKey() []string {
	switch {
	case t.Kind == KindFact:
		return t.Grain
	case t.SurrogateKey != "":
		return []string{t.SurrogateKey}
	default:
		return []string{t.NaturalKey}
	}
}
