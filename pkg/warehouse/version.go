package warehouse

import (
	"time"

	"github.com/pkg/errors"
)

// Version is one row of a Type-2 table.
type Version struct {
	SurrogateKey  string
	NaturalKey    string
	Attributes    Row
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	IsCurrent     bool
}

// Row flattens the version into its stored columns.
func (v *Version) Row(t *Table) Row {
	row := make(Row, len(t.Columns)+3)
	for _, name := range t.AttributeNames() {
		row[name] = v.Attributes[name]
	}
	row[t.SurrogateKey] = v.SurrogateKey
	row[t.NaturalKey] = v.NaturalKey
	row[ColumnEffectiveFrom] = v.EffectiveFrom
	if v.EffectiveTo != nil {
		row[ColumnEffectiveTo] = *v.EffectiveTo
	} else {
		row[ColumnEffectiveTo] = nil
	}
	row[ColumnIsCurrent] = v.IsCurrent
	return row
}

// Contains reports whether at falls inside [effective_from, effective_to).
func (v *Version) Contains(at time.Time) bool {
	if at.Before(v.EffectiveFrom) {
		return false
	}
	return v.EffectiveTo == nil || at.Before(*v.EffectiveTo)
}

// VersionFromRow builds a version out of a stored row, normalizing it first.
func VersionFromRow(t *Table, raw Row) (*Version, error) {
	row, err := t.Normalize(raw)
	if err != nil {
		return nil, err
	}

	sk, ok := row[t.SurrogateKey].(string)
	if !ok {
		return nil, errors.Errorf("%s row has no %s", t.Name, t.SurrogateKey)
	}
	nk, ok := row[t.NaturalKey].(string)
	if !ok {
		return nil, errors.Errorf("%s row %s has no %s", t.Name, sk, t.NaturalKey)
	}
	from, ok := row[ColumnEffectiveFrom].(time.Time)
	if !ok {
		return nil, errors.Errorf("%s row %s has no %s", t.Name, sk, ColumnEffectiveFrom)
	}
	current, _ := row[ColumnIsCurrent].(bool)

	v := &Version{
		SurrogateKey:  sk,
		NaturalKey:    nk,
		Attributes:    make(Row, len(t.Columns)),
		EffectiveFrom: from,
		IsCurrent:     current,
	}
	if to, ok := row[ColumnEffectiveTo].(time.Time); ok {
		v.EffectiveTo = &to
	}
	for _, name := range t.AttributeNames() {
		v.Attributes[name] = row[name]
	}
	return v, nil
}
