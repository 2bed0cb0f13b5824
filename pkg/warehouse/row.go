package warehouse

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Row maps column names to values. Normalized rows only hold nil, string, int64,
// float64, bool or UTC time.Time values.
type Row map[string]any

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Pick returns the values of the given columns in order.
func (r Row) Pick(columns []string) []any {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = r[c]
	}
	return values
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

// Normalize converts every known column of the row to its canonical Go type so
// values coming from different drivers compare equal. Unknown columns are dropped.
func (t *Table) Normalize(row Row) (Row, error) {
	out := make(Row, len(row))
	for _, c := range t.StoredColumns() {
		raw, ok := row[c.Name]
		if !ok {
			continue
		}
		v, err := NormalizeValue(c.Type, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s.%s", t.Name, c.Name)
		}
		out[c.Name] = v
	}
	return out, nil
}

func NormalizeValue(typ ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	v := rv.Interface()
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch typ {
	case ColumnText:
		switch x := v.(type) {
		case string:
			return x, nil
		case int64, int, int32:
			return toString(x), nil
		}
	case ColumnInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err == nil {
				return n, nil
			}
		}
	case ColumnFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return f, nil
			}
		}
	case ColumnBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err == nil {
				return b, nil
			}
		}
	case ColumnTimestamp, ColumnDate:
		var ts time.Time
		switch x := v.(type) {
		case time.Time:
			ts = x
		case string:
			parsed, err := parseTime(x)
			if err != nil {
				return nil, err
			}
			ts = parsed
		default:
			return nil, errors.Errorf("cannot use %T as %s", v, typ)
		}
		if typ == ColumnDate {
			return DateOf(ts), nil
		}
		return Timestamp(ts), nil
	}

	return nil, errors.Errorf("cannot use %T as %s", v, typ)
}

// Timestamp returns t in UTC truncated to the microsecond precision every
// supported backend can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// DateOf returns midnight UTC of the calendar day t falls on.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("cannot parse %q as a time", s)
}

func toString(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	}
	return ""
}

// ValuesEqual compares two normalized values with null-safe semantics: NULL
// equals NULL, NULL never equals a value.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// ChangedColumns returns the columns whose normalized values differ.
func ChangedColumns(a, b Row, columns []string) []string {
	var changed []string
	for _, c := range columns {
		if !ValuesEqual(a[c], b[c]) {
			changed = append(changed, c)
		}
	}
	return changed
}

// TrackedChanges reports the tracked attributes that differ between the stored
// current version and an incoming row.
func (t *Table) TrackedChanges(current, incoming Row) []string {
	return ChangedColumns(current, incoming, t.TrackedNames())
}
