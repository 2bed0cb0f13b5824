package derive

import "time"

// DateKey returns the YYYYMMDD integer key of the calendar day t falls on.
func DateKey(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(y*10000 + int(m)*100 + d)
}

// DateRow builds the dim_date row for the calendar day t falls on. Weekdays are
// ISO numbered, Monday is 1.
func DateRow(t time.Time) map[string]any {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	weekday := int64(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	_, week := day.ISOWeek()

	return map[string]any{
		"date_key":     DateKey(day),
		"full_date":    day,
		"day_of_week":  weekday,
		"day_name":     day.Weekday().String(),
		"week_of_year": int64(week),
		"month":        int64(m),
		"month_name":   m.String(),
		"quarter":      int64((int(m)-1)/3 + 1),
		"year":         int64(y),
		"is_weekend":   weekday >= 6,
	}
}
