package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// LocalTime wraps time.Time so SQLite DATETIME values (stored as UTC by
// CURRENT_TIMESTAMP) scan into local time for display.
type LocalTime struct {
	time.Time
}

// Layouts SQLite may hand back for DATETIME columns.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// Scan implements sql.Scanner.
func (t *LocalTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.Local()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		t.Time = time.Unix(v, 0)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into LocalTime", value)
	}
}

func (t *LocalTime) parse(s string) error {
	for _, layout := range sqliteTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.Local()
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}

// Value implements driver.Valuer, storing UTC in SQLite's default format.
func (t LocalTime) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format("2006-01-02 15:04:05"), nil
}

// Now returns the current time as a LocalTime.
func Now() LocalTime {
	return LocalTime{time.Now()}
}
