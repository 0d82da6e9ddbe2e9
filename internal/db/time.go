package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Aggregates such as MAX(release_at) come back as text, so they are parsed
// here instead of by the driver.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999-07:00",
	}
	naiveLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
	}
)

// nullTime converts a nullable timestamp column. ok is false for NULL or
// empty values.
func nullTime(s sql.NullString) (t time.Time, ok bool, err error) {
	raw := strings.TrimSpace(s.String)
	if !s.Valid || raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unsupported timestamp %q", s.String)
}
