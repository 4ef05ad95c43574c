package util

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// MonthStart truncates t to 00:00 UTC on the first day of its month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth accepts "2006-01" or "2006-01-02" and returns the month start.
func ParseMonth(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return MonthStart(parsed), true
		}
	}
	return time.Time{}, false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
