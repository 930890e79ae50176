package model

import (
	"strings"
	"time"
)

// isoWire is the layout used for every timestamp written to the remote store.
const isoWire = "2006-01-02T15:04:05.000Z07:00"

// Layouts accepted from the remote store, most specific first.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseISO converts an ISO-8601 timestamp to ms since epoch. An empty
// string is absent and yields (0, true); an unrecognized value yields (0, false).
func ParseISO(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// FormatISO renders ms since epoch as a UTC ISO-8601 timestamp.
func FormatISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoWire)
}

func formatISOPtr(ms *int64) *string {
	if ms == nil {
		return nil
	}
	s := FormatISO(*ms)
	return &s
}

func parseISOPtr(s *string) *int64 {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	ms, ok := ParseISO(*s)
	if !ok {
		return nil
	}
	return &ms
}
