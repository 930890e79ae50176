package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/okian/scoutsync/internal/domain/model"
)

// Migration rewrites a stored record in place and reports whether it changed
// anything. Applying a migration twice must be a no-op the second time.
type Migration struct {
	Version int
	Name    string
	Apply   func(rec *model.ScoutingRecord) bool
}

// Migrations returns the ordered schema migrations. countFields lists
// "section.field" payload paths holding legacy boolean flags.
func Migrations(countFields []string) []Migration {
	return []Migration{
		{Version: 1, Name: "alliance", Apply: coerceAlliance},
		{Version: 2, Name: "count_fields", Apply: func(rec *model.ScoutingRecord) bool {
			return coerceCounts(rec, countFields)
		}},
	}
}

func coerceAlliance(rec *model.ScoutingRecord) bool {
	var want model.Alliance
	switch strings.ToLower(strings.TrimSpace(string(rec.Alliance))) {
	case "r", "red":
		want = model.AllianceRed
	case "b", "blue":
		want = model.AllianceBlue
	default:
		return false
	}
	if rec.Alliance == want {
		return false
	}
	rec.Alliance = want
	return true
}

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

func coerceCounts(rec *model.ScoutingRecord, paths []string) bool {
	changed := false
	for _, path := range paths {
		section, field, ok := strings.Cut(path, ".")
		if !ok {
			continue
		}
		raw, ok := rec.Payload.Section(section)
		if !ok || len(*raw) == 0 {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(*raw, &fields); err != nil || fields == nil {
			continue
		}
		v := bytes.TrimSpace(fields[field])
		switch {
		case bytes.Equal(v, jsonTrue):
			fields[field] = json.RawMessage("1")
		case bytes.Equal(v, jsonFalse):
			fields[field] = json.RawMessage("0")
		default:
			continue
		}
		out, err := json.Marshal(fields)
		if err != nil {
			continue
		}
		*raw = out
		changed = true
	}
	return changed
}
