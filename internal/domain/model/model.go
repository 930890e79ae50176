// Package model contains domain models passed between layers and the wire
// shapes exchanged with the remote store.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Alliance is the match alliance an observer watched.
type Alliance string

const (
	AllianceRed  Alliance = "red"
	AllianceBlue Alliance = "blue"
)

// Valid reports whether a is one of the canonical alliance values.
func (a Alliance) Valid() bool { return a == AllianceRed || a == AllianceBlue }

// Payload holds the per-phase observation sections. The contents are opaque
// to the sync engine and passed through unchanged.
type Payload struct {
	Auto    json.RawMessage `json:"auto"`
	Teleop  json.RawMessage `json:"teleop"`
	Endgame json.RawMessage `json:"endgame"`
	Defense json.RawMessage `json:"defense"`
}

// Section returns the raw section by name.
func (p *Payload) Section(name string) (*json.RawMessage, bool) {
	switch name {
	case "auto":
		return &p.Auto, true
	case "teleop":
		return &p.Teleop, true
	case "endgame":
		return &p.Endgame, true
	case "defense":
		return &p.Defense, true
	}
	return nil, false
}

// ScoutingRecord is one observer's report on one team in one match.
type ScoutingRecord struct {
	ID           string   `json:"id"`
	MatchKey     string   `json:"match_key"`
	TeamKey      string   `json:"team_key"`
	ObserverName string   `json:"observer_name"`
	Alliance     Alliance `json:"alliance"`
	Position     int      `json:"position"`
	Payload      Payload  `json:"payload"`
	ClientID     string   `json:"client_id"`
	CreatedAt    int64    `json:"created_at"`
	Synced       bool     `json:"synced"`
	SyncedAt     *int64   `json:"synced_at,omitempty"`
	UpdatedAt    int64    `json:"updated_at,omitempty"`
}

// Validate checks the fields a record cannot be stored or pushed without.
func (r ScoutingRecord) Validate() error {
	var missing []string
	if r.ID == "" {
		missing = append(missing, "id")
	}
	if r.MatchKey == "" {
		missing = append(missing, "match_key")
	}
	if r.TeamKey == "" {
		missing = append(missing, "team_key")
	}
	if r.ObserverName == "" {
		missing = append(missing, "observer_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// MarkSynced flags the record as confirmed by the remote store at ms.
func (r *ScoutingRecord) MarkSynced(ms int64) {
	r.Synced = true
	r.SyncedAt = &ms
}

// MarkDirty reverts the record to unsynced after a local edit at ms.
func (r *ScoutingRecord) MarkDirty(ms int64) {
	r.Synced = false
	r.SyncedAt = nil
	r.UpdatedAt = ms
}

// Wire maps the record to its remote shape.
func (r ScoutingRecord) Wire() ScoutingWire {
	return ScoutingWire{
		ID:          r.ID,
		MatchKey:    r.MatchKey,
		TeamKey:     r.TeamKey,
		ScouterName: r.ObserverName,
		Alliance:    string(r.Alliance),
		Position:    r.Position,
		Payload:     r.Payload,
		ClientID:    r.ClientID,
		Timestamp:   FormatISO(r.CreatedAt),
	}
}

// ScoutingWire is the remote row for a scouting record, keyed by id.
type ScoutingWire struct {
	ID          string  `json:"id"`
	MatchKey    string  `json:"match_key"`
	TeamKey     string  `json:"team_key"`
	ScouterName string  `json:"scouter_name"`
	Alliance    string  `json:"alliance"`
	Position    int     `json:"position"`
	Payload     Payload `json:"payload"`
	ClientID    string  `json:"client_id"`
	Timestamp   string  `json:"timestamp"`
}

// RosterEntry is a scouter assignment, soft-deleted with a tombstone.
type RosterEntry struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Alliance  Alliance `json:"alliance"`
	Position  int      `json:"position"`
	IsRemote  bool     `json:"is_remote"`
	UpdatedAt int64    `json:"updated_at"`
	DeletedAt *int64   `json:"deleted_at,omitempty"`
}

func (e RosterEntry) EntityID() string   { return e.ID }
func (e RosterEntry) UpdatedAtMS() int64 { return e.UpdatedAt }
func (e RosterEntry) DeletedAtMS() int64 { return deref(e.DeletedAt) }
func (e RosterEntry) Deleted() bool      { return e.DeletedAt != nil }

// Wire maps the entry to its remote shape.
func (e RosterEntry) Wire() RosterWire {
	return RosterWire{
		ID:        e.ID,
		Name:      e.Name,
		Alliance:  string(e.Alliance),
		Position:  e.Position,
		IsRemote:  e.IsRemote,
		UpdatedAt: FormatISO(e.UpdatedAt),
		DeletedAt: formatISOPtr(e.DeletedAt),
	}
}

// RosterWire is the remote row for a roster entry.
type RosterWire struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Alliance  string  `json:"alliance"`
	Position  int     `json:"position"`
	IsRemote  bool    `json:"is_remote"`
	UpdatedAt string  `json:"updated_at"`
	DeletedAt *string `json:"deleted_at"`
}

func (w RosterWire) RowID() string        { return w.ID }
func (w RosterWire) UpdatedAtISO() string { return w.UpdatedAt }
func (w RosterWire) DeletedAtISO() string { return derefString(w.DeletedAt) }

// Entry maps the remote row to a local entry. Unparsable timestamps become 0.
func (w RosterWire) Entry() RosterEntry {
	updated, _ := ParseISO(w.UpdatedAt)
	return RosterEntry{
		ID:        w.ID,
		Name:      w.Name,
		Alliance:  Alliance(w.Alliance),
		Position:  w.Position,
		IsRemote:  w.IsRemote,
		UpdatedAt: updated,
		DeletedAt: parseISOPtr(w.DeletedAt),
	}
}

// Match is one scheduled match at an event.
type Match struct {
	ID          string   `json:"id"`
	EventKey    string   `json:"event_key"`
	CompLevel   string   `json:"comp_level"`
	MatchNumber int      `json:"match_number"`
	Red         []string `json:"red"`
	Blue        []string `json:"blue"`
	ScheduledAt int64    `json:"scheduled_at,omitempty"`
	UpdatedAt   int64    `json:"updated_at"`
	DeletedAt   *int64   `json:"deleted_at,omitempty"`
}

func (m Match) EntityID() string   { return m.ID }
func (m Match) UpdatedAtMS() int64 { return m.UpdatedAt }
func (m Match) DeletedAtMS() int64 { return deref(m.DeletedAt) }

// Wire maps the match to its remote shape.
func (m Match) Wire() MatchWire {
	w := MatchWire{
		ID:          m.ID,
		EventKey:    m.EventKey,
		CompLevel:   m.CompLevel,
		MatchNumber: m.MatchNumber,
		Red:         m.Red,
		Blue:        m.Blue,
		UpdatedAt:   FormatISO(m.UpdatedAt),
		DeletedAt:   formatISOPtr(m.DeletedAt),
	}
	if m.ScheduledAt > 0 {
		s := FormatISO(m.ScheduledAt)
		w.ScheduledAt = &s
	}
	return w
}

// MatchWire is the remote row for a match.
type MatchWire struct {
	ID          string   `json:"id"`
	EventKey    string   `json:"event_key"`
	CompLevel   string   `json:"comp_level"`
	MatchNumber int      `json:"match_number"`
	Red         []string `json:"red"`
	Blue        []string `json:"blue"`
	ScheduledAt *string  `json:"scheduled_at"`
	UpdatedAt   string   `json:"updated_at"`
	DeletedAt   *string  `json:"deleted_at"`
}

func (w MatchWire) RowID() string        { return w.ID }
func (w MatchWire) UpdatedAtISO() string { return w.UpdatedAt }
func (w MatchWire) DeletedAtISO() string { return derefString(w.DeletedAt) }

// Match maps the remote row to a local match.
func (w MatchWire) Match() Match {
	updated, _ := ParseISO(w.UpdatedAt)
	m := Match{
		ID:          w.ID,
		EventKey:    w.EventKey,
		CompLevel:   w.CompLevel,
		MatchNumber: w.MatchNumber,
		Red:         w.Red,
		Blue:        w.Blue,
		UpdatedAt:   updated,
		DeletedAt:   parseISOPtr(w.DeletedAt),
	}
	if w.ScheduledAt != nil {
		m.ScheduledAt, _ = ParseISO(*w.ScheduledAt)
	}
	return m
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
