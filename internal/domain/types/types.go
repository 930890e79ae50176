// Package types contains the request and response shapes of the admin API.
package types

import "encoding/json"

// Status is the sync status snapshot served by GET /status.
type Status struct {
	Summary          string `json:"summary"`
	State            string `json:"state"`
	Busy             bool   `json:"busy"`
	Pending          int    `json:"pending"`
	RemoteConfigured bool   `json:"remote_configured"`
	Online           bool   `json:"online"`
	LastSuccess      string `json:"last_success,omitempty"`
	LastOutcome      string `json:"last_outcome,omitempty"`
	LastTrigger      string `json:"last_trigger,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// RecordRequest is the body of POST /records and PUT /records/{id}.
type RecordRequest struct {
	ID           string          `json:"id,omitempty"`
	MatchKey     string          `json:"match_key"`
	TeamKey      string          `json:"team_key"`
	ObserverName string          `json:"observer_name"`
	Alliance     string          `json:"alliance"`
	Position     int             `json:"position"`
	Auto         json.RawMessage `json:"auto,omitempty"`
	Teleop       json.RawMessage `json:"teleop,omitempty"`
	Endgame      json.RawMessage `json:"endgame,omitempty"`
	Defense      json.RawMessage `json:"defense,omitempty"`
}

// RosterRequest is the body of POST /roster.
type RosterRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Alliance string `json:"alliance"`
	Position int    `json:"position"`
	IsRemote bool   `json:"is_remote"`
}

// ImportRequest is the body of POST /schedule/import.
type ImportRequest struct {
	EventKey string `json:"event_key,omitempty"`
}

// ImportResponse reports how many matches were imported.
type ImportResponse struct {
	EventKey string `json:"event_key,omitempty"`
	Imported int    `json:"imported"`
}

// TriggerResponse answers an asynchronous sync request.
type TriggerResponse struct {
	Queued bool `json:"queued"`
}
