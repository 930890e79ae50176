// Package schedule fetches match schedules from an external event provider.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/okian/scoutsync/internal/domain/model"
)

// ErrProvider wraps every failure reported by a schedule provider.
var ErrProvider = errors.New("schedule provider")

// Provider returns the matches of one event.
type Provider interface {
	Matches(ctx context.Context, eventKey string) ([]model.Match, error)
}

const (
	defaultAuthHeader = "X-TBA-Auth-Key"
	defaultTimeout    = 15 * time.Second
)

// HTTPProvider reads {base}/event/{key}/matches/simple.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	authHeader string
	http       *http.Client
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithAPIKey sets the auth key sent with every request.
func WithAPIKey(key string) Option {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithAuthHeader overrides the header carrying the auth key.
func WithAuthHeader(name string) Option {
	return func(p *HTTPProvider) {
		if name != "" {
			p.authHeader = name
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *HTTPProvider) {
		if hc != nil {
			p.http = hc
		}
	}
}

// NewHTTPProvider creates a provider rooted at baseURL.
func NewHTTPProvider(baseURL string, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: defaultAuthHeader,
		http:       &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// simpleMatch is the provider's compact match shape.
type simpleMatch struct {
	Key         string `json:"key"`
	EventKey    string `json:"event_key"`
	CompLevel   string `json:"comp_level"`
	SetNumber   int    `json:"set_number"`
	MatchNumber int    `json:"match_number"`
	Alliances   struct {
		Red  simpleAlliance `json:"red"`
		Blue simpleAlliance `json:"blue"`
	} `json:"alliances"`
	Time          *int64 `json:"time"`
	PredictedTime *int64 `json:"predicted_time"`
}

type simpleAlliance struct {
	TeamKeys []string `json:"team_keys"`
}

// Matches fetches and maps the event's matches, ordered by level then number.
// UpdatedAt is left for the caller to stamp.
func (p *HTTPProvider) Matches(ctx context.Context, eventKey string) ([]model.Match, error) {
	if eventKey == "" {
		return nil, fmt.Errorf("%w: event key is empty", ErrProvider)
	}
	endpoint := fmt.Sprintf("%s/event/%s/matches/simple", p.baseURL, url.PathEscape(eventKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set(p.authHeader, p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrProvider, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var simple []simpleMatch
	if err := json.Unmarshal(body, &simple); err != nil {
		return nil, fmt.Errorf("%w: decode matches: %w", ErrProvider, err)
	}

	matches := make([]model.Match, 0, len(simple))
	for _, s := range simple {
		if s.Key == "" {
			continue
		}
		m := model.Match{
			ID:          s.Key,
			EventKey:    s.EventKey,
			CompLevel:   s.CompLevel,
			MatchNumber: s.MatchNumber,
			Red:         s.Alliances.Red.TeamKeys,
			Blue:        s.Alliances.Blue.TeamKeys,
		}
		if m.EventKey == "" {
			m.EventKey = eventKey
		}
		switch {
		case s.Time != nil && *s.Time > 0:
			m.ScheduledAt = *s.Time * 1000
		case s.PredictedTime != nil && *s.PredictedTime > 0:
			m.ScheduledAt = *s.PredictedTime * 1000
		}
		matches = append(matches, m)
	}
	SortMatches(matches)
	return matches, nil
}

var compLevelOrder = map[string]int{"qm": 0, "ef": 1, "qf": 2, "sf": 3, "f": 4}

// SortMatches orders matches by competition level, then number, then id.
func SortMatches(ms []model.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		li, lj := compLevelOrder[ms[i].CompLevel], compLevelOrder[ms[j].CompLevel]
		if li != lj {
			return li < lj
		}
		if ms[i].MatchNumber != ms[j].MatchNumber {
			return ms[i].MatchNumber < ms[j].MatchNumber
		}
		return ms[i].ID < ms[j].ID
	})
}
