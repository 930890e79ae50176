package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryClient is an in-process remote store. It can be switched offline
// or made to fail upcoming calls, which makes it the workhorse of pipeline
// tests.
type MemoryClient struct {
	mu       sync.Mutex
	rows     map[string]map[string]json.RawMessage
	offline  bool
	failures []error
	accept   func(collection, id string) bool
	calls    map[string]int
	upserts  [][]string
}

// NewMemoryClient creates an empty, online MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		rows:  make(map[string]map[string]json.RawMessage),
		calls: make(map[string]int),
	}
}

// SetOffline makes every call fail with a transport error while true.
func (m *MemoryClient) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// FailNext queues errors returned by the next calls, one per call.
func (m *MemoryClient) FailNext(errs ...error) {
	m.mu.Lock()
	m.failures = append(m.failures, errs...)
	m.mu.Unlock()
}

// AcceptOnly limits which upserted rows are stored. Rejected rows make the
// call fail with a report listing the accepted ones. nil accepts everything.
func (m *MemoryClient) AcceptOnly(fn func(collection, id string) bool) {
	m.mu.Lock()
	m.accept = fn
	m.mu.Unlock()
}

// Seed stores rows directly, bypassing failure injection.
func (m *MemoryClient) Seed(collection string, rows ...json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range rows {
		id, err := conflictValue(raw, DefaultConflictKey)
		if err != nil {
			return err
		}
		m.table(collection)[id] = raw
	}
	return nil
}

// Rows returns the stored rows of collection keyed by id.
func (m *MemoryClient) Rows(collection string) map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.rows[collection]))
	for k, v := range m.rows[collection] {
		out[k] = v
	}
	return out
}

// Calls returns how many times op was invoked.
func (m *MemoryClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// UpsertBatches returns the ids of every upsert call in order, including failed ones.
func (m *MemoryClient) UpsertBatches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.upserts))
	copy(out, m.upserts)
	return out
}

func (m *MemoryClient) Upsert(ctx context.Context, collection string, rows []json.RawMessage, conflictKey string) (UpsertReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflictKey == "" {
		conflictKey = DefaultConflictKey
	}
	ids := make([]string, 0, len(rows))
	for _, raw := range rows {
		id, err := conflictValue(raw, conflictKey)
		if err != nil {
			m.calls["upsert"]++
			return UpsertReport{}, &Error{Op: "upsert", Collection: collection, Status: 422, Err: err}
		}
		ids = append(ids, id)
	}
	m.upserts = append(m.upserts, ids)

	if err := m.begin(ctx, "upsert", collection); err != nil {
		return UpsertReport{}, err
	}

	var accepted []string
	for i, raw := range rows {
		if m.accept != nil && !m.accept(collection, ids[i]) {
			continue
		}
		m.table(collection)[ids[i]] = raw
		accepted = append(accepted, ids[i])
	}
	if len(accepted) < len(ids) {
		return UpsertReport{Accepted: accepted}, &Error{
			Op: "upsert", Collection: collection, Status: 422,
			Err: fmt.Errorf("%w: %d of %d rows rejected", ErrInvalidRow, len(ids)-len(accepted), len(ids)),
		}
	}
	return UpsertReport{Accepted: accepted}, nil
}

func (m *MemoryClient) SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "select", collection); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.rows[collection]))
	for id := range m.rows[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[collection][id])
	}
	return out, nil
}

func (m *MemoryClient) DeleteByKeys(ctx context.Context, collection string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "delete", collection); err != nil {
		return err
	}
	for _, k := range keys {
		delete(m.rows[collection], k)
	}
	return nil
}

func (m *MemoryClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ping"]++
	if err := ctx.Err(); err != nil {
		return &Error{Op: "ping", Err: err}
	}
	if m.offline {
		return &Error{Op: "ping", Err: ErrUnavailable}
	}
	return nil
}

// begin counts the call and applies offline mode and queued failures.
// Callers hold m.mu.
func (m *MemoryClient) begin(ctx context.Context, op, collection string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Collection: collection, Err: err}
	}
	if m.offline {
		return &Error{Op: op, Collection: collection, Err: ErrUnavailable}
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryClient) table(collection string) map[string]json.RawMessage {
	t, ok := m.rows[collection]
	if !ok {
		t = make(map[string]json.RawMessage)
		m.rows[collection] = t
	}
	return t
}

// conflictValue extracts the string value of key from a JSON object row.
func conflictValue(raw json.RawMessage, key string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	var id string
	if err := json.Unmarshal(fields[key], &id); err != nil || id == "" {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidRow, key)
	}
	return id, nil
}
