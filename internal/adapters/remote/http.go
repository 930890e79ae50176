package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/scoutsync/pkg/metrics"
)

const defaultHTTPTimeout = 10 * time.Second

// upsertRequest is the body of POST /v1/collections/{c}/upsert.
type upsertRequest struct {
	Rows []json.RawMessage `json:"rows"`
}

// upsertResponse lists the conflict keys the backend stored.
type upsertResponse struct {
	Accepted []string `json:"accepted"`
}

type selectResponse struct {
	Rows []json.RawMessage `json:"rows"`
}

type deleteRequest struct {
	Keys []string `json:"keys"`
}

type apiError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Accepted []string `json:"accepted,omitempty"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// HTTPClient is a Client for the JSON collection API served by Handler.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewHTTPClient creates a client for baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Upsert(ctx context.Context, collection string, rows []json.RawMessage, conflictKey string) (UpsertReport, error) {
	if conflictKey == "" {
		conflictKey = DefaultConflictKey
	}
	path := fmt.Sprintf("/v1/collections/%s/upsert?on_conflict=%s",
		url.PathEscape(collection), url.QueryEscape(conflictKey))

	var resp upsertResponse
	err := c.do(ctx, "upsert", collection, http.MethodPost, path, upsertRequest{Rows: rows}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Accepted != nil {
			return UpsertReport{Accepted: apiErr.Accepted}, err
		}
		return UpsertReport{}, err
	}
	return UpsertReport{Accepted: resp.Accepted}, nil
}

func (c *HTTPClient) SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var resp selectResponse
	path := "/v1/collections/" + url.PathEscape(collection)
	if err := c.do(ctx, "select", collection, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *HTTPClient) DeleteByKeys(ctx context.Context, collection string, keys []string) error {
	path := "/v1/collections/" + url.PathEscape(collection) + "/delete"
	return c.do(ctx, "delete", collection, http.MethodPost, path, deleteRequest{Keys: keys}, nil)
}

// Ping hits /healthz without credentials.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", "", http.MethodGet, "/healthz", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, collection, method, path string, body, result any) error {
	start := time.Now()
	defer func() {
		metrics.RecordRemoteLatency(op, float64(time.Since(start).Milliseconds()))
	}()

	fail := func(status int, err error) error {
		return &Error{Op: op, Collection: collection, Status: status, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fail(0, fmt.Errorf("%w: marshal request: %w", ErrInvalidRow, err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fail(0, fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" && op != "ping" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fail(resp.StatusCode, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message))
			case http.StatusForbidden:
				return fail(resp.StatusCode, fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message))
			case http.StatusNotFound:
				return fail(resp.StatusCode, fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message))
			default:
				return fail(resp.StatusCode, &apiErr)
			}
		}
		return fail(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fail(resp.StatusCode, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}
