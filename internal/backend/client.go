// Package backend is the HTTP/JSON client of the event backend: the layout,
// statistics and search endpoints the map reads from. It performs no writes.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/venue-console/opmap/internal/models"
)

// ErrNotFound is matched by a StatusError carrying 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a client for baseURL. Requests are traced through an
// otelhttp transport.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLayout fetches the layout of an event, optionally pre-filtered on the
// server with the same criteria as the visual filters.
func (c *Client) GetLayout(ctx context.Context, eventID string, f models.LayoutFilter) (*models.Layout, error) {
	q := url.Values{}
	if f.ActiveOnly {
		q.Set("active_only", "true")
	}
	if f.AreaType != "" {
		q.Set("area_type", f.AreaType)
	}
	if f.Status != nil {
		q.Set("status", f.Status.String())
	}

	var layout models.Layout
	if err := c.getJSON(ctx, "get layout", eventPath(eventID, "layout"), q, &layout); err != nil {
		return nil, err
	}
	if layout.EventID == "" {
		layout.EventID = eventID
	}
	return &layout, nil
}

// GetStatistics fetches the statistics snapshot of an event.
func (c *Client) GetStatistics(ctx context.Context, eventID string) (*models.Statistics, error) {
	var stats models.Statistics
	if err := c.getJSON(ctx, "get statistics", eventPath(eventID, "statistics"), nil, &stats); err != nil {
		return nil, err
	}
	if stats.EventID == "" {
		stats.EventID = eventID
	}
	if stats.ComputedAt.IsZero() {
		stats.ComputedAt = time.Now().UTC()
	}
	return &stats, nil
}

// Search runs a free-text search. kind restricts the result kind when set.
func (c *Client) Search(ctx context.Context, eventID, query string, kind *models.ResultKind) ([]models.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if kind != nil {
		q.Set("kind", kind.String())
	}

	var results []models.SearchResult
	if err := c.getJSON(ctx, "search", eventPath(eventID, "search"), q, &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

func eventPath(eventID, resource string) string {
	return "/events/" + url.PathEscape(eventID) + "/" + resource
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to call backend: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
