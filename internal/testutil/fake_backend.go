// fake_backend.go - In-memory event backend for testing
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/venue-console/opmap/internal/backend"
	"github.com/venue-console/opmap/internal/filter"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

// FakeBackend serves layouts, statistics and search results from memory.
// When Gate is set every call blocks until it can receive from Gate, which
// lets tests hold requests in flight. SetSearchGate holds a single query.
type FakeBackend struct {
	mu      sync.Mutex
	layouts map[string]*models.Layout
	stats   map[string]*models.Statistics
	results map[string][]models.SearchResult
	gates   map[string]chan struct{}

	LayoutErr error
	StatsErr  error
	SearchErr error
	Gate      chan struct{}

	layoutCalls int
	statsCalls  int
	searchCalls int
	lastFilter  models.LayoutFilter
	lastKind    *models.ResultKind
}

// NewFakeBackend creates an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		layouts: make(map[string]*models.Layout),
		stats:   make(map[string]*models.Statistics),
		results: make(map[string][]models.SearchResult),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *FakeBackend) SetLayout(eventID string, layout *models.Layout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts[eventID] = layout
}

func (f *FakeBackend) SetStatistics(eventID string, stats *models.Statistics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[eventID] = stats
}

// SetResults registers the results returned for a query (case-insensitive).
func (f *FakeBackend) SetResults(query string, results []models.SearchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[strings.ToLower(query)] = results
}

// SetSearchGate makes searches for query block until gate yields.
func (f *FakeBackend) SetSearchGate(query string, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[strings.ToLower(query)] = gate
}

// SetTableStatus mutates a stored table, as another subsystem would.
func (f *FakeBackend) SetTableStatus(eventID, tableID string, status models.TableStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	layout, ok := f.layouts[eventID]
	if !ok {
		return false
	}
	for i := range layout.Areas {
		for j := range layout.Areas[i].Tables {
			if layout.Areas[i].Tables[j].ID == tableID {
				layout.Areas[i].Tables[j].Status = status
				return true
			}
		}
	}
	return false
}

func (f *FakeBackend) wait(ctx context.Context) error {
	return waitOn(ctx, f.Gate)
}

func waitOn(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetLayout returns a copy of the stored layout with the filter applied on
// the server side.
func (f *FakeBackend) GetLayout(ctx context.Context, eventID string, lf models.LayoutFilter) (*models.Layout, error) {
	f.mu.Lock()
	f.layoutCalls++
	f.lastFilter = lf
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LayoutErr != nil {
		return nil, f.LayoutErr
	}
	layout, ok := f.layouts[eventID]
	if !ok {
		return nil, &backend.StatusError{Op: "get layout", StatusCode: 404, Body: fmt.Sprintf("event %s not found", eventID)}
	}

	copied := *layout
	copied.Areas = filter.Apply(spatial.NewView(layout.Areas), lf).Filter(spatial.Predicate{}).Areas()
	return &copied, nil
}

func (f *FakeBackend) GetStatistics(ctx context.Context, eventID string) (*models.Statistics, error) {
	f.mu.Lock()
	f.statsCalls++
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatsErr != nil {
		return nil, f.StatsErr
	}
	stats, ok := f.stats[eventID]
	if !ok {
		return nil, &backend.StatusError{Op: "get statistics", StatusCode: 404}
	}
	copied := *stats
	return &copied, nil
}

func (f *FakeBackend) Search(ctx context.Context, eventID, query string, kind *models.ResultKind) ([]models.SearchResult, error) {
	f.mu.Lock()
	f.searchCalls++
	f.lastKind = kind
	gate := f.gates[strings.ToLower(query)]
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if err := waitOn(ctx, gate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	var out []models.SearchResult
	for _, r := range f.results[strings.ToLower(query)] {
		if kind == nil || r.Kind == *kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeBackend) LayoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layoutCalls
}

func (f *FakeBackend) StatsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls
}

func (f *FakeBackend) SearchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

func (f *FakeBackend) LastFilter() models.LayoutFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFilter
}

func (f *FakeBackend) LastKind() *models.ResultKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKind
}
