package filter

import (
	"log/slog"
	"strings"

	"github.com/venue-console/opmap/internal/models"
)

// Request is one issued search, tagged with a sequence number.
type Request struct {
	Seq   uint64
	Query string
	Kind  *models.ResultKind
}

// Search tracks the text search of one map session. Responses are applied
// only if they belong to the latest request, so a slow response to an old
// query never overwrites a newer one. Not safe for concurrent use.
type Search struct {
	seq     uint64
	pending bool
	query   string
	kind    *models.ResultKind
	results []models.SearchResult
	logger  *slog.Logger
}

// NewSearch returns an empty search state.
func NewSearch(logger *slog.Logger) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{logger: logger}
}

// Begin starts a new search. A blank query clears the results and returns
// false: no request must be sent.
func (s *Search) Begin(query string, kind *models.ResultKind) (Request, bool) {
	s.seq++
	query = strings.TrimSpace(query)
	s.query = query
	s.kind = kind
	s.results = nil

	if query == "" {
		s.pending = false
		return Request{}, false
	}
	s.pending = true
	return Request{Seq: s.seq, Query: query, Kind: kind}, true
}

// Complete applies the response to req. It returns false when req has been
// superseded. A failed search leaves an empty result list.
func (s *Search) Complete(req Request, results []models.SearchResult, err error) bool {
	if req.Seq != s.seq {
		s.logger.Debug("discarding stale search response", "query", req.Query, "seq", req.Seq, "latest", s.seq)
		return false
	}
	s.pending = false

	if err != nil {
		s.logger.Warn("search failed", "query", req.Query, "error", err)
		s.results = []models.SearchResult{}
		return true
	}

	valid := make([]models.SearchResult, 0, len(results))
	for i := range results {
		if verr := results[i].Validate(); verr != nil {
			s.logger.Warn("dropping malformed search result", "error", verr)
			continue
		}
		valid = append(valid, results[i])
	}
	s.results = valid
	return true
}

// Clear drops the query and results; in-flight responses will be ignored.
func (s *Search) Clear() {
	s.Begin("", nil)
}

// Query returns the trimmed query of the latest request.
func (s *Search) Query() string { return s.query }

// Kind returns the kind restriction of the latest request, nil for any.
func (s *Search) Kind() *models.ResultKind { return s.kind }

// Pending reports whether the latest request is still in flight.
func (s *Search) Pending() bool { return s.pending }

// Seq returns the sequence number of the latest request.
func (s *Search) Seq() uint64 { return s.seq }

// Results returns the results of the latest completed request.
func (s *Search) Results() []models.SearchResult { return s.results }

// Find returns the result with the given ID.
func (s *Search) Find(id string) (models.SearchResult, bool) {
	for i := range s.results {
		if s.results[i].ID == id {
			return s.results[i], true
		}
	}
	return models.SearchResult{}, false
}

// HighlightedTables returns the tables pointed at by table-kind results.
func (s *Search) HighlightedTables() map[string]bool {
	var out map[string]bool
	for i := range s.results {
		if id := s.results[i].TableID(); id != "" {
			if out == nil {
				out = make(map[string]bool)
			}
			out[id] = true
		}
	}
	return out
}
