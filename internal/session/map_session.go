package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/venue-console/opmap/internal/filter"
	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/hittest"
	"github.com/venue-console/opmap/internal/interaction"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/render"
	"github.com/venue-console/opmap/internal/spatial"
)

// Loader fetches the data a session displays.
type Loader interface {
	Layout(ctx context.Context, eventID string, f models.LayoutFilter, force bool) (*models.Layout, error)
	Statistics(ctx context.Context, eventID string, force bool) (*models.Statistics, error)
	Search(ctx context.Context, eventID, query string, kind *models.ResultKind) ([]models.SearchResult, error)
}

// Options configures the sessions a Manager creates.
type Options struct {
	Palette          render.Palette
	ServerSideFilter bool
	LoadTimeout      time.Duration
	SearchTimeout    time.Duration
	DefaultWidth     float64
	DefaultHeight    float64
}

// PointerKind is the type of a pointer event.
type PointerKind string

const (
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
)

// ZoomAction is an explicit zoom control.
type ZoomAction string

const (
	ZoomIn    ZoomAction = "in"
	ZoomOut   ZoomAction = "out"
	ZoomReset ZoomAction = "reset"
)

// SelectionDetail is the full record of the selected entity for the side
// panel. Table is set for table selections, Area for area selections.
type SelectionDetail struct {
	Kind     string        `json:"kind"`
	ID       string        `json:"id"`
	AreaID   string        `json:"areaId"`
	AreaName string        `json:"areaName"`
	Table    *models.Table `json:"table,omitempty"`
	Area     *models.Area  `json:"area,omitempty"`
}

// SearchOutcome is what a search call left in the session.
type SearchOutcome struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
	// Stale is true when a newer search superseded this one; Results then
	// hold the newer search's state.
	Stale bool `json:"stale"`
}

// MapSession is the single owner of one console screen's map state: the
// spatial model, the viewport and selection, filters, search and
// statistics. Every mutation goes through its methods under one mutex.
// Loads run in background goroutines and are applied only if no newer load
// has started since.
type MapSession struct {
	id        string
	eventID   string
	createdAt time.Time
	loader    Loader
	opts      Options
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	model        *spatial.Model
	view         spatial.View
	ctrl         *interaction.Controller
	layoutFilter models.LayoutFilter
	search       *filter.Search
	stats        *models.Statistics
	state        models.LoadState
	loadErr      string
	gen          uint64
	pending      int
	blocking     bool
	canvasW      float64
	canvasH      float64
	lastAccessed time.Time
	closed       bool

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func newMapSession(id, eventID string, width, height float64, loader Loader, opts Options, logger *slog.Logger) *MapSession {
	if width <= 0 {
		width = opts.DefaultWidth
	}
	if height <= 0 {
		height = opts.DefaultHeight
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}

	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	logger = logger.With("session", short, "event_id", eventID)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &MapSession{
		id:           id,
		eventID:      eventID,
		createdAt:    now,
		loader:       loader,
		opts:         opts,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		model:        spatial.NewModel(),
		ctrl:         interaction.New(),
		search:       filter.NewSearch(logger),
		state:        models.LoadStateIdle,
		canvasW:      width,
		canvasH:      height,
		lastAccessed: now,
		subs:         make(map[int]chan struct{}),
	}
}

// ID returns the session ID.
func (s *MapSession) ID() string { return s.id }

// EventID returns the event the session shows.
func (s *MapSession) EventID() string { return s.eventID }

// Info returns a snapshot of the session metadata.
func (s *MapSession) Info() models.MapSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.MapSession{
		ID:            s.id,
		EventID:       s.eventID,
		State:         s.state,
		Error:         s.loadErr,
		CanvasWidth:   s.canvasW,
		CanvasHeight:  s.canvasH,
		LayoutVersion: s.model.Version(),
		CreatedAt:     s.createdAt,
		LastAccessed:  s.lastAccessed,
	}
}

// State returns the load state.
func (s *MapSession) State() models.LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MapSession) touch() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

func (s *MapSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// ============================================================
// Loading
// ============================================================

// Refresh reloads layout and statistics. The map shows the loading state
// until both arrive. force bypasses the shared cache. The returned channel
// is closed once both fetches have finished, applied or not.
func (s *MapSession) Refresh(force bool) <-chan struct{} {
	return s.startLoad(force, false)
}

// refreshInBackground reloads without hiding a map that is already shown.
// A failure keeps the current data and is only logged.
func (s *MapSession) refreshInBackground(force bool) <-chan struct{} {
	return s.startLoad(force, true)
}

func (s *MapSession) startLoad(force, background bool) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(done)
		return done
	}
	s.gen++
	gen := s.gen
	s.pending = 2
	s.blocking = !background || s.state != models.LoadStateReady
	if s.blocking {
		s.state = models.LoadStateLoading
		s.loadErr = ""
	}
	lf := models.LayoutFilter{}
	if s.opts.ServerSideFilter {
		lf = s.layoutFilter
	}
	s.mu.Unlock()
	s.notify()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.LoadTimeout)
		defer cancel()
		layout, err := s.loader.Layout(ctx, s.eventID, lf, force)
		s.applyLayout(gen, layout, err)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.LoadTimeout)
		defer cancel()
		stats, err := s.loader.Statistics(ctx, s.eventID, force)
		s.applyStatistics(gen, stats, err)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *MapSession) applyLayout(gen uint64, layout *models.Layout, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded layout", "gen", gen)
		return
	}

	if err != nil {
		s.failLocked("layout", err)
	} else {
		s.model.Replace(layout)
		s.rebuildViewLocked()
		s.logger.Info("layout applied", "version", s.model.Version(),
			"areas", len(layout.Areas), "tables", layout.TableCount())
	}
	s.finishLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *MapSession) applyStatistics(gen uint64, stats *models.Statistics, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded statistics", "gen", gen)
		return
	}

	if err != nil {
		s.failLocked("statistics", err)
	} else {
		s.stats = stats
	}
	s.finishLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *MapSession) failLocked(what string, err error) {
	if !s.blocking {
		s.logger.Warn("background refresh failed, keeping current map", "part", what, "error", err)
		return
	}
	s.logger.Error("load failed", "part", what, "error", err)
	s.state = models.LoadStateFailed
	if s.loadErr == "" {
		s.loadErr = fmt.Sprintf("%s: %v", what, err)
	}
}

func (s *MapSession) finishLocked() {
	s.pending--
	if s.pending == 0 && s.blocking && s.state == models.LoadStateLoading {
		s.state = models.LoadStateReady
	}
}

// rebuildViewLocked re-derives the filtered view and drops a selection
// whose entity is gone.
func (s *MapSession) rebuildViewLocked() {
	s.view = filter.Apply(s.model.View(), s.layoutFilter)
	if s.ctrl.Revalidate(s.view) {
		s.logger.Debug("selection dropped after view change")
	}
}

// ============================================================
// Rendering
// ============================================================

// Frame renders the current view. No frame is produced while a load is in
// progress or after a failed one.
func (s *MapSession) Frame() (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return render.Frame{}, err
	}
	return render.Render(s.view, s.ctrl.Viewport(), render.Options{
		Palette:       s.opts.Palette,
		Selection:     s.ctrl.Selection(),
		Highlights:    s.search.HighlightedTables(),
		CanvasWidth:   s.canvasW,
		CanvasHeight:  s.canvasH,
		LayoutVersion: s.model.Version(),
	}), nil
}

func (s *MapSession) readyLocked() error {
	switch s.state {
	case models.LoadStateReady:
		return nil
	case models.LoadStateFailed:
		return fmt.Errorf("%w: %s", ErrLoadFailed, s.loadErr)
	case models.LoadStateLoading, models.LoadStateIdle:
		return ErrLoading
	default:
		return ErrLoading
	}
}

// SetCanvas updates the drawing surface size.
func (s *MapSession) SetCanvas(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	s.mu.Lock()
	s.canvasW, s.canvasH = width, height
	s.mu.Unlock()
	s.notify()
}

// ============================================================
// Input
// ============================================================

// Pointer feeds one pointer event in screen coordinates.
func (s *MapSession) Pointer(kind PointerKind, p models.Point) (interaction.Outcome, error) {
	s.mu.Lock()
	var out interaction.Outcome
	switch kind {
	case PointerDown:
		out = s.ctrl.PointerDown(p, s.view)
	case PointerMove:
		out = s.ctrl.PointerMove(p)
	case PointerUp:
		out = s.ctrl.PointerUp(p)
	default:
		s.mu.Unlock()
		return interaction.Outcome{}, fmt.Errorf("%w: %q", ErrInvalidPointer, kind)
	}
	s.lastAccessed = time.Now()
	s.mu.Unlock()

	if out.Changed() {
		s.notify()
	}
	return out, nil
}

// Wheel feeds a wheel event.
func (s *MapSession) Wheel(deltaY float64) interaction.Outcome {
	s.mu.Lock()
	out := s.ctrl.Wheel(deltaY)
	s.lastAccessed = time.Now()
	s.mu.Unlock()

	if out.Changed() {
		s.notify()
	}
	return out
}

// Zoom applies an explicit zoom control.
func (s *MapSession) Zoom(action ZoomAction) (interaction.Outcome, error) {
	s.mu.Lock()
	var out interaction.Outcome
	switch action {
	case ZoomIn:
		out = s.ctrl.ZoomIn()
	case ZoomOut:
		out = s.ctrl.ZoomOut()
	case ZoomReset:
		out = s.ctrl.ResetView()
	default:
		s.mu.Unlock()
		return interaction.Outcome{}, fmt.Errorf("%w: %q", ErrInvalidZoom, action)
	}
	s.lastAccessed = time.Now()
	s.mu.Unlock()

	if out.Changed() {
		s.notify()
	}
	return out, nil
}

// Viewport returns the current viewport.
func (s *MapSession) Viewport() geometry.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Viewport()
}

// ============================================================
// Selection
// ============================================================

// Selection returns the full record of the selected entity.
func (s *MapSession) Selection() (SelectionDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.ctrl.Selection()
	switch sel.Kind {
	case hittest.TableHit:
		table, area, ok := s.view.FindTable(sel.ID)
		if !ok {
			return SelectionDetail{}, ErrNoSelection
		}
		t := *table
		return SelectionDetail{Kind: sel.Kind.String(), ID: t.ID, AreaID: area.ID, AreaName: area.Name, Table: &t}, nil
	case hittest.AreaHit:
		area, ok := s.view.FindArea(sel.ID)
		if !ok {
			return SelectionDetail{}, ErrNoSelection
		}
		a := *area
		return SelectionDetail{Kind: sel.Kind.String(), ID: a.ID, AreaID: a.ID, AreaName: a.Name, Area: &a}, nil
	default:
		return SelectionDetail{}, ErrNoSelection
	}
}

// ClearSelection removes the selection and reports whether there was one.
func (s *MapSession) ClearSelection() bool {
	s.mu.Lock()
	had := s.ctrl.ClearSelection()
	s.mu.Unlock()
	if had {
		s.notify()
	}
	return had
}

// ============================================================
// Filters and search
// ============================================================

// Filter returns the active visual filter.
func (s *MapSession) Filter() models.LayoutFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layoutFilter
}

// SetFilter replaces the visual filter and reports whether it changed. The
// view is re-filtered at once; with server-side filtering the layout is
// also refetched with the new criteria.
func (s *MapSession) SetFilter(f models.LayoutFilter) bool {
	f = filter.Normalize(f)

	s.mu.Lock()
	if filter.Equal(s.layoutFilter, f) {
		s.mu.Unlock()
		return false
	}
	s.layoutFilter = f
	s.rebuildViewLocked()
	refetch := s.opts.ServerSideFilter && s.model.Loaded()
	s.mu.Unlock()

	s.notify()
	if refetch {
		s.refreshInBackground(false)
	}
	return true
}

// Search runs a free-text search. A blank query clears the results and
// sends nothing to the backend. A failed search leaves an empty list.
func (s *MapSession) Search(ctx context.Context, query string, kind *models.ResultKind) SearchOutcome {
	s.mu.Lock()
	req, send := s.search.Begin(query, kind)
	s.lastAccessed = time.Now()
	s.mu.Unlock()
	s.notify()

	if !send {
		return SearchOutcome{Query: "", Results: []models.SearchResult{}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	results, err := s.loader.Search(ctx, s.eventID, req.Query, req.Kind)

	s.mu.Lock()
	applied := s.search.Complete(req, results, err)
	out := SearchOutcome{
		Query:   s.search.Query(),
		Results: append([]models.SearchResult{}, s.search.Results()...),
		Stale:   !applied,
	}
	s.mu.Unlock()

	if applied {
		s.notify()
	}
	return out
}

// SearchResults returns the current search state.
func (s *MapSession) SearchResults() SearchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.search.Results()
	if results == nil {
		results = []models.SearchResult{}
	}
	return SearchOutcome{Query: s.search.Query(), Results: append([]models.SearchResult{}, results...)}
}

// ClearSearch drops the query and its highlights.
func (s *MapSession) ClearSearch() {
	s.mu.Lock()
	s.search.Clear()
	s.mu.Unlock()
	s.notify()
}

// SelectSearchResult selects the table a table-kind result points at,
// exactly as clicking it on the canvas would.
func (s *MapSession) SelectSearchResult(resultID string) (SelectionDetail, error) {
	s.mu.Lock()
	result, ok := s.search.Find(resultID)
	if !ok {
		s.mu.Unlock()
		return SelectionDetail{}, ErrResultNotFound
	}
	tableID := result.TableID()
	if tableID == "" {
		s.mu.Unlock()
		return SelectionDetail{}, fmt.Errorf("%w: %s is a %s", ErrNotSelectable, resultID, result.Kind)
	}
	table, area, ok := s.view.FindTable(tableID)
	if !ok {
		s.mu.Unlock()
		return SelectionDetail{}, fmt.Errorf("%w: %s", ErrNotInView, tableID)
	}
	s.ctrl.Select(hittest.Hit{Kind: hittest.TableHit, Area: area, Table: table})
	s.mu.Unlock()

	s.notify()
	return s.Selection()
}

// Statistics returns the latest statistics snapshot.
func (s *MapSession) Statistics() (*models.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats == nil {
		return nil, ErrNoStatistics
	}
	stats := *s.stats
	return &stats, nil
}

// ============================================================
// Change notification
// ============================================================

// Subscribe returns a channel that receives a signal after every change a
// renderer would draw. Signals coalesce: a slow reader sees one pending
// signal, never a backlog, and renders the latest state. The channel is
// closed when the session closes. Call the returned func to unsubscribe.
func (s *MapSession) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan struct{}, 1)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *MapSession) subscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *MapSession) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close cancels in-flight loads and closes every subscription.
func (s *MapSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subs = nil
	s.subMu.Unlock()
}

// ParsePointerKind validates a pointer event type.
func ParsePointerKind(raw string) (PointerKind, error) {
	switch k := PointerKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case PointerDown, PointerMove, PointerUp:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPointer, raw)
	}
}

// ParseZoomAction validates a zoom action.
func ParseZoomAction(raw string) (ZoomAction, error) {
	switch a := ZoomAction(strings.ToLower(strings.TrimSpace(raw))); a {
	case ZoomIn, ZoomOut, ZoomReset:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidZoom, raw)
	}
}
