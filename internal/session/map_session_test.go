package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-console/opmap/internal/interaction"
	"github.com/venue-console/opmap/internal/loader"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/render"
	"github.com/venue-console/opmap/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{Palette: render.DefaultPalette(), DefaultWidth: 800, DefaultHeight: 600}
}

func newTestSession(t *testing.T, fake *testutil.FakeBackend, opts Options) *MapSession {
	t.Helper()
	s := newMapSession("sess-0001", "evt-1", 800, 600, loader.New(fake), opts, discardLogger())
	t.Cleanup(s.Close)
	return s
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
}

func readySession(t *testing.T, layout *models.Layout) (*MapSession, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend()
	fake.SetLayout("evt-1", layout)
	fake.SetStatistics("evt-1", testutil.SampleStatistics("evt-1"))
	s := newTestSession(t, fake, testOptions())
	waitDone(t, s.Refresh(false))
	require.Equal(t, models.LoadStateReady, s.State())
	return s, fake
}

func tableFill(f render.Frame, id string) string {
	for _, c := range f.Commands {
		if c.Role == render.RoleTable && c.Entity == id {
			return c.Fill
		}
	}
	return ""
}

func hasCommand(f render.Frame, role render.Role, id string) bool {
	for _, c := range f.Commands {
		if c.Role == role && c.Entity == id {
			return true
		}
	}
	return false
}

func TestMapSession_LoadAndFrame(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, 800.0, frame.Width)
	assert.Equal(t, uint64(1), frame.LayoutVersion)
	assert.Equal(t, render.ColorGreen, tableFill(frame, "B1"))
	assert.Equal(t, render.ColorRed, tableFill(frame, "B2"))

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTables)

	info := s.Info()
	assert.Equal(t, "evt-1", info.EventID)
	assert.Equal(t, models.LoadStateReady, info.State)
}

func TestMapSession_FrameWhileLoading(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.SetLayout("evt-1", testutil.BarLayout("evt-1"))
	fake.SetStatistics("evt-1", testutil.SampleStatistics("evt-1"))
	fake.Gate = make(chan struct{})
	s := newTestSession(t, fake, testOptions())

	done := s.Refresh(false)
	_, err := s.Frame()
	assert.ErrorIs(t, err, ErrLoading)
	assert.Equal(t, models.LoadStateLoading, s.State())

	close(fake.Gate)
	waitDone(t, done)
	_, err = s.Frame()
	assert.NoError(t, err)
}

func TestMapSession_LoadFailure(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.SetStatistics("evt-1", testutil.SampleStatistics("evt-1"))
	s := newTestSession(t, fake, testOptions())

	waitDone(t, s.Refresh(false))
	assert.Equal(t, models.LoadStateFailed, s.State())
	_, err := s.Frame()
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.NotEmpty(t, s.Info().Error)
}

func TestMapSession_BackgroundFailureKeepsMap(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))

	fake.LayoutErr = errors.New("backend down")
	waitDone(t, s.refreshInBackground(true))

	assert.Equal(t, models.LoadStateReady, s.State())
	_, err := s.Frame()
	assert.NoError(t, err)
}

func TestMapSession_SupersededLoadIsDiscarded(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	s.mu.Lock()
	stale := s.gen - 1
	s.mu.Unlock()

	s.applyLayout(stale, testutil.VenueLayout("evt-1"), nil)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.LayoutVersion)
	assert.False(t, hasCommand(frame, render.RoleTable, "V1"))
}

func TestMapSession_PointerSelectsTable(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	out, err := s.Pointer(PointerDown, models.Point{X: 40, Y: 40})
	require.NoError(t, err)
	assert.Equal(t, interaction.Selected, out.Kind)

	sel, err := s.Selection()
	require.NoError(t, err)
	assert.Equal(t, "table", sel.Kind)
	assert.Equal(t, "B1", sel.ID)
	assert.Equal(t, "bar", sel.AreaID)
	assert.Equal(t, "Bar", sel.AreaName)
	require.NotNil(t, sel.Table)
	assert.Equal(t, models.StatusAvailable, sel.Table.Status)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, "B1", frame.Selection)
	assert.True(t, hasCommand(frame, render.RoleSelection, "B1"))
}

func TestMapSession_PointerSelectsArea(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	_, err := s.Pointer(PointerDown, models.Point{X: 100, Y: 100})
	require.NoError(t, err)

	sel, err := s.Selection()
	require.NoError(t, err)
	assert.Equal(t, "area", sel.Kind)
	assert.Equal(t, "bar", sel.ID)
	require.NotNil(t, sel.Area)
	assert.Nil(t, sel.Table)
}

func TestMapSession_PanKeepsSelection(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	_, err := s.Pointer(PointerDown, models.Point{X: 40, Y: 40})
	require.NoError(t, err)

	out, err := s.Pointer(PointerDown, models.Point{X: 300, Y: 250})
	require.NoError(t, err)
	assert.Equal(t, interaction.PanStarted, out.Kind)

	out, err = s.Pointer(PointerMove, models.Point{X: 310, Y: 265})
	require.NoError(t, err)
	assert.Equal(t, interaction.Panned, out.Kind)

	out, err = s.Pointer(PointerUp, models.Point{X: 310, Y: 265})
	require.NoError(t, err)
	assert.Equal(t, interaction.PanEnded, out.Kind)

	vp := s.Viewport()
	assert.Equal(t, 10.0, vp.Pan.X)
	assert.Equal(t, 15.0, vp.Pan.Y)

	sel, err := s.Selection()
	require.NoError(t, err)
	assert.Equal(t, "B1", sel.ID)

	assert.True(t, s.ClearSelection())
	assert.False(t, s.ClearSelection())
	_, err = s.Selection()
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestMapSession_InvalidInput(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	_, err := s.Pointer(PointerKind("hover"), models.Point{})
	assert.ErrorIs(t, err, ErrInvalidPointer)
	_, err = s.Zoom(ZoomAction("sideways"))
	assert.ErrorIs(t, err, ErrInvalidZoom)

	_, err = ParsePointerKind("DOWN")
	assert.NoError(t, err)
	_, err = ParseZoomAction("bogus")
	assert.ErrorIs(t, err, ErrInvalidZoom)
}

func TestMapSession_WheelAndZoom(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	s.Wheel(-100)
	assert.InDelta(t, 1.1, s.Viewport().Zoom, 1e-9)

	_, err := s.Zoom(ZoomOut)
	require.NoError(t, err)
	assert.InDelta(t, 0.88, s.Viewport().Zoom, 1e-9)

	for i := 0; i < 50; i++ {
		s.Wheel(-1)
	}
	assert.Equal(t, 3.0, s.Viewport().Zoom)
	out := s.Wheel(-1)
	assert.False(t, out.Changed())

	_, err = s.Zoom(ZoomReset)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Viewport().Zoom)
}

func TestMapSession_ReloadDropsMissingSelection(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))

	_, err := s.Pointer(PointerDown, models.Point{X: 40, Y: 40})
	require.NoError(t, err)

	layout := testutil.BarLayout("evt-1")
	layout.Areas[0].Tables = layout.Areas[0].Tables[1:]
	fake.SetLayout("evt-1", layout)
	waitDone(t, s.Refresh(true))

	_, err = s.Selection()
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestMapSession_ReloadKeepsSelectionWithNewStatus(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))

	_, err := s.Pointer(PointerDown, models.Point{X: 40, Y: 40})
	require.NoError(t, err)

	fake.SetTableStatus("evt-1", "B1", models.StatusOccupied)
	waitDone(t, s.Refresh(true))

	sel, err := s.Selection()
	require.NoError(t, err)
	assert.Equal(t, models.StatusOccupied, sel.Table.Status)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, render.ColorRed, tableFill(frame, "B1"))
	assert.Equal(t, uint64(2), frame.LayoutVersion)
}

func TestMapSession_SetFilter(t *testing.T) {
	s, _ := readySession(t, testutil.VenueLayout("evt-1"))

	_, err := s.Pointer(PointerDown, models.Point{X: 540, Y: 40})
	require.NoError(t, err)
	sel, err := s.Selection()
	require.NoError(t, err)
	require.Equal(t, "T1", sel.ID)

	assert.True(t, s.SetFilter(models.LayoutFilter{ActiveOnly: true}))
	assert.False(t, s.SetFilter(models.LayoutFilter{ActiveOnly: true}))

	_, err = s.Selection()
	assert.ErrorIs(t, err, ErrNoSelection)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.Equal(t, []string{"vip", "bar"}, frame.EntityOrder(render.RoleArea))

	assert.True(t, s.SetFilter(models.LayoutFilter{}))
	frame, err = s.Frame()
	require.NoError(t, err)
	assert.Equal(t, []string{"terrace", "vip", "bar"}, frame.EntityOrder(render.RoleArea))
}

func TestMapSession_ServerSideFilterRefetches(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.SetLayout("evt-1", testutil.VenueLayout("evt-1"))
	fake.SetStatistics("evt-1", testutil.SampleStatistics("evt-1"))
	opts := testOptions()
	opts.ServerSideFilter = true
	s := newTestSession(t, fake, opts)
	waitDone(t, s.Refresh(false))
	require.Equal(t, 1, fake.LayoutCalls())

	status := models.StatusOccupied
	require.True(t, s.SetFilter(models.LayoutFilter{Status: &status}))

	require.Eventually(t, func() bool { return fake.LayoutCalls() == 2 }, time.Second, 10*time.Millisecond)
	require.NotNil(t, fake.LastFilter().Status)
	assert.Equal(t, models.StatusOccupied, *fake.LastFilter().Status)
}

func TestMapSession_SearchAndSelect(t *testing.T) {
	s, fake := readySession(t, testutil.VenueLayout("evt-1"))
	fake.SetResults("mesa", []models.SearchResult{
		testutil.TableResult("r-b2", "B2"),
		testutil.TableResult("r-t1", "T1"),
		testutil.PersonResult("p-1", "Ana", 1),
	})

	out := s.Search(context.Background(), "Mesa", nil)
	assert.False(t, out.Stale)
	assert.Equal(t, "Mesa", out.Query)
	require.Len(t, out.Results, 3)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.True(t, hasCommand(frame, render.RoleSearchHit, "B2"))
	assert.True(t, hasCommand(frame, render.RoleSearchHit, "T1"))

	sel, err := s.SelectSearchResult("r-b2")
	require.NoError(t, err)
	assert.Equal(t, "B2", sel.ID)
	assert.Equal(t, "bar", sel.AreaID)

	_, err = s.SelectSearchResult("p-1")
	assert.ErrorIs(t, err, ErrNotSelectable)
	_, err = s.SelectSearchResult("missing")
	assert.ErrorIs(t, err, ErrResultNotFound)

	s.SetFilter(models.LayoutFilter{ActiveOnly: true})
	_, err = s.SelectSearchResult("r-t1")
	assert.ErrorIs(t, err, ErrNotInView)

	s.ClearSearch()
	assert.Empty(t, s.SearchResults().Results)
}

func TestMapSession_OverlappingSearchesKeepNewest(t *testing.T) {
	s, fake := readySession(t, testutil.VenueLayout("evt-1"))
	fake.SetResults("ana", []models.SearchResult{testutil.PersonResult("p-1", "Ana", 1)})
	fake.SetResults("mesa", []models.SearchResult{testutil.TableResult("r-b2", "B2")})
	slow := make(chan struct{})
	fake.SetSearchGate("ana", slow)

	older := make(chan SearchOutcome, 1)
	go func() { older <- s.Search(context.Background(), "ana", nil) }()
	require.Eventually(t, func() bool { return fake.SearchCalls() == 1 }, time.Second, time.Millisecond)

	newer := s.Search(context.Background(), "mesa", nil)
	assert.False(t, newer.Stale)
	require.Len(t, newer.Results, 1)

	// the older request resolves last
	close(slow)
	var out SearchOutcome
	select {
	case out = <-older:
	case <-time.After(2 * time.Second):
		t.Fatal("older search never returned")
	}
	assert.True(t, out.Stale)
	assert.Equal(t, "mesa", out.Query)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "r-b2", out.Results[0].ID)

	current := s.SearchResults()
	assert.Equal(t, "mesa", current.Query)
	require.Len(t, current.Results, 1)
	assert.Equal(t, "r-b2", current.Results[0].ID)

	frame, err := s.Frame()
	require.NoError(t, err)
	assert.True(t, hasCommand(frame, render.RoleSearchHit, "B2"))
}

func TestMapSession_BlankSearchSkipsBackend(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))
	fake.SetResults("b1", []models.SearchResult{testutil.TableResult("r1", "B1")})

	out := s.Search(context.Background(), "b1", nil)
	require.Len(t, out.Results, 1)

	out = s.Search(context.Background(), "   ", nil)
	assert.Empty(t, out.Results)
	assert.Equal(t, 1, fake.SearchCalls())
	assert.Empty(t, s.SearchResults().Results)
}

func TestMapSession_SearchFailureEmptiesResults(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))
	fake.SearchErr = errors.New("timeout")

	out := s.Search(context.Background(), "b1", nil)
	assert.False(t, out.Stale)
	assert.Empty(t, out.Results)
}

func TestMapSession_SubscribeCoalesces(t *testing.T) {
	s, _ := readySession(t, testutil.BarLayout("evt-1"))

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Wheel(-1)
	s.Wheel(-1)
	s.Wheel(-1)

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}

	s.Close()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestMapSession_RefreshAfterClose(t *testing.T) {
	s, fake := readySession(t, testutil.BarLayout("evt-1"))
	calls := fake.LayoutCalls()

	s.Close()
	waitDone(t, s.Refresh(true))
	assert.Equal(t, calls, fake.LayoutCalls())
}
