// Package loader fetches layout and statistics snapshots for map sessions.
// Identical concurrent fetches are collapsed into one backend call, an
// optional shared cache is consulted first, and fetched statistics can be
// journalled. Nothing is retried: a failure is logged and returned.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/venue-console/opmap/internal/filter"
	"github.com/venue-console/opmap/internal/models"
)

// Source is the event backend.
type Source interface {
	GetLayout(ctx context.Context, eventID string, f models.LayoutFilter) (*models.Layout, error)
	GetStatistics(ctx context.Context, eventID string) (*models.Statistics, error)
	Search(ctx context.Context, eventID, query string, kind *models.ResultKind) ([]models.SearchResult, error)
}

// Cache shares snapshots between sessions.
type Cache interface {
	GetLayout(ctx context.Context, eventID string, f models.LayoutFilter) (*models.Layout, bool)
	PutLayout(ctx context.Context, eventID string, f models.LayoutFilter, layout *models.Layout)
	GetStatistics(ctx context.Context, eventID string) (*models.Statistics, bool)
	PutStatistics(ctx context.Context, eventID string, stats *models.Statistics)
	Invalidate(ctx context.Context, eventID string)
}

// Recorder journals statistics snapshots.
type Recorder interface {
	Record(ctx context.Context, stats *models.Statistics) error
}

// Loader is safe for concurrent use.
type Loader struct {
	src      Source
	cache    Cache
	recorder Recorder
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithCache consults c before the backend unless a load is forced.
func WithCache(c Cache) Option { return func(l *Loader) { l.cache = c } }

// WithRecorder journals every statistics snapshot fetched from the backend.
func WithRecorder(r Recorder) Option { return func(l *Loader) { l.recorder = r } }

// WithLogger sets the logger; the default is slog.Default.
func WithLogger(lg *slog.Logger) Option { return func(l *Loader) { l.logger = lg } }

// New creates a loader over src.
func New(src Source, opts ...Option) *Loader {
	l := &Loader{src: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Layout returns the layout of an event. force skips the cache and always
// asks the backend; the fresh layout is written back to the cache.
func (l *Loader) Layout(ctx context.Context, eventID string, f models.LayoutFilter, force bool) (*models.Layout, error) {
	f = filter.Normalize(f)
	key := fmt.Sprintf("layout|%s|%t|%s|%t|%s", eventID, force, f.AreaType, f.ActiveOnly, statusKey(f.Status))

	v, err := l.do(ctx, key, func(ctx context.Context) (any, error) {
		if !force && l.cache != nil {
			if layout, ok := l.cache.GetLayout(ctx, eventID, f); ok {
				return layout, nil
			}
		}

		start := time.Now()
		layout, err := l.src.GetLayout(ctx, eventID, f)
		if err != nil {
			l.logger.Error("layout load failed", "event_id", eventID, "error", err)
			return nil, err
		}
		l.logger.Debug("layout loaded", "event_id", eventID, "areas", len(layout.Areas),
			"tables", layout.TableCount(), "duration", time.Since(start))

		if l.cache != nil {
			l.cache.PutLayout(ctx, eventID, f, layout)
		}
		return layout, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Layout), nil
}

// Statistics returns the statistics snapshot of an event. Snapshots fetched
// from the backend are journalled when a recorder is configured.
func (l *Loader) Statistics(ctx context.Context, eventID string, force bool) (*models.Statistics, error) {
	key := fmt.Sprintf("stats|%s|%t", eventID, force)

	v, err := l.do(ctx, key, func(ctx context.Context) (any, error) {
		if !force && l.cache != nil {
			if stats, ok := l.cache.GetStatistics(ctx, eventID); ok {
				return stats, nil
			}
		}

		stats, err := l.src.GetStatistics(ctx, eventID)
		if err != nil {
			l.logger.Error("statistics load failed", "event_id", eventID, "error", err)
			return nil, err
		}

		if l.cache != nil {
			l.cache.PutStatistics(ctx, eventID, stats)
		}
		if l.recorder != nil {
			if err := l.recorder.Record(ctx, stats); err != nil {
				l.logger.Warn("statistics not journalled", "event_id", eventID, "error", err)
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Statistics), nil
}

// Search forwards a free-text search to the backend. Searches are never
// cached or deduplicated.
func (l *Loader) Search(ctx context.Context, eventID, query string, kind *models.ResultKind) ([]models.SearchResult, error) {
	results, err := l.src.Search(ctx, eventID, query, kind)
	if err != nil {
		l.logger.Warn("search failed", "event_id", eventID, "query", query, "error", err)
		return nil, err
	}
	return results, nil
}

// Invalidate drops the cached snapshots of an event.
func (l *Loader) Invalidate(ctx context.Context, eventID string) {
	if l.cache != nil {
		l.cache.Invalidate(ctx, eventID)
	}
}

// do runs fn once per key across concurrent callers. The shared call is
// detached from the first caller's cancellation; each caller still returns
// as soon as its own context is done.
func (l *Loader) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func statusKey(s *models.TableStatus) string {
	if s == nil {
		return "*"
	}
	return s.String()
}
