package session

import "errors"

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the session cap is reached.
	ErrTooManySessions = errors.New("too many map sessions")
	// ErrLoading is returned for a frame requested while a load is in progress.
	ErrLoading = errors.New("map is loading")
	// ErrLoadFailed wraps the message of the last failed load.
	ErrLoadFailed = errors.New("map load failed")
	// ErrNoStatistics is returned before the first statistics snapshot arrives.
	ErrNoStatistics = errors.New("statistics not loaded")
	// ErrNoSelection is returned when nothing is selected.
	ErrNoSelection = errors.New("nothing selected")
	// ErrResultNotFound is returned for a search result ID that is not in the current results.
	ErrResultNotFound = errors.New("search result not found")
	// ErrNotSelectable is returned for search results that do not point at a table.
	ErrNotSelectable = errors.New("search result does not point at a table")
	// ErrNotInView is returned when a result's table is not in the current (filtered) view.
	ErrNotInView = errors.New("table not in current view")
	// ErrInvalidPointer is returned for unknown pointer event types.
	ErrInvalidPointer = errors.New("invalid pointer event")
	// ErrInvalidZoom is returned for unknown zoom actions.
	ErrInvalidZoom = errors.New("invalid zoom action")
)
