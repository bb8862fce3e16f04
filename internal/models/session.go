package models

import "time"

// LoadState is the data-loading state of a map session.
type LoadState string

const (
	LoadStateIdle    LoadState = "idle"
	LoadStateLoading LoadState = "loading"
	LoadStateReady   LoadState = "ready"
	LoadStateFailed  LoadState = "failed"
)

// MapSession describes one console screen showing the operation map of an event.
type MapSession struct {
	ID            string    `json:"id"`
	EventID       string    `json:"eventId"`
	State         LoadState `json:"state"`
	Error         string    `json:"error,omitempty"`
	CanvasWidth   float64   `json:"canvasWidth"`
	CanvasHeight  float64   `json:"canvasHeight"`
	LayoutVersion uint64    `json:"layoutVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	LastAccessed  time.Time `json:"lastAccessed"`
}
