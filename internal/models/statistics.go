package models

import "time"

// Statistics is a flat aggregate computed server-side over the current
// layout. It is derived data: recomputed on every load, never mutated here.
type Statistics struct {
	EventID           string    `json:"eventId"`
	TotalTables       int       `json:"totalTables"`
	Available         int       `json:"available"`
	Occupied          int       `json:"occupied"`
	Reserved          int       `json:"reserved"`
	Blocked           int       `json:"blocked"`
	Maintenance       int       `json:"maintenance"`
	OpenOrders        int       `json:"openOrders"`
	BlockedOrders     int       `json:"blockedOrders"`
	TotalParticipants int       `json:"totalParticipants"`
	TotalRevenue      float64   `json:"totalRevenue"`
	AverageTicket     float64   `json:"averageTicket"`
	ComputedAt        time.Time `json:"computedAt,omitempty"`
}

// Count returns the number of tables in the given status.
func (s *Statistics) Count(status TableStatus) int {
	switch status {
	case StatusAvailable:
		return s.Available
	case StatusOccupied:
		return s.Occupied
	case StatusReserved:
		return s.Reserved
	case StatusBlocked:
		return s.Blocked
	case StatusMaintenance:
		return s.Maintenance
	default:
		return 0
	}
}

// OccupancyRate is the share of tables currently occupied, in [0, 1].
func (s *Statistics) OccupancyRate() float64 {
	if s.TotalTables <= 0 {
		return 0
	}
	return float64(s.Occupied) / float64(s.TotalTables)
}
