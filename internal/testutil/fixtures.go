// fixtures.go - Layout and statistics fixtures shared by package tests
package testutil

import (
	"time"

	"github.com/venue-console/opmap/internal/models"
)

// BarLayout is the single-area reference floor plan: area "bar" at
// (0,0,200,200) with a rectangular B1 at (20,20,40,40) and a circular B2
// centred at (150,150) with radius 20.
func BarLayout(eventID string) *models.Layout {
	return &models.Layout{
		EventID: eventID,
		Width:   400,
		Height:  300,
		Scale:   1,
		Areas: []models.Area{{
			ID: "bar", Name: "Bar", Type: "bar",
			X: 0, Y: 0, W: 200, H: 200,
			Color: "#0ea5e9", Active: true, Capacity: 10,
			Tables: []models.Table{
				{
					ID: "B1", Label: "B1", Shape: models.ShapeRectangular,
					X: 20, Y: 20, W: 40, H: 40, Capacity: 4,
					Status: models.StatusAvailable, MinimumSpend: 200, ServiceFee: 0.1,
				},
				{
					ID: "B2", Label: "B2", Shape: models.ShapeCircular,
					X: 130, Y: 130, W: 40, H: 40, Capacity: 6,
					Status: models.StatusOccupied, MinimumSpend: 300, ServiceFee: 0.1,
					ActiveOrder: &models.ActiveOrder{ID: "order-b2", Total: 412.5, Participants: 5},
				},
			},
		}},
	}
}

// VenueLayout has three areas: an active bar, an active VIP lounge and an
// inactive terrace. Table statuses cover every status.
func VenueLayout(eventID string) *models.Layout {
	layout := BarLayout(eventID)
	layout.Width, layout.Height = 800, 400
	layout.Areas = append(layout.Areas,
		models.Area{
			ID: "vip", Name: "VIP", Type: "vip",
			X: 250, Y: 0, W: 200, H: 200,
			Color: "#a855f7", Active: true, Capacity: 12,
			Restrictions: []string{"18+", "wristband"},
			Tables: []models.Table{
				{ID: "V1", Label: "V1", Shape: models.ShapeRectangular, X: 270, Y: 20, W: 50, H: 50, Capacity: 8, Status: models.StatusReserved},
				{ID: "V2", Label: "V2", Shape: models.ShapeCircular, X: 350, Y: 100, W: 60, H: 60, Capacity: 8, Status: models.StatusBlocked, Notes: "held for artist"},
			},
		},
		models.Area{
			ID: "terrace", Name: "Terrace", Type: "bar",
			X: 500, Y: 0, W: 250, H: 200,
			Color: "#22c55e", Active: false, Capacity: 20,
			Tables: []models.Table{
				{ID: "T1", Label: "T1", Shape: models.ShapeRectangular, X: 520, Y: 20, W: 40, H: 40, Capacity: 4, Status: models.StatusMaintenance},
			},
		},
	)
	return layout
}

// SampleStatistics matches VenueLayout.
func SampleStatistics(eventID string) *models.Statistics {
	return &models.Statistics{
		EventID:           eventID,
		TotalTables:       5,
		Available:         1,
		Occupied:          1,
		Reserved:          1,
		Blocked:           1,
		Maintenance:       1,
		OpenOrders:        1,
		TotalParticipants: 5,
		TotalRevenue:      412.5,
		AverageTicket:     412.5,
		ComputedAt:        time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC),
	}
}

// TableResult builds a table-kind search result pointing at tableID.
func TableResult(id, tableID string) models.SearchResult {
	return models.SearchResult{
		Kind:   models.KindTable,
		ID:     id,
		Title:  "Mesa " + tableID,
		Status: "disponivel",
		Table:  &models.TableHit{TableID: tableID},
	}
}

// PersonResult builds a person-kind search result.
func PersonResult(id, name string, openOrders int) models.SearchResult {
	return models.SearchResult{
		Kind:   models.KindPerson,
		ID:     id,
		Title:  name,
		Person: &models.PersonHit{OpenOrders: openOrders},
	}
}
