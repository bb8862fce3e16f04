// Package history journals statistics snapshots in DuckDB so the occupancy
// of an event can be charted over time.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/venue-console/opmap/internal/models"
)

// DefaultLimit caps History when the caller passes no limit.
const DefaultLimit = 500

// Journal is an append-only store of statistics snapshots.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal at path. An empty path keeps the
// journal in memory.
func Open(path string) (*Journal, error) {
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS statistics_snapshots (
			event_id VARCHAR NOT NULL,
			computed_at TIMESTAMP NOT NULL,
			total_tables INTEGER,
			available INTEGER,
			occupied INTEGER,
			reserved INTEGER,
			blocked INTEGER,
			maintenance INTEGER,
			open_orders INTEGER,
			blocked_orders INTEGER,
			total_participants INTEGER,
			total_revenue DOUBLE,
			average_ticket DOUBLE
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one snapshot.
func (j *Journal) Record(ctx context.Context, s *models.Statistics) error {
	computedAt := s.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO statistics_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.EventID, computedAt.UTC(),
		s.TotalTables, s.Available, s.Occupied, s.Reserved, s.Blocked, s.Maintenance,
		s.OpenOrders, s.BlockedOrders, s.TotalParticipants, s.TotalRevenue, s.AverageTicket,
	)
	if err != nil {
		return fmt.Errorf("record statistics for %s: %w", s.EventID, err)
	}
	return nil
}

// History returns the snapshots of an event taken at or after since, oldest
// first. Only the newest limit snapshots are returned.
func (j *Journal) History(ctx context.Context, eventID string, since time.Time, limit int) ([]models.Statistics, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	where := "event_id = ?"
	args := []any{eventID}
	if !since.IsZero() {
		where += " AND computed_at >= ?"
		args = append(args, since.UTC())
	}

	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT event_id, computed_at, total_tables, available, occupied, reserved, blocked,
			       maintenance, open_orders, blocked_orders, total_participants, total_revenue, average_ticket
			FROM statistics_snapshots
			WHERE %s
			ORDER BY computed_at DESC
			LIMIT %d
		) ORDER BY computed_at ASC`, where, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", eventID, err)
	}
	defer rows.Close()

	out := []models.Statistics{}
	for rows.Next() {
		var s models.Statistics
		if err := rows.Scan(
			&s.EventID, &s.ComputedAt,
			&s.TotalTables, &s.Available, &s.Occupied, &s.Reserved, &s.Blocked, &s.Maintenance,
			&s.OpenOrders, &s.BlockedOrders, &s.TotalParticipants, &s.TotalRevenue, &s.AverageTicket,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than before and returns how many went.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM statistics_snapshots WHERE computed_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
