package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/events"
)

// RecordEvent inserts the (event_id, otu_id, timestamp) row for a single
// event (spec §4.4, table "events"). It is called once per appended event,
// immediately after the event file itself is durable.
func (s *Store) RecordEvent(ctx context.Context, ev events.Event) error {
	var otuID sql.NullString
	if id, ok := events.OTUIDOf(ev.Query); ok {
		otuID = sql.NullString{String: id.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, otu_id, timestamp) VALUES (?, ?, ?)
		 ON CONFLICT (event_id) DO UPDATE SET otu_id = excluded.otu_id, timestamp = excluded.timestamp`,
		ev.ID, otuID, ev.Timestamp.UTC().Format(events.TimestampLayout),
	)
	if err != nil {
		return fmt.Errorf("index: record event %d: %w", ev.ID, err)
	}
	return nil
}

// EventIDsForOTU returns every event id recorded against otuID, in
// ascending order (spec §4.4: "Supports 'give me all events for OTU X in
// order'").
func (s *Store) EventIDsForOTU(ctx context.Context, otuID uuid.UUID) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id FROM events WHERE otu_id = ? ORDER BY event_id ASC`, otuID.String())
	if err != nil {
		return nil, fmt.Errorf("index: event ids for otu %s: %w", otuID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FirstCreated returns the timestamp of the earliest recorded event for
// otuID (SPEC_FULL.md §D.5).
func (s *Store) FirstCreated(ctx context.Context, otuID uuid.UUID) (time.Time, bool, error) {
	return s.aggregateEventTimestamp(ctx, otuID, "MIN")
}

// LastModified returns the timestamp of the most recent recorded event for
// otuID (SPEC_FULL.md §D.5).
func (s *Store) LastModified(ctx context.Context, otuID uuid.UUID) (time.Time, bool, error) {
	return s.aggregateEventTimestamp(ctx, otuID, "MAX")
}

func (s *Store) aggregateEventTimestamp(ctx context.Context, otuID uuid.UUID, agg string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT %s(timestamp) FROM events WHERE otu_id = ?`, agg)

	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, query, otuID.String()).Scan(&raw); err != nil {
		return time.Time{}, false, fmt.Errorf("index: %s timestamp for otu %s: %w", agg, otuID, err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}

	ts, err := time.Parse(events.TimestampLayout, raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("index: parse timestamp %q: %w", raw.String, err)
	}
	return ts.UTC(), true, nil
}
