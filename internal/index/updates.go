package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/events"
)

// RecordOTUUpdateComplete appends a row to otu_updates (spec §4.4: "audit
// log for batch-update cooldown logic ... the core only appends and
// reads"). Retention is intentionally unbounded (spec §9 open question).
func (s *Store) RecordOTUUpdateComplete(ctx context.Context, otuID uuid.UUID, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otu_updates (otu_id, timestamp_complete) VALUES (?, ?)`,
		otuID.String(), completedAt.UTC().Format(events.TimestampLayout),
	)
	if err != nil {
		return fmt.Errorf("index: record otu update for %s: %w", otuID, err)
	}
	return nil
}

// GetOTULastUpdated returns the most recent otu_updates timestamp for
// otuID, consumed by the external batch-update cooldown collaborator
// (SPEC_FULL.md §D.4).
func (s *Store) GetOTULastUpdated(ctx context.Context, otuID uuid.UUID) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp_complete) FROM otu_updates WHERE otu_id = ?`, otuID.String(),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("index: last updated for %s: %w", otuID, err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}

	ts, err := time.Parse(events.TimestampLayout, raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("index: parse otu_updates timestamp %q: %w", raw.String, err)
	}
	return ts.UTC(), true, nil
}
