package index

import (
	"context"
	"fmt"
)

// Prune deletes every events row and otus snapshot recorded past eventID
// (spec §4.4, "used when the log is rolled back"). It is the index-side
// counterpart of the event log's Abort.
func (s *Store) Prune(ctx context.Context, eventID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE event_id > ?`, eventID); err != nil {
		return fmt.Errorf("index: prune events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM otus WHERE at_event > ?`, eventID); err != nil {
		return fmt.Errorf("index: prune otus: %w", err)
	}

	return tx.Commit()
}
