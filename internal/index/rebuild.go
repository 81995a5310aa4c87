package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/eventlog"
	"github.com/ref-builder/ref-builder/internal/events"
	"github.com/ref-builder/ref-builder/internal/otu"
)

// Rebuild replays the entire event log and repopulates events/otus/
// isolates/sequences from scratch (spec §4.4 "Rebuild"). otu_updates is
// left untouched: it is not derivable from the log (spec §9 open
// question), so a rebuild can only ever recompute state that is a pure
// function of the event stream.
//
// Rebuild is idempotent: running it twice against the same log produces
// bit-identical otus.otu JSON, since upsert always serialises the fully
// folded OTU the same way.
func (s *Store) Rebuild(ctx context.Context, log *eventlog.Log) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("index: rebuild: clear events: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM otus`); err != nil {
		return fmt.Errorf("index: rebuild: clear otus: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM isolates`); err != nil {
		return fmt.Errorf("index: rebuild: clear isolates: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sequences`); err != nil {
		return fmt.Errorf("index: rebuild: clear sequences: %w", err)
	}

	aggregates := make(map[uuid.UUID]*otu.OTU)
	lastEventFor := make(map[uuid.UUID]int)

	err := log.IterEvents(1, func(ev events.Event) (bool, error) {
		if err := s.RecordEvent(ctx, ev); err != nil {
			return false, err
		}

		otuID, ok := events.OTUIDOf(ev.Query)
		if !ok {
			// CreateRepo: repo-level, not folded into any OTU.
			return true, nil
		}

		current := aggregates[otuID]
		next, err := events.Apply(current, ev)
		if err != nil {
			return false, fmt.Errorf("rebuild: fold event %d for otu %s: %w", ev.ID, otuID, err)
		}

		aggregates[otuID] = next
		lastEventFor[otuID] = ev.ID
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("index: rebuild: %w", err)
	}

	for otuID, o := range aggregates {
		if err := s.UpsertOTU(ctx, o, lastEventFor[otuID]); err != nil {
			return fmt.Errorf("index: rebuild: upsert otu %s: %w", otuID, err)
		}
	}

	return nil
}
