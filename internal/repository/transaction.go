package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/events"
	"github.com/ref-builder/ref-builder/internal/otu"
)

// Tx is a multi-event write transaction (spec §4.5). Opening one remembers
// last_id; Commit advances head to the most recently appended event id;
// Abort (or dropping the Tx without committing) deletes every event file
// appended since last_id and prunes the index to match.
type Tx struct {
	repo *Repo

	lastID       int
	lastAppended int
	done         bool

	// cache holds OTU states mutated earlier in this transaction, so a
	// later mutator in the same transaction sees its own writes before
	// they are committed (spec §5: "an event is visible to any subsequent
	// read in the same process immediately after append").
	cache map[uuid.UUID]*otu.OTU
}

// Begin opens a transaction. The caller must already hold the repository
// lock; calling it otherwise is the programming error of spec §4.5
// ("lock-required").
func (r *Repo) Begin() (*Tx, error) {
	if !r.lock.Held() {
		return nil, ErrLockRequired
	}

	return &Tx{
		repo:         r,
		lastID:       r.log.Head(),
		lastAppended: r.log.Head(),
		cache:        make(map[uuid.UUID]*otu.OTU),
	}, nil
}

// Commit advances head to the most recently appended event id. A
// transaction that appended nothing commits as a no-op.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("repository: transaction already closed")
	}
	tx.done = true

	if tx.lastAppended == tx.lastID {
		return nil
	}
	return tx.repo.log.Commit(tx.lastAppended)
}

// Abort discards every event appended during the transaction and prunes
// the index to match (spec §4.5). It is idempotent and safe to call after
// Commit (a no-op in that case).
func (tx *Tx) Abort() error {
	if tx.done {
		return nil
	}
	tx.done = true

	if tx.lastAppended == tx.lastID {
		return nil
	}

	if err := tx.repo.log.Abort(tx.lastID); err != nil {
		return fmt.Errorf("repository: abort: %w", err)
	}
	if err := tx.repo.idx.Prune(context.Background(), tx.lastID); err != nil {
		return fmt.Errorf("repository: abort: prune index: %w", err)
	}
	return nil
}

// loadOTU returns the OTU named by id as seen from inside this
// transaction: cached writes from earlier in the same transaction take
// precedence over the committed/indexed state.
func (tx *Tx) loadOTU(ctx context.Context, id uuid.UUID) (*otu.OTU, error) {
	if cached, ok := tx.cache[id]; ok {
		return cached, nil
	}
	return tx.repo.fetchOTU(ctx, id)
}

// append durably writes ev (assigning it the next event id), records it in
// the index, upserts next's snapshot, and remembers next in the
// transaction's read-your-writes cache.
func (tx *Tx) append(ctx context.Context, ev events.Event, next *otu.OTU) (*otu.OTU, error) {
	id, err := tx.repo.log.Append(ev)
	if err != nil {
		return nil, fmt.Errorf("repository: append: %w", err)
	}
	ev.ID = id

	if err := tx.repo.idx.RecordEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("repository: record event %d: %w", id, err)
	}
	if err := tx.repo.idx.UpsertOTU(ctx, next, id); err != nil {
		return nil, fmt.Errorf("repository: upsert snapshot for event %d: %w", id, err)
	}

	tx.lastAppended = id
	if otuID, ok := events.OTUIDOf(ev.Query); ok {
		tx.cache[otuID] = next
	}

	return next, nil
}
