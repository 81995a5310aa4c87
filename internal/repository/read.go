package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ref-builder/ref-builder/internal/events"
	"github.com/ref-builder/ref-builder/internal/index"
	"github.com/ref-builder/ref-builder/internal/otu"
)

// GetOTU is the canonical read path of spec §4.5: snapshot fast-path first,
// else full fold from the log, with a stale snapshot silently refreshed
// before returning. A deleted OTU surfaces the distinguishable "otu-deleted"
// outcome; a wholly absent one surfaces "not-found" (spec §4.5, §7).
func (r *Repo) GetOTU(ctx context.Context, id uuid.UUID) (*otu.OTU, error) {
	o, err := r.fetchOTU(ctx, id)
	if err != nil {
		if errors.Is(err, ErrHydrationError) || errors.Is(err, ErrIndexCorrupt) {
			r.logger.Error("index error during read, rebuilding from log", zap.Error(err), zap.String("otu_id", id.String()))
			if rerr := r.recoverIndex(ctx); rerr != nil {
				return nil, fmt.Errorf("repository: recover index after %v: %w", err, rerr)
			}
			o, err = r.fetchOTU(ctx, id)
		}
		if err != nil {
			return nil, err
		}
	}

	if o == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: id}
	}
	if o.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: id, Taxid: o.Taxid}
	}
	return o, nil
}

// fetchOTU loads an OTU's latest state regardless of its Deleted flag,
// returning (nil, nil) if no event in the log targets id at all.
func (r *Repo) fetchOTU(ctx context.Context, id uuid.UUID) (*otu.OTU, error) {
	eventIDs, err := r.idx.EventIDsForOTU(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("repository: event ids for otu %s: %w", id, err)
	}
	if len(eventIDs) == 0 {
		return nil, nil
	}
	lastEventID := eventIDs[len(eventIDs)-1]

	snap, err := r.idx.LoadSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, index.ErrIndexCorrupt) {
			return nil, fmt.Errorf("%w: otu %s: %v", ErrIndexCorrupt, id, err)
		}
		return nil, fmt.Errorf("repository: load snapshot %s: %w", id, err)
	}

	if snap != nil && snap.AtEvent == lastEventID {
		return snap.OTU, nil
	}

	var current *otu.OTU
	from := eventIDs[0]
	if snap != nil {
		current = snap.OTU
		from = snap.AtEvent + 1
	}

	for _, evID := range eventIDs {
		if evID < from {
			continue
		}
		ev, err := r.log.ReadEvent(evID)
		if err != nil {
			return nil, fmt.Errorf("%w: read event %d for otu %s: %v", ErrHydrationError, evID, id, err)
		}
		next, err := events.Apply(current, ev)
		if err != nil {
			return nil, fmt.Errorf("%w: fold event %d for otu %s: %v", ErrHydrationError, evID, id, err)
		}
		current = next
	}

	if current == nil {
		return nil, nil
	}

	if err := r.idx.UpsertOTU(ctx, current, lastEventID); err != nil {
		return nil, fmt.Errorf("repository: refresh snapshot %s: %w", id, err)
	}

	return current, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveOTUID resolves a user-supplied identifier string to a live OTU id,
// following the order of spec §4.3: canonical 36-character UUID, all-digit
// taxid, acronym, then a UUID prefix of length >= 8.
func (r *Repo) ResolveOTUID(ctx context.Context, raw string) (uuid.UUID, error) {
	if len(raw) == 36 {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
	}

	if isAllDigits(raw) {
		taxid, err := strconv.Atoi(raw)
		if err != nil {
			return uuid.Nil, &CodedError{Kind: KindInvalidInput, Detail: fmt.Sprintf("malformed taxid %q", raw)}
		}
		id, ok, err := r.idx.OTUIDByTaxid(ctx, taxid)
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: resolve taxid %d: %w", taxid, err)
		}
		if !ok {
			return uuid.Nil, &CodedError{Kind: KindNotFound, Taxid: taxid}
		}
		return id, nil
	}

	if raw != "" {
		id, ok, err := r.idx.OTUIDByAcronym(ctx, raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: resolve acronym %q: %w", raw, err)
		}
		if ok {
			return id, nil
		}
	}

	if len(raw) < 8 {
		return uuid.Nil, &CodedError{Kind: KindInvalidInput, Detail: fmt.Sprintf("identifier %q is too short to be a UUID prefix (need >= 8 characters)", raw)}
	}

	ids, err := r.idx.OTUIDsByPrefix(ctx, raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: resolve prefix %q: %w", raw, err)
	}
	switch len(ids) {
	case 0:
		return uuid.Nil, &CodedError{Kind: KindNotFound, Detail: fmt.Sprintf("no otu id starts with %q", raw)}
	case 1:
		return ids[0], nil
	default:
		return uuid.Nil, &CodedError{Kind: KindPartialIDConflict, Detail: fmt.Sprintf("%d otu ids start with %q", len(ids), raw)}
	}
}

// GetOTUByIdentifier resolves raw and loads the OTU it names in one call.
func (r *Repo) GetOTUByIdentifier(ctx context.Context, raw string) (*otu.OTU, error) {
	id, err := r.ResolveOTUID(ctx, raw)
	if err != nil {
		return nil, err
	}
	return r.GetOTU(ctx, id)
}

// OTUIDByIsolateID resolves an isolate id to its owning OTU's id.
func (r *Repo) OTUIDByIsolateID(ctx context.Context, isolateID uuid.UUID) (uuid.UUID, bool, error) {
	return r.idx.OTUIDByIsolateID(ctx, isolateID)
}

// IterOTUsMinimal streams the cheap (id, taxid, acronym, name) projection
// of every live OTU (SPEC_FULL.md §D.1).
func (r *Repo) IterOTUsMinimal(ctx context.Context) (iter.Seq[index.OTUMinimal], error) {
	return r.idx.IterOTUsMinimal(ctx)
}

// OTUFirstCreated returns the timestamp of the earliest event recorded
// against id (SPEC_FULL.md §D.5).
func (r *Repo) OTUFirstCreated(ctx context.Context, id uuid.UUID) (time.Time, bool, error) {
	return r.idx.FirstCreated(ctx, id)
}

// OTULastModified returns the timestamp of the most recent event recorded
// against id (SPEC_FULL.md §D.5).
func (r *Repo) OTULastModified(ctx context.Context, id uuid.UUID) (time.Time, bool, error) {
	return r.idx.LastModified(ctx, id)
}

// GetOTULastUpdated returns the most recent otu_updates timestamp for id,
// consumed by an external batch-update cooldown collaborator (spec §1,
// SPEC_FULL.md §D.4).
func (r *Repo) GetOTULastUpdated(ctx context.Context, id uuid.UUID) (time.Time, bool, error) {
	return r.idx.GetOTULastUpdated(ctx, id)
}

// RecordOTUUpdateComplete appends to the otu_updates audit log (spec §4.4).
func (r *Repo) RecordOTUUpdateComplete(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	return r.idx.RecordOTUUpdateComplete(ctx, id, completedAt)
}

// GetEvent loads a single event by id, or (events.Event{}, false, nil) if
// absent.
func (r *Repo) GetEvent(id int) (events.Event, bool, error) {
	if id < 1 || id > r.log.Head() {
		return events.Event{}, false, nil
	}
	ev, err := r.log.ReadEvent(id)
	if err != nil {
		return events.Event{}, false, fmt.Errorf("repository: get event %d: %w", id, err)
	}
	return ev, true, nil
}
