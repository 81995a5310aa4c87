package events

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/otu"
)

// Apply is the fold step of spec §4.2: apply(otu, event) -> otu'. It is a
// total function given one precondition — the first event folded for an
// OTU id must be CreateOTU — and does not itself revalidate the result
// against §3.2; the repository façade (internal/repository) does that
// before the event is durably appended.
func Apply(current *otu.OTU, ev Event) (*otu.OTU, error) {
	if current == nil {
		if ev.Type != KindCreateOTU {
			return nil, fmt.Errorf("%w: got %q", ErrNotFirstCreate, ev.Type)
		}
		return applyCreateOTU(ev)
	}

	switch ev.Type {
	case KindCreateOTU:
		return nil, fmt.Errorf("%w: otu %s already exists", ErrSchema, current.ID)
	case KindCreatePlan:
		return applyCreatePlan(current, ev)
	case KindDeleteOTU:
		return applyDeleteOTU(current, ev)
	case KindUpdateExcludedAccessions:
		return applyUpdateExcludedAccessions(current, ev)
	case KindCreateIsolate:
		return applyCreateIsolate(current, ev)
	case KindDeleteIsolate:
		return applyDeleteIsolate(current, ev)
	case KindPromoteIsolate:
		return applyPromoteIsolate(current, ev)
	case KindUpdateSequence:
		return applyUpdateSequence(current, ev)
	case KindCreateRepo:
		return nil, fmt.Errorf("%w: create_repo is not an otu-scoped event", ErrSchema)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ev.Type)
	}
}

func applyCreateOTU(ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*CreateOTUData)
	if !ok {
		return nil, fmt.Errorf("%w: create_otu data has wrong type", ErrSchema)
	}

	next := &otu.OTU{
		ID:       data.ID,
		Acronym:  data.Acronym,
		Name:     data.Name,
		Taxid:    data.Taxid,
		Lineage:  data.Lineage,
		Molecule: data.Molecule,
		Plan:     data.Plan,
	}
	next.RebuildIndices()
	return next, nil
}

func applyCreatePlan(current *otu.OTU, ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*CreatePlanData)
	if !ok {
		return nil, fmt.Errorf("%w: create_plan data has wrong type", ErrSchema)
	}

	next := current.Clone()
	next.Plan = data.Plan
	next.RebuildIndices()
	return next, nil
}

func applyDeleteOTU(current *otu.OTU, ev Event) (*otu.OTU, error) {
	if _, ok := ev.Data.(*DeleteOTUData); !ok {
		return nil, fmt.Errorf("%w: delete_otu data has wrong type", ErrSchema)
	}

	next := current.Clone()
	next.Deleted = true
	return next, nil
}

func applyUpdateExcludedAccessions(current *otu.OTU, ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*UpdateExcludedAccessionsData)
	if !ok {
		return nil, fmt.Errorf("%w: update_excluded_accessions data has wrong type", ErrSchema)
	}

	next := current.Clone()

	switch data.Action {
	case ExclusionActionExclude:
		for _, key := range data.Accessions {
			next.ExcludedAccessions[key] = struct{}{}
		}
	case ExclusionActionAllow:
		for _, key := range data.Accessions {
			delete(next.ExcludedAccessions, key)
		}
	default:
		return nil, fmt.Errorf("%w: invalid exclusion action %q", ErrSchema, data.Action)
	}

	return next, nil
}

func applyCreateIsolate(current *otu.OTU, ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*CreateIsolateData)
	if !ok {
		return nil, fmt.Errorf("%w: create_isolate data has wrong type", ErrSchema)
	}

	next := current.Clone()
	next.Isolates = append(next.Isolates, otu.Isolate{
		ID:        data.IsolateID,
		Name:      data.Name,
		Taxid:     data.Taxid,
		Sequences: append([]otu.Sequence(nil), data.Sequences...),
	})

	// No SetRepresentativeIsolate event exists in the model (spec §4.2
	// table); the OTU's first isolate is implicitly its representative so
	// that invariant 7 (exactly one representative) holds as soon as an
	// isolate exists, without a dedicated event kind.
	if next.RepresentativeID == uuid.Nil {
		next.RepresentativeID = data.IsolateID
	}

	next.RebuildIndices()
	return next, nil
}

func applyDeleteIsolate(current *otu.OTU, ev Event) (*otu.OTU, error) {
	if _, ok := ev.Data.(*DeleteIsolateData); !ok {
		return nil, fmt.Errorf("%w: delete_isolate data has wrong type", ErrSchema)
	}

	query, ok := ev.Query.(IsolateQuery)
	if !ok {
		return nil, fmt.Errorf("%w: delete_isolate query has wrong type", ErrSchema)
	}

	if query.IsolateID == current.RepresentativeID {
		return nil, fmt.Errorf("%w: isolate %s", ErrRepresentativeIsolate, query.IsolateID)
	}

	next := current.Clone()

	idx := -1
	for i, iso := range next.Isolates {
		if iso.ID == query.IsolateID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("%w: isolate %s", ErrUnknownIsolate, query.IsolateID)
	}

	next.Isolates = append(next.Isolates[:idx], next.Isolates[idx+1:]...)
	next.RebuildIndices()
	return next, nil
}

func applyPromoteIsolate(current *otu.OTU, ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*PromoteIsolateData)
	if !ok {
		return nil, fmt.Errorf("%w: promote_isolate data has wrong type", ErrSchema)
	}

	query, ok := ev.Query.(IsolateQuery)
	if !ok {
		return nil, fmt.Errorf("%w: promote_isolate query has wrong type", ErrSchema)
	}

	next := current.Clone()

	iso, ok := next.GetIsolate(query.IsolateID)
	if !ok {
		return nil, fmt.Errorf("%w: isolate %s", ErrUnknownIsolate, query.IsolateID)
	}

	for oldKey, newSeq := range data.Map {
		replaced := false
		for i, seq := range iso.Sequences {
			if seq.Accession.Key == oldKey {
				iso.Sequences[i] = newSeq
				replaced = true
				break
			}
		}
		if !replaced {
			return nil, fmt.Errorf("%w: accession %s on isolate %s", ErrUnknownSequence, oldKey, query.IsolateID)
		}
		next.PromotedAccessions[oldKey] = struct{}{}
	}

	next.RebuildIndices()
	return next, nil
}

func applyUpdateSequence(current *otu.OTU, ev Event) (*otu.OTU, error) {
	data, ok := ev.Data.(*UpdateSequenceData)
	if !ok {
		return nil, fmt.Errorf("%w: update_sequence data has wrong type", ErrSchema)
	}

	query, ok := ev.Query.(SequenceQuery)
	if !ok {
		return nil, fmt.Errorf("%w: update_sequence query has wrong type", ErrSchema)
	}

	next := current.Clone()

	iso, ok := next.GetIsolateByAccession(query.Accession)
	if !ok {
		return nil, fmt.Errorf("%w: accession %s", ErrUnknownSequence, query.Accession)
	}

	for i, seq := range iso.Sequences {
		if seq.Accession.Key == query.Accession {
			iso.Sequences[i] = data.Sequence
			break
		}
	}

	next.RebuildIndices()
	return next, nil
}
