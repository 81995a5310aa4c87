package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ref-builder/ref-builder/internal/events"
	"github.com/ref-builder/ref-builder/internal/otu"
)

// CreateOTUInput is the set of fields needed to construct a new OTU (spec
// §4.2 table, CreateOTU). Acronym, Name and Taxid are stored on the OTU as
// given; they are not derived from, or checked against, the Lineage
// (SPEC_FULL.md §D.2).
type CreateOTUInput struct {
	Acronym  string
	Molecule otu.Molecule
	Lineage  otu.Lineage
	Name     string
	Taxid    int
	Plan     otu.Plan
}

// classifyApplyError maps an events.Apply failure to the façade's error
// kinds (spec §7). Errors it doesn't recognize are programming errors
// (e.g. malformed query/data types) and are returned wrapped with context
// but without a CodedError kind.
func classifyApplyError(err error, otuID uuid.UUID, taxid int) error {
	switch {
	case errors.Is(err, events.ErrRepresentativeIsolate):
		return &CodedError{Kind: KindPlanValidation, OTUID: otuID, Taxid: taxid, Detail: err.Error()}
	case errors.Is(err, events.ErrUnknownIsolate),
		errors.Is(err, events.ErrUnknownSequence),
		errors.Is(err, events.ErrUnknownSegment):
		return &CodedError{Kind: KindNotFound, OTUID: otuID, Taxid: taxid, Detail: err.Error()}
	default:
		return fmt.Errorf("repository: apply event: %w", err)
	}
}

// mutate is the shared write-with-validation path of spec §4.5 for every
// event kind except CreateOTU: load the current OTU, fold ev onto it,
// revalidate the result against §3.2, and only then append.
func (tx *Tx) mutate(ctx context.Context, otuID uuid.UUID, ev events.Event) (*otu.OTU, error) {
	current, err := tx.loadOTU(ctx, otuID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: otuID}
	}
	if current.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: otuID, Taxid: current.Taxid}
	}

	next, err := events.Apply(current, ev)
	if err != nil {
		return nil, classifyApplyError(err, otuID, current.Taxid)
	}

	if err := next.Validate(); err != nil {
		return nil, &CodedError{Kind: KindPlanValidation, OTUID: otuID, Taxid: current.Taxid, Detail: err.Error()}
	}

	return tx.append(ctx, ev, next)
}

// checkUnique enforces spec §3.2 invariant 8 ("two OTUs in one repository
// do not share a taxid, acronym, or name"), which Validate cannot check
// itself since it only sees one OTU at a time.
func (tx *Tx) checkUnique(ctx context.Context, taxid int, acronym, name string) error {
	for _, cached := range tx.cache {
		switch {
		case cached.Taxid == taxid:
			return &CodedError{Kind: KindOTUExists, OTUID: cached.ID, Taxid: taxid, Detail: "taxid already used earlier in this transaction"}
		case cached.Acronym == acronym:
			return &CodedError{Kind: KindOTUExists, OTUID: cached.ID, Taxid: taxid, Detail: fmt.Sprintf("acronym %q already used earlier in this transaction", acronym)}
		case cached.Name == name:
			return &CodedError{Kind: KindOTUExists, OTUID: cached.ID, Taxid: taxid, Detail: fmt.Sprintf("name %q already used earlier in this transaction", name)}
		}
	}

	if id, ok, err := tx.repo.idx.OTUIDByTaxid(ctx, taxid); err != nil {
		return fmt.Errorf("repository: check taxid uniqueness: %w", err)
	} else if ok {
		return &CodedError{Kind: KindOTUExists, OTUID: id, Taxid: taxid, Detail: "taxid already exists"}
	}
	if id, ok, err := tx.repo.idx.OTUIDByAcronym(ctx, acronym); err != nil {
		return fmt.Errorf("repository: check acronym uniqueness: %w", err)
	} else if ok {
		return &CodedError{Kind: KindOTUExists, OTUID: id, Taxid: taxid, Detail: fmt.Sprintf("acronym %q already exists", acronym)}
	}
	if id, ok, err := tx.repo.idx.OTUIDByName(ctx, name); err != nil {
		return fmt.Errorf("repository: check name uniqueness: %w", err)
	} else if ok {
		return &CodedError{Kind: KindOTUExists, OTUID: id, Taxid: taxid, Detail: fmt.Sprintf("name %q already exists", name)}
	}
	return nil
}

// CreateOTU creates a new, isolate-less OTU. Per spec §4.5, "CreateOTU is
// validated by the constructor of the OTU aggregate it implies": the full
// §3.2 Validate (which requires a non-empty isolate list) only applies
// once the first CreateIsolate lands, so here only the fields CreateOTU
// itself sets — molecule, lineage, plan — are checked, alongside the
// cross-OTU uniqueness of taxid/acronym/name.
func (tx *Tx) CreateOTU(ctx context.Context, in CreateOTUInput) (*otu.OTU, error) {
	if err := in.Lineage.Validate(); err != nil {
		return nil, &CodedError{Kind: KindInvalidInput, Taxid: in.Taxid, Detail: err.Error()}
	}
	if err := in.Molecule.Validate(); err != nil {
		return nil, &CodedError{Kind: KindInvalidInput, Taxid: in.Taxid, Detail: err.Error()}
	}
	if err := in.Plan.Validate(); err != nil {
		return nil, &CodedError{Kind: KindPlanValidation, Taxid: in.Taxid, Detail: err.Error()}
	}
	if err := tx.checkUnique(ctx, in.Taxid, in.Acronym, in.Name); err != nil {
		return nil, err
	}

	if len(in.Plan.RequiredSegments()) == 0 {
		tx.repo.logger.Warn("plan has no required segments", zap.Int("taxid", in.Taxid))
	}

	otuID := uuid.New()
	ev := events.Event{
		Type:      events.KindCreateOTU,
		Timestamp: time.Now(),
		Query:     events.OTUQuery{OTUID: otuID},
		Data: &events.CreateOTUData{
			ID:       otuID,
			Acronym:  in.Acronym,
			Molecule: in.Molecule,
			Lineage:  in.Lineage,
			Name:     in.Name,
			Taxid:    in.Taxid,
			Plan:     in.Plan,
		},
	}

	next, err := events.Apply(nil, ev)
	if err != nil {
		return nil, classifyApplyError(err, otuID, in.Taxid)
	}

	result, err := tx.append(ctx, ev, next)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("created otu", zap.String("otu_id", otuID.String()), zap.Int("taxid", in.Taxid), zap.String("name", in.Name))
	return result, nil
}

// CreatePlan replaces otuID's plan wholesale (spec §4.2, CreatePlan; §8
// "Plan enlargement").
func (tx *Tx) CreatePlan(ctx context.Context, otuID uuid.UUID, plan otu.Plan) (*otu.OTU, error) {
	if err := plan.Validate(); err != nil {
		return nil, &CodedError{Kind: KindPlanValidation, OTUID: otuID, Detail: err.Error()}
	}
	if len(plan.RequiredSegments()) == 0 {
		tx.repo.logger.Warn("plan has no required segments", zap.String("otu_id", otuID.String()))
	}

	ev := events.Event{
		Type:      events.KindCreatePlan,
		Timestamp: time.Now(),
		Query:     events.OTUQuery{OTUID: otuID},
		Data:      &events.CreatePlanData{Plan: plan},
	}

	result, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("replaced plan", zap.String("otu_id", otuID.String()), zap.Int("segments", len(plan.Segments)))
	return result, nil
}

// DeleteOTU marks otuID deleted (spec §3.2 lifecycle, §4.5 delete
// semantics). It does not remove anything from the log.
func (tx *Tx) DeleteOTU(ctx context.Context, otuID uuid.UUID, rationale string, replacement *uuid.UUID) error {
	ev := events.Event{
		Type:      events.KindDeleteOTU,
		Timestamp: time.Now(),
		Query:     events.OTUQuery{OTUID: otuID},
		Data:      &events.DeleteOTUData{Rationale: rationale, ReplacementOTUID: replacement},
	}

	if _, err := tx.mutate(ctx, otuID, ev); err != nil {
		return err
	}

	tx.repo.logger.Info("deleted otu", zap.String("otu_id", otuID.String()), zap.String("rationale", rationale))
	return nil
}

func cloneStringSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(in map[string]struct{}) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ExcludeAccessions adds accessions to otuID's exclusion set (spec §8,
// "Exclude-then-allow idempotence"). Accessions already excluded, or
// currently present in the OTU, are dropped with a warning rather than
// failing the call outright; if nothing remains to exclude, no event is
// appended and head does not advance.
func (tx *Tx) ExcludeAccessions(ctx context.Context, otuID uuid.UUID, raw []string) (map[string]struct{}, error) {
	current, err := tx.loadOTU(ctx, otuID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: otuID}
	}
	if current.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: otuID, Taxid: current.Taxid}
	}

	keys := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		key, err := otu.AccessionKey(r)
		if err != nil {
			tx.repo.logger.Warn("invalid accession dropped from exclude set",
				zap.String("otu_id", otuID.String()), zap.String("accession", r))
			continue
		}
		keys[key] = struct{}{}
	}

	present := current.Accessions()
	for key := range keys {
		if _, ok := present[key]; ok {
			tx.repo.logger.Warn("accession present in otu cannot be excluded",
				zap.String("otu_id", otuID.String()), zap.String("accession", key))
			delete(keys, key)
		}
	}
	for key := range keys {
		if _, ok := current.ExcludedAccessions[key]; ok {
			tx.repo.logger.Warn("accession already excluded",
				zap.String("otu_id", otuID.String()), zap.String("accession", key))
			delete(keys, key)
		}
	}

	if len(keys) == 0 {
		tx.repo.logger.Warn("no excludable accessions given, no change made", zap.String("otu_id", otuID.String()))
		return cloneStringSet(current.ExcludedAccessions), nil
	}

	accList := sortedKeys(keys)
	ev := events.Event{
		Type:      events.KindUpdateExcludedAccessions,
		Timestamp: time.Now(),
		Query:     events.OTUQuery{OTUID: otuID},
		Data:      &events.UpdateExcludedAccessionsData{Accessions: accList, Action: events.ExclusionActionExclude},
	}

	result, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("excluded accessions", zap.String("otu_id", otuID.String()), zap.Strings("accessions", accList))
	return cloneStringSet(result.ExcludedAccessions), nil
}

// AllowAccessions removes accessions from otuID's exclusion set. Accessions
// that are not currently excluded are dropped silently (matching the no-op
// idempotence of spec §8).
func (tx *Tx) AllowAccessions(ctx context.Context, otuID uuid.UUID, raw []string) (map[string]struct{}, error) {
	current, err := tx.loadOTU(ctx, otuID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: otuID}
	}
	if current.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: otuID, Taxid: current.Taxid}
	}

	keys := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		keys[r] = struct{}{}
	}
	for key := range keys {
		if _, ok := current.ExcludedAccessions[key]; !ok {
			delete(keys, key)
		}
	}

	if len(keys) == 0 {
		return cloneStringSet(current.ExcludedAccessions), nil
	}

	accList := sortedKeys(keys)
	ev := events.Event{
		Type:      events.KindUpdateExcludedAccessions,
		Timestamp: time.Now(),
		Query:     events.OTUQuery{OTUID: otuID},
		Data:      &events.UpdateExcludedAccessionsData{Accessions: accList, Action: events.ExclusionActionAllow},
	}

	result, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("allowed accessions", zap.String("otu_id", otuID.String()), zap.Strings("accessions", accList))
	return cloneStringSet(result.ExcludedAccessions), nil
}

// CreateIsolate appends a new isolate with every one of its sequences
// atomically (spec §4.2, CreateIsolate). Any sequence whose accession is
// already blocked (present, excluded, or promoted) is rejected outright
// (spec §8 "Blocked-accession law").
func (tx *Tx) CreateIsolate(ctx context.Context, otuID uuid.UUID, name *otu.IsolateName, taxid int, sequences []otu.Sequence) (*otu.Isolate, error) {
	current, err := tx.loadOTU(ctx, otuID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: otuID}
	}
	if current.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: otuID, Taxid: current.Taxid}
	}

	blocked := current.BlockedAccessions()
	for i := range sequences {
		sequences[i].Letters = otu.NormalizeSequenceLetters(sequences[i].Letters)
		if _, ok := blocked[sequences[i].Accession.Key]; ok {
			return nil, &CodedError{
				Kind: KindInvalidInput, OTUID: otuID, Taxid: current.Taxid,
				Accession: sequences[i].Accession.String(),
				Detail:    "accession is excluded, already present, or already promoted",
			}
		}
	}

	isolateID := uuid.New()
	ev := events.Event{
		Type:      events.KindCreateIsolate,
		Timestamp: time.Now(),
		Query:     events.IsolateQuery{OTUID: otuID, IsolateID: isolateID},
		Data: &events.CreateIsolateData{
			IsolateID: isolateID,
			Name:      name,
			Taxid:     taxid,
			Sequences: sequences,
		},
	}

	next, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	iso, ok := next.GetIsolate(isolateID)
	if !ok {
		return nil, fmt.Errorf("repository: isolate %s missing immediately after creation", isolateID)
	}

	tx.repo.logger.Info("created isolate",
		zap.String("otu_id", otuID.String()), zap.String("isolate_id", isolateID.String()), zap.Int("sequence_count", len(sequences)))
	return iso, nil
}

// DeleteIsolate removes an isolate from otuID. Deleting the OTU's
// representative isolate is forbidden (Design Notes §9 open question,
// resolved in DESIGN.md); events.Apply reports ErrRepresentativeIsolate,
// which classifyApplyError turns into a plan-validation error here.
func (tx *Tx) DeleteIsolate(ctx context.Context, otuID, isolateID uuid.UUID, message string) error {
	ev := events.Event{
		Type:      events.KindDeleteIsolate,
		Timestamp: time.Now(),
		Query:     events.IsolateQuery{OTUID: otuID, IsolateID: isolateID},
		Data:      &events.DeleteIsolateData{Message: message},
	}

	if _, err := tx.mutate(ctx, otuID, ev); err != nil {
		return err
	}

	tx.repo.logger.Info("deleted isolate", zap.String("otu_id", otuID.String()), zap.String("isolate_id", isolateID.String()))
	return nil
}

// PromoteIsolate replaces each listed GenBank accession in isolateID with a
// newer RefSeq sequence (spec §4.2, PromoteIsolate; §8 "Promotion").
func (tx *Tx) PromoteIsolate(ctx context.Context, otuID, isolateID uuid.UUID, accessionMap map[string]otu.Sequence) (*otu.OTU, error) {
	current, err := tx.loadOTU(ctx, otuID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &CodedError{Kind: KindNotFound, OTUID: otuID}
	}
	if current.Deleted {
		return nil, &CodedError{Kind: KindOTUDeleted, OTUID: otuID, Taxid: current.Taxid}
	}

	blocked := current.BlockedAccessions()
	normalized := make(map[string]otu.Sequence, len(accessionMap))
	for oldKey, seq := range accessionMap {
		seq.Letters = otu.NormalizeSequenceLetters(seq.Letters)
		if seq.Accession.Key != oldKey {
			if _, ok := blocked[seq.Accession.Key]; ok {
				return nil, &CodedError{
					Kind: KindInvalidInput, OTUID: otuID, Taxid: current.Taxid,
					Accession: seq.Accession.String(),
					Detail:    "replacement accession is excluded, already present, or already promoted",
				}
			}
		}
		normalized[oldKey] = seq
	}

	ev := events.Event{
		Type:      events.KindPromoteIsolate,
		Timestamp: time.Now(),
		Query:     events.IsolateQuery{OTUID: otuID, IsolateID: isolateID},
		Data:      &events.PromoteIsolateData{Map: normalized},
	}

	result, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("promoted isolate sequences",
		zap.String("otu_id", otuID.String()), zap.String("isolate_id", isolateID.String()), zap.Int("count", len(normalized)))
	return result, nil
}

// UpdateSequence substitutes the sequence whose accession key is
// oldAccessionKey for newSequence, across whichever isolate holds it (spec
// §4.2, UpdateSequence).
func (tx *Tx) UpdateSequence(ctx context.Context, otuID uuid.UUID, oldAccessionKey string, newSequence otu.Sequence) (*otu.OTU, error) {
	newSequence.Letters = otu.NormalizeSequenceLetters(newSequence.Letters)

	ev := events.Event{
		Type:      events.KindUpdateSequence,
		Timestamp: time.Now(),
		Query:     events.SequenceQuery{OTUID: otuID, Accession: oldAccessionKey},
		Data:      &events.UpdateSequenceData{Sequence: newSequence},
	}

	result, err := tx.mutate(ctx, otuID, ev)
	if err != nil {
		return nil, err
	}

	tx.repo.logger.Info("updated sequence", zap.String("otu_id", otuID.String()), zap.String("accession", oldAccessionKey))
	return result, nil
}
