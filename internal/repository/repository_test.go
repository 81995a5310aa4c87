package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ref-builder/ref-builder/internal/otu"
)

func testLineage(taxid int, name string) otu.Lineage {
	return otu.Lineage{
		Taxa: []otu.Taxon{
			{ID: taxid, Name: name, Rank: otu.RankSpecies},
		},
	}
}

func testMolecule() otu.Molecule {
	return otu.Molecule{
		Strandedness: otu.StrandednessSingle,
		Type:         otu.MoleculeTypeRNA,
		Topology:     otu.TopologyLinear,
	}
}

func testPlan(segID uuid.UUID) otu.Plan {
	return otu.Plan{
		ID: uuid.New(),
		Segments: []otu.Segment{
			{ID: segID, Length: 15, LengthTolerance: 0.03, Rule: otu.SegmentRuleRequired},
		},
	}
}

func testSequence(segID uuid.UUID, key string) otu.Sequence {
	return otu.Sequence{
		ID:         uuid.New(),
		Accession:  otu.Accession{Key: key, Version: 1},
		Definition: "Tobacco mosaic virus, complete genome",
		Segment:    segID,
		Letters:    "ATGCATGCATGCATG",
	}
}

func mustInit(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "repo")
	r, err := Init(dir, "Generic Viruses", "virus", 0.03, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, dir
}

// createTestOTU drives a full CreateOTU + CreateIsolate transaction and
// returns the resulting OTU, matching spec §8's "Create-OTU fresh" scenario.
func createTestOTU(t *testing.T, r *Repo, taxid int, name string) *otu.OTU {
	t.Helper()

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	segID := uuid.New()
	created, err := tx.CreateOTU(context.Background(), CreateOTUInput{
		Acronym:  "TMV",
		Molecule: testMolecule(),
		Lineage:  testLineage(taxid, name),
		Name:     name,
		Taxid:    taxid,
		Plan:     testPlan(segID),
	})
	if err != nil {
		tx.Abort()
		t.Fatalf("CreateOTU: %v", err)
	}

	isoName := otu.IsolateName{Type: otu.IsolateNameTypeIsolate, Value: "A"}
	if _, err := tx.CreateIsolate(context.Background(), created.ID, &isoName, taxid,
		[]otu.Sequence{testSequence(segID, "TM000001")}); err != nil {
		tx.Abort()
		t.Fatalf("CreateIsolate: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	out, err := r.GetOTU(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetOTU: %v", err)
	}
	return out
}

func TestInitWritesCreateRepoAsFirstEvent(t *testing.T) {
	r, _ := mustInit(t)

	meta := r.Meta()
	if meta.Name != "Generic Viruses" || meta.Organism != "virus" {
		t.Fatalf("Meta() = %+v, want name/organism set from Init", meta)
	}
	if meta.ID == uuid.Nil {
		t.Fatalf("Meta().ID is nil")
	}
}

func TestCreateOTUThenGetOTURoundTrips(t *testing.T) {
	r, _ := mustInit(t)

	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if len(o.Isolates) != 1 {
		t.Fatalf("got %d isolates, want 1", len(o.Isolates))
	}
	if o.RepresentativeID == uuid.Nil {
		t.Fatalf("RepresentativeID not set")
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestCreateOTURejectsDuplicateTaxid(t *testing.T) {
	r, _ := mustInit(t)
	createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	_, err = tx.CreateOTU(context.Background(), CreateOTUInput{
		Acronym:  "TMV2",
		Molecule: testMolecule(),
		Lineage:  testLineage(12242, "Tobacco mosaic virus"),
		Name:     "Tobacco mosaic virus, duplicate",
		Taxid:    12242,
		Plan:     testPlan(uuid.New()),
	})

	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindOTUExists {
		t.Fatalf("CreateOTU duplicate taxid err = %v, want CodedError{Kind: otu-exists}", err)
	}
}

func TestCreateOTURejectsDuplicateTaxidWithinSameTransaction(t *testing.T) {
	r, _ := mustInit(t)

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	if _, err := tx.CreateOTU(context.Background(), CreateOTUInput{
		Acronym: "TMV", Molecule: testMolecule(), Lineage: testLineage(12242, "Tobacco mosaic virus"),
		Name: "Tobacco mosaic virus", Taxid: 12242, Plan: testPlan(uuid.New()),
	}); err != nil {
		t.Fatalf("first CreateOTU: %v", err)
	}

	_, err = tx.CreateOTU(context.Background(), CreateOTUInput{
		Acronym: "TMV2", Molecule: testMolecule(), Lineage: testLineage(12242, "Tobacco mosaic virus"),
		Name: "Tobacco mosaic virus, duplicate", Taxid: 12242, Plan: testPlan(uuid.New()),
	})

	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindOTUExists {
		t.Fatalf("second CreateOTU in same tx err = %v, want CodedError{Kind: otu-exists}", err)
	}
}

func TestExcludeThenAllowIsIdempotent(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	excluded, err := tx.ExcludeAccessions(context.Background(), o.ID, []string{"TM100021", "TM100022"})
	if err != nil {
		t.Fatalf("ExcludeAccessions: %v", err)
	}
	if len(excluded) != 2 {
		t.Fatalf("excluded = %v, want 2 entries", excluded)
	}

	// Excluding the same accessions again is a no-op: no event is appended,
	// so head does not move.
	headBefore := tx.lastAppended
	excludedAgain, err := tx.ExcludeAccessions(context.Background(), o.ID, []string{"TM100021", "TM100022"})
	if err != nil {
		t.Fatalf("ExcludeAccessions (repeat): %v", err)
	}
	if tx.lastAppended != headBefore {
		t.Fatalf("repeat exclude appended an event: lastAppended %d -> %d", headBefore, tx.lastAppended)
	}
	if len(excludedAgain) != 2 {
		t.Fatalf("excludedAgain = %v, want 2 entries", excludedAgain)
	}

	allowed, err := tx.AllowAccessions(context.Background(), o.ID, []string{"TM100021"})
	if err != nil {
		t.Fatalf("AllowAccessions: %v", err)
	}
	if len(allowed) != 1 {
		t.Fatalf("allowed = %v, want 1 entry remaining", allowed)
	}

	// Allowing something that was never excluded is also a no-op.
	headBefore = tx.lastAppended
	if _, err := tx.AllowAccessions(context.Background(), o.ID, []string{"TM999999"}); err != nil {
		t.Fatalf("AllowAccessions (no-op): %v", err)
	}
	if tx.lastAppended != headBefore {
		t.Fatalf("no-op allow appended an event: lastAppended %d -> %d", headBefore, tx.lastAppended)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestExcludeDropsAccessionPresentInOTU(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	// TM000001 is already present in the OTU's sole isolate; it cannot be
	// excluded and is silently dropped, leaving nothing to exclude.
	excluded, err := tx.ExcludeAccessions(context.Background(), o.ID, []string{"TM000001"})
	if err != nil {
		t.Fatalf("ExcludeAccessions: %v", err)
	}
	if len(excluded) != 0 {
		t.Fatalf("excluded = %v, want empty (present accession cannot be excluded)", excluded)
	}
}

func TestCreateIsolateRejectsBlockedAccession(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	segID := o.Plan.Segments[0].ID
	name := otu.IsolateName{Type: otu.IsolateNameTypeStrain, Value: "B"}

	_, err = tx.CreateIsolate(context.Background(), o.ID, &name, 12242,
		[]otu.Sequence{testSequence(segID, "TM000001")})

	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindInvalidInput {
		t.Fatalf("CreateIsolate with already-present accession err = %v, want CodedError{Kind: invalid-input}", err)
	}
}

func TestDeleteIsolateForbidsRepresentative(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	err = tx.DeleteIsolate(context.Background(), o.ID, o.RepresentativeID, "cleanup")

	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindPlanValidation {
		t.Fatalf("DeleteIsolate(representative) err = %v, want CodedError{Kind: plan-validation}", err)
	}
}

func TestDeleteOTUIsDistinguishableFromNotFound(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.DeleteOTU(context.Background(), o.ID, "superseded", nil); err != nil {
		t.Fatalf("DeleteOTU: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	_, err = r.GetOTU(context.Background(), o.ID)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindOTUDeleted {
		t.Fatalf("GetOTU(deleted) err = %v, want CodedError{Kind: otu-deleted}", err)
	}

	_, err = r.GetOTU(context.Background(), uuid.New())
	if !errors.As(err, &coded) || coded.Kind != KindNotFound {
		t.Fatalf("GetOTU(unknown) err = %v, want CodedError{Kind: not-found}", err)
	}
}

func TestResolveOTUIDEveryForm(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	ctx := context.Background()

	if id, err := r.ResolveOTUID(ctx, o.ID.String()); err != nil || id != o.ID {
		t.Fatalf("resolve by full uuid: id=%s err=%v", id, err)
	}
	if id, err := r.ResolveOTUID(ctx, "12242"); err != nil || id != o.ID {
		t.Fatalf("resolve by taxid: id=%s err=%v", id, err)
	}
	if id, err := r.ResolveOTUID(ctx, "TMV"); err != nil || id != o.ID {
		t.Fatalf("resolve by acronym: id=%s err=%v", id, err)
	}
	if id, err := r.ResolveOTUID(ctx, o.ID.String()[:8]); err != nil || id != o.ID {
		t.Fatalf("resolve by 8-char prefix: id=%s err=%v", id, err)
	}

	_, err := r.ResolveOTUID(ctx, "a1b2c3")
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Kind != KindInvalidInput {
		t.Fatalf("resolve short non-matching string err = %v, want CodedError{Kind: invalid-input}", err)
	}
}

func TestTransactionAbortRollsBackLogAndIndex(t *testing.T) {
	r, _ := mustInit(t)
	headBefore := r.log.Head()

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := tx.CreateOTU(context.Background(), CreateOTUInput{
		Acronym: "TMV", Molecule: testMolecule(), Lineage: testLineage(12242, "Tobacco mosaic virus"),
		Name: "Tobacco mosaic virus", Taxid: 12242, Plan: testPlan(uuid.New()),
	}); err != nil {
		t.Fatalf("CreateOTU: %v", err)
	}

	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if r.log.Head() != headBefore {
		t.Fatalf("Head() = %d after abort, want unchanged %d", r.log.Head(), headBefore)
	}

	count, err := r.idx.OTUCount(context.Background())
	if err != nil {
		t.Fatalf("OTUCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("OTUCount = %d after abort, want 0", count)
	}
}

func TestBeginRequiresLock(t *testing.T) {
	r, _ := mustInit(t)

	_, err := r.Begin()
	if !errors.Is(err, ErrLockRequired) {
		t.Fatalf("Begin() without Lock err = %v, want ErrLockRequired", err)
	}
}

// TestPromoteIsolateReplacesGenBankWithRefSeq mirrors spec §8's
// "Promotion" scenario: a GenBank sequence is replaced by its RefSeq
// equivalent, the old key is remembered in promoted_accessions, and the
// isolate's sequences stay within the plan's length bounds.
func TestPromoteIsolateReplacesGenBankWithRefSeq(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	segID := o.Plan.Segments[0].ID
	isoName := otu.IsolateName{Type: otu.IsolateNameTypeStrain, Value: "V01408 strain"}
	iso, err := tx.CreateIsolate(context.Background(), o.ID, &isoName, o.Taxid,
		[]otu.Sequence{testSequence(segID, "V01408")})
	if err != nil {
		t.Fatalf("CreateIsolate: %v", err)
	}

	replacement := testSequence(segID, "NC_001367")
	updated, err := tx.PromoteIsolate(context.Background(), o.ID, iso.ID, map[string]otu.Sequence{
		"V01408": replacement,
	})
	if err != nil {
		t.Fatalf("PromoteIsolate: %v", err)
	}

	if _, ok := updated.PromotedAccessions["V01408"]; !ok {
		t.Fatalf("promoted_accessions = %v, want to contain V01408", updated.PromotedAccessions)
	}
	if _, ok := updated.Accessions()["V01408"]; ok {
		t.Fatalf("accessions still contains V01408 after promotion")
	}
	if _, ok := updated.Accessions()["NC_001367"]; !ok {
		t.Fatalf("accessions does not contain replacement NC_001367")
	}
	if err := updated.Validate(); err != nil {
		t.Fatalf("Validate() after promotion = %v, want nil", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// TestPlanEnlargementKeepsExistingIsolatesValid mirrors spec §8's "Plan
// enlargement" scenario: adding new optional segments to the plan leaves
// existing isolates, which reference only the original segments, valid.
func TestPlanEnlargementKeepsExistingIsolatesValid(t *testing.T) {
	r, _ := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer r.Unlock()

	tx, err := r.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Abort()

	// A multipartite plan must have every segment named, so the original
	// segment (unnamed while the plan was monopartite) is named here too.
	existing := append([]otu.Segment(nil), o.Plan.Segments...)
	existing[0].Name = &otu.SegmentName{Prefix: "RNA", Key: "1"}

	enlarged := otu.Plan{
		ID: o.Plan.ID,
		Segments: append(existing,
			otu.Segment{
				ID: uuid.New(), Length: 20, LengthTolerance: 0.03,
				Name: &otu.SegmentName{Prefix: "RNA", Key: "2"}, Rule: otu.SegmentRuleOptional,
			},
			otu.Segment{
				ID: uuid.New(), Length: 25, LengthTolerance: 0.03,
				Name: &otu.SegmentName{Prefix: "RNA", Key: "3"}, Rule: otu.SegmentRuleOptional,
			},
		),
	}

	updated, err := tx.CreatePlan(context.Background(), o.ID, enlarged)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if len(updated.Plan.Segments) != 3 {
		t.Fatalf("len(Plan.Segments) = %d, want 3", len(updated.Plan.Segments))
	}
	if len(updated.Isolates) != 1 || len(updated.Isolates[0].Sequences) != 1 {
		t.Fatalf("isolates changed by plan enlargement: %+v", updated.Isolates)
	}
	if err := updated.Validate(); err != nil {
		t.Fatalf("Validate() after plan enlargement = %v, want nil", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRebuildIndexReproducesSnapshot(t *testing.T) {
	r, dir := mustInit(t)
	o := createTestOTU(t, r, 12242, "Tobacco mosaic virus")

	if err := r.RebuildIndex(context.Background()); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}

	rebuilt, err := r.GetOTU(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GetOTU after rebuild: %v", err)
	}
	if rebuilt.Name != o.Name || rebuilt.Taxid != o.Taxid || len(rebuilt.Isolates) != len(o.Isolates) {
		t.Fatalf("rebuilt otu = %+v, want fields matching %+v", rebuilt, o)
	}

	r.Close()

	reopened, err := Open(dir, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	again, err := reopened.GetOTU(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GetOTU after reopen: %v", err)
	}
	if again.Name != o.Name {
		t.Fatalf("reopened otu name = %q, want %q", again.Name, o.Name)
	}
}
