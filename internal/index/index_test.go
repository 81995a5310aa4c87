package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/otu"
)

func newTestOTU() *otu.OTU {
	segID := uuid.New()
	isoID := uuid.New()
	name := otu.IsolateName{Type: otu.IsolateNameTypeIsolate, Value: "A"}

	o := &otu.OTU{
		ID:      uuid.New(),
		Acronym: "TMV",
		Name:    "Tobacco mosaic virus",
		Taxid:   12242,
		Plan: otu.Plan{
			ID: uuid.New(),
			Segments: []otu.Segment{
				{ID: segID, Length: 15, LengthTolerance: 0.03, Rule: otu.SegmentRuleRequired},
			},
		},
		Isolates: []otu.Isolate{
			{
				ID:   isoID,
				Name: &name,
				Sequences: []otu.Sequence{
					{
						ID:         uuid.New(),
						Accession:  otu.Accession{Key: "TM000001", Version: 1},
						Definition: "Tobacco mosaic virus, complete genome",
						Segment:    segID,
						Letters:    "ATGCATGCATGCATG",
					},
				},
			},
		},
		RepresentativeID: isoID,
	}
	o.RebuildIndices()
	return o
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndLoadSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	o := newTestOTU()
	if err := s.UpsertOTU(ctx, o, 5); err != nil {
		t.Fatalf("UpsertOTU: %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, o.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("LoadSnapshot returned nil, want a snapshot")
	}
	if snap.AtEvent != 5 {
		t.Fatalf("AtEvent = %d, want 5", snap.AtEvent)
	}
	if snap.OTU.Name != o.Name || snap.OTU.Taxid != o.Taxid {
		t.Fatalf("got otu %+v, want name/taxid matching %+v", snap.OTU, o)
	}

	gotSeq, ok := snap.OTU.GetSequence("TM000001")
	if !ok {
		t.Fatal("snapshot is missing the TM000001 sequence")
	}
	if gotSeq.Letters != "ATGCATGCATGCATG" {
		t.Fatalf("sequence letters = %q, want re-attached full sequence", gotSeq.Letters)
	}
}

func TestLoadSnapshotMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	snap, err := s.LoadSnapshot(ctx, uuid.New())
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("LoadSnapshot = %+v, want nil for an absent otu", snap)
	}
}

func TestLookupByTaxidAndAcronym(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	o := newTestOTU()
	if err := s.UpsertOTU(ctx, o, 1); err != nil {
		t.Fatalf("UpsertOTU: %v", err)
	}

	gotID, ok, err := s.OTUIDByTaxid(ctx, 12242)
	if err != nil || !ok || gotID != o.ID {
		t.Fatalf("OTUIDByTaxid = (%s, %v, %v), want (%s, true, nil)", gotID, ok, err, o.ID)
	}

	gotID, ok, err = s.OTUIDByAcronym(ctx, "TMV")
	if err != nil || !ok || gotID != o.ID {
		t.Fatalf("OTUIDByAcronym = (%s, %v, %v), want (%s, true, nil)", gotID, ok, err, o.ID)
	}
}

func TestOTUIDsByPrefixConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := newTestOTU()
	second := newTestOTU()
	second.Taxid = 99999
	second.Acronym = "TMV2"

	// Force a shared prefix to exercise the partial-id-conflict path.
	sharedPrefix := first.ID.String()[:8]
	secondID, err := uuid.Parse(sharedPrefix + second.ID.String()[8:])
	if err == nil {
		second.ID = secondID
	}
	second.RebuildIndices()

	if err := s.UpsertOTU(ctx, first, 1); err != nil {
		t.Fatalf("UpsertOTU(first): %v", err)
	}
	if err := s.UpsertOTU(ctx, second, 2); err != nil {
		t.Fatalf("UpsertOTU(second): %v", err)
	}

	ids, err := s.OTUIDsByPrefix(ctx, sharedPrefix)
	if err != nil {
		t.Fatalf("OTUIDsByPrefix: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("OTUIDsByPrefix(%q) = %v, want 2 matches", sharedPrefix, ids)
	}
}

func TestPruneRemovesEventsAndSnapshotsPastEventID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	o := newTestOTU()
	if err := s.UpsertOTU(ctx, o, 10); err != nil {
		t.Fatalf("UpsertOTU: %v", err)
	}

	if err := s.Prune(ctx, 5); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, o.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("LoadSnapshot after pruning at_event=10 with eventID=5 = %+v, want nil", snap)
	}
}
