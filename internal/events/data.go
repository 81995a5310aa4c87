package events

import (
	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/otu"
)

// RepoSettings holds the per-repository defaults recorded at CreateRepo
// (spec §3.1, RepoMeta.settings).
type RepoSettings struct {
	DefaultSegmentLengthTolerance float64 `json:"default_segment_length_tolerance"`
}

// CreateRepoData is the payload of the first event in any log (spec §4.1:
// "00000001.json is always a CreateRepo event").
type CreateRepoData struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Organism string       `json:"organism"`
	Settings RepoSettings `json:"settings"`
}

// CreateOTUData is the payload that instantiates a new OTU aggregate.
type CreateOTUData struct {
	ID       uuid.UUID    `json:"id"`
	Acronym  string       `json:"acronym"`
	Molecule otu.Molecule `json:"molecule"`
	Lineage  otu.Lineage  `json:"lineage"`
	Name     string       `json:"name"`
	Taxid    int          `json:"taxid"`
	Plan     otu.Plan     `json:"plan"`
}

// CreatePlanData replaces an OTU's plan wholesale (spec §8, "Plan
// enlargement": existing isolates are unaffected by new optional segments).
type CreatePlanData struct {
	Plan otu.Plan `json:"plan"`
}

// DeleteOTUData marks an OTU deleted without removing it from the log
// (spec §3.2 lifecycle, §4.5 delete semantics).
type DeleteOTUData struct {
	Rationale         string     `json:"rationale"`
	ReplacementOTUID  *uuid.UUID `json:"replacement_otu_id,omitempty"`
}

// UpdateExcludedAccessionsData mutates the OTU's exclusion set in one
// direction at a time (spec §8, "Exclude-then-allow idempotence").
type UpdateExcludedAccessionsData struct {
	Accessions []string        `json:"accessions"`
	Action     ExclusionAction `json:"action"`
}

// CreateIsolateData appends a new isolate, with every one of its sequences,
// atomically (spec §4.2: "appends isolate with sequences atomically").
type CreateIsolateData struct {
	IsolateID uuid.UUID        `json:"isolate_id"`
	Name      *otu.IsolateName `json:"name"`
	Taxid     int              `json:"taxid"`
	Sequences []otu.Sequence   `json:"sequences"`
}

// DeleteIsolateData removes an isolate from its OTU.
type DeleteIsolateData struct {
	Message string `json:"message"`
}

// PromoteIsolateData replaces each listed GenBank accession in the target
// isolate with a newer RefSeq sequence, keyed by the old accession's bare
// key (matching the key-string form used by excluded_accessions and
// promoted_accessions; spec §4.2 table, "PromoteIsolate").
type PromoteIsolateData struct {
	Map map[string]otu.Sequence `json:"map"`
}

// UpdateSequenceData substitutes the sequence named by the enclosing
// event's SequenceQuery for a new one, across whichever isolate holds it.
type UpdateSequenceData struct {
	Sequence otu.Sequence `json:"sequence"`
}
