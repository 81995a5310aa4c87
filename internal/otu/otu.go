package otu

import (
	"fmt"

	"github.com/google/uuid"
)

// OTU is a fully rehydrated, validated Operational Taxonomic Unit (spec
// §3.1). It is produced by folding an event stream (package events): the
// fold builds the first state as a struct literal from CreateOTU and each
// later state from a Clone of the previous one.
type OTU struct {
	ID                 uuid.UUID           `json:"id"`
	Acronym            string              `json:"acronym"`
	Name               string              `json:"name"`
	Taxid              int                 `json:"taxid"`
	Lineage            Lineage             `json:"lineage"`
	Molecule           Molecule            `json:"molecule"`
	Plan               Plan                `json:"plan"`
	Isolates           []Isolate           `json:"isolates"`
	ExcludedAccessions map[string]struct{} `json:"excluded_accessions"`
	PromotedAccessions map[string]struct{} `json:"promoted_accessions"`
	RepresentativeID   uuid.UUID           `json:"representative_isolate"`
	Deleted            bool                `json:"deleted"`

	isolatesByID        map[uuid.UUID]*Isolate
	isolatesByAccession map[string]*Isolate
	sequencesByAcc      map[string]*Sequence
}

// Clone returns a deep copy of o, suitable for the "build next aggregate
// from previous + event" fold pattern: the fold mutates the clone, never
// the OTU it started from.
func (o *OTU) Clone() *OTU {
	out := &OTU{
		ID:               o.ID,
		Acronym:          o.Acronym,
		Name:             o.Name,
		Taxid:            o.Taxid,
		Lineage:          Lineage{Taxa: append([]Taxon(nil), o.Lineage.Taxa...)},
		Molecule:         o.Molecule,
		Plan:             Plan{ID: o.Plan.ID, Segments: append([]Segment(nil), o.Plan.Segments...)},
		Isolates:         make([]Isolate, len(o.Isolates)),
		RepresentativeID: o.RepresentativeID,
		Deleted:          o.Deleted,
	}

	for i, iso := range o.Isolates {
		out.Isolates[i] = Isolate{
			ID:        iso.ID,
			Taxid:     iso.Taxid,
			Sequences: append([]Sequence(nil), iso.Sequences...),
		}
		if iso.Name != nil {
			name := *iso.Name
			out.Isolates[i].Name = &name
		}
	}

	out.ExcludedAccessions = make(map[string]struct{}, len(o.ExcludedAccessions))
	for k := range o.ExcludedAccessions {
		out.ExcludedAccessions[k] = struct{}{}
	}
	out.PromotedAccessions = make(map[string]struct{}, len(o.PromotedAccessions))
	for k := range o.PromotedAccessions {
		out.PromotedAccessions[k] = struct{}{}
	}

	out.RebuildIndices()
	return out
}

// RebuildIndices recomputes the aggregate's in-memory lookup tables. It must
// be called after any direct mutation of Isolates (the event fold always
// does this before returning).
func (o *OTU) RebuildIndices() {
	o.isolatesByID = make(map[uuid.UUID]*Isolate, len(o.Isolates))
	o.isolatesByAccession = make(map[string]*Isolate)
	o.sequencesByAcc = make(map[string]*Sequence)

	for idx := range o.Isolates {
		iso := &o.Isolates[idx]
		o.isolatesByID[iso.ID] = iso
		for sIdx := range iso.Sequences {
			seq := &iso.Sequences[sIdx]
			o.isolatesByAccession[seq.Accession.Key] = iso
			o.sequencesByAcc[seq.Accession.Key] = seq
		}
	}

	if o.ExcludedAccessions == nil {
		o.ExcludedAccessions = map[string]struct{}{}
	}
	if o.PromotedAccessions == nil {
		o.PromotedAccessions = map[string]struct{}{}
	}
}

// GetIsolate returns the isolate with the given id, if any.
func (o *OTU) GetIsolate(id uuid.UUID) (*Isolate, bool) {
	iso, ok := o.isolatesByID[id]
	return iso, ok
}

// GetIsolateByAccession returns the isolate holding the sequence with the
// given accession key, if any.
func (o *OTU) GetIsolateByAccession(key string) (*Isolate, bool) {
	iso, ok := o.isolatesByAccession[key]
	return iso, ok
}

// GetSequence returns the sequence with the given accession key, if any.
func (o *OTU) GetSequence(key string) (*Sequence, bool) {
	seq, ok := o.sequencesByAcc[key]
	return seq, ok
}

// IsolateIDs returns the set of isolate ids in the OTU.
func (o *OTU) IsolateIDs() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(o.isolatesByID))
	for id := range o.isolatesByID {
		out[id] = struct{}{}
	}
	return out
}

// Accessions returns the set of (unversioned) accession keys held directly
// by this OTU's isolates.
func (o *OTU) Accessions() map[string]struct{} {
	out := make(map[string]struct{})
	for key := range o.sequencesByAcc {
		out[key] = struct{}{}
	}
	return out
}

// VersionedAccessions returns the set of versioned accessions held by this
// OTU's isolates.
func (o *OTU) VersionedAccessions() map[Accession]struct{} {
	out := make(map[Accession]struct{})
	for _, iso := range o.Isolates {
		for _, seq := range iso.Sequences {
			out[seq.Accession] = struct{}{}
		}
	}
	return out
}

// Sequences returns every sequence across every isolate in the OTU.
func (o *OTU) Sequences() []Sequence {
	var out []Sequence
	for _, iso := range o.Isolates {
		out = append(out, iso.Sequences...)
	}
	return out
}

// BlockedAccessions returns the union of accessions already present,
// excluded, and promoted — no sequence with a key in this set may be
// admitted (spec §4.3, §8 testable property 6).
func (o *OTU) BlockedAccessions() map[string]struct{} {
	out := make(map[string]struct{})
	for key := range o.sequencesByAcc {
		out[key] = struct{}{}
	}
	for key := range o.ExcludedAccessions {
		out[key] = struct{}{}
	}
	for key := range o.PromotedAccessions {
		out[key] = struct{}{}
	}
	return out
}

// Validate enforces the per-OTU invariants of spec §3.2 that can be checked
// without knowledge of sibling OTUs (cross-OTU uniqueness, rule 8, is
// enforced by the repository façade, which alone knows the full OTU set).
func (o *OTU) Validate() error {
	if len(o.Isolates) == 0 {
		return fmt.Errorf("otu %s (taxid %d) must have at least one isolate", o.ID, o.Taxid)
	}

	if err := o.Molecule.Validate(); err != nil {
		return fmt.Errorf("otu %s (taxid %d): %w", o.ID, o.Taxid, err)
	}

	if err := o.Plan.Validate(); err != nil {
		return fmt.Errorf("otu %s (taxid %d): %w", o.ID, o.Taxid, err)
	}

	segmentIDs := o.Plan.SegmentIDs()

	namedSeen := make(map[string]uuid.UUID)
	unnamedSeen := false

	for _, iso := range o.Isolates {
		if err := iso.Validate(); err != nil {
			return fmt.Errorf("otu %s (taxid %d): %w", o.ID, o.Taxid, err)
		}

		if iso.Name == nil {
			if unnamedSeen {
				return fmt.Errorf("otu %s (taxid %d) has more than one unnamed isolate", o.ID, o.Taxid)
			}
			unnamedSeen = true
		} else {
			key := iso.Name.String()
			if prior, ok := namedSeen[key]; ok {
				return fmt.Errorf("otu %s (taxid %d) has duplicate isolate name %q (isolates %s, %s)",
					o.ID, o.Taxid, key, prior, iso.ID)
			}
			namedSeen[key] = iso.ID
		}

		for _, seq := range iso.Sequences {
			segment, ok := o.Plan.SegmentByID(seq.Segment)
			if !ok {
				return fmt.Errorf("otu %s (taxid %d): sequence %s (%s) references unknown segment %s",
					o.ID, o.Taxid, seq.ID, seq.Accession, seq.Segment)
			}
			if _, ok := segmentIDs[seq.Segment]; !ok {
				return fmt.Errorf("otu %s (taxid %d): sequence %s (%s) segment %s not in plan",
					o.ID, o.Taxid, seq.ID, seq.Accession, seq.Segment)
			}

			length := len(seq.Letters)
			if length < segment.MinLength() || length > segment.MaxLength() {
				return fmt.Errorf(
					"otu %s (taxid %d): sequence %s (%s) length %d outside segment %s bounds [%d, %d]",
					o.ID, o.Taxid, seq.ID, seq.Accession, length, segment.ID, segment.MinLength(), segment.MaxLength(),
				)
			}
		}
	}

	accessionKeys := o.Accessions()

	for key := range o.PromotedAccessions {
		if _, ok := accessionKeys[key]; ok {
			return fmt.Errorf("otu %s (taxid %d): promoted accession %s is still present in the OTU", o.ID, o.Taxid, key)
		}
		if _, ok := o.ExcludedAccessions[key]; ok {
			return fmt.Errorf("otu %s (taxid %d): promoted accession %s is also excluded", o.ID, o.Taxid, key)
		}
	}

	for key := range o.ExcludedAccessions {
		if _, ok := accessionKeys[key]; ok {
			return fmt.Errorf("otu %s (taxid %d): excluded accession %s is present in the OTU", o.ID, o.Taxid, key)
		}
	}

	if o.RepresentativeID != uuid.Nil {
		if _, ok := o.isolatesByID[o.RepresentativeID]; !ok {
			return fmt.Errorf("otu %s (taxid %d): representative isolate %s does not exist", o.ID, o.Taxid, o.RepresentativeID)
		}
	} else {
		return fmt.Errorf("otu %s (taxid %d): must designate exactly one representative isolate", o.ID, o.Taxid)
	}

	return nil
}
