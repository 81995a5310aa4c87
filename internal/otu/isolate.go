package otu

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Isolate is one collected instance of a virus: an optional name and the
// sequences observed for it (spec §3.1).
type Isolate struct {
	ID        uuid.UUID    `json:"id"`
	Name      *IsolateName `json:"name"`
	Taxid     int          `json:"taxid"`
	Sequences []Sequence   `json:"sequences"`
}

// SortSequences orders sequences by accession for deterministic output
// (matches the rehydration sort applied by the original implementation).
func (i *Isolate) SortSequences() {
	sort.SliceStable(i.Sequences, func(a, b int) bool {
		return i.Sequences[a].Accession.Less(i.Sequences[b].Accession)
	})
}

// GetSequence returns the sequence with the given accession key, if any.
func (i Isolate) GetSequence(key string) (Sequence, bool) {
	for _, s := range i.Sequences {
		if s.Accession.Key == key {
			return s, true
		}
	}
	return Sequence{}, false
}

// Accessions returns the set of accession keys held by this isolate.
func (i Isolate) Accessions() map[string]struct{} {
	out := make(map[string]struct{}, len(i.Sequences))
	for _, s := range i.Sequences {
		out[s.Accession.Key] = struct{}{}
	}
	return out
}

// AllRefSeq reports whether every sequence in the isolate is a RefSeq
// accession.
func (i Isolate) AllRefSeq() bool {
	for _, s := range i.Sequences {
		if !s.Accession.IsRefSeq() {
			return false
		}
	}
	return true
}

// AllGenBank reports whether every sequence in the isolate is a GenBank
// (non-RefSeq) accession.
func (i Isolate) AllGenBank() bool {
	for _, s := range i.Sequences {
		if s.Accession.IsRefSeq() {
			return false
		}
	}
	return true
}

// Validate checks the isolate's own fields: name validity and RefSeq/GenBank
// homogeneity (spec §3.2.6).
func (i Isolate) Validate() error {
	if i.Name != nil {
		if err := i.Name.Validate(); err != nil {
			return err
		}
	}

	if len(i.Sequences) == 0 {
		return nil
	}

	if !i.AllRefSeq() && !i.AllGenBank() {
		return fmt.Errorf("isolate %s mixes RefSeq and GenBank accessions", i.ID)
	}

	for _, s := range i.Sequences {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	return nil
}
