package otu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var sequenceLetterPattern = regexp.MustCompile(`^[ATGCURYKMSWBDHVN]+$`)

// Sequence is one nucleotide sequence carried by an isolate (spec §3.1).
type Sequence struct {
	ID         uuid.UUID `json:"id"`
	Accession  Accession `json:"accession"`
	Definition string    `json:"definition"`
	Segment    uuid.UUID `json:"segment"`
	Letters    string    `json:"sequence"`
}

// NormalizeSequenceLetters upper-cases sequence material, matching the
// case-insensitive ingress rule from spec §4.3.
func NormalizeSequenceLetters(s string) string {
	return strings.ToUpper(s)
}

// Validate checks the sequence's own fields, independent of plan or isolate
// context (segment-length cross-checks happen in OTU.Validate).
func (s Sequence) Validate() error {
	if s.Definition == "" {
		return fmt.Errorf("sequence %s (%s) has an empty definition", s.ID, s.Accession)
	}
	if !sequenceLetterPattern.MatchString(s.Letters) {
		return fmt.Errorf("sequence %s (%s) contains invalid nucleotide letters", s.ID, s.Accession)
	}
	if s.Segment == uuid.Nil {
		return fmt.Errorf("sequence %s (%s) has no segment reference", s.ID, s.Accession)
	}
	return nil
}
