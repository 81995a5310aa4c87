package otu

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SegmentRule describes whether a segment must, should, or may be present
// in an isolate conforming to a plan.
type SegmentRule string

const (
	SegmentRuleRequired    SegmentRule = "required"
	SegmentRuleRecommended SegmentRule = "recommended"
	SegmentRuleOptional    SegmentRule = "optional"
)

var segmentNameDelimiter = regexp.MustCompile(`[ _-]`)

// SegmentName is a two-part, human-readable segment label such as "RNA 1",
// printable with any of space, hyphen, or underscore as the separator.
type SegmentName struct {
	Prefix string `json:"prefix"`
	Key    string `json:"key"`
}

// ParseSegmentName splits a string like "DNA-A" or "RNA 1" into a
// SegmentName. It returns false if the string has no recognizable
// prefix/key delimiter.
func ParseSegmentName(s string) (SegmentName, bool) {
	loc := segmentNameDelimiter.FindStringIndex(s)
	if loc == nil {
		return SegmentName{}, false
	}

	prefix := strings.TrimSpace(s[:loc[0]])
	key := strings.TrimSpace(s[loc[1]:])

	if prefix == "" || key == "" {
		return SegmentName{}, false
	}

	return SegmentName{Prefix: prefix, Key: key}, true
}

// String renders the segment name as "Prefix Key".
func (n SegmentName) String() string {
	return fmt.Sprintf("%s %s", n.Prefix, n.Key)
}

func (n SegmentName) sortKey() naturalSortKey {
	return newNaturalSortKey(n.String())
}

// Segment is one molecule in a Plan (spec §3.1).
type Segment struct {
	ID              uuid.UUID    `json:"id"`
	Length          int          `json:"length"`
	LengthTolerance float64      `json:"length_tolerance"`
	Name            *SegmentName `json:"name"`
	Rule            SegmentRule  `json:"rule"`
}

// Validate checks the segment's own fields in isolation (plan-level
// consistency, such as named-vs-monopartite, is checked by Plan.Validate).
func (s Segment) Validate() error {
	if s.Length < 1 {
		return fmt.Errorf("segment %s length must be >= 1, got %d", s.ID, s.Length)
	}
	if s.LengthTolerance < 0 || s.LengthTolerance > 1 {
		return fmt.Errorf("segment %s length_tolerance must be in [0,1], got %f", s.ID, s.LengthTolerance)
	}
	switch s.Rule {
	case SegmentRuleRequired, SegmentRuleRecommended, SegmentRuleOptional:
	default:
		return fmt.Errorf("segment %s has invalid rule %q", s.ID, s.Rule)
	}
	return nil
}

// MinLength returns the smallest sequence length this segment accepts.
func (s Segment) MinLength() int {
	return int(math.Floor(float64(s.Length) * (1.0 - s.LengthTolerance)))
}

// MaxLength returns the largest sequence length this segment accepts.
func (s Segment) MaxLength() int {
	return int(math.Ceil(float64(s.Length) * (1.0 + s.LengthTolerance)))
}
