package otu

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Plan is the ordered, non-empty list of segments an isolate must provide
// to satisfy an OTU (spec §3.1).
type Plan struct {
	ID       uuid.UUID `json:"id"`
	Segments []Segment `json:"segments"`
}

// Monopartite reports whether the plan has exactly one segment.
func (p Plan) Monopartite() bool {
	return len(p.Segments) == 1
}

// RequiredSegments returns the segments with rule == required.
func (p Plan) RequiredSegments() []Segment {
	var out []Segment
	for _, s := range p.Segments {
		if s.Rule == SegmentRuleRequired {
			out = append(out, s)
		}
	}
	return out
}

// SegmentByID returns the segment with the given id, or false if absent.
func (p Plan) SegmentByID(id uuid.UUID) (Segment, bool) {
	for _, s := range p.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// SegmentIDs returns the set of segment ids in the plan.
func (p Plan) SegmentIDs() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(p.Segments))
	for _, s := range p.Segments {
		out[s.ID] = struct{}{}
	}
	return out
}

// SortSegmentsNaturally reorders p.Segments in place by the natural sort
// order of their names (spec §8, testable property 8: "RNA 1", "RNA 3",
// "RNA 10" sort as [1, 3, 10]).
func (p *Plan) SortSegmentsNaturally() {
	sort.SliceStable(p.Segments, func(i, j int) bool {
		ki := segmentSortKey(p.Segments[i])
		kj := segmentSortKey(p.Segments[j])
		return ki.less(kj)
	})
}

func segmentSortKey(s Segment) naturalSortKey {
	if s.Name == nil {
		return newNaturalSortKey("")
	}
	return s.Name.sortKey()
}

// Validate enforces the plan-level structural invariants from spec §3.1:
// a plan must be non-empty; a monopartite plan may have an unnamed segment;
// a multipartite plan must have all segments named and all names distinct.
func (p Plan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("plan %s must have at least one segment", p.ID)
	}

	for _, s := range p.Segments {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	if p.Monopartite() {
		return nil
	}

	seen := make(map[string]uuid.UUID, len(p.Segments))
	for _, s := range p.Segments {
		if s.Name == nil {
			return fmt.Errorf("multipartite plan %s has an unnamed segment %s", p.ID, s.ID)
		}
		key := s.Name.String()
		if prior, ok := seen[key]; ok {
			return fmt.Errorf("multipartite plan %s has duplicate segment name %q (segments %s, %s)", p.ID, key, prior, s.ID)
		}
		seen[key] = s.ID
	}

	return nil
}
