// Package events defines the typed event variants that make up a
// repository's append-only log, and the fold that reduces an OTU's event
// stream into a validated aggregate (internal/otu.OTU).
package events

import "fmt"

// Kind discriminates event variants. It is a closed enumeration: Validate
// rejects any string not in this list, and Apply exhaustively switches over
// every member.
type Kind string

const (
	KindCreateRepo               Kind = "create_repo"
	KindCreateOTU                Kind = "create_otu"
	KindCreatePlan               Kind = "create_plan"
	KindDeleteOTU                Kind = "delete_otu"
	KindUpdateExcludedAccessions Kind = "update_excluded_accessions"
	KindCreateIsolate            Kind = "create_isolate"
	KindDeleteIsolate            Kind = "delete_isolate"
	KindPromoteIsolate           Kind = "promote_isolate"
	KindUpdateSequence           Kind = "update_sequence"
)

// knownKinds is consulted by Validate and by Event.UnmarshalJSON; a type
// string absent from this set is the "unknown event type" hard error from
// spec §4.2.
var knownKinds = map[Kind]struct{}{
	KindCreateRepo:               {},
	KindCreateOTU:                {},
	KindCreatePlan:               {},
	KindDeleteOTU:                {},
	KindUpdateExcludedAccessions: {},
	KindCreateIsolate:            {},
	KindDeleteIsolate:            {},
	KindPromoteIsolate:           {},
	KindUpdateSequence:           {},
}

// Validate reports ErrUnknownKind if k is not one of the declared variants.
func (k Kind) Validate() error {
	if _, ok := knownKinds[k]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return nil
}

// ExclusionAction discriminates UpdateExcludedAccessionsData's direction.
type ExclusionAction string

const (
	ExclusionActionExclude ExclusionAction = "exclude"
	ExclusionActionAllow   ExclusionAction = "allow"
)
