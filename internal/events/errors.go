package events

import "errors"

// Sentinel errors for the event model (spec §7). The repository façade
// wraps these with OTU/accession context via repository.CodedError; packages
// here only need errors.Is-compatible identity.
var (
	ErrUnknownKind             = errors.New("unknown event type")
	ErrSchema                  = errors.New("event schema error")
	ErrHydration               = errors.New("hydration error")
	ErrNotFirstCreate          = errors.New("first event for an otu id must be create_otu")
	ErrRepresentativeIsolate   = errors.New("cannot delete the representative isolate")
	ErrUnknownIsolate          = errors.New("unknown isolate")
	ErrUnknownSequence         = errors.New("unknown sequence")
	ErrUnknownSegment          = errors.New("unknown segment")
)
