package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the error categories of spec §7. Every classified
// error the façade returns can be tested with errors.Is against one of the
// sentinels below, or classified via CodedError.Kind; low-level file and
// database errors are returned wrapped with context but carry no Kind.
type Kind string

const (
	KindNotFound           Kind = "not-found"
	KindOTUDeleted         Kind = "otu-deleted"
	KindPartialIDConflict  Kind = "partial-id-conflict"
	KindInvalidInput       Kind = "invalid-input"
	KindOTUExists          Kind = "otu-exists"
	KindPlanValidation     Kind = "plan-validation"
	KindLockConflict       Kind = "lock-conflict"
	KindLockRequired       Kind = "lock-required"
	KindHydrationError     Kind = "hydration-error"
	KindUnknownEventType   Kind = "unknown-event-type"
	KindIndexCorrupt       Kind = "index-corrupt"
)

// Sentinel errors, one per row of spec §7's table. Wrapped into a
// CodedError by the façade so errors.Is still matches through the wrap.
var (
	ErrNotFound          = errors.New("not found")
	ErrOTUDeleted        = errors.New("otu deleted")
	ErrPartialIDConflict = errors.New("partial id conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOTUExists         = errors.New("otu exists")
	ErrPlanValidation    = errors.New("plan validation failed")
	ErrLockConflict      = errors.New("lock conflict")
	ErrLockRequired      = errors.New("lock required")
	ErrHydrationError    = errors.New("hydration error")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrIndexCorrupt      = errors.New("index corrupt")
)

var kindSentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindOTUDeleted:        ErrOTUDeleted,
	KindPartialIDConflict: ErrPartialIDConflict,
	KindInvalidInput:      ErrInvalidInput,
	KindOTUExists:         ErrOTUExists,
	KindPlanValidation:    ErrPlanValidation,
	KindLockConflict:      ErrLockConflict,
	KindLockRequired:      ErrLockRequired,
	KindHydrationError:    ErrHydrationError,
	KindUnknownEventType:  ErrUnknownEventType,
	KindIndexCorrupt:      ErrIndexCorrupt,
}

// CodedError is the human-readable failure shape of spec §7: "every error
// kind carries a human-readable message naming the OTU (by id and taxid)
// and the offending accession or segment."
type CodedError struct {
	Kind      Kind
	OTUID     uuid.UUID
	Taxid     int
	Accession string
	Segment   string
	Detail    string
}

func (e *CodedError) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)

	if e.OTUID != uuid.Nil {
		msg += fmt.Sprintf(": otu %s", e.OTUID)
		if e.Taxid != 0 {
			msg += fmt.Sprintf(" (taxid %d)", e.Taxid)
		}
	}
	if e.Accession != "" {
		msg += fmt.Sprintf(": accession %s", e.Accession)
	}
	if e.Segment != "" {
		msg += fmt.Sprintf(": segment %s", e.Segment)
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(": %s", e.Detail)
	}

	return msg
}

// Unwrap lets errors.Is(err, ErrNotFound) (etc.) match through CodedError.
func (e *CodedError) Unwrap() error {
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		return sentinel
	}
	return nil
}

func newCodedError(kind Kind, otuID uuid.UUID, taxid int, detail string) *CodedError {
	return &CodedError{Kind: kind, OTUID: otuID, Taxid: taxid, Detail: detail}
}
