package domain

import (
	"github.com/google/uuid"

	dErrors "trustscore/pkg/domain-errors"
)

// SubjectID identifies the user or account whose verification facts are tracked.
// Invariant: a parsed SubjectID is a valid, non-nil UUID.
//
// Usage: construct via ParseSubjectID at trust boundaries; direct casting from
// uuid.UUID is fine for ids generated internally.
type SubjectID uuid.UUID

// EventID identifies a published verification event.
type EventID uuid.UUID

// ParseSubjectID parses a subject id from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s, "subject_id")
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(u), nil
}

// NewEventID returns a fresh random event id.
func NewEventID() EventID {
	return EventID(uuid.New())
}

func (id SubjectID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id SubjectID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id SubjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SubjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubjectID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id EventID) String() string {
	return uuid.UUID(id).String()
}

func (id EventID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "event_id")
	if err != nil {
		return err
	}
	*id = EventID(parsed)
	return nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be the nil UUID")
	}
	return u, nil
}
