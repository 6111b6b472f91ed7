package models

import (
	"time"

	id "trustscore/pkg/domain"
)

// Record holds the per-category verification facts for one subject.
//
// Invariants:
//   - Booleans start false and counts start zero
//   - Counts are never negative (enforced when facts are merged)
//   - Skills.VerifiedCount <= Skills.Total is expected but not enforced;
//     scoring clamps the ratio instead
//
// A Record is mutated only by merging Facts for one category at a time. It
// never stores derived values such as the score.
type Record struct {
	SubjectID  id.SubjectID    `json:"subject_id"`
	Email      EmailFacts      `json:"email"`
	Phone      PhoneFacts      `json:"phone"`
	Identity   IdentityFacts   `json:"identity"`
	Education  EducationFacts  `json:"education"`
	Employment EmploymentFacts `json:"employment"`
	Skills     SkillsFacts     `json:"skills"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type EmailFacts struct {
	Verified   bool       `json:"verified"`
	Address    string     `json:"address,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type PhoneFacts struct {
	Verified   bool       `json:"verified"`
	Number     string     `json:"number,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type IdentityFacts struct {
	Verified     bool       `json:"verified"`
	DocumentType string     `json:"document_type,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// EducationFacts gates on Verified; InstitutionCount is informational.
type EducationFacts struct {
	Verified         bool       `json:"verified"`
	InstitutionCount int        `json:"institution_count"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
}

// EmploymentFacts gates on Verified; CompanyCount is informational.
type EmploymentFacts struct {
	Verified     bool       `json:"verified"`
	CompanyCount int        `json:"company_count"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// SkillsFacts is graded rather than binary.
type SkillsFacts struct {
	VerifiedCount  int        `json:"verified_count"`
	Total          int        `json:"total"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// Mutation receives the stored record (nil when the subject has none yet) and
// returns the record to persist, or nil to leave storage untouched. An error
// aborts the update without writing. Stores may invoke a Mutation more than
// once when a concurrent write forces a retry.
type Mutation func(current *Record) (*Record, error)

// NewRecord returns the all-default record for a newly observed subject.
func NewRecord(subjectID id.SubjectID, now time.Time) *Record {
	return &Record{
		SubjectID: subjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers never share timestamp pointers with
// the stored record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Email.VerifiedAt = cloneTime(r.Email.VerifiedAt)
	c.Phone.VerifiedAt = cloneTime(r.Phone.VerifiedAt)
	c.Identity.VerifiedAt = cloneTime(r.Identity.VerifiedAt)
	c.Education.VerifiedAt = cloneTime(r.Education.VerifiedAt)
	c.Employment.VerifiedAt = cloneTime(r.Employment.VerifiedAt)
	c.Skills.LastVerifiedAt = cloneTime(r.Skills.LastVerifiedAt)
	return &c
}

// IsVerified reports the binary flag of a binary category. Skills is graded
// and always reports false here.
func (r *Record) IsVerified(c Category) bool {
	switch c {
	case CategoryEmail:
		return r.Email.Verified
	case CategoryPhone:
		return r.Phone.Verified
	case CategoryIdentity:
		return r.Identity.Verified
	case CategoryEducation:
		return r.Education.Verified
	case CategoryEmployment:
		return r.Employment.Verified
	default:
		return false
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
