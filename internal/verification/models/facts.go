package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dErrors "trustscore/pkg/domain-errors"
)

// Facts is a partial update for one category. Nil fields are left untouched
// when merged. Which fields apply depends on the addressed category.
type Facts struct {
	Verified         *bool      `json:"verified,omitempty"`
	Address          *string    `json:"address,omitempty" validate:"omitempty,email,max=254"`
	Number           *string    `json:"number,omitempty" validate:"omitempty,e164"`
	DocumentType     *string    `json:"document_type,omitempty" validate:"omitempty,oneof=passport national_id drivers_license residence_permit"`
	InstitutionCount *int       `json:"institution_count,omitempty" validate:"omitempty,min=0,max=1000"`
	CompanyCount     *int       `json:"company_count,omitempty" validate:"omitempty,min=0,max=1000"`
	VerifiedCount    *int       `json:"verified_count,omitempty" validate:"omitempty,min=0,max=10000"`
	Total            *int       `json:"total,omitempty" validate:"omitempty,min=0,max=10000"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	LastVerifiedAt   *time.Time `json:"last_verified_at,omitempty"`
}

// allowedFields lists, per category, the JSON names of the facts it accepts.
var allowedFields = map[Category]map[string]bool{
	CategoryEmail:      {"verified": true, "address": true, "verified_at": true},
	CategoryPhone:      {"verified": true, "number": true, "verified_at": true},
	CategoryIdentity:   {"verified": true, "document_type": true, "verified_at": true},
	CategoryEducation:  {"verified": true, "institution_count": true, "verified_at": true},
	CategoryEmployment: {"verified": true, "company_count": true, "verified_at": true},
	CategorySkills:     {"verified_count": true, "total": true, "last_verified_at": true},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Validate checks facts against category before anything is merged.
//
// Errors: wraps ErrInvalidFactShape with CodeValidation when a supplied field
// does not apply to the category or fails a range/format check.
func (f Facts) Validate(c Category) error {
	allowed, ok := allowedFields[c]
	if !ok {
		return dErrors.Wrap(ErrInvalidCategory, dErrors.CodeValidation, fmt.Sprintf("unknown category %q", c))
	}
	for _, name := range f.Supplied() {
		if !allowed[name] {
			return shapeError(fmt.Sprintf("field %q does not apply to category %q", name, c))
		}
	}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return shapeError(fmt.Sprintf("field %q failed %q check", fe.Field(), fe.Tag()))
		}
		return shapeError("facts failed validation")
	}
	return nil
}

// Supplied returns the JSON names of the non-nil fields, in struct order.
func (f Facts) Supplied() []string {
	v := reflect.ValueOf(f)
	t := v.Type()
	var names []string
	for i := range t.NumField() {
		if !v.Field(i).IsNil() {
			names = append(names, jsonName(t.Field(i)))
		}
	}
	return names
}

// IsEmpty reports whether no field is supplied.
func (f Facts) IsEmpty() bool {
	return len(f.Supplied()) == 0
}

func shapeError(msg string) error {
	return dErrors.Wrap(ErrInvalidFactShape, dErrors.CodeValidation, msg)
}

// Apply merges facts into the category's sub-record and reports whether
// anything changed. Callers must Validate first; Apply assumes a valid pair.
//
// Timestamps: a binary category that becomes verified without a supplied or
// stored verified_at is stamped with now; un-verifying clears it. A rising
// skills verified_count without a supplied last_verified_at is stamped with now.
// UpdatedAt moves only when something changed, so reapplying the same facts
// is a no-op.
func (f Facts) Apply(r *Record, c Category, now time.Time) bool {
	var changed bool
	switch c {
	case CategoryEmail:
		changed = f.mergeBinary(&r.Email.Verified, &r.Email.VerifiedAt, now)
		changed = setString(&r.Email.Address, f.Address) || changed
	case CategoryPhone:
		changed = f.mergeBinary(&r.Phone.Verified, &r.Phone.VerifiedAt, now)
		changed = setString(&r.Phone.Number, f.Number) || changed
	case CategoryIdentity:
		changed = f.mergeBinary(&r.Identity.Verified, &r.Identity.VerifiedAt, now)
		changed = setString(&r.Identity.DocumentType, f.DocumentType) || changed
	case CategoryEducation:
		changed = f.mergeBinary(&r.Education.Verified, &r.Education.VerifiedAt, now)
		changed = setInt(&r.Education.InstitutionCount, f.InstitutionCount) || changed
	case CategoryEmployment:
		changed = f.mergeBinary(&r.Employment.Verified, &r.Employment.VerifiedAt, now)
		changed = setInt(&r.Employment.CompanyCount, f.CompanyCount) || changed
	case CategorySkills:
		changed = f.mergeSkills(&r.Skills, now)
	}
	if changed {
		r.UpdatedAt = now
	}
	return changed
}

func (f Facts) mergeBinary(verified *bool, verifiedAt **time.Time, now time.Time) bool {
	changed := false
	if f.Verified != nil && *f.Verified != *verified {
		*verified = *f.Verified
		changed = true
		if !*verified && f.VerifiedAt == nil {
			*verifiedAt = nil
		}
	}
	if f.VerifiedAt != nil {
		changed = setTime(verifiedAt, f.VerifiedAt) || changed
	} else if *verified && *verifiedAt == nil {
		t := now
		*verifiedAt = &t
		changed = true
	}
	return changed
}

func (f Facts) mergeSkills(s *SkillsFacts, now time.Time) bool {
	previous := s.VerifiedCount
	changed := setInt(&s.VerifiedCount, f.VerifiedCount)
	changed = setInt(&s.Total, f.Total) || changed
	if f.LastVerifiedAt != nil {
		changed = setTime(&s.LastVerifiedAt, f.LastVerifiedAt) || changed
	} else if s.VerifiedCount > previous {
		t := now
		s.LastVerifiedAt = &t
		changed = true
	}
	return changed
}

func setString(dst *string, src *string) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}

func setInt(dst *int, src *int) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}

func setTime(dst **time.Time, src *time.Time) bool {
	if *dst != nil && (*dst).Equal(*src) {
		return false
	}
	t := src.UTC()
	*dst = &t
	return true
}
