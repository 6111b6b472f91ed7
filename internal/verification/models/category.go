package models

import (
	"errors"
	"fmt"

	dErrors "trustscore/pkg/domain-errors"
)

var (
	// ErrInvalidCategory marks an update addressed to an unrecognized category.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidFactShape marks facts that fail type or range checks.
	ErrInvalidFactShape = errors.New("invalid fact shape")
)

// Category is one of the six independently tracked verification facts.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryIdentity   Category = "identity"
	CategorySkills     Category = "skills"
	CategoryEducation  Category = "education"
	CategoryEmployment Category = "employment"
)

// Categories lists every category in declaration order. Recommendation
// tie-breaks fall back to this order.
var Categories = []Category{
	CategoryEmail,
	CategoryPhone,
	CategoryIdentity,
	CategorySkills,
	CategoryEducation,
	CategoryEmployment,
}

// TotalCategories is the denominator of Progress.
const TotalCategories = 6

// SkillsFloor is the number of verified skills required to complete the
// skills category, regardless of how many skills the subject lists.
const SkillsFloor = 3

// weights are the maximum score contributions; they sum to exactly 100.
var weights = map[Category]int{
	CategoryEmail:      15,
	CategoryPhone:      15,
	CategoryIdentity:   25,
	CategorySkills:     20,
	CategoryEducation:  15,
	CategoryEmployment: 10,
}

// ParseCategory validates a category name from external input.
//
// Errors: wraps ErrInvalidCategory with CodeValidation.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.Wrap(ErrInvalidCategory, dErrors.CodeValidation, fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

func (c Category) IsValid() bool {
	_, ok := weights[c]
	return ok
}

// Weight returns the fixed maximum score contribution, or 0 for unknown categories.
func (c Category) Weight() int {
	return weights[c]
}

func (c Category) String() string {
	return string(c)
}
