// Package scoring derives trust values from a verification record.
//
// Every function here is pure: no I/O, no clock, no hidden state. They are
// total over any record and never panic, so callers never need error paths.
package scoring

import (
	"math"

	"trustscore/internal/verification/models"
)

// MaxScore is the score of a subject with every category fully satisfied.
const MaxScore = 100

// binaryCategories contribute their full weight once verified.
var binaryCategories = []models.Category{
	models.CategoryEmail,
	models.CategoryPhone,
	models.CategoryIdentity,
	models.CategoryEducation,
	models.CategoryEmployment,
}

// Score returns the trust score in [0, MaxScore].
func Score(r *models.Record) int {
	if r == nil {
		return 0
	}
	total := 0.0
	for _, c := range binaryCategories {
		if r.IsVerified(c) {
			total += float64(c.Weight())
		}
	}
	total += SkillsContribution(r.Skills)

	score := int(math.Round(total))
	return min(max(score, 0), MaxScore)
}

// SkillsContribution returns weight * min(verified / max(total, floor), 1).
// The floor in the denominator keeps a subject listing one or two skills from
// earning the full skills weight.
func SkillsContribution(s models.SkillsFacts) float64 {
	if s.VerifiedCount <= 0 {
		return 0
	}
	denominator := max(s.Total, models.SkillsFloor)
	ratio := math.Min(float64(s.VerifiedCount)/float64(denominator), 1)
	return float64(models.CategorySkills.Weight()) * ratio
}

// Contributions returns each category's share of the unrounded score, keyed
// by category. Every category is present, unverified ones at zero.
func Contributions(r *models.Record) map[models.Category]float64 {
	out := make(map[models.Category]float64, len(models.Categories))
	for _, c := range models.Categories {
		out[c] = 0
	}
	if r == nil {
		return out
	}
	for _, c := range binaryCategories {
		if r.IsVerified(c) {
			out[c] = float64(c.Weight())
		}
	}
	out[models.CategorySkills] = SkillsContribution(r.Skills)
	return out
}
