package scoring

import "trustscore/internal/verification/models"

// IsSatisfied is the completion predicate shared by Progress and NextStep.
// Skills completes at the fixed floor, not when every listed skill is verified.
func IsSatisfied(r *models.Record, c models.Category) bool {
	if r == nil {
		return false
	}
	if c == models.CategorySkills {
		return r.Skills.VerifiedCount >= models.SkillsFloor
	}
	return r.IsVerified(c)
}

// Progress counts satisfied categories. Total is always TotalCategories.
func Progress(r *models.Record) models.Progress {
	completed := 0
	for _, c := range models.Categories {
		if IsSatisfied(r, c) {
			completed++
		}
	}
	return models.Progress{Completed: completed, Total: models.TotalCategories}
}

// IsFullyVerified requires every binary flag plus the skills floor.
//
// With Skills.Total below the floor this can never become true. That mirrors
// the product rule as it stands and is kept on purpose.
func IsFullyVerified(r *models.Record) bool {
	if r == nil {
		return false
	}
	return r.Email.Verified &&
		r.Phone.Verified &&
		r.Identity.Verified &&
		r.Skills.VerifiedCount >= models.SkillsFloor &&
		r.Education.Verified &&
		r.Employment.Verified
}
