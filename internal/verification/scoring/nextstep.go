package scoring

import (
	"fmt"
	"slices"

	"trustscore/internal/verification/models"
)

// stepTemplates fixes the priority and message of each category's step, in
// declaration order.
var stepTemplates = map[models.Category]struct {
	priority models.Priority
	message  string
}{
	models.CategoryEmail:      {models.PriorityHigh, "Verify your email address"},
	models.CategoryPhone:      {models.PriorityHigh, "Verify your phone number"},
	models.CategoryIdentity:   {models.PriorityHigh, "Complete identity verification"},
	models.CategorySkills:     {models.PriorityMedium, ""},
	models.CategoryEducation:  {models.PriorityMedium, "Verify your education"},
	models.CategoryEmployment: {models.PriorityLow, "Verify your work experience"},
}

// Steps returns one step per unsatisfied category, ordered by priority
// descending, then weight descending. Equal keys keep declaration order.
func Steps(r *models.Record) []models.Step {
	steps := make([]models.Step, 0, len(models.Categories))
	for _, c := range models.Categories {
		if IsSatisfied(r, c) {
			continue
		}
		tmpl := stepTemplates[c]
		msg := tmpl.message
		if c == models.CategorySkills {
			msg = skillsMessage(r)
		}
		steps = append(steps, models.Step{
			Category: c,
			Priority: tmpl.priority,
			Message:  msg,
			Weight:   c.Weight(),
		})
	}

	slices.SortStableFunc(steps, func(a, b models.Step) int {
		if d := b.Priority.Rank() - a.Priority.Rank(); d != 0 {
			return d
		}
		return b.Weight - a.Weight
	})
	return steps
}

// NextStep returns the highest-ranked step, or nil when every category is satisfied.
func NextStep(r *models.Record) *models.Step {
	steps := Steps(r)
	if len(steps) == 0 {
		return nil
	}
	return &steps[0]
}

func skillsMessage(r *models.Record) string {
	verified := 0
	if r != nil {
		verified = r.Skills.VerifiedCount
	}
	remaining := max(models.SkillsFloor-verified, 0)
	if remaining == 1 {
		return "Verify 1 more skill"
	}
	return fmt.Sprintf("Verify %d more skills", remaining)
}

// Summarize computes every derived value from one record.
func Summarize(r *models.Record) *models.Summary {
	return &models.Summary{
		Record:        r,
		Score:         Score(r),
		Progress:      Progress(r),
		NextStep:      NextStep(r),
		FullyVerified: IsFullyVerified(r),
		Contributions: Contributions(r),
	}
}
