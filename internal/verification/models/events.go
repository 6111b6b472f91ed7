package models

import (
	"time"

	id "trustscore/pkg/domain"
)

// EventTypeCategoryUpdated is the type of CategoryUpdated events.
const EventTypeCategoryUpdated = "verification.category_updated"

// CategoryUpdated is published after a merge commits. Consumers (notification,
// search ranking) react to score changes without polling.
type CategoryUpdated struct {
	EventID       id.EventID   `json:"event_id"`
	Type          string       `json:"type"`
	SubjectID     id.SubjectID `json:"subject_id"`
	Category      Category     `json:"category"`
	Changed       bool         `json:"changed"`
	ScoreBefore   int          `json:"score_before"`
	ScoreAfter    int          `json:"score_after"`
	FullyVerified bool         `json:"fully_verified"`
	NextStep      *Category    `json:"next_step,omitempty"`
	UpdatedBy     string       `json:"updated_by,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}
