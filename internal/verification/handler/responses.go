package handler

import (
	"trustscore/internal/verification/models"
	id "trustscore/pkg/domain"
)

// RecordResponse is the record plus every value derived from it.
type RecordResponse struct {
	Record        *models.Record   `json:"record"`
	Score         int              `json:"score"`
	Progress      ProgressResponse `json:"progress"`
	NextStep      *StepResponse    `json:"next_step"`
	FullyVerified bool             `json:"fully_verified"`

	// Contributions explains Score per category.
	Contributions map[string]float64 `json:"contributions"`
}

type ScoreResponse struct {
	SubjectID string `json:"subject_id"`
	Score     int    `json:"score"`
}

type ProgressResponse struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Ratio     float64 `json:"ratio"`
}

type StepResponse struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Weight   int    `json:"weight"`
}

type StepsResponse struct {
	SubjectID string         `json:"subject_id"`
	Steps     []StepResponse `json:"steps"`
}

type StatusResponse struct {
	SubjectID     string `json:"subject_id"`
	FullyVerified bool   `json:"fully_verified"`
}

// BatchScoresResponse maps subject id to score.
type BatchScoresResponse struct {
	Scores map[string]int `json:"scores"`
}

func FromSummary(s *models.Summary) *RecordResponse {
	return &RecordResponse{
		Record:        s.Record,
		Score:         s.Score,
		Progress:      FromProgress(s.Progress),
		NextStep:      FromStep(s.NextStep),
		FullyVerified: s.FullyVerified,
		Contributions: FromContributions(s.Contributions),
	}
}

func FromContributions(in map[models.Category]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for c, v := range in {
		out[string(c)] = v
	}
	return out
}

func FromProgress(p models.Progress) ProgressResponse {
	return ProgressResponse{
		Completed: p.Completed,
		Total:     p.Total,
		Ratio:     p.Ratio(),
	}
}

// FromStep returns nil for a nil step so the body encodes as null.
func FromStep(step *models.Step) *StepResponse {
	if step == nil {
		return nil
	}
	return &StepResponse{
		Category: string(step.Category),
		Priority: string(step.Priority),
		Message:  step.Message,
		Weight:   step.Weight,
	}
}

func FromSteps(subjectID id.SubjectID, steps []models.Step) StepsResponse {
	out := StepsResponse{
		SubjectID: subjectID.String(),
		Steps:     make([]StepResponse, 0, len(steps)),
	}
	for i := range steps {
		out.Steps = append(out.Steps, *FromStep(&steps[i]))
	}
	return out
}

func FromScores(scores map[id.SubjectID]int) BatchScoresResponse {
	out := BatchScoresResponse{Scores: make(map[string]int, len(scores))}
	for sid, score := range scores {
		out.Scores[sid.String()] = score
	}
	return out
}
