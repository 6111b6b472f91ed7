package handler

import (
	"fmt"

	"trustscore/internal/verification/models"
	"trustscore/internal/verification/service"
	id "trustscore/pkg/domain"
	dErrors "trustscore/pkg/domain-errors"
)

// UpdateCategoryRequest is the body of PATCH /verification/{subjectID}/{category}.
// Which facts apply depends on the category and is checked by the service.
type UpdateCategoryRequest struct {
	models.Facts
}

// Validate implements httputil.Validatable.
func (r *UpdateCategoryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// BatchScoresRequest is the body of POST /verification/scores.
type BatchScoresRequest struct {
	SubjectIDs []string `json:"subject_ids"`

	parsed []id.SubjectID
}

// Validate checks the batch size and parses every subject id.
func (r *BatchScoresRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.SubjectIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "subject_ids is required")
	}
	if len(r.SubjectIDs) > service.MaxBatchSize {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("subject_ids must contain at most %d entries", service.MaxBatchSize))
	}

	r.parsed = make([]id.SubjectID, 0, len(r.SubjectIDs))
	for i, raw := range r.SubjectIDs {
		sid, err := id.ParseSubjectID(raw)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("subject_ids[%d] is not a valid subject id", i))
		}
		r.parsed = append(r.parsed, sid)
	}
	return nil
}

// ParsedSubjectIDs returns the ids parsed by Validate.
func (r *BatchScoresRequest) ParsedSubjectIDs() []id.SubjectID {
	return r.parsed
}
