package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"trustscore/internal/verification/models"
	"trustscore/internal/verification/scoring"
	id "trustscore/pkg/domain"
	dErrors "trustscore/pkg/domain-errors"
	"trustscore/pkg/platform/httputil"
	"trustscore/pkg/platform/middleware/auth"
	"trustscore/pkg/platform/middleware/metadata"
	"trustscore/pkg/requestcontext"
)

// Service defines the verification operations the HTTP layer exposes.
type Service interface {
	Summary(ctx context.Context, subjectID id.SubjectID) (*models.Summary, error)
	Score(ctx context.Context, subjectID id.SubjectID) (int, error)
	Progress(ctx context.Context, subjectID id.SubjectID) (models.Progress, error)
	NextStep(ctx context.Context, subjectID id.SubjectID) (*models.Step, error)
	Steps(ctx context.Context, subjectID id.SubjectID) ([]models.Step, error)
	IsFullyVerified(ctx context.Context, subjectID id.SubjectID) (bool, error)
	Scores(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]int, error)
	UpdateCategory(ctx context.Context, subjectID id.SubjectID, category string, facts models.Facts) (*models.Record, error)
}

// Handler wires verification endpoints to the verification service.
type Handler struct {
	service Service
	logger  *slog.Logger
	tokens  auth.TokenValidator
}

// New constructs a verification handler. tokens guards the write path.
func New(service Service, logger *slog.Logger, tokens auth.TokenValidator) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		tokens:  tokens,
	}
}

// Register mounts verification endpoints on the router. Reads are public;
// category updates require a collaborator service token.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verification", func(r chi.Router) {
		r.Post("/scores", h.HandleBatchScores)
		r.Get("/{subjectID}", h.HandleGetRecord)
		r.Get("/{subjectID}/score", h.HandleGetScore)
		r.Get("/{subjectID}/progress", h.HandleGetProgress)
		r.Get("/{subjectID}/next-step", h.HandleGetNextStep)
		r.Get("/{subjectID}/steps", h.HandleGetSteps)
		r.Get("/{subjectID}/status", h.HandleGetStatus)
		r.With(metadata.ClientMetadata, auth.RequireServiceToken(h.tokens, h.logger)).
			Patch("/{subjectID}/{category}", h.HandleUpdateCategory)
	})
}

// HandleGetRecord handles GET /verification/{subjectID}.
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(ctx, subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to load verification record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSummary(summary))
}

// HandleGetScore handles GET /verification/{subjectID}/score.
func (h *Handler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	score, err := h.service.Score(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to compute score", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ScoreResponse{SubjectID: subjectID.String(), Score: score})
}

// HandleGetProgress handles GET /verification/{subjectID}/progress.
func (h *Handler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	progress, err := h.service.Progress(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to compute progress", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProgress(progress))
}

// HandleGetNextStep handles GET /verification/{subjectID}/next-step. The body
// is null once every category is satisfied.
func (h *Handler) HandleGetNextStep(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	step, err := h.service.NextStep(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to compute next step", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStep(step))
}

// HandleGetSteps handles GET /verification/{subjectID}/steps.
func (h *Handler) HandleGetSteps(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	steps, err := h.service.Steps(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to compute steps", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSteps(subjectID, steps))
}

// HandleGetStatus handles GET /verification/{subjectID}/status.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}

	full, err := h.service.IsFullyVerified(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "failed to compute status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{SubjectID: subjectID.String(), FullyVerified: full})
}

// HandleBatchScores handles POST /verification/scores.
func (h *Handler) HandleBatchScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchScoresRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	scores, err := h.service.Scores(ctx, req.ParsedSubjectIDs())
	if err != nil {
		h.writeServiceError(w, r, "failed to compute batch scores", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromScores(scores))
}

// HandleUpdateCategory handles PATCH /verification/{subjectID}/{category}.
func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	subjectID, ok := h.subjectFromPath(w, r)
	if !ok {
		return
	}
	category := chi.URLParam(r, "category")

	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "caller missing from context despite service token middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	if _, err := models.ParseCategory(category); err != nil {
		h.logger.WarnContext(ctx, "unknown verification category",
			"request_id", requestID,
			"category", category,
		)
		httputil.WriteError(w, err)
		return
	}
	if !caller.Allows(category) {
		h.logger.WarnContext(ctx, "collaborator not permitted for category",
			"request_id", requestID,
			"collaborator", caller.Name,
			"category", category,
			"client_ip", metadata.GetClientIP(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "collaborator may not update this category"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateCategoryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.UpdateCategory(ctx, subjectID, category, req.Facts)
	if err != nil {
		h.writeServiceError(w, r, "failed to update verification category", err)
		return
	}

	// derive from the update's own snapshot; a later read may see other writes
	summary := scoring.Summarize(record)

	h.logger.InfoContext(ctx, "verification category updated",
		"request_id", requestID,
		"subject_id", subjectID,
		"category", category,
		"collaborator", caller.Name,
		"client_ip", metadata.GetClientIP(ctx),
		"user_agent", metadata.GetUserAgent(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromSummary(summary))
}

func (h *Handler) subjectFromPath(w http.ResponseWriter, r *http.Request) (id.SubjectID, bool) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid subject id",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return id.SubjectID{}, false
	}
	return subjectID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
