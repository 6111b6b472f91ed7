package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustscore/internal/verification/metrics"
	"trustscore/internal/verification/models"
	"trustscore/internal/verification/scoring"
	id "trustscore/pkg/domain"
	dErrors "trustscore/pkg/domain-errors"
	"trustscore/pkg/platform/sentinel"
	"trustscore/pkg/requestcontext"
)

// MaxBatchSize bounds Scores lookups.
const MaxBatchSize = 100

// Store persists verification records. Update must serialize mutations per
// subject; different subjects must not block each other.
type Store interface {
	FindBySubject(ctx context.Context, subjectID id.SubjectID) (*models.Record, error)
	FindMany(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]*models.Record, error)
	Update(ctx context.Context, subjectID id.SubjectID, mutate models.Mutation) (*models.Record, error)
}

// Publisher fans out committed updates to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event models.CategoryUpdated) error
}

// Service owns verification records and derives trust values from them.
// Derived values are recomputed from a fresh snapshot on every call.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("trustscore/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRecord returns a snapshot of the subject's record. Subjects that were
// never observed get the all-default record rather than an error.
func (s *Service) GetRecord(ctx context.Context, subjectID id.SubjectID) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "verification.GetRecord",
		trace.WithAttributes(attribute.String("subject_id", subjectID.String())))
	defer span.End()

	start := time.Now()
	record, err := s.store.FindBySubject(ctx, subjectID)
	s.metrics.ObserveStoreLatency("find", time.Since(start))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.NewRecord(subjectID, time.Time{}), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification record")
	}
	return record, nil
}

// UpdateCategory merges facts into one category of the subject's record,
// creating the record on first use. Category and facts are validated before
// the store is touched, so a rejected update never partially applies.
// Resupplying the same facts leaves the record unchanged.
func (s *Service) UpdateCategory(ctx context.Context, subjectID id.SubjectID, category string, facts models.Facts) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "verification.UpdateCategory",
		trace.WithAttributes(
			attribute.String("subject_id", subjectID.String()),
			attribute.String("category", category),
		))
	defer span.End()
	start := time.Now()

	c, err := models.ParseCategory(category)
	if err != nil {
		s.metrics.IncrementUpdate("unknown", "invalid_category")
		return nil, err
	}
	if err := facts.Validate(c); err != nil {
		s.metrics.IncrementUpdate(string(c), "invalid_facts")
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	var before int
	var changed bool
	record, err := s.store.Update(ctx, subjectID, func(current *models.Record) (*models.Record, error) {
		// stores may retry the mutation after a conflicting write
		changed = false
		next := current.Clone()
		if next == nil {
			next = models.NewRecord(subjectID, now)
			changed = true
		}
		before = scoring.Score(next)
		if facts.Apply(next, c, now) {
			changed = true
		}
		if !changed {
			return nil, nil
		}
		return next, nil
	})
	s.metrics.ObserveStoreLatency("update", time.Since(start))
	if err != nil {
		s.metrics.IncrementUpdate(string(c), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification record")
	}

	summary := scoring.Summarize(record)
	s.metrics.IncrementUpdate(string(c), "ok")
	s.metrics.ObserveUpdateLatency(time.Since(start))

	s.logger.InfoContext(ctx, "verification category updated",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID,
		"category", c,
		"changed", changed,
		"score_before", before,
		"score_after", summary.Score,
	)
	s.publish(ctx, subjectID, c, changed, before, summary)

	return record, nil
}

// Score returns the subject's trust score in [0,100].
func (s *Service) Score(ctx context.Context, subjectID id.SubjectID) (int, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	score := scoring.Score(record)
	s.metrics.ObserveScore(score)
	return score, nil
}

// Progress returns completed categories out of six.
func (s *Service) Progress(ctx context.Context, subjectID id.SubjectID) (models.Progress, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return models.Progress{}, err
	}
	return scoring.Progress(record), nil
}

// NextStep returns the recommended next verification, or nil when none remain.
func (s *Service) NextStep(ctx context.Context, subjectID id.SubjectID) (*models.Step, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return scoring.NextStep(record), nil
}

// Steps returns every outstanding step in recommendation order.
func (s *Service) Steps(ctx context.Context, subjectID id.SubjectID) ([]models.Step, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return scoring.Steps(record), nil
}

// IsFullyVerified reports whether every category meets its completion rule.
func (s *Service) IsFullyVerified(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return scoring.IsFullyVerified(record), nil
}

// Summary derives every value from a single snapshot.
func (s *Service) Summary(ctx context.Context, subjectID id.SubjectID) (*models.Summary, error) {
	record, err := s.GetRecord(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	summary := scoring.Summarize(record)
	s.metrics.ObserveScore(summary.Score)
	return summary, nil
}

// Scores returns trust scores for a batch of subjects. Unknown subjects score 0.
func (s *Service) Scores(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]int, error) {
	if len(subjectIDs) == 0 {
		return map[id.SubjectID]int{}, nil
	}
	if len(subjectIDs) > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation, "too many subject ids")
	}

	ctx, span := s.tracer.Start(ctx, "verification.Scores",
		trace.WithAttributes(attribute.Int("batch_size", len(subjectIDs))))
	defer span.End()

	unique := make([]id.SubjectID, 0, len(subjectIDs))
	seen := make(map[id.SubjectID]bool, len(subjectIDs))
	for _, sid := range subjectIDs {
		if !seen[sid] {
			seen[sid] = true
			unique = append(unique, sid)
		}
	}

	start := time.Now()
	records, err := s.store.FindMany(ctx, unique)
	s.metrics.ObserveStoreLatency("find_many", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch load failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification records")
	}

	scores := make(map[id.SubjectID]int, len(unique))
	for _, sid := range unique {
		scores[sid] = scoring.Score(records[sid])
	}
	return scores, nil
}

// publish emits a CategoryUpdated event. The update is already committed, so
// failures are logged and counted rather than returned.
func (s *Service) publish(ctx context.Context, subjectID id.SubjectID, c models.Category, changed bool, before int, summary *models.Summary) {
	if s.publisher == nil {
		return
	}
	event := models.CategoryUpdated{
		EventID:       id.NewEventID(),
		Type:          models.EventTypeCategoryUpdated,
		SubjectID:     subjectID,
		Category:      c,
		Changed:       changed,
		ScoreBefore:   before,
		ScoreAfter:    summary.Score,
		FullyVerified: summary.FullyVerified,
		OccurredAt:    requestcontext.Now(ctx).UTC(),
	}
	if summary.NextStep != nil {
		next := summary.NextStep.Category
		event.NextStep = &next
	}
	if caller, ok := requestcontext.CallerFrom(ctx); ok {
		event.UpdatedBy = caller.Name
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementPublishFailure()
		s.logger.ErrorContext(ctx, "failed to publish verification event",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", event.SubjectID,
			"category", c,
			"error", err,
		)
	}
}
