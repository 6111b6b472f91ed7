package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"trustscore/internal/verification/metrics"
	"trustscore/internal/verification/models"
	"trustscore/internal/verification/service/mocks"
	"trustscore/internal/verification/store"
	id "trustscore/pkg/domain"
	dErrors "trustscore/pkg/domain-errors"
	"trustscore/pkg/platform/sentinel"
	"trustscore/pkg/requestcontext"
)

// =============================================================================
// Verification Service Test Suite
// =============================================================================
// The service is exercised against the in-memory store so merge semantics run
// for real; the publisher is mocked to assert event content.

type VerificationServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockPublisher *mocks.MockPublisher
	store         *store.InMemory
	metrics       *metrics.Metrics
	service       *Service
	now           time.Time
	ctx           context.Context
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

func (s *VerificationServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockPublisher = mocks.NewMockPublisher(s.ctrl)
	s.store = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.mockPublisher),
		WithMetrics(s.metrics),
	)
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *VerificationServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func newSubject() id.SubjectID {
	return id.SubjectID(uuid.New())
}

func ptr[T any](v T) *T { return &v }

func (s *VerificationServiceSuite) expectPublishes(n int) {
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(n)
}

// =============================================================================
// Reads
// =============================================================================

func (s *VerificationServiceSuite) TestReadsOfUnknownSubject() {
	subject := newSubject()

	s.Run("record is all-default", func() {
		record, err := s.service.GetRecord(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(subject, record.SubjectID)
		s.False(record.Email.Verified)
		s.Zero(record.Skills.VerifiedCount)
		s.True(record.CreatedAt.IsZero())
	})

	s.Run("derivations use the default record", func() {
		score, err := s.service.Score(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(0, score)

		progress, err := s.service.Progress(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(models.Progress{Completed: 0, Total: 6}, progress)

		step, err := s.service.NextStep(s.ctx, subject)
		s.Require().NoError(err)
		s.Require().NotNil(step)
		s.Equal(models.CategoryIdentity, step.Category)

		steps, err := s.service.Steps(s.ctx, subject)
		s.Require().NoError(err)
		s.Len(steps, 6)

		full, err := s.service.IsFullyVerified(s.ctx, subject)
		s.Require().NoError(err)
		s.False(full)
	})

	s.Run("reads never create the record", func() {
		_, err := s.store.FindBySubject(s.ctx, subject)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *VerificationServiceSuite) TestStoreFailureOnReadIsInternal() {
	mockStore := mocks.NewMockStore(s.ctrl)
	svc := New(mockStore, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	subject := newSubject()

	mockStore.EXPECT().FindBySubject(gomock.Any(), subject).Return(nil, errors.New("connection reset"))

	_, err := svc.Score(s.ctx, subject)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// UpdateCategory
// =============================================================================

func (s *VerificationServiceSuite) TestUpdateCategoryCreatesSubject() {
	subject := newSubject()
	s.expectPublishes(1)

	record, err := s.service.UpdateCategory(s.ctx, subject, "email", models.Facts{
		Verified: ptr(true),
		Address:  ptr("ada@example.com"),
	})
	s.Require().NoError(err)

	s.True(record.Email.Verified)
	s.Equal("ada@example.com", record.Email.Address)
	s.Require().NotNil(record.Email.VerifiedAt)
	s.Equal(s.now, *record.Email.VerifiedAt)
	s.Equal(s.now, record.CreatedAt)
	s.Equal(s.now, record.UpdatedAt)

	score, err := s.service.Score(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal(15, score)
}

func (s *VerificationServiceSuite) TestUpdateCategoryIsIdempotent() {
	subject := newSubject()
	s.expectPublishes(2)
	facts := models.Facts{VerifiedCount: ptr(2), Total: ptr(4)}

	first, err := s.service.UpdateCategory(s.ctx, subject, "skills", facts)
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	second, err := s.service.UpdateCategory(later, subject, "skills", facts)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(s.now, second.UpdatedAt)
}

func (s *VerificationServiceSuite) TestUpdateCategoryRejectsInvalidInput() {
	subject := newSubject()

	tests := []struct {
		name     string
		category string
		facts    models.Facts
		sentinel error
	}{
		{
			name:     "unknown category",
			category: "hobbies",
			facts:    models.Facts{Verified: ptr(true)},
			sentinel: models.ErrInvalidCategory,
		},
		{
			name:     "field from another category",
			category: "email",
			facts:    models.Facts{Verified: ptr(true), Number: ptr("+14155550100")},
			sentinel: models.ErrInvalidFactShape,
		},
		{
			name:     "negative count",
			category: "skills",
			facts:    models.Facts{VerifiedCount: ptr(-1)},
			sentinel: models.ErrInvalidFactShape,
		},
		{
			name:     "malformed address",
			category: "email",
			facts:    models.Facts{Address: ptr("not-an-address")},
			sentinel: models.ErrInvalidFactShape,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.UpdateCategory(s.ctx, subject, tt.category, tt.facts)
			s.Require().Error(err)
			s.ErrorIs(err, tt.sentinel)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	// nothing was written, not even the auto-created record
	_, err := s.store.FindBySubject(s.ctx, subject)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *VerificationServiceSuite) TestStoreErrorsAreTranslated() {
	mockStore := mocks.NewMockStore(s.ctrl)
	svc := New(mockStore, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	subject := newSubject()

	s.Run("conflict", func() {
		mockStore.EXPECT().Update(gomock.Any(), subject, gomock.Any()).Return(nil, sentinel.ErrConflict)
		_, err := svc.UpdateCategory(s.ctx, subject, "phone", models.Facts{Verified: ptr(true)})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("other failures", func() {
		mockStore.EXPECT().Update(gomock.Any(), subject, gomock.Any()).Return(nil, errors.New("disk full"))
		_, err := svc.UpdateCategory(s.ctx, subject, "phone", models.Facts{Verified: ptr(true)})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *VerificationServiceSuite) TestUpdateCategorySpans() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s.T().Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mockStore := mocks.NewMockStore(s.ctrl)
	svc := New(mockStore,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTracer(tp.Tracer("trustscore/verification")),
	)
	subject := newSubject()

	spanNamed := func(name string) sdktrace.ReadOnlySpan {
		ended := recorder.Ended()
		for i := len(ended) - 1; i >= 0; i-- {
			if ended[i].Name() == name {
				return ended[i]
			}
		}
		s.Require().FailNow("span not recorded", name)
		return nil
	}

	s.Run("store failure marks the span as error", func() {
		mockStore.EXPECT().Update(gomock.Any(), subject, gomock.Any()).Return(nil, errors.New("disk full"))
		_, err := svc.UpdateCategory(s.ctx, subject, "phone", models.Facts{Verified: ptr(true)})
		s.Require().Error(err)

		span := spanNamed("verification.UpdateCategory")
		s.Equal(codes.Error, span.Status().Code)
		s.Contains(span.Attributes(), attribute.String("subject_id", subject.String()))
		s.Contains(span.Attributes(), attribute.String("category", "phone"))
		s.NotEmpty(span.Events(), "error should be recorded as a span event")
	})

	s.Run("successful update leaves status unset", func() {
		mockStore.EXPECT().Update(gomock.Any(), subject, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.SubjectID, mutate models.Mutation) (*models.Record, error) {
				return mutate(nil)
			})
		_, err := svc.UpdateCategory(s.ctx, subject, "phone", models.Facts{Verified: ptr(true)})
		s.Require().NoError(err)

		span := spanNamed("verification.UpdateCategory")
		s.Equal(codes.Unset, span.Status().Code)
	})

	s.Run("reads nest under the caller's span", func() {
		mockStore.EXPECT().FindBySubject(gomock.Any(), subject).Return(nil, sentinel.ErrNotFound)
		ctx, parent := tp.Tracer("test").Start(s.ctx, "http.request")
		_, err := svc.Score(ctx, subject)
		parent.End()
		s.Require().NoError(err)

		span := spanNamed("verification.GetRecord")
		s.Equal(parent.SpanContext().TraceID(), span.SpanContext().TraceID())
		s.Equal(parent.SpanContext().SpanID(), span.Parent().SpanID())
	})
}

func (s *VerificationServiceSuite) TestConcurrentUpdatesToOneSubjectAllLand() {
	svc := New(s.store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	subject := newSubject()

	updates := []struct {
		category string
		facts    models.Facts
	}{
		{"email", models.Facts{Verified: ptr(true)}},
		{"phone", models.Facts{Verified: ptr(true)}},
		{"identity", models.Facts{Verified: ptr(true), DocumentType: ptr("passport")}},
		{"education", models.Facts{Verified: ptr(true), InstitutionCount: ptr(2)}},
		{"employment", models.Facts{Verified: ptr(true), CompanyCount: ptr(3)}},
		{"skills", models.Facts{VerifiedCount: ptr(5), Total: ptr(5)}},
	}

	var wg sync.WaitGroup
	for range 10 {
		for _, u := range updates {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.UpdateCategory(s.ctx, subject, u.category, u.facts)
				s.NoError(err)
			}()
		}
	}
	wg.Wait()

	summary, err := svc.Summary(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal(100, summary.Score)
	s.True(summary.FullyVerified)
	s.Nil(summary.NextStep)
	s.Equal(6, summary.Progress.Completed)
}

// =============================================================================
// Events
// =============================================================================

func (s *VerificationServiceSuite) TestUpdatePublishesCategoryUpdated() {
	subject := newSubject()
	ctx := requestcontext.WithCaller(s.ctx, requestcontext.Caller{Name: "kyc-provider"})

	var events []models.CategoryUpdated
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e models.CategoryUpdated) error {
			events = append(events, e)
			return nil
		}).Times(3)

	_, err := s.service.UpdateCategory(ctx, subject, "email", models.Facts{Verified: ptr(true)})
	s.Require().NoError(err)
	_, err = s.service.UpdateCategory(ctx, subject, "identity", models.Facts{Verified: ptr(true)})
	s.Require().NoError(err)
	_, err = s.service.UpdateCategory(ctx, subject, "identity", models.Facts{Verified: ptr(true)})
	s.Require().NoError(err)

	s.Require().Len(events, 3)

	first := events[0]
	s.Equal(models.EventTypeCategoryUpdated, first.Type)
	s.Equal(subject, first.SubjectID)
	s.Equal(models.CategoryEmail, first.Category)
	s.True(first.Changed)
	s.Equal(0, first.ScoreBefore)
	s.Equal(15, first.ScoreAfter)
	s.Equal("kyc-provider", first.UpdatedBy)
	s.Equal(s.now, first.OccurredAt)
	s.Require().NotNil(first.NextStep)
	s.Equal(models.CategoryIdentity, *first.NextStep)

	second := events[1]
	s.Equal(15, second.ScoreBefore)
	s.Equal(40, second.ScoreAfter)
	s.Require().NotNil(second.NextStep)
	s.Equal(models.CategoryPhone, *second.NextStep)

	repeat := events[2]
	s.False(repeat.Changed)
	s.Equal(40, repeat.ScoreBefore)
	s.Equal(40, repeat.ScoreAfter)
	s.NotEqual(second.EventID, repeat.EventID)
}

func (s *VerificationServiceSuite) TestPublishFailureDoesNotFailUpdate() {
	subject := newSubject()
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))

	record, err := s.service.UpdateCategory(s.ctx, subject, "phone", models.Facts{Verified: ptr(true)})
	s.Require().NoError(err)
	s.True(record.Phone.Verified)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PublishFailures))

	stored, err := s.store.FindBySubject(s.ctx, subject)
	s.Require().NoError(err)
	s.True(stored.Phone.Verified)
}

// =============================================================================
// Batch scores
// =============================================================================

func (s *VerificationServiceSuite) TestScores() {
	known := newSubject()
	unknown := newSubject()
	s.expectPublishes(1)
	_, err := s.service.UpdateCategory(s.ctx, known, "identity", models.Facts{Verified: ptr(true)})
	s.Require().NoError(err)

	s.Run("known, unknown and duplicate ids", func() {
		scores, err := s.service.Scores(s.ctx, []id.SubjectID{known, unknown, known})
		s.Require().NoError(err)
		s.Equal(map[id.SubjectID]int{known: 25, unknown: 0}, scores)
	})

	s.Run("empty batch", func() {
		scores, err := s.service.Scores(s.ctx, nil)
		s.Require().NoError(err)
		s.Empty(scores)
	})

	s.Run("batch over limit", func() {
		ids := make([]id.SubjectID, MaxBatchSize+1)
		for i := range ids {
			ids[i] = newSubject()
		}
		_, err := s.service.Scores(s.ctx, ids)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
