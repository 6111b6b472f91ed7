package events

import (
	"context"
	"errors"
	"log/slog"

	"trustscore/internal/verification/models"
	"trustscore/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the broker is considered down.
var ErrCircuitOpen = errors.New("event publisher circuit open")

// Publisher is implemented by KafkaPublisher.
type Publisher interface {
	Publish(ctx context.Context, event models.CategoryUpdated) error
}

// BreakerPublisher stops calling a failing broker so updates are not slowed
// by delivery timeouts. Rejected events are dropped and reported as errors.
type BreakerPublisher struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewBreakerPublisher(next Publisher, breaker *circuit.Breaker, logger *slog.Logger) *BreakerPublisher {
	return &BreakerPublisher{next: next, breaker: breaker, logger: logger}
}

func (p *BreakerPublisher) Publish(ctx context.Context, event models.CategoryUpdated) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	if err := p.next.Publish(ctx, event); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "event publisher circuit opened",
				"breaker", p.breaker.Name(),
				"error", err,
			)
		}
		return err
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "event publisher circuit closed",
			"breaker", p.breaker.Name(),
		)
	}
	return nil
}
