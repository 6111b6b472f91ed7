package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"trustscore/internal/verification/models"
	id "trustscore/pkg/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func newEvent() models.CategoryUpdated {
	next := models.CategoryPhone
	return models.CategoryUpdated{
		EventID:     id.NewEventID(),
		Type:        models.EventTypeCategoryUpdated,
		SubjectID:   id.SubjectID(uuid.New()),
		Category:    models.CategoryEmail,
		Changed:     true,
		ScoreBefore: 0,
		ScoreAfter:  15,
		NextStep:    &next,
		OccurredAt:  time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewKafkaPublisher(producer, "verification.events")
	event := newEvent()

	require.NoError(t, pub.Publish(context.Background(), event))
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "verification.events", rec.Topic)
	assert.Equal(t, event.SubjectID.String(), string(rec.Key))
	assert.Equal(t, event.OccurredAt, rec.Timestamp)
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, models.EventTypeCategoryUpdated, string(rec.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "email", decoded["category"])
	assert.Equal(t, "phone", decoded["next_step"])
	assert.EqualValues(t, 15, decoded["score_after"])
	assert.Equal(t, event.SubjectID.String(), decoded["subject_id"])
}

func TestKafkaPublisher_PropagatesBrokerErrors(t *testing.T) {
	producer := &fakeProducer{err: errors.New("not leader for partition")}
	pub := NewKafkaPublisher(producer, "verification.events")

	err := pub.Publish(context.Background(), newEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not leader for partition")
}
