package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trustscore/internal/verification/models"
	id "trustscore/pkg/domain"
	"trustscore/pkg/platform/sentinel"
)

const (
	// Redis key prefix for verification records
	recordKeyPrefix = "verification:record:"

	defaultMaxRetries = 5
)

// RedisStore keeps one JSON document per subject. Updates use WATCH/MULTI
// optimistic transactions so concurrent writers on other instances cannot
// lose each other's merges.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithMaxRetries bounds optimistic transaction retries.
func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewRedis constructs a Redis-backed record store. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func recordKey(subjectID id.SubjectID) string {
	return recordKeyPrefix + subjectID.String()
}

func (s *RedisStore) FindBySubject(ctx context.Context, subjectID id.SubjectID) (*models.Record, error) {
	data, err := s.client.Get(ctx, recordKey(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification record: %w", err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) FindMany(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]*models.Record, error) {
	out := make(map[id.SubjectID]*models.Record, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(subjectIDs))
	for i, sid := range subjectIDs {
		keys[i] = recordKey(sid)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget verification records: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		record, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[subjectIDs[i]] = record
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, subjectID id.SubjectID, mutate models.Mutation) (*models.Record, error) {
	key := recordKey(subjectID)
	var result *models.Record

	txf := func(tx *redis.Tx) error {
		var current *models.Record
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get verification record: %w", err)
		default:
			if current, err = decodeRecord(data); err != nil {
				return err
			}
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode verification record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update %s after %d attempts: %w", key, s.maxRetries, sentinel.ErrConflict)
}

func decodeRecord(data []byte) (*models.Record, error) {
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode verification record: %w", err)
	}
	return &record, nil
}
