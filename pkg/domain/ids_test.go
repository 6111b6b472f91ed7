package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trustscore/pkg/domain-errors"
)

// TestParseSubjectID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseSubjectID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSubjectID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubjectID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSubjectID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseSubjectID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, SubjectID(valid), id)
		assert.False(t, id.IsNil())
	})
}

func TestSubjectID_JSON(t *testing.T) {
	id := SubjectID(uuid.New())

	raw, err := json.Marshal(map[string]SubjectID{"subject_id": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject_id":"`+id.String()+`"}`, string(raw))

	var decoded struct {
		SubjectID SubjectID `json:"subject_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded.SubjectID)

	err = json.Unmarshal([]byte(`{"subject_id":"bogus"}`), &decoded)
	assert.Error(t, err)
}

func TestEventID_TextRoundTrip(t *testing.T) {
	eventID := NewEventID()

	raw, err := json.Marshal(struct {
		EventID EventID `json:"event_id"`
	}{eventID})
	require.NoError(t, err)

	var decoded struct {
		EventID EventID `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, eventID, decoded.EventID)
}
