package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(10))
	assert.Equal(t, time.Second, BackoffConfig{}.CalculateBackoff(0))
}

func TestDecodeMessage(t *testing.T) {
	msg, err := NewMessage("evt-1", MessageTypeUsageRecorded, "user-1", "conv-1", UsageEventMessage{
		EventID:     "evt-1",
		UserID:      "user-1",
		InputTokens: 12,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, ok := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(raw)}})
	require.True(t, ok)
	assert.Equal(t, "user-1", decoded.UserID)
	assert.Equal(t, "conv-1", decoded.ConversationID)

	var payload UsageEventMessage
	require.NoError(t, decoded.UnmarshalPayload(&payload))
	assert.Equal(t, 12, payload.InputTokens)

	_, ok = decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": 42}})
	assert.False(t, ok)
	_, ok = decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.False(t, ok)
}

func TestDLQStreamName(t *testing.T) {
	assert.Equal(t, "dlq:stream:usage:events", StreamUsageEvents.DLQStream())
}
