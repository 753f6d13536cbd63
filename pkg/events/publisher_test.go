package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/models"
)

func TestMarshalModelStatus_StampsTypeAndTimestamp(t *testing.T) {
	data := MarshalModelStatus(ModelStatusPayload{
		ModelID:  "llama-8b",
		Status:   models.StateFailed,
		Previous: models.StateStarting,
		Reason:   "startup_timeout",
	})
	require.NotNil(t, data)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, EventTypeModelStatus, frame["type"])
	assert.Equal(t, "llama-8b", frame["model_id"])
	assert.Equal(t, "failed", frame["status"])
	assert.Equal(t, "starting", frame["previous"])
	assert.Equal(t, "startup_timeout", frame["reason"])

	_, err := time.Parse(time.RFC3339Nano, frame["timestamp"].(string))
	assert.NoError(t, err)
}

func TestMarshalModelStatus_OmitsEmptyFields(t *testing.T) {
	data := MarshalModelStatus(ModelStatusPayload{
		ModelID: "llama-8b",
		Status:  models.StateStopped,
	})
	require.NotNil(t, data)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.NotContains(t, frame, "previous")
	assert.NotContains(t, frame, "reason")
	assert.NotContains(t, frame, "progress")
}

func TestMarshalModelStatus_IncludesProgress(t *testing.T) {
	data := MarshalModelStatus(ModelStatusPayload{
		ModelID: "llama-8b",
		Status:  models.StateStarting,
		Progress: &models.StartupProgress{
			ElapsedSeconds:  30,
			TimeoutSeconds:  600,
			HealthChecks:    6,
			ProgressPercent: 5,
		},
	})
	require.NotNil(t, data)

	var frame struct {
		Progress *models.StartupProgress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	require.NotNil(t, frame.Progress)
	assert.Equal(t, 6, frame.Progress.HealthChecks)
	assert.Equal(t, 5, frame.Progress.ProgressPercent)
}

func TestStatusPublisher_DeliversToSubscribers(t *testing.T) {
	manager, server := setupTestManager(t)
	pub := NewStatusPublisher(manager)

	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established
	subscribeTo(t, conn, ModelsChannel)

	require.Eventually(t, func() bool {
		return manager.subscriberCount(ModelsChannel) == 1
	}, time.Second, 10*time.Millisecond)

	pub.PublishModelStatus(ModelStatusPayload{
		ModelID:  "llama-8b",
		Status:   models.StateRunning,
		Previous: models.StateStarting,
	})

	msg := readJSON(t, conn)
	assert.Equal(t, EventTypeModelStatus, msg["type"])
	assert.Equal(t, "llama-8b", msg["model_id"])
	assert.Equal(t, "running", msg["status"])
}
