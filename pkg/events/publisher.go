package events

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Publisher broadcasts model status transitions to subscribed clients.
// Delivery is best-effort: a slow or dead client costs at most the
// write timeout and never fails the transition that published.
type Publisher interface {
	PublishModelStatus(payload ModelStatusPayload)
}

// StatusPublisher delivers model.status events to WebSocket subscribers
// through the ConnectionManager.
type StatusPublisher struct {
	manager *ConnectionManager
}

// NewStatusPublisher creates a publisher bound to a ConnectionManager.
func NewStatusPublisher(manager *ConnectionManager) *StatusPublisher {
	return &StatusPublisher{manager: manager}
}

// PublishModelStatus implements Publisher. Type and timestamp are
// stamped here so callers only fill the domain fields.
func (p *StatusPublisher) PublishModelStatus(payload ModelStatusPayload) {
	if data := MarshalModelStatus(payload); data != nil {
		p.manager.Broadcast(ModelsChannel, data)
	}
}

// MarshalModelStatus stamps type and timestamp and marshals the payload
// into a wire frame. Also used to build subscribe catchup snapshots.
func MarshalModelStatus(payload ModelStatusPayload) []byte {
	payload.Type = EventTypeModelStatus
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal model status event",
			"model_id", payload.ModelID, "error", err)
		return nil
	}
	return data
}
