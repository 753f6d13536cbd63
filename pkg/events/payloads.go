package events

import (
	"github.com/inferlab/modelmgr/pkg/models"
)

// ModelStatusPayload is the payload for model.status events.
// Published on every lifecycle state transition and, with Previous empty,
// as the per-model catchup frame sent on subscribe.
type ModelStatusPayload struct {
	Type      string                  `json:"type"`               // always EventTypeModelStatus
	ModelID   string                  `json:"model_id"`           // catalog model id
	Status    models.State            `json:"status"`             // stopped, starting, running, stopping, failed
	Previous  models.State            `json:"previous,omitempty"` // state before the transition
	Reason    string                  `json:"reason,omitempty"`   // failure reason when Status is failed
	Progress  *models.StartupProgress `json:"progress,omitempty"` // present while starting
	Timestamp string                  `json:"timestamp"`          // RFC3339Nano
}
