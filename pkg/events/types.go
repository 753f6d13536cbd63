// Package events provides real-time model status delivery to dashboard
// clients over WebSocket.
//
// Every lifecycle transition publishes a model.status frame to the
// "models" channel. Subscribing to that channel first delivers one frame
// per managed model (its current state), then live transitions as they
// happen, so clients never need a REST poll to seed their view.
package events

// Event types delivered to WebSocket clients.
const (
	EventTypeModelStatus = "model.status"
)

// ModelsChannel is the channel carrying model.status events.
// The dashboard subscribes to this for real-time updates.
const ModelsChannel = "models"

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // Channel name (e.g., "models")
}
