package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NotificationPayload is the data carried by user/operator notification
// events. Either ChatID (direct user delivery) or Operator (broadcast to the
// configured operator chats) is set.
type NotificationPayload struct {
	ChatID   int64  `json:"chatId,omitempty"`
	Operator bool   `json:"operator,omitempty"`
	Text     string `json:"text"`
	// Telegram message ids to delete in the chat before sending, used to
	// clean up "processing..." placeholders.
	DeleteMessageIDs []int64 `json:"deleteMessageIds,omitempty"`
}
