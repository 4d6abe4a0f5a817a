package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies the user whose action produced the event.
type ActorRef struct {
	UserID     uuid.UUID `json:"userId"`
	TelegramID int64     `json:"telegramId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// EventUUID parses the envelope event id.
func (p PayloadEnvelope) EventUUID() (uuid.UUID, error) {
	return uuid.Parse(p.EventID)
}
