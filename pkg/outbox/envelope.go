package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActorRef identifies who produced the event. Subject is the token subject
// issued by the auth service.
type ActorRef struct {
	Subject string `json:"subject"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and checks the fields every consumer
// relies on.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return PayloadEnvelope{}, fmt.Errorf("envelope missing eventId")
	}
	if len(env.Data) == 0 {
		return PayloadEnvelope{}, fmt.Errorf("envelope missing data")
	}
	return env, nil
}
