package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Exchange names. Each is a durable topic exchange; routing keys select the
// event kind within the stream.
const (
	ExchangeOrders     = "orders"
	ExchangeDeliveries = "deliveries"
	ExchangeInventory  = "inventory"
)

// Routing keys.
const (
	KeyOrderCreated    = "created"
	KeyOrderPaid       = "paid"
	KeyOrderCancelled  = "cancelled"
	KeyDeliveryCreated = "created"
	KeyDeliveryUpdated = "updated"
	KeyInventoryUpdate = "updated"
)

// MaxAttempts bounds redelivery before a message is dropped to the dead
// letter stream.
const MaxAttempts = 3

// Envelope is the wire frame for every published event.
type Envelope struct {
	MessageID string          `json:"message_id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Retries   int             `json:"retries"`
	Payload   json.RawMessage `json:"payload"`
	Meta      map[string]any  `json:"meta,omitempty"`
}

// NewEnvelope frames a payload under a fresh message ID.
func NewEnvelope(eventType string, payload any, now time.Time) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Envelope{
		MessageID: uuid.NewString(),
		Type:      eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Retries:   0,
		Payload:   body,
	}, nil
}

// Encode serialises the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope parses a transported frame.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("events: unmarshal envelope: %w", err)
	}
	if envelope.MessageID == "" || envelope.Type == "" {
		return Envelope{}, fmt.Errorf("events: envelope missing identity")
	}
	return envelope, nil
}
