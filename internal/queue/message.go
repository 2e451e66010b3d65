package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message type tags used for routing and debugging. They are not enforced
// at read time; consumers decode the payload they expect.
const (
	TypeOrderEvent       = "OrderEvent"
	TypeFulfillmentEvent = "FulfillmentEvent"
)

// Envelope wraps every queued event with identity, ordering and trace
// metadata. An envelope is immutable after enqueue; the directory its
// serialized form lives in is its delivery state.
type Envelope struct {
	MessageID   string          `json:"messageId"`
	MessageType string          `json:"messageType"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	TraceParent string          `json:"traceParent,omitempty"`
	TraceState  string          `json:"traceState,omitempty"`
}

// NewEnvelope wraps payload in an envelope with a fresh message id.
func NewEnvelope(messageType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", messageType, err)
	}
	return &Envelope{
		MessageID:   uuid.NewString(),
		MessageType: messageType,
		Payload:     raw,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.MessageType, err)
	}
	return nil
}

// FileName derives the on-disk name for the envelope. Timestamp-first so a
// lexical directory listing approximates FIFO order.
func (e *Envelope) FileName() string {
	ts := e.EnqueuedAt.UTC()
	return fmt.Sprintf("%s%03d_%s.json", ts.Format("20060102150405"), ts.Nanosecond()/int(time.Millisecond), e.MessageID)
}

// OrderEvent is published by the order API when an order is created.
type OrderEvent struct {
	OrderNumber   string    `json:"orderNumber"`
	EventType     string    `json:"eventType"`
	OrderID       int64     `json:"orderId"`
	CustomerEmail string    `json:"customerEmail"`
	CustomerName  string    `json:"customerName"`
	TotalCents    int64     `json:"totalCents"`
	Timestamp     time.Time `json:"timestamp"`
}

// FulfillmentEvent is published by the saga worker once an order reaches a
// terminal status.
type FulfillmentEvent struct {
	OrderNumber   string    `json:"orderNumber"`
	OrderID       int64     `json:"orderId"`
	CustomerEmail string    `json:"customerEmail"`
	CustomerName  string    `json:"customerName"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
