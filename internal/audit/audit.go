// Package audit emits lifecycle events for consent sessions onto Kafka so
// downstream systems can build an audit trail.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"zkconsent/internal/platform/kafka/producer"
)

// Event types published to the audit topic.
const (
	EventSessionCreated  = "session.created"
	EventSessionApproved = "session.approved"
	EventSessionRejected = "session.rejected"
	EventSessionRevoked  = "session.revoked"
	EventSessionExpired  = "session.expired"
	EventProofVerified   = "proof.verified"
	EventProofInvalid    = "proof.invalid"
	EventProofResubmit   = "proof.resubmitted"
	EventResigned        = "credential.resigned"
)

// Event is one audit record, keyed on the session so per-session ordering is
// preserved within a partition.
type Event struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	ProviderID string    `json:"providerId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type messageProducer interface {
	ProduceAsync(msg *producer.Message) error
}

// Publisher writes audit events. A nil Publisher discards everything, so
// callers never guard their emit sites.
type Publisher struct {
	producer messageProducer
	topic    string
	logger   *slog.Logger
}

// NewPublisher constructs an audit publisher for the given topic.
func NewPublisher(p messageProducer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: p, topic: topic, logger: logger}
}

// Emit publishes one event asynchronously. Audit delivery never blocks or
// fails a session operation.
func (p *Publisher) Emit(event Event) {
	if p == nil || p.producer == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("marshal audit event", "type", event.Type, "error", err)
		}
		return
	}
	if err := p.producer.ProduceAsync(&producer.Message{
		Topic: p.topic,
		Key:   []byte(event.SessionID),
		Value: value,
	}); err != nil && p.logger != nil {
		p.logger.Error("publish audit event", "type", event.Type, "error", err)
	}
}
