package entities

import (
	"time"

	"github.com/google/uuid"
)

// Direction of an audited message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// AuditEntry is one logged message. Inbound entries are unique per
// ExternalID; outbound entries point at the inbound entry they answer.
type AuditEntry struct {
	ID          uuid.UUID  `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	ContactAddr string     `json:"contact"`
	Direction   Direction  `json:"direction"`
	Body        string     `json:"body"`
	Attachments []string   `json:"attachments,omitempty"`
	Intent      *string    `json:"intent,omitempty"`
	Processed   bool       `json:"processed"`
	Error       *string    `json:"error,omitempty"`
	ReplyTo     *uuid.UUID `json:"reply_to,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// AuditResult marks an inbound entry as processed.
type AuditResult struct {
	ID     uuid.UUID
	Intent string
	Error  string
}

// NewInboundEntry builds the first audit record for a delivery.
func NewInboundEntry(msg InboundMessage) AuditEntry {
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	return AuditEntry{
		ID:          uuid.New(),
		ExternalID:  msg.ExternalID,
		ContactAddr: msg.From,
		Direction:   DirectionInbound,
		Body:        msg.Content,
		Attachments: msg.Attachments,
		ReceivedAt:  received,
	}
}

// NewOutboundEntry builds the reply record paired with inbound.
func NewOutboundEntry(inbound AuditEntry, body string) AuditEntry {
	now := time.Now().UTC()
	replyTo := inbound.ID
	return AuditEntry{
		ID:          uuid.New(),
		ContactAddr: inbound.ContactAddr,
		Direction:   DirectionOutbound,
		Body:        body,
		Processed:   true,
		ReplyTo:     &replyTo,
		ReceivedAt:  now,
		ProcessedAt: &now,
	}
}

// DailyUsage counts audited messages for one UTC day.
type DailyUsage struct {
	Day      time.Time `json:"day"`
	Received int       `json:"received"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
}
