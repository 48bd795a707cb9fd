package entities

import "time"

// InboundMessage is one externally delivered message event. It is immutable
// once received.
type InboundMessage struct {
	ExternalID  string // idempotency key assigned by the transport
	From        string // sender address, e.g. "+6281234567890"
	DisplayName string
	Content     string
	Attachments []string // attachment URLs or transport file references
	Platform    string   // e.g. "whatsapp", "telegram"
	ReceivedAt  time.Time
}

// HasAttachment reports whether the message carries at least one attachment.
func (m InboundMessage) HasAttachment() bool {
	return len(m.Attachments) > 0
}

// Response is the single text reply produced for an inbound message.
type Response struct {
	Content  string
	Choices  []string // optional structured choices (project types during onboarding)
	Replayed bool     // true when served from the audit log for a redelivery
}

// Empty reports whether no reply needs to be sent.
func (r Response) Empty() bool {
	return r.Content == ""
}
