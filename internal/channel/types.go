// Package channel provides a unified abstraction for the messaging gateways
// the bot listens on. It defines message types, adapter interfaces, a
// registry and a manager that owns the live connections.
package channel

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "discord", "telegram").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
	IsBot       bool
	Attributes  map[string]string
}

// Attribute returns the trimmed value for the given key, or empty string if absent.
func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// Conversation holds metadata about the chat or group context.
type Conversation struct {
	ID   string
	Type string
	Name string
}

// InboundMessage is a message received from an external channel.
type InboundMessage struct {
	Channel      ChannelType
	ID           string
	Text         string
	ReplyTarget  string
	Sender       Identity
	Conversation Conversation
	ReceivedAt   time.Time
}

// UserKey identifies the sender across channels, e.g. "discord:1234".
// History is stored under this key.
func (m InboundMessage) UserKey() string {
	subject := strings.TrimSpace(m.Sender.SubjectID)
	if subject == "" {
		subject = strings.TrimSpace(m.Sender.DisplayName)
	}
	return m.Channel.String() + ":" + subject
}

// ReplyRef points at the message a reply answers.
type ReplyRef struct {
	MessageID string
}

// Attachment is a local file sent alongside a message.
type Attachment struct {
	Name        string
	Path        string
	ContentType string
}

// OutboundMessage pairs a delivery target with the message content.
type OutboundMessage struct {
	Target      string
	Text        string
	Reply       *ReplyRef
	Attachments []Attachment
}

// IsEmpty reports whether the message carries neither text nor files.
func (m OutboundMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

const summaryLength = 120

// SummarizeText shortens text for log lines.
func SummarizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= summaryLength {
		return text
	}
	return string(runes[:summaryLength]) + "..."
}
