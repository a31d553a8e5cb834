// Package message defines the canonical message record every inbound
// event is normalized into, regardless of which source produced it.
package message

import "time"

// User identifies the originating user of a message.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Bot      bool   `json:"bot,omitempty"`
}

// Message is the canonical unit the router, policy engine, and
// dispatcher operate on. ID and Source together are unique per
// delivery; Metadata keys are informally namespaced by source.
type Message struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Channel   string            `json:"channel"`
	User      User              `json:"user"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ThreadID  string            `json:"thread_id,omitempty"`
	ReplyTo   string            `json:"reply_to,omitempty"`
}

// DeliveryKey returns the de-duplication key for this delivery.
func (m *Message) DeliveryKey() string {
	return m.Source + ":" + m.ID
}

// DisplayFields is the minimal projection of a message used for
// human-facing output. Normalizing a payload and projecting it must be
// lossless for these five fields.
type DisplayFields struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Channel string `json:"channel"`
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
}

// Display returns the minimal display projection of the message.
func (m *Message) Display() DisplayFields {
	return DisplayFields{
		ID:      m.ID,
		Source:  m.Source,
		Channel: m.Channel,
		UserID:  m.User.ID,
		Text:    m.Text,
	}
}

// Meta returns the metadata value for key, or an empty string.
func (m *Message) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// SetMeta stores a metadata value, allocating the map on first use.
func (m *Message) SetMeta(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}
