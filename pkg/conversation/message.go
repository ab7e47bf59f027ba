package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleModel
}

// Message is a single entry in a chat session. User messages are created fully
// formed. Model messages start out as an empty streaming placeholder and are
// replaced by the controller until they settle.
type Message struct {
	ID                string             `json:"id" yaml:"id"`
	Role              Role               `json:"role" yaml:"role"`
	Text              string             `json:"text" yaml:"text"`
	Attachments       []Attachment       `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty" yaml:"groundingMetadata,omitempty"`
	Timestamp         time.Time          `json:"timestamp" yaml:"timestamp"`
	IsStreaming       bool               `json:"isStreaming,omitempty" yaml:"isStreaming,omitempty"`
}

type MessageOption func(*Message)

func WithID(id string) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

func WithAttachments(attachments ...Attachment) MessageOption {
	return func(m *Message) {
		m.Attachments = CopyAttachments(attachments)
	}
}

func WithGroundingMetadata(md *GroundingMetadata) MessageOption {
	return func(m *Message) {
		m.GroundingMetadata = md.Clone()
	}
}

func NewMessage(role Role, text string, options ...MessageOption) Message {
	ret := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
	for _, o := range options {
		o(&ret)
	}
	return ret
}

func NewUserMessage(text string, attachments []Attachment, options ...MessageOption) Message {
	options = append([]MessageOption{WithAttachments(attachments...)}, options...)
	return NewMessage(RoleUser, text, options...)
}

// NewPlaceholder creates the empty, streaming model message a turn starts with.
func NewPlaceholder(options ...MessageOption) Message {
	ret := NewMessage(RoleModel, "", options...)
	ret.IsStreaming = true
	return ret
}

// HasContent reports whether the message would produce any backend part.
func (m Message) HasContent() bool {
	return m.Text != "" || len(m.Attachments) > 0
}

func (m Message) Clone() Message {
	return clone.Clone(m).(Message)
}
