package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

const (
	DefaultTitle        = "New Chat"
	AttachmentOnlyTitle = "Image Analysis"
	titleLength         = 30
)

var (
	ErrDuplicateMessageID = errors.New("message id already present in session")
	ErrMessageNotFound    = errors.New("message not found in session")
)

// ChatSession is one conversation. Messages are append-only and stored in
// conversation order.
type ChatSession struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	// message id -> position in Messages
	index map[string]int
}

func NewChatSession(now time.Time) *ChatSession {
	return &ChatSession{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
	}
}

// DeriveTitle returns the title a session gets from its first message.
func DeriveTitle(text string) string {
	if text == "" {
		return AttachmentOnlyTitle
	}
	r := []rune(text)
	if len(r) <= titleLength {
		return text
	}
	return string(r[:titleLength]) + "..."
}

func (s *ChatSession) lookup() map[string]int {
	if s.index == nil || len(s.index) != len(s.Messages) {
		s.index = make(map[string]int, len(s.Messages))
		for i, m := range s.Messages {
			s.index[m.ID] = i
		}
	}
	return s.index
}

// Append adds messages at the end of the session. Either all of them are
// added or none is. The first message ever appended names the session.
func (s *ChatSession) Append(msgs ...Message) error {
	idx := s.lookup()
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := idx[m.ID]; ok {
			return errors.Wrap(ErrDuplicateMessageID, m.ID)
		}
		if _, ok := seen[m.ID]; ok {
			return errors.Wrap(ErrDuplicateMessageID, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if len(s.Messages) == 0 && len(msgs) > 0 {
		s.Title = DeriveTitle(msgs[0].Text)
	}
	for _, m := range msgs {
		idx[m.ID] = len(s.Messages)
		s.Messages = append(s.Messages, m)
	}
	return nil
}

func (s *ChatSession) MessageByID(id string) (Message, bool) {
	i, ok := s.lookup()[id]
	if !ok {
		return Message{}, false
	}
	return s.Messages[i], true
}

// ReplaceMessage substitutes the message with the given id by the result of
// f. The id is kept even if f changes it.
func (s *ChatSession) ReplaceMessage(id string, f func(Message) Message) (Message, error) {
	i, ok := s.lookup()[id]
	if !ok {
		return Message{}, errors.Wrap(ErrMessageNotFound, id)
	}
	next := f(s.Messages[i])
	next.ID = id
	s.Messages[i] = next
	return next, nil
}

// History returns the messages that precede the message with the given id,
// or every message when id is not found.
func (s *ChatSession) History(before string) []Message {
	n := len(s.Messages)
	if i, ok := s.lookup()[before]; ok {
		n = i
	}
	ret := make([]Message, n)
	copy(ret, s.Messages[:n])
	return ret
}

// StreamingCount returns how many messages are still streaming.
func (s *ChatSession) StreamingCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.IsStreaming {
			n++
		}
	}
	return n
}

func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	return clone.Clone(s).(*ChatSession)
}
