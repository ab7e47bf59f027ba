package conversation

import (
	"time"

	"github.com/pkg/errors"
)

var ErrSessionNotFound = errors.New("session not found")

// Collection holds the chat sessions, most recently created first, and
// tracks which one is active. It is not safe for concurrent use.
type Collection struct {
	sessions []*ChatSession
	activeID string
}

// NewCollection takes ownership of sessions. Sessions with a duplicate id
// are dropped, keeping the first occurrence. The first session becomes
// active.
func NewCollection(sessions []*ChatSession) *Collection {
	ret := &Collection{}
	seen := map[string]struct{}{}
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		if s.Messages == nil {
			s.Messages = []Message{}
		}
		ret.sessions = append(ret.sessions, s)
	}
	if len(ret.sessions) > 0 {
		ret.activeID = ret.sessions[0].ID
	}
	return ret
}

func (c *Collection) Len() int {
	return len(c.sessions)
}

// Sessions returns the live sessions in order. Callers must not keep them
// past the critical section they were obtained in.
func (c *Collection) Sessions() []*ChatSession {
	ret := make([]*ChatSession, len(c.sessions))
	copy(ret, c.sessions)
	return ret
}

// Snapshot returns deep copies of all sessions.
func (c *Collection) Snapshot() []*ChatSession {
	ret := make([]*ChatSession, len(c.sessions))
	for i, s := range c.sessions {
		ret[i] = s.Clone()
	}
	return ret
}

func (c *Collection) ActiveID() string {
	return c.activeID
}

func (c *Collection) Active() (*ChatSession, bool) {
	return c.Get(c.activeID)
}

func (c *Collection) Get(id string) (*ChatSession, bool) {
	if id == "" {
		return nil, false
	}
	for _, s := range c.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Create prepends a new empty session and makes it active.
func (c *Collection) Create(now time.Time) *ChatSession {
	s := NewChatSession(now)
	c.sessions = append([]*ChatSession{s}, c.sessions...)
	c.activeID = s.ID
	return s
}

func (c *Collection) Select(id string) error {
	if _, ok := c.Get(id); !ok {
		return errors.Wrap(ErrSessionNotFound, id)
	}
	c.activeID = id
	return nil
}

// Delete removes the session with the given id. When the active session is
// removed, the first remaining session becomes active, or a fresh session is
// created if none remain. The created session, if any, is returned.
func (c *Collection) Delete(id string, now time.Time) (*ChatSession, error) {
	pos := -1
	for i, s := range c.sessions {
		if s.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, errors.Wrap(ErrSessionNotFound, id)
	}

	remaining := make([]*ChatSession, 0, len(c.sessions)-1)
	remaining = append(remaining, c.sessions[:pos]...)
	remaining = append(remaining, c.sessions[pos+1:]...)
	c.sessions = remaining

	if c.activeID != id {
		return nil, nil
	}
	if len(c.sessions) > 0 {
		c.activeID = c.sessions[0].ID
		return nil, nil
	}
	return c.Create(now), nil
}
