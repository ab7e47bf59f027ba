package session

import (
	"context"
	"sync"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackendNil     = errors.New("backend is nil")
	ErrSessionIDEmpty = errors.New("session id is empty")
)

// HandleCache keeps the backend handle of the most recently used session.
//
// It holds at most one handle. Asking for the cached session returns the
// handle unchanged, so the backend keeps its own incremental context. Asking
// for any other session discards the cached handle and builds a new one by
// replaying the stored history.
type HandleCache struct {
	backend engine.Backend

	mu        sync.Mutex
	sessionID string
	handle    engine.Chat
}

func NewHandleCache(backend engine.Backend) *HandleCache {
	return &HandleCache{backend: backend}
}

// GetOrCreate returns the handle for sessionID. history is only used when a
// new handle has to be built; it must not contain the turn about to be sent.
func (c *HandleCache) GetOrCreate(ctx context.Context, sessionID string, history []conversation.Message) (engine.Chat, error) {
	if c.backend == nil {
		return nil, ErrBackendNil
	}
	if sessionID == "" {
		return nil, ErrSessionIDEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil && c.sessionID == sessionID {
		log.Trace().Str("session_id", sessionID).Msg("Reusing cached backend handle")
		return c.handle, nil
	}

	// the old handle is gone even if rebuilding fails
	c.handle = nil
	c.sessionID = ""

	contents, err := engine.ContentsFromMessages(history)
	if err != nil {
		return nil, errors.Wrapf(err, "could not replay history of session %s", sessionID)
	}
	h, err := c.backend.StartChat(ctx, contents)
	if err != nil {
		return nil, errors.Wrapf(err, "could not start backend chat for session %s", sessionID)
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("history_messages", len(contents)).
		Msg("Built backend handle")

	c.handle = h
	c.sessionID = sessionID
	return h, nil
}

// Invalidate drops the cached handle if it belongs to sessionID.
func (c *HandleCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sessionID {
		c.handle = nil
		c.sessionID = ""
	}
}

// CachedSessionID returns the id of the session whose handle is cached, or "".
func (c *HandleCache) CachedSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}
