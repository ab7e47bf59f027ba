// Package store persists the chat session collection as a single snapshot.
//
// Every backend stores the whole ordered collection under one key and
// overwrites it wholesale on each save. There is no incremental persistence.
package store

import (
	"context"
	"encoding/json"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
)

// DefaultKey is the key the collection is stored under.
const DefaultKey = "gemini_clone_sessions"

// ErrCorruptState is returned by Load when stored state exists but cannot
// be decoded. Callers treat it like an empty store.
var ErrCorruptState = errors.New("stored sessions could not be decoded")

type SessionStore interface {
	// Load returns the stored sessions in order, or nil when nothing was
	// stored yet.
	Load(ctx context.Context) ([]*conversation.ChatSession, error)
	// SaveAll replaces the stored collection with sessions.
	SaveAll(ctx context.Context, sessions []*conversation.ChatSession) error
}

// Encode serializes sessions as a JSON array.
func Encode(sessions []*conversation.ChatSession) ([]byte, error) {
	if sessions == nil {
		sessions = []*conversation.ChatSession{}
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode sessions")
	}
	return b, nil
}

// Decode parses a JSON array of sessions. An empty blob decodes to nil.
func Decode(b []byte) ([]*conversation.ChatSession, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var sessions []*conversation.ChatSession
	if err := json.Unmarshal(b, &sessions); err != nil {
		return nil, errors.Wrap(ErrCorruptState, err.Error())
	}
	for i, s := range sessions {
		if s == nil || s.ID == "" {
			return nil, errors.Wrapf(ErrCorruptState, "session %d has no id", i)
		}
		if s.Messages == nil {
			s.Messages = []conversation.Message{}
		}
	}
	return sessions, nil
}
