package store

import (
	"context"
	"sync"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
)

// MemoryStore keeps the encoded collection in memory. Saves still go through
// Encode so that it behaves like the durable backends.
type MemoryStore struct {
	mu    sync.Mutex
	blob  []byte
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) ([]*conversation.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Decode(m.blob)
}

func (m *MemoryStore) SaveAll(ctx context.Context, sessions []*conversation.ChatSession) error {
	b, err := Encode(sessions)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = b
	m.saves++
	return nil
}

// Saves returns how many times SaveAll succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetRaw replaces the stored blob, bypassing Encode.
func (m *MemoryStore) SetRaw(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = append([]byte(nil), b...)
}

var _ SessionStore = (*MemoryStore)(nil)
