package engine

import (
	"context"
	"iter"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
)

// Backend creates conversation handles. A handle carries the backend-side
// context of one conversation, so that each turn only sends its own parts.
type Backend interface {
	// StartChat builds a new handle seeded with history. The system
	// instruction and tools are configured here, once per handle.
	StartChat(ctx context.Context, history []Content) (Chat, error)
}

// Chat is a live conversation handle.
type Chat interface {
	// SendMessageStream issues one turn and yields response fragments in
	// arrival order. The sequence is finite and can only be ranged over once.
	// An error ends the sequence.
	SendMessageStream(ctx context.Context, parts []Part) iter.Seq2[Fragment, error]
}

// Fragment is one incremental unit of a streamed response.
type Fragment struct {
	TextDelta         string                          `json:"textDelta"`
	GroundingMetadata *conversation.GroundingMetadata `json:"groundingMetadata,omitempty"`
}
