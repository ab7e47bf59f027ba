package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart to EventTypeError follow one turn through its lifecycle
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"

	// Session list changes (create, select, delete, load)
	EventTypeSessionsChanged EventType = "sessions-changed"

	// Informational events emitted by backends
	EventTypeInfo EventType = "info"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson), not further used
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

// EventMetadata is passed along with every watermill message.
type EventMetadata struct {
	ID        uuid.UUID `json:"message_id" yaml:"message_id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	TurnID    string    `json:"turn_id,omitempty" yaml:"turn_id,omitempty"`
	// id of the model message the turn streams into
	MessageID string    `json:"chat_message_id,omitempty" yaml:"chat_message_id,omitempty"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	Time      time.Time `json:"time" yaml:"time"`
}

func NewEventMetadata(sessionID, turnID, messageID string) EventMetadata {
	return EventMetadata{
		ID:        uuid.New(),
		SessionID: sessionID,
		TurnID:    turnID,
		MessageID: messageID,
		Time:      time.Now(),
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.TurnID != "" {
		e.Str("turn_id", em.TurnID)
	}
	if em.MessageID != "" {
		e.Str("chat_message_id", em.MessageID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}

// EventTurnStart is published once the user message and the streaming
// placeholder have been appended.
type EventTurnStart struct {
	EventImpl
	Title       string               `json:"title"`
	UserMessage conversation.Message `json:"user_message"`
	Placeholder conversation.Message `json:"placeholder"`
}

func NewStartEvent(metadata EventMetadata, title string, user, placeholder conversation.Message) *EventTurnStart {
	return &EventTurnStart{
		EventImpl: EventImpl{
			Type_:     EventTypeStart,
			Metadata_: metadata,
		},
		Title:       title,
		UserMessage: user,
		Placeholder: placeholder,
	}
}

var _ Event = &EventTurnStart{}

// EventPartialCompletion carries the placeholder after folding one more fragment.
type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// This is the complete text so far
	Completion string               `json:"completion"`
	Message    conversation.Message `json:"message"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string, msg conversation.Message) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl: EventImpl{
			Type_:     EventTypePartialCompletion,
			Metadata_: metadata,
		},
		Delta:      delta,
		Completion: completion,
		Message:    msg,
	}
}

var _ Event = &EventPartialCompletion{}

// EventFinal is published when a turn settled successfully.
type EventFinal struct {
	EventImpl
	Text    string               `json:"text"`
	Message conversation.Message `json:"message"`
}

func NewFinalEvent(metadata EventMetadata, msg conversation.Message) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		Text:    msg.Text,
		Message: msg,
	}
}

var _ Event = &EventFinal{}

// EventError is published when a turn settled as a failure. Message holds
// the settled placeholder with the user-facing error text.
type EventError struct {
	EventImpl
	ErrorString string               `json:"error_string"`
	Message     conversation.Message `json:"message"`
}

func NewErrorEvent(metadata EventMetadata, err error, msg conversation.Message) *EventError {
	s := ""
	if err != nil {
		s = err.Error()
	}
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: s,
		Message:     msg,
	}
}

var _ Event = &EventError{}

type SessionSummary struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
}

func SummarizeSessions(sessions []*conversation.ChatSession) []SessionSummary {
	ret := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		ret = append(ret, SessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			CreatedAt:    s.CreatedAt,
			MessageCount: len(s.Messages),
		})
	}
	return ret
}

// EventSessionsChanged is published when the session list or the active
// session changed.
type EventSessionsChanged struct {
	EventImpl
	ActiveID string           `json:"active_id"`
	Sessions []SessionSummary `json:"sessions"`
}

func NewSessionsChangedEvent(metadata EventMetadata, activeID string, sessions []SessionSummary) *EventSessionsChanged {
	return &EventSessionsChanged{
		EventImpl: EventImpl{
			Type_:     EventTypeSessionsChanged,
			Metadata_: metadata,
		},
		ActiveID: activeID,
		Sessions: sessions,
	}
}

var _ Event = &EventSessionsChanged{}

type EventInfo struct {
	EventImpl
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func NewInfoEvent(metadata EventMetadata, message string, data map[string]interface{}) *EventInfo {
	return &EventInfo{
		EventImpl: EventImpl{
			Type_:     EventTypeInfo,
			Metadata_: metadata,
		},
		Message: message,
		Data:    data,
	}
}

var _ Event = &EventInfo{}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		ret, ok := ToTypedEvent[EventTurnStart](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventTurnStart")
		}
		return ret, nil
	case EventTypePartialCompletion:
		ret, ok := ToTypedEvent[EventPartialCompletion](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventPartialCompletion")
		}
		return ret, nil
	case EventTypeFinal:
		ret, ok := ToTypedEvent[EventFinal](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventFinal")
		}
		return ret, nil
	case EventTypeError:
		ret, ok := ToTypedEvent[EventError](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventError")
		}
		return ret, nil
	case EventTypeSessionsChanged:
		ret, ok := ToTypedEvent[EventSessionsChanged](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventSessionsChanged")
		}
		return ret, nil
	case EventTypeInfo:
		ret, ok := ToTypedEvent[EventInfo](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventInfo")
		}
		return ret, nil
	}

	return e, nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}
	if setter, ok := any(ret).(interface{ setPayload([]byte) }); ok {
		setter.setPayload(e.Payload())
	}

	return ret, true
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
