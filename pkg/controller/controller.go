// Package controller drives chat turns: it appends the user message and a
// streaming placeholder, streams the backend response into the placeholder
// and settles it, persisting and publishing every intermediate state.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/session"
	"github.com/jackzhu119/Gemini-clone/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultErrorText replaces the reply of a failed turn.
const DefaultErrorText = "Sorry, I encountered an error processing your request. Please check your connection, API key, or file format."

var (
	ErrBusy       = errors.New("another message is still being answered")
	ErrNoSession  = errors.New("no target session")
	ErrEmptyInput = errors.New("message has neither text nor attachments")
	ErrNotLoaded  = errors.New("sessions have not been loaded")

	// errSkip aborts a mutation without persisting or publishing
	errSkip = errors.New("skip")
)

type Option func(*Controller)

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithErrorText(text string) Option {
	return func(c *Controller) {
		if text != "" {
			c.errorText = text
		}
	}
}

// WithStreamTimeout bounds a whole turn. Zero disables the bound.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.streamTimeout = d
	}
}

// WithModel only labels published events.
func WithModel(model string) Option {
	return func(c *Controller) {
		c.model = model
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller owns the session collection. All mutations go through it, are
// serialized by its lock and are persisted in full before being published.
//
// At most one turn runs at a time, process wide. Starting a turn never
// cancels another one; the only way to abort a running turn is to cancel
// the context passed to Send.
type Controller struct {
	store store.SessionStore
	cache *session.HandleCache
	gate  session.Gate
	sinks []events.EventSink

	errorText     string
	streamTimeout time.Duration
	model         string
	now           func() time.Time

	mu       sync.Mutex
	sessions *conversation.Collection
}

func New(s store.SessionStore, backend engine.Backend, options ...Option) *Controller {
	ret := &Controller{
		store:     s,
		cache:     session.NewHandleCache(backend),
		errorText: DefaultErrorText,
		now:       time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Load reads the stored sessions. When nothing usable is stored a first
// session is created. The first session becomes active.
func (c *Controller) Load(ctx context.Context) error {
	loaded, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorruptState) {
			log.Warn().Err(err).Msg("Stored sessions are corrupt, starting empty")
		} else {
			log.Warn().Err(err).Msg("Could not load stored sessions, starting empty")
		}
		loaded = nil
	}

	c.mu.Lock()
	c.sessions = conversation.NewCollection(loaded)
	created := false
	if c.sessions.Len() == 0 {
		c.sessions.Create(c.now())
		created = true
	}
	interrupted := c.settleInterruptedLocked()
	if created || interrupted > 0 {
		c.persistLocked(ctx)
	}
	ev := c.sessionsChangedLocked()
	c.mu.Unlock()

	if interrupted > 0 {
		log.Warn().Int("messages", interrupted).Msg("Settled replies interrupted by a previous run")
	}
	log.Debug().Int("sessions", len(loaded)).Bool("created", created).Msg("Sessions loaded")
	c.publish(ev)
	return nil
}

// settleInterruptedLocked stops every stored message that is still
// streaming. Nothing is streaming before the first turn of this process, so
// these were cut off when a previous run exited mid-turn. Their partial text
// is kept; an empty one gets the error text.
func (c *Controller) settleInterruptedLocked() int {
	n := 0
	for _, s := range c.sessions.Sessions() {
		for _, m := range s.Messages {
			if !m.IsStreaming {
				continue
			}
			_, err := s.ReplaceMessage(m.ID, func(m conversation.Message) conversation.Message {
				if m.Text == "" {
					m.Text = c.errorText
				}
				m.IsStreaming = false
				return m
			})
			if err != nil {
				log.Warn().Err(err).Str("session_id", s.ID).Msg("Could not settle interrupted reply")
				continue
			}
			n++
		}
	}
	return n
}

// mutate runs f on the collection under the lock, persists the result and
// publishes the events f returned once the lock is released.
func (c *Controller) mutate(ctx context.Context, f func(col *conversation.Collection) ([]events.Event, error)) error {
	evs, err := c.apply(ctx, f)
	if err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}
	c.publish(evs...)
	return nil
}

func (c *Controller) apply(ctx context.Context, f func(col *conversation.Collection) ([]events.Event, error)) ([]events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return nil, ErrNotLoaded
	}
	evs, err := f(c.sessions)
	if err != nil {
		return nil, err
	}
	c.persistLocked(ctx)
	return evs, nil
}

// persistLocked writes the whole collection. Failures are logged and only
// lose this one write.
func (c *Controller) persistLocked(ctx context.Context) {
	// settling must be persisted even when the turn's context is done
	ctx = context.WithoutCancel(ctx)
	if err := c.store.SaveAll(ctx, c.sessions.Sessions()); err != nil {
		log.Error().Err(err).Msg("Failed to persist sessions")
	}
}

func (c *Controller) publish(evs ...events.Event) {
	for _, e := range evs {
		if e == nil {
			continue
		}
		for _, s := range c.sinks {
			if err := s.PublishEvent(e); err != nil {
				log.Warn().Err(err).Str("event_type", string(e.Type())).Msg("Failed to publish event")
			}
		}
	}
}

func (c *Controller) metadata(sessionID, turnID, messageID string) events.EventMetadata {
	meta := events.NewEventMetadata(sessionID, turnID, messageID)
	meta.Model = c.model
	return meta
}

func (c *Controller) sessionsChangedLocked() events.Event {
	return events.NewSessionsChangedEvent(
		c.metadata(c.sessions.ActiveID(), "", ""),
		c.sessions.ActiveID(),
		events.SummarizeSessions(c.sessions.Sessions()),
	)
}

// NewSession creates an empty session at the top of the list and makes it
// active.
func (c *Controller) NewSession(ctx context.Context) (*conversation.ChatSession, error) {
	var ret *conversation.ChatSession
	err := c.mutate(ctx, func(col *conversation.Collection) ([]events.Event, error) {
		ret = col.Create(c.now()).Clone()
		return []events.Event{c.sessionsChangedLocked()}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("session_id", ret.ID).Msg("Created session")
	return ret, nil
}

// DeleteSession removes a session and drops its backend handle. Deleting the
// active session activates the next one, or a fresh one if none is left.
//
// A turn still streaming into the deleted session keeps running; its
// updates are discarded.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	err := c.mutate(ctx, func(col *conversation.Collection) ([]events.Event, error) {
		created, err := col.Delete(id, c.now())
		if err != nil {
			return nil, err
		}
		if created != nil {
			log.Debug().Str("session_id", created.ID).Msg("Created session to replace the last deleted one")
		}
		return []events.Event{c.sessionsChangedLocked()}, nil
	})
	if err != nil {
		return err
	}
	c.cache.Invalidate(id)
	log.Debug().Str("session_id", id).Msg("Deleted session")
	return nil
}

// SelectSession makes id the active session. The active id is not part of
// the stored state, so nothing is persisted.
func (c *Controller) SelectSession(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.sessions == nil {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	if err := c.sessions.Select(id); err != nil {
		c.mu.Unlock()
		return err
	}
	ev := c.sessionsChangedLocked()
	c.mu.Unlock()

	c.publish(ev)
	return nil
}

// Sessions returns deep copies of all sessions, most recent first.
func (c *Controller) Sessions() []*conversation.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return nil
	}
	return c.sessions.Snapshot()
}

// Session returns a deep copy of the session with the given id.
func (c *Controller) Session(id string) (*conversation.ChatSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return nil, false
	}
	s, ok := c.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ActiveSession returns a deep copy of the active session.
func (c *Controller) ActiveSession() (*conversation.ChatSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return nil, false
	}
	s, ok := c.sessions.Active()
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (c *Controller) ActiveSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return ""
	}
	return c.sessions.ActiveID()
}

// IsBusy reports whether a turn is in flight.
func (c *Controller) IsBusy() bool {
	return c.gate.Busy()
}
