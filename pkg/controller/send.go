package controller

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/session"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type SendRequest struct {
	SessionID   string
	Text        string
	Attachments []conversation.Attachment
}

// TurnResult describes a settled turn. A failed turn is still a result:
// its reply carries the error text and Err holds the cause.
type TurnResult struct {
	SessionID      string
	TurnID         string
	UserMessageID  string
	ModelMessageID string
	Outcome        Outcome
	Err            error
	Fragments      int
	// Reply is the settled model message. It is empty when the session was
	// deleted while the turn was running.
	Reply conversation.Message
}

type turn struct {
	sessionID   string
	turnID      string
	user        conversation.Message
	placeholder conversation.Message
	history     []conversation.Message
	acc         *stream.Accumulator
}

// Send runs one turn against the session req.SessionID and blocks until it
// settled.
//
// It returns an error without touching any state when the request names no
// session or an unknown one, carries neither text nor attachments, or when
// another turn is in flight. Backend and stream failures are not returned
// as errors; they settle the turn with the error text.
func (c *Controller) Send(ctx context.Context, req SendRequest) (res *TurnResult, err error) {
	if req.SessionID == "" {
		return nil, ErrNoSession
	}
	if req.Text == "" && len(req.Attachments) == 0 {
		return nil, ErrEmptyInput
	}

	release, ok := c.gate.TryAcquire()
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	now := c.now()
	t := &turn{
		sessionID: req.SessionID,
		turnID:    uuid.NewString(),
		user: conversation.NewUserMessage(req.Text, req.Attachments,
			conversation.WithTimestamp(now)),
		placeholder: conversation.NewPlaceholder(conversation.WithTimestamp(now)),
		acc:         stream.NewAccumulator(),
	}

	// user message and placeholder land in one mutation, so no observer
	// sees the session without exactly one streaming message
	err = c.mutate(ctx, func(col *conversation.Collection) ([]events.Event, error) {
		s, ok := col.Get(t.sessionID)
		if !ok {
			return nil, errors.Wrap(conversation.ErrSessionNotFound, t.sessionID)
		}
		if err := s.Append(t.user, t.placeholder); err != nil {
			return nil, err
		}
		t.history = s.History(t.user.ID)
		return []events.Event{
			events.NewStartEvent(c.turnMetadata(t), s.Title, t.user.Clone(), t.placeholder.Clone()),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		SessionID:      t.sessionID,
		TurnID:         t.turnID,
		UserMessageID:  t.user.ID,
		ModelMessageID: t.placeholder.ID,
	}

	log.Debug().
		Str("session_id", t.sessionID).
		Str("turn_id", t.turnID).
		Int("attachments", len(t.user.Attachments)).
		Int("history", len(t.history)).
		Msg("Turn started")

	// settle runs before release, on every path
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("turn_id", t.turnID).Msg("Turn panicked")
			result.Err = errors.Errorf("turn panicked: %v", r)
		}
		c.settle(ctx, t, result)
		res, err = result, nil
	}()

	result.Err = c.runTurn(ctx, t)
	return result, nil
}

func (c *Controller) turnMetadata(t *turn) events.EventMetadata {
	return c.metadata(t.sessionID, t.turnID, t.placeholder.ID)
}

// runTurn resolves the backend handle, issues the streaming call and folds
// every fragment into the placeholder.
func (c *Controller) runTurn(ctx context.Context, t *turn) error {
	if c.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()
	}
	ctx = session.WithTurnMeta(ctx, t.sessionID, t.turnID)
	ctx = events.WithEventSinks(ctx, c.sinks...)

	handle, err := c.cache.GetOrCreate(ctx, t.sessionID, t.history)
	if err != nil {
		return err
	}

	parts := engine.PartsFor(t.user.Text, t.user.Attachments)
	for f, err := range handle.SendMessageStream(ctx, parts) {
		if err != nil {
			return err
		}
		composite := t.acc.Add(f)
		c.applyFragment(ctx, t, f.TextDelta, composite)
	}
	return nil
}

// applyFragment replaces the placeholder with the folded state. The message
// keeps streaming.
func (c *Controller) applyFragment(ctx context.Context, t *turn, delta string, composite stream.Composite) {
	err := c.mutate(ctx, func(col *conversation.Collection) ([]events.Event, error) {
		s, ok := col.Get(t.sessionID)
		if !ok {
			log.Debug().Str("session_id", t.sessionID).Str("turn_id", t.turnID).Msg("Dropping fragment for deleted session")
			return nil, errSkip
		}
		msg, err := s.ReplaceMessage(t.placeholder.ID, func(m conversation.Message) conversation.Message {
			m.Text = composite.Text
			m.GroundingMetadata = composite.GroundingMetadata
			return m
		})
		if err != nil {
			log.Warn().Err(err).Str("turn_id", t.turnID).Msg("Placeholder vanished")
			return nil, errSkip
		}
		return []events.Event{
			events.NewPartialCompletionEvent(c.turnMetadata(t), delta, composite.Text, msg.Clone()),
		}, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("turn_id", t.turnID).Msg("Could not apply fragment")
	}
}

// settle ends the turn: on failure the accumulated text is replaced by the
// error text, and in every case the placeholder stops streaming.
func (c *Controller) settle(ctx context.Context, t *turn, result *TurnResult) {
	result.Fragments = t.acc.Count()
	result.Outcome = OutcomeSuccess
	if result.Err != nil {
		result.Outcome = OutcomeFailure
	}

	err := c.mutate(ctx, func(col *conversation.Collection) ([]events.Event, error) {
		s, ok := col.Get(t.sessionID)
		if !ok {
			log.Debug().Str("session_id", t.sessionID).Str("turn_id", t.turnID).Msg("Session deleted before the turn settled")
			return nil, errSkip
		}
		msg, err := s.ReplaceMessage(t.placeholder.ID, func(m conversation.Message) conversation.Message {
			if result.Err != nil {
				m.Text = c.errorText
			}
			m.IsStreaming = false
			return m
		})
		if err != nil {
			log.Warn().Err(err).Str("turn_id", t.turnID).Msg("Placeholder vanished")
			return nil, errSkip
		}
		result.Reply = msg.Clone()

		meta := c.turnMetadata(t)
		if result.Err != nil {
			return []events.Event{events.NewErrorEvent(meta, result.Err, result.Reply.Clone())}, nil
		}
		return []events.Event{events.NewFinalEvent(meta, result.Reply.Clone())}, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("turn_id", t.turnID).Msg("Could not settle turn")
	}

	ev := log.Debug()
	if result.Err != nil {
		ev = log.Warn().Err(result.Err)
	}
	ev.Str("session_id", t.sessionID).
		Str("turn_id", t.turnID).
		Str("outcome", string(result.Outcome)).
		Int("fragments", result.Fragments).
		Msg("Turn settled")
}
