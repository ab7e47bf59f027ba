package gemini

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/session"
	"github.com/jackzhu119/Gemini-clone/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ChatStreamer is the part of *genai.Chat the backend uses.
type ChatStreamer interface {
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

// ChatFactory creates a backend chat seeded with history.
type ChatFactory func(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (ChatStreamer, error)

type BackendOption func(*Backend)

// WithChatFactory replaces the genai client, mostly for tests.
func WithChatFactory(f ChatFactory) BackendOption {
	return func(b *Backend) {
		b.factory = f
	}
}

// Backend implements engine.Backend on top of the genai SDK.
//
// The client is created on the first StartChat from the credential captured
// at construction. A missing or invalid key therefore only shows up as a
// failure of the first turn.
type Backend struct {
	settings *settings.ChatSettings
	factory  ChatFactory

	mu     sync.Mutex
	client *genai.Client
}

var _ engine.Backend = (*Backend)(nil)

func NewBackend(s *settings.ChatSettings, options ...BackendOption) *Backend {
	ret := &Backend{settings: s.Clone()}
	ret.factory = ret.createChat
	for _, o := range options {
		o(ret)
	}
	if !IsGeminiEngine(ret.settings.Model) {
		log.Warn().Str("model", ret.settings.Model).Msg("Model does not look like a Gemini model")
	}
	return ret
}

func (b *Backend) getClient(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	if b.settings.APIKey == "" {
		return nil, errors.New("no Gemini API key configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  b.settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	b.client = client
	return client, nil
}

func (b *Backend) createChat(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (ChatStreamer, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Chats.Create(ctx, model, config, history)
}

// generateConfig is built once per handle and never renegotiated.
func (b *Backend) generateConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if b.settings.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(b.settings.SystemInstruction, genai.RoleUser)
	}
	if b.settings.GoogleSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

func (b *Backend) StartChat(ctx context.Context, history []engine.Content) (engine.Chat, error) {
	contents, err := makeContents(history)
	if err != nil {
		return nil, err
	}
	c, err := b.factory(ctx, b.settings.Model, b.generateConfig(), contents)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini chat")
	}
	log.Debug().
		Str("model", b.settings.Model).
		Int("history", len(contents)).
		Bool("google_search", b.settings.GoogleSearch).
		Str("session_id", session.SessionIDFromContext(ctx)).
		Msg("Gemini chat created")
	return &chat{streamer: c, model: b.settings.Model}, nil
}

type chat struct {
	streamer ChatStreamer
	model    string
}

func (c *chat) SendMessageStream(ctx context.Context, parts []engine.Part) iter.Seq2[engine.Fragment, error] {
	return func(yield func(engine.Fragment, error) bool) {
		if len(parts) == 0 {
			yield(engine.Fragment{}, errors.New("nothing to send"))
			return
		}
		gparts, err := partsToGeminiParts(parts)
		if err != nil {
			yield(engine.Fragment{}, err)
			return
		}
		values := make([]genai.Part, len(gparts))
		for i, p := range gparts {
			values[i] = *p
		}

		sessionID := session.SessionIDFromContext(ctx)
		turnID := session.TurnIDFromContext(ctx)
		log.Debug().Str("model", c.model).Str("session_id", sessionID).Str("turn_id", turnID).Int("parts", len(values)).Msg("Gemini stream started")

		chunkCount := 0
		searchReported := false
		for resp, err := range c.streamer.SendMessageStream(ctx, values...) {
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				log.Error().Err(err).Int("chunks_received", chunkCount).Str("session_id", sessionID).Msg("Gemini stream receive failed")
				yield(engine.Fragment{}, errors.Wrap(err, "gemini stream failed"))
				return
			}
			chunkCount++
			f := fragmentFromResponse(resp)

			if !searchReported && f.GroundingMetadata != nil && len(f.GroundingMetadata.WebSearchQueries) > 0 {
				searchReported = true
				meta := events.NewEventMetadata(sessionID, turnID, "")
				meta.Model = c.model
				events.PublishEventToContext(ctx, events.NewInfoEvent(meta, "web-search", map[string]interface{}{
					"queries": f.GroundingMetadata.WebSearchQueries,
				}))
			}

			if !yield(f, nil) {
				return
			}
		}
		log.Debug().Int("chunks_received", chunkCount).Str("session_id", sessionID).Msg("Gemini stream completed")
	}
}
