package events

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNewEventFromJson_TypedEvents(t *testing.T) {
	meta := NewEventMetadata("s1", "t1", "m1")
	msg := conversation.NewMessage(conversation.RoleModel, "Paris is")
	msg.GroundingMetadata = &conversation.GroundingMetadata{
		GroundingChunks: []conversation.GroundingChunk{{Web: &conversation.WebChunk{URI: "https://x", Title: "x"}}},
	}

	b, err := json.Marshal(NewPartialCompletionEvent(meta, " is", "Paris is", msg))
	require.NoError(t, err)

	e, err := NewEventFromJson(b)
	require.NoError(t, err)
	p, ok := e.(*EventPartialCompletion)
	require.True(t, ok)
	require.Equal(t, " is", p.Delta)
	require.Equal(t, "Paris is", p.Completion)
	require.Equal(t, msg.ID, p.Message.ID)
	require.Equal(t, "https://x", p.Message.GroundingMetadata.GroundingChunks[0].Web.URI)
	require.Equal(t, "s1", p.Metadata().SessionID)
	require.Equal(t, meta.ID, p.Metadata().ID)
	require.Equal(t, b, p.Payload())
}

func TestNewEventFromJson_ErrorAndSessions(t *testing.T) {
	meta := NewEventMetadata("s1", "t1", "m1")
	settled := conversation.NewMessage(conversation.RoleModel, "Sorry")

	b, err := json.Marshal(NewErrorEvent(meta, errors.New("stream broke"), settled))
	require.NoError(t, err)
	e, err := NewEventFromJson(b)
	require.NoError(t, err)
	ee, ok := e.(*EventError)
	require.True(t, ok)
	require.Equal(t, "stream broke", ee.ErrorString)
	require.Equal(t, "Sorry", ee.Message.Text)

	sessions := []*conversation.ChatSession{conversation.NewChatSession(time.Now())}
	b, err = json.Marshal(NewSessionsChangedEvent(meta, sessions[0].ID, SummarizeSessions(sessions)))
	require.NoError(t, err)
	e, err = NewEventFromJson(b)
	require.NoError(t, err)
	sc, ok := e.(*EventSessionsChanged)
	require.True(t, ok)
	require.Equal(t, sessions[0].ID, sc.ActiveID)
	require.Len(t, sc.Sessions, 1)
	require.Equal(t, conversation.DefaultTitle, sc.Sessions[0].Title)
}

func TestNewEventFromJson_Invalid(t *testing.T) {
	_, err := NewEventFromJson([]byte("{"))
	require.Error(t, err)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) PublishEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestPublishEventToContext(t *testing.T) {
	s1, s2 := &recordingSink{}, &recordingSink{}
	ctx := WithEventSinks(context.Background(), s1)
	ctx = WithEventSinks(ctx, s2)

	PublishEventToContext(ctx, NewInfoEvent(NewEventMetadata("", "", ""), "web-search", nil))
	require.Len(t, s1.events, 1)
	require.Len(t, s2.events, 1)

	// no sinks is a no-op
	PublishEventToContext(context.Background(), NewInfoEvent(NewEventMetadata("", "", ""), "x", nil))
}

func printerMessage(t *testing.T, e Event) *message.Message {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), b)
}

func TestChatPrinterFunc_StreamsDeltasAndSources(t *testing.T) {
	buf := &bytes.Buffer{}
	f := ChatPrinterFunc("gemini", buf)
	meta := NewEventMetadata("s", "t", "m")

	final := conversation.NewMessage(conversation.RoleModel, "Paris is the capital.")
	final.GroundingMetadata = &conversation.GroundingMetadata{
		GroundingChunks: []conversation.GroundingChunk{{Web: &conversation.WebChunk{URI: "https://en.wikipedia.org/wiki/Paris", Title: "wikipedia.org"}}},
	}

	require.NoError(t, f(printerMessage(t, NewStartEvent(meta, "t", conversation.NewUserMessage("q", nil), conversation.NewPlaceholder()))))
	require.NoError(t, f(printerMessage(t, NewPartialCompletionEvent(meta, "Paris is", "Paris is", final))))
	require.NoError(t, f(printerMessage(t, NewPartialCompletionEvent(meta, " the capital.", "Paris is the capital.", final))))
	require.NoError(t, f(printerMessage(t, NewFinalEvent(meta, final))))

	require.Equal(t,
		"\ngemini: \nParis is the capital.\n\nSources:\n  [1] wikipedia.org <https://en.wikipedia.org/wiki/Paris>\n",
		buf.String())
}

func TestChatPrinterFunc_ErrorPrintsSettledText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := ChatPrinterFunc("", buf)
	meta := NewEventMetadata("s", "t", "m")
	settled := conversation.NewMessage(conversation.RoleModel, "Sorry, something broke.")

	require.NoError(t, f(printerMessage(t, NewErrorEvent(meta, errors.New("x"), settled))))
	require.Equal(t, "\nSorry, something broke.\n", buf.String())
}

func TestChatPrinterFunc_RendersMarkdownOnFinal(t *testing.T) {
	buf := &bytes.Buffer{}
	f := ChatPrinterFunc("gemini", buf, WithMarkdownStyle("notty"), WithWordWrap(40))
	meta := NewEventMetadata("s", "t", "m")
	final := conversation.NewMessage(conversation.RoleModel, "# Paris\n\nThe **capital** of France.")

	require.NoError(t, f(printerMessage(t, NewPartialCompletionEvent(meta, "# Paris", "# Paris", final))))
	require.NoError(t, f(printerMessage(t, NewFinalEvent(meta, final))))

	// deltas are held back, the settled reply is rendered once
	require.Equal(t, 1, strings.Count(buf.String(), "Paris"))
	require.Contains(t, buf.String(), "capital")
}

func TestEventRouter_DeliversToHandler(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	received := make(chan Event, 4)
	router.AddHandler("test", DefaultTopic, func(msg *message.Message) error {
		defer msg.Ack()
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()
	require.True(t, router.IsRunning())

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewInfoEvent(NewEventMetadata("s", "", ""), "hello", nil)))

	select {
	case e := <-received:
		info, ok := e.(*EventInfo)
		require.True(t, ok)
		require.Equal(t, "hello", info.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, router.Close())
}

func TestDumpRawEvents_ElidesAttachmentData(t *testing.T) {
	buf := &bytes.Buffer{}
	router, err := NewEventRouter(WithDumpWriter(buf))
	require.NoError(t, err)

	user := conversation.NewUserMessage("look", []conversation.Attachment{conversation.NewAttachment("image/png", []byte("abcdef"), "a.png")})
	e := NewStartEvent(NewEventMetadata("s", "t", "m"), "look", user, conversation.NewPlaceholder())
	require.NoError(t, router.DumpRawEvents(printerMessage(t, e)))

	out := buf.String()
	require.Contains(t, out, "<8 base64 chars>")
	require.NotContains(t, out, `"meta"`)
}
