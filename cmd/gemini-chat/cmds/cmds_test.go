package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzhu119/Gemini-clone/pkg/controller"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/jackzhu119/Gemini-clone/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoChat struct {
	sent [][]engine.Part
}

func (e *echoChat) SendMessageStream(ctx context.Context, parts []engine.Part) iter.Seq2[engine.Fragment, error] {
	return func(yield func(engine.Fragment, error) bool) {
		e.sent = append(e.sent, parts)
		text := "(attachments only)"
		if last := parts[len(parts)-1]; last.Kind == engine.PartKindText {
			text = "echo: " + last.Text
		}
		yield(engine.Fragment{TextDelta: text}, nil)
	}
}

type echoBackend struct {
	chats []*echoChat
}

func (b *echoBackend) StartChat(ctx context.Context, history []engine.Content) (engine.Chat, error) {
	c := &echoChat{}
	b.chats = append(b.chats, c)
	return c, nil
}

func newTestREPL(t *testing.T) (*repl, *bytes.Buffer, *echoBackend) {
	t.Helper()
	b := &echoBackend{}
	c := controller.New(store.NewMemoryStore(), b)
	require.NoError(t, c.Load(context.Background()))
	out := &bytes.Buffer{}
	return newREPL(c, out), out, b
}

type linesReader struct {
	lines []string
}

func (l *linesReader) ReadLine(prompt string) (string, error) {
	if len(l.lines) == 0 {
		return "", os.ErrClosed
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, nil
}

func TestParseCommand(t *testing.T) {
	name, arg, ok := parseCommand("/switch 2")
	require.True(t, ok)
	require.Equal(t, "switch", name)
	require.Equal(t, "2", arg)

	name, arg, ok = parseCommand("/ATTACH  ./my file.png ")
	require.True(t, ok)
	require.Equal(t, "attach", name)
	require.Equal(t, "./my file.png", arg)

	_, _, ok = parseCommand("hello /world")
	require.False(t, ok)
	_, _, ok = parseCommand("//not a command")
	require.False(t, ok)
	_, _, ok = parseCommand("/")
	require.False(t, ok)
}

func TestResolveSession(t *testing.T) {
	now := time.Now()
	a := conversation.NewChatSession(now)
	a.ID = "abc123"
	b := conversation.NewChatSession(now)
	b.ID = "abd456"
	sessions := []*conversation.ChatSession{a, b}

	s, err := resolveSession(sessions, "2")
	require.NoError(t, err)
	require.Equal(t, b, s)

	s, err = resolveSession(sessions, "abc123")
	require.NoError(t, err)
	require.Equal(t, a, s)

	s, err = resolveSession(sessions, "abd")
	require.NoError(t, err)
	require.Equal(t, b, s)

	_, err = resolveSession(sessions, "ab")
	require.ErrorContains(t, err, "ambiguous")

	_, err = resolveSession(sessions, "3")
	require.Error(t, err)

	_, err = resolveSession(sessions, "zzz")
	require.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestREPL_SendAndSessionCommands(t *testing.T) {
	r, out, b := newTestREPL(t)
	ctx := context.Background()
	first := r.c.ActiveSessionID()

	require.NoError(t, r.handle(ctx, "hello there"))
	s, ok := r.c.Session(first)
	require.True(t, ok)
	require.Equal(t, "hello there", s.Title)
	require.Equal(t, "echo: hello there", s.Messages[1].Text)

	require.NoError(t, r.handle(ctx, "/new"))
	second := r.c.ActiveSessionID()
	require.NotEqual(t, first, second)

	out.Reset()
	require.NoError(t, r.handle(ctx, "/list"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "*  1. New Chat"))
	require.Contains(t, lines[1], "hello there")

	require.NoError(t, r.handle(ctx, "/switch 2"))
	require.Equal(t, first, r.c.ActiveSessionID())
	require.Contains(t, out.String(), "echo: hello there")

	// the first session still owns the cached chat
	require.NoError(t, r.handle(ctx, "/suggest 2"))
	require.Len(t, b.chats, 1)
	s, _ = r.c.Session(first)
	require.Equal(t, Suggestions[1], s.Messages[2].Text)

	require.NoError(t, r.handle(ctx, "/delete"))
	require.Equal(t, second, r.c.ActiveSessionID())
	require.Len(t, r.c.Sessions(), 1)

	require.Error(t, r.handle(ctx, "/bogus"))
	require.Error(t, r.handle(ctx, "/suggest 9"))
	require.Error(t, r.handle(ctx, "/switch"))
}

func TestREPL_Attachments(t *testing.T) {
	r, _, b := newTestREPL(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("some notes"), 0o644))

	require.NoError(t, r.handle(ctx, "/attach "+path))
	require.Len(t, r.pending, 1)
	require.Equal(t, "\n[1 attached] > ", r.prompt())

	require.NoError(t, r.handle(ctx, "/clear-attachments"))
	require.Empty(t, r.pending)

	require.NoError(t, r.handle(ctx, "/attach "+path))
	// an empty line sends the queued attachments alone
	require.NoError(t, r.handle(ctx, ""))
	require.Empty(t, r.pending)

	s, _ := r.c.Session(r.c.ActiveSessionID())
	require.Equal(t, conversation.AttachmentOnlyTitle, s.Title)
	require.Len(t, s.Messages[0].Attachments, 1)
	require.Equal(t, "(attachments only)", s.Messages[1].Text)
	require.Equal(t, []engine.Part{engine.InlinePart("text/plain", []byte("some notes"))}, b.chats[0].sent[0])

	require.Error(t, r.handle(ctx, "/attach "+filepath.Join(dir, "missing.png")))
	require.Error(t, r.handle(ctx, "/attach"))
}

func TestREPL_EmptyLineIsIgnored(t *testing.T) {
	r, _, b := newTestREPL(t)
	require.NoError(t, r.handle(context.Background(), "   "))
	require.Empty(t, b.chats)
}

func TestREPL_LoopStopsOnQuit(t *testing.T) {
	r, out, _ := newTestREPL(t)
	lr := &linesReader{lines: []string{"hi", "/quit", "never sent"}}

	require.NoError(t, r.loop(context.Background(), lr))
	require.Equal(t, []string{"never sent"}, lr.lines)
	require.Contains(t, out.String(), Suggestions[0])

	s, _ := r.c.Session(r.c.ActiveSessionID())
	require.Len(t, s.Messages, 2)
}

func TestREPL_LoopShowsCommandErrors(t *testing.T) {
	r, out, _ := newTestREPL(t)
	lr := &linesReader{lines: []string{"/nope", "/quit"}}

	require.NoError(t, r.loop(context.Background(), lr))
	require.Contains(t, out.String(), "error: unknown command /nope")
}

func TestScannerReader_LongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r := newScannerReader(strings.NewReader(long + "\nshort\n"))

	line, err := r.ReadLine("> ")
	require.NoError(t, err)
	require.Len(t, line, len(long))

	line, err = r.ReadLine("> ")
	require.NoError(t, err)
	require.Equal(t, "short", line)

	_, err = r.ReadLine("> ")
	require.ErrorIs(t, err, io.EOF)
}

func TestWriteStructured(t *testing.T) {
	summaries := []events.SessionSummary{{ID: "a", Title: "first", MessageCount: 2}}

	buf := &bytes.Buffer{}
	require.NoError(t, writeStructured(buf, "json", summaries))
	var decoded []events.SessionSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "first", decoded[0].Title)

	buf.Reset()
	require.NoError(t, writeStructured(buf, "yaml", summaries))
	require.Contains(t, buf.String(), "title: first")
	require.Contains(t, buf.String(), "message_count: 2")

	require.Error(t, writeStructured(buf, "xml", summaries))
}

func TestPrintTranscript(t *testing.T) {
	s := conversation.NewChatSession(time.Now())
	att := conversation.NewAttachment("image/png", []byte{1, 2, 3}, "cat.png")
	reply := conversation.NewMessage(conversation.RoleModel, "A cat.",
		conversation.WithGroundingMetadata(&conversation.GroundingMetadata{
			GroundingChunks: []conversation.GroundingChunk{{Web: &conversation.WebChunk{URI: "https://cats.example", Title: "Cats"}}},
		}))
	require.NoError(t, s.Append(conversation.NewUserMessage("what is this?", []conversation.Attachment{att}), reply))

	buf := &bytes.Buffer{}
	require.NoError(t, printTranscript(buf, s, 0))
	assert.Contains(t, buf.String(), "# what is this?")
	assert.Contains(t, buf.String(), "[attachment] cat.png image/png, 3 bytes")
	assert.Contains(t, buf.String(), "A cat.")
	assert.Contains(t, buf.String(), "[1] Cats <https://cats.example>")
}

func TestPrintTranscript_Wraps(t *testing.T) {
	s := conversation.NewChatSession(time.Now())
	require.NoError(t, s.Append(conversation.NewUserMessage("one two three four five six", nil)))

	buf := &bytes.Buffer{}
	require.NoError(t, printTranscript(buf, s, 10))
	assert.Contains(t, buf.String(), "one two\nthree four\nfive six")
}
