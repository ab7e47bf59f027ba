package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func sampleSessions(t *testing.T) []*conversation.ChatSession {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s1 := conversation.NewChatSession(now)
	att1 := conversation.NewAttachment("image/png", []byte{0, 1, 2, 255}, "a.png")
	att2 := conversation.NewAttachment("application/pdf", []byte("%PDF-1.4"), "")
	require.NoError(t, s1.Append(
		conversation.NewUserMessage("compare these", []conversation.Attachment{att1, att2}, conversation.WithTimestamp(now)),
		conversation.NewMessage(conversation.RoleModel, "They differ.",
			conversation.WithTimestamp(now.Add(time.Second)),
			conversation.WithGroundingMetadata(&conversation.GroundingMetadata{
				GroundingChunks:  []conversation.GroundingChunk{{Web: &conversation.WebChunk{URI: "https://example.com", Title: "example.com"}}},
				WebSearchQueries: []string{"compare"},
			})),
	))

	s2 := conversation.NewChatSession(now.Add(-time.Hour))
	return []*conversation.ChatSession{s1, s2}
}

func requireSameSessions(t *testing.T, want, got []*conversation.ChatSession) {
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, got[i].ID)
		require.Equal(t, want[i].Title, got[i].Title)
		require.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		require.Len(t, got[i].Messages, len(want[i].Messages))
		for j := range want[i].Messages {
			w, g := want[i].Messages[j], got[i].Messages[j]
			require.Equal(t, w.ID, g.ID)
			require.Equal(t, w.Role, g.Role)
			require.Equal(t, w.Text, g.Text)
			require.Equal(t, w.Attachments, g.Attachments)
			require.Equal(t, w.GroundingMetadata, g.GroundingMetadata)
			require.Equal(t, w.IsStreaming, g.IsStreaming)
			require.True(t, w.Timestamp.Equal(g.Timestamp))
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	want := sampleSessions(t)
	b, err := Encode(want)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	requireSameSessions(t, want, got)
}

func TestDecode_CorruptAndEmpty(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = Decode([]byte("not json"))
	require.True(t, errors.Is(err, ErrCorruptState))

	_, err = Decode([]byte(`[{"title":"no id"}]`))
	require.True(t, errors.Is(err, ErrCorruptState))

	b, err := Encode(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(b))
}

func testStore(t *testing.T, s SessionStore) {
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	want := sampleSessions(t)
	require.NoError(t, s.SaveAll(ctx, want))
	// saving twice is idempotent
	require.NoError(t, s.SaveAll(ctx, want))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	requireSameSessions(t, want, got)

	require.NoError(t, s.SaveAll(ctx, want[1:]))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	requireSameSessions(t, want[1:], got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	require.Equal(t, 3, s.Saves())

	s.SetRaw([]byte("{broken"))
	_, err := s.Load(context.Background())
	require.True(t, errors.Is(err, ErrCorruptState))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	testStore(t, s)

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = s.Load(context.Background())
	require.True(t, errors.Is(err, ErrCorruptState))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	testStore(t, s)

	other, err := NewSQLiteStore(path, "other_key")
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	got, err := other.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, closeStore, err := Open(Config{Backend: BackendSQLite, Path: filepath.Join(dir, "x.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, closeStore())

	s, closeStore, err = Open(Config{Path: filepath.Join(dir, "x.json")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
	require.Equal(t, filepath.Join(dir, "x.json"), s.(*FileStore).Path())
	require.NoError(t, closeStore())

	s, _, err = Open(Config{Backend: BackendMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	_, closeStore, err = Open(Config{Backend: "redis"})
	require.Error(t, err)
	require.NotNil(t, closeStore)
}
