package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pdfrag/internal/rag"
)

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore(time.Hour)
	sess := s.Create()
	require.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.Messages)
	assert.Equal(t, 1, s.Len())

	q := NewMessage(RoleUser, "What is ATP?", nil)
	a := NewMessage(RoleAssistant, "Energy currency [1].", []rag.Source{{Source: "bio.pdf", Page: 3}})
	require.NoError(t, s.Append(sess.ID, q, a))

	msgs, err := s.Messages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "bio.pdf", msgs[1].Sources[0].Source)
	assert.Equal(t, 2, s.MessageCount())

	require.NoError(t, s.Clear(sess.ID))
	msgs, err = s.Messages(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, s.Delete(sess.ID))
	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_UnknownSession(t *testing.T) {
	s := NewStore(time.Hour)
	assert.ErrorIs(t, s.Append("nope", NewMessage(RoleUser, "hi", nil)), ErrSessionNotFound)
	assert.ErrorIs(t, s.Clear("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, s.Delete("nope"), ErrSessionNotFound)
	_, err := s.Messages("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_MessagesAreCopies(t *testing.T) {
	s := NewStore(time.Hour)
	sess := s.Create()
	require.NoError(t, s.Append(sess.ID, NewMessage(RoleUser, "original", nil)))

	msgs, err := s.Messages(sess.ID)
	require.NoError(t, err)
	msgs[0].Content = "mutated"

	again, err := s.Messages(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestStore_CleanupEvictsIdleSessions(t *testing.T) {
	s := NewStore(time.Minute)
	idle := s.Create()
	active := s.Create()

	s.mu.Lock()
	s.sessions[idle.ID].UpdatedAt = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	assert.Equal(t, 1, s.Cleanup())
	_, err := s.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(active.ID)
	assert.NoError(t, err)
}

func TestStore_RunStopsWithContext(t *testing.T) {
	s := NewStore(time.Nanosecond)
	s.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExportJSON(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	msgs := []Message{
		NewMessage(RoleUser, "Qu'est-ce que l'ATP <énergie>?", nil),
		NewMessage(RoleAssistant, "La monnaie énergétique [1].", []rag.Source{{Source: "bio.pdf", Page: 2, TextPreview: "ATP..."}}),
	}

	data, err := ExportJSON(msgs, []string{"bio.pdf"}, now)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "énergie", "non-ASCII is kept verbatim")
	assert.Contains(t, text, "<énergie>", "HTML characters are not escaped")
	assert.True(t, strings.HasPrefix(text, "{\n  \"export_date\""))

	var got Export
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2024-03-09T14:05:07Z", got.ExportDate)
	assert.Equal(t, []string{"bio.pdf"}, got.Files)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, text, `"text_preview": "ATP..."`)
}

func TestExportJSON_EmptyHistory(t *testing.T) {
	_, err := ExportJSON(nil, []string{"a.pdf"}, time.Now())
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestExportJSON_NilFilesRenderAsList(t *testing.T) {
	data, err := ExportJSON([]Message{NewMessage(RoleUser, "hi", nil)}, nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"files": []`)
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "chat_history_20240309_140507.json", ExportFilename(now))
}
