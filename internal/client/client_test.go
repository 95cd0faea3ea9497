package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pdfrag/internal/pipeline"
)

func newStub(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"missing authorization"}`))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "k")
}

func TestUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "600", r.FormValue("chunk_size"))
		assert.Equal(t, "0", r.FormValue("chunk_overlap"))

		fhs := r.MultipartForm.File["files"]
		require.Len(t, fhs, 2)
		f, err := fhs[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "hello", string(data))

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"jobs": []map[string]any{
			{"filename": fhs[0].Filename, "job_id": "j1", "doc_id": "d1", "status": "queued", "poll_url": "/api/jobs/j1"},
			{"filename": fhs[1].Filename, "error": "unsupported file type: .xlsx"},
		}})
	})
	c := newStub(t, mux)

	res, err := c.Upload(context.Background(), []UploadFile{
		{Name: "a.txt", Data: strings.NewReader("hello")},
		{Name: "b.xlsx", Data: strings.NewReader("x")},
	}, UploadOptions{ChunkSize: 600, SetOverlap: true})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "j1", res[0].JobID)
	assert.Contains(t, res[1].Error, "unsupported")
}

func TestWaitJob(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := pipeline.StatusEmbedding
		if polls.Add(1) >= 3 {
			status = pipeline.StatusCompleted
		}
		json.NewEncoder(w).Encode(pipeline.JobSnapshot{ID: r.PathValue("id"), Status: status})
	})
	c := newStub(t, mux)

	snap, err := c.WaitJob(context.Background(), "j1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, snap.Status)
	assert.Equal(t, "j1", snap.ID)
	assert.EqualValues(t, 3, polls.Load())
}

func TestWaitJob_ContextDone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pipeline.JobSnapshot{Status: pipeline.StatusQueued})
	})
	c := newStub(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.WaitJob(ctx, "j1", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"no documents have been indexed"}`))
	})
	c := newStub(t, mux)

	_, err := c.Ask(context.Background(), "s1", "hi", 0)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Contains(t, err.Error(), "no documents have been indexed")
}

func TestUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	c := newStub(t, mux)
	c.apiKey = "wrong"

	_, err := c.Documents(context.Background())
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestAskAndMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
			K        int    `json:"k"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s1", r.PathValue("id"))
		assert.Equal(t, 3, req.K)
		json.NewEncoder(w).Encode(map[string]any{
			"question": map[string]any{"role": "user", "content": req.Question},
			"answer": map[string]any{"role": "assistant", "content": "ATP [1].", "sources": []map[string]any{
				{"source": "bio.pdf", "page": 4, "text_preview": "ATP is...", "cited": true},
			}},
		})
	})
	mux.HandleFunc("GET /api/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{{"role": "user", "content": "q"}}})
	})
	c := newStub(t, mux)

	ex, err := c.Ask(context.Background(), "s1", "What is ATP?", 3)
	require.NoError(t, err)
	assert.Equal(t, "What is ATP?", ex.Question.Content)
	require.Len(t, ex.Answer.Sources, 1)
	assert.Equal(t, 4, ex.Answer.Sources[0].Page)
	assert.True(t, ex.Answer.Sources[0].Cited)

	msgs, err := c.Messages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestExportUsesServerFilename(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="chat_history_20240309_140507.json"`)
		w.Write([]byte(`{"export_date":"x","files":[],"messages":[]}`))
	})
	c := newStub(t, mux)

	name, data, err := c.Export(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "chat_history_20240309_140507.json", name)
	assert.JSONEq(t, `{"export_date":"x","files":[],"messages":[]}`, string(data))
}

func TestSessionsDocumentsAndStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"session_id":"s9"}`))
	})
	mux.HandleFunc("DELETE /api/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cleared":true}`))
	})
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[{"doc_id":"d1","filename":"a.pdf","chunks":4}]}`))
	})
	mux.HandleFunc("DELETE /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"doc_id":"d1","chunks_deleted":4}`))
	})
	mux.HandleFunc("DELETE /api/documents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents_deleted":2}`))
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files_processed":1,"model":"gemini-2.5-flash"}`))
	})
	c := newStub(t, mux)
	ctx := context.Background()

	id, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s9", id)
	require.NoError(t, c.ClearHistory(ctx, id))

	docs, err := c.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].Filename)

	n, err := c.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = c.ResetLibrary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", stats["model"])
}
