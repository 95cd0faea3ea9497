package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pdfrag/internal/chat"
	"github.com/dgallion1/pdfrag/internal/llm"
	"github.com/dgallion1/pdfrag/internal/rag"
)

type askRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Sessions.Messages(chi.URLParam(r, "sessionID"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleAsk records the question, answers it from the library and records
// the answer. A failed query leaves the question in the history.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		jsonError(w, rag.ErrEmptyQuestion.Error(), http.StatusBadRequest)
		return
	}

	question := chat.NewMessage(chat.RoleUser, req.Question, nil)
	if err := s.deps.Sessions.Append(sessionID, question); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	ans, err := s.deps.Engine.Query(r.Context(), req.Question, req.K)
	if err != nil {
		code := queryErrorStatus(err)
		s.log.Error("query failed", "session_id", sessionID, "status", code, "error", err)
		jsonError(w, err.Error(), code)
		return
	}

	answer := chat.NewMessage(chat.RoleAssistant, ans.Answer, ans.Sources)
	if err := s.deps.Sessions.Append(sessionID, answer); err != nil {
		// Session evicted or deleted mid-query.
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question": question,
		"answer":   answer,
	})
}

func queryErrorStatus(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrNoDocuments):
		return http.StatusConflict
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.deps.Sessions.Clear(sessionID); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "cleared": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Sessions.Messages(chi.URLParam(r, "sessionID"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	docs, err := s.deps.Store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	files := make([]string, len(docs))
	for i, d := range docs {
		files[i] = d.Filename
	}

	now := time.Now()
	data, err := chat.ExportJSON(msgs, files, now)
	if errors.Is(err, chat.ErrEmptyHistory) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		jsonError(w, "failed to export: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, chat.ExportFilename(now)))
	w.Write(data)
}
