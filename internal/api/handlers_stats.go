package api

import (
	"net/http"
)

// handleStats reports library and session counters alongside the active
// settings.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := s.deps.Store.ListDocuments(ctx)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	chunks, err := s.deps.Store.Count(ctx)
	if err != nil {
		jsonError(w, "failed to count chunks: "+err.Error(), http.StatusInternalServerError)
		return
	}
	files := make([]string, len(docs))
	for i, d := range docs {
		files[i] = d.Filename
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files_processed": len(docs),
		"files":           files,
		"chunks":          chunks,
		"sessions":        s.deps.Sessions.Len(),
		"chat_messages":   s.deps.Sessions.MessageCount(),
		"model":           s.deps.Engine.Model(),
		"embed_model":     s.deps.EmbedModel,
		"chunk_size":      s.cfg.DefaultChunkSize,
		"chunk_overlap":   s.cfg.DefaultChunkOverlap,
		"top_k":           s.deps.Engine.TopK(0),
		"max_top_k":       s.cfg.MaxTopK,
		"queue_depth":     s.deps.Orchestrator.QueueDepth(),
		"backend":         s.deps.Store.Name(),
	})
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.LLMStats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":       s.deps.Engine.Model(),
		"embed_model": s.deps.EmbedModel,
		"stats":       s.deps.LLMStats.Snapshot(),
	})
}
