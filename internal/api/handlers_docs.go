package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

// handleListDocuments lists indexed documents, oldest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDeleteDocument deletes a document and all its chunks.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	removed, err := s.deps.Store.DeleteDocument(r.Context(), docID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("document deleted", "doc_id", docID, "chunks_deleted", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":         docID,
		"chunks_deleted": removed,
	})
}

// handleResetLibrary removes every document. Chat sessions are kept.
func (s *Server) handleResetLibrary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := s.deps.Store.ListDocuments(ctx)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.deps.Store.Reset(ctx); err != nil {
		jsonError(w, "failed to reset library: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Warn("document library reset", "documents_deleted", len(docs))
	writeJSON(w, http.StatusOK, map[string]any{"documents_deleted": len(docs)})
}
