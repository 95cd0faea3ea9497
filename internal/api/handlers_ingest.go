package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pdfrag/internal/parser"
	"github.com/dgallion1/pdfrag/internal/pipeline"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 10MB for form overhead.
	limit := s.cfg.MaxUploadBytes*int64(s.cfg.MaxFilesPerUpload) + 10*1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			jsonError(w, fmt.Sprintf("upload exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	if len(files) > s.cfg.MaxFilesPerUpload {
		jsonError(w, fmt.Sprintf("too many files: %d (max %d)", len(files), s.cfg.MaxFilesPerUpload), http.StatusBadRequest)
		return
	}

	chunkSize, chunkOverlap, err := s.chunkSettings(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	var queued int
	var queueErr error
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			})
			continue
		}

		f, err := fh.Open()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    "failed to open file",
			})
			continue
		}

		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    "failed to read file",
			})
			continue
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes),
			})
			continue
		}

		job := pipeline.NewJob(filename, data, chunkSize, chunkOverlap)
		if err := s.deps.Orchestrator.Submit(job); err != nil {
			if queueErr == nil && (errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped)) {
				queueErr = err
			}
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}
		queued++
		s.log.Info("upload queued", "job_id", job.ID, "doc_id", job.DocID, "filename", filename, "bytes", len(data))

		results = append(results, map[string]any{
			"filename": filename,
			"job_id":   job.ID,
			"doc_id":   job.DocID,
			"status":   pipeline.StatusQueued,
			"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
		})
	}

	// Nothing accepted because the pipeline cannot take work: the caller
	// should retry later rather than parse per-file results.
	if queued == 0 && queueErr != nil {
		w.Header().Set("Retry-After", "5")
		jsonError(w, queueErr.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

// chunkSettings reads optional per-upload chunk overrides, falling back to
// the configured defaults.
func (s *Server) chunkSettings(r *http.Request) (int, int, error) {
	size := s.cfg.DefaultChunkSize
	if v := r.FormValue("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("chunk_size must be a positive integer, got %q", v)
		}
		size = n
	}
	overlap := s.cfg.DefaultChunkOverlap
	if v := r.FormValue("chunk_overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("chunk_overlap must be a non-negative integer, got %q", v)
		}
		overlap = n
	}
	if overlap >= size {
		return 0, 0, fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size)
	}
	return size, overlap, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
