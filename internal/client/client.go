// Package client talks to the pdfrag HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/pdfrag/internal/chat"
	"github.com/dgallion1/pdfrag/internal/pipeline"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

// Client communicates with the pdfrag HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Answers can take a while when Gemini is retrying.
			Timeout: 2 * time.Minute,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// UploadFile is one file in a multipart upload.
type UploadFile struct {
	Name string
	Data io.Reader
}

// UploadOptions override the server's chunk settings. ChunkOverlap is sent
// when positive or when SetOverlap is true, so zero overlap can be requested.
type UploadOptions struct {
	ChunkSize    int
	ChunkOverlap int
	SetOverlap   bool
}

// UploadResult is the per-file outcome of an upload.
type UploadResult struct {
	Filename string `json:"filename"`
	JobID    string `json:"job_id,omitempty"`
	DocID    string `json:"doc_id,omitempty"`
	Status   string `json:"status,omitempty"`
	PollURL  string `json:"poll_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Upload sends files for ingestion and returns the queued jobs.
func (c *Client) Upload(ctx context.Context, files []UploadFile, opts UploadOptions) ([]UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if opts.ChunkSize > 0 {
		mw.WriteField("chunk_size", strconv.Itoa(opts.ChunkSize))
	}
	if opts.SetOverlap || opts.ChunkOverlap > 0 {
		mw.WriteField("chunk_overlap", strconv.Itoa(opts.ChunkOverlap))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(fw, f.Data); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out struct {
		Jobs []UploadResult `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/documents", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return out.Jobs, nil
}

// Job fetches a job snapshot.
func (c *Client) Job(ctx context.Context, jobID string) (pipeline.JobSnapshot, error) {
	var snap pipeline.JobSnapshot
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID), &snap); err != nil {
		return snap, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return snap, nil
}

// WaitJob polls until the job reaches a terminal status or ctx is done.
func (c *Client) WaitJob(ctx context.Context, jobID string, interval time.Duration) (pipeline.JobSnapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := c.Job(ctx, jobID)
		if err != nil {
			return snap, err
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	var out struct {
		Documents []vectorstore.Document `json:"documents"`
	}
	if err := c.getJSON(ctx, "/api/documents", &out); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out.Documents, nil
}

// DeleteDocument removes a document and returns how many chunks went with it.
func (c *Client) DeleteDocument(ctx context.Context, docID string) (int, error) {
	var out struct {
		ChunksDeleted int `json:"chunks_deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(docID), "", nil, &out); err != nil {
		return 0, fmt.Errorf("delete document %s: %w", docID, err)
	}
	return out.ChunksDeleted, nil
}

// ResetLibrary removes every document and returns how many there were.
func (c *Client) ResetLibrary(ctx context.Context) (int, error) {
	var out struct {
		DocumentsDeleted int `json:"documents_deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/documents", "", nil, &out); err != nil {
		return 0, fmt.Errorf("reset library: %w", err)
	}
	return out.DocumentsDeleted, nil
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", "", nil, &out); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return out.SessionID, nil
}

// Exchange is one question and its answer.
type Exchange struct {
	Question chat.Message `json:"question"`
	Answer   chat.Message `json:"answer"`
}

// Ask sends a question to a session; k <= 0 uses the server default.
func (c *Client) Ask(ctx context.Context, sessionID, question string, k int) (Exchange, error) {
	body, err := json.Marshal(map[string]any{"question": question, "k": k})
	if err != nil {
		return Exchange{}, err
	}
	var out Exchange
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "messages"), "application/json", bytes.NewReader(body), &out); err != nil {
		return Exchange{}, fmt.Errorf("ask: %w", err)
	}
	return out, nil
}

func (c *Client) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, c.sessionPath(sessionID, "messages"), &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out.Messages, nil
}

func (c *Client) ClearHistory(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, c.sessionPath(sessionID, "messages"), "", nil, nil); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Export downloads a session's history, returning the server-suggested
// filename and the JSON document.
func (c *Client) Export(ctx context.Context, sessionID string) (string, []byte, error) {
	resp, err := c.send(ctx, http.MethodGet, c.sessionPath(sessionID, "export"), "", nil)
	if err != nil {
		return "", nil, fmt.Errorf("export: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}
	filename := "chat_history.json"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, data, nil
}

// Stats returns the server's library and session counters.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, "/api/stats", &out); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) sessionPath(sessionID, tail string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/" + tail
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send returns the response for 2xx statuses; any other status becomes an
// *APIError and the body is closed.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(respBody))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}
