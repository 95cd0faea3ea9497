package chat

import (
	"bytes"
	"encoding/json"
	"time"
)

// Export is the downloadable chat history document.
type Export struct {
	ExportDate string    `json:"export_date"`
	Files      []string  `json:"files"`
	Messages   []Message `json:"messages"`
}

// ExportJSON renders the history with two-space indentation. Non-ASCII text
// and HTML characters are written as-is.
func ExportJSON(msgs []Message, files []string, now time.Time) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyHistory
	}
	if files == nil {
		files = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	err := enc.Encode(Export{
		ExportDate: now.Format(time.RFC3339),
		Files:      files,
		Messages:   msgs,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFilename names an export taken at now.
func ExportFilename(now time.Time) string {
	return "chat_history_" + now.Format("20060102_150405") + ".json"
}
