package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/pdfrag/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser extracts text page by page so chunks can cite their page. It
// tries the Go library first, then falls back to pdftotext if enabled.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	// ledongthuc/pdf requires a ReaderAt+size, so we spool to a temp file.
	tmp, err := os.CreateTemp("", "pdfrag-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	title, pages, err := readPDFPages(tmpPath)
	if err != nil && p.FallbackPdftotext {
		var out string
		out, err = runPdftotext(tmpPath)
		if err == nil {
			pages = splitPages(out)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	if title == "" {
		title = stem(filename)
	}
	return pagesToTree(title, pages), nil
}

// pagesToTree keeps page numbering stable: a blank page still consumes its
// number even though it yields no node.
func pagesToTree(title string, pages []string) *doctree.DocTree {
	tree := &doctree.DocTree{Title: title, Pages: len(pages)}
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Text: text,
			Page: i + 1,
		})
	}
	return tree
}

func readPDFPages(path string) (string, []string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	title := strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	extracted := 0
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
		extracted++
	}
	if numPages > 0 && extracted == 0 {
		return title, nil, fmt.Errorf("no text extracted from %d pages", numPages)
	}
	return title, pages, nil
}

func runPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates the
// last page with a form feed too, which would otherwise add a phantom page.
func splitPages(text string) []string {
	text = strings.TrimSuffix(text, "\f")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\f")
}
