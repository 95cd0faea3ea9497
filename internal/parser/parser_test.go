package parser

import (
	"testing"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"report.pdf", false},
		{"REPORT.PDF", false},
		{"notes.txt", false},
		{"readme.md", false},
		{"page.htm", false},
		{"memo.docx", false},
		{"sheet.xlsx", true},
		{"noext", true},
	}
	for _, tt := range tests {
		p, err := ForFile(tt.filename, Options{})
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.filename)
			}
			continue
		}
		if err != nil || p == nil {
			t.Errorf("%s: unexpected error %v", tt.filename, err)
		}
		if IsSupportedExtension(tt.filename) == tt.wantErr {
			t.Errorf("%s: IsSupportedExtension disagrees with ForFile", tt.filename)
		}
	}
}

func TestForFile_PDFFallbackOption(t *testing.T) {
	p, err := ForFile("a.pdf", Options{PDFFallbackPdftotext: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.(*PDFParser).FallbackPdftotext {
		t.Error("expected fallback option to be carried into the PDF parser")
	}
}

func TestSplitPages_TrailingFormFeed(t *testing.T) {
	pages := splitPages("one\ftwo\f\fthree\f")
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d: %q", len(pages), pages)
	}
	if pages[2] != "" {
		t.Errorf("expected blank third page, got %q", pages[2])
	}
	if splitPages("") != nil {
		t.Error("expected nil for empty output")
	}
}

func TestPagesToTree_KeepsPageNumbers(t *testing.T) {
	tree := pagesToTree("Doc", []string{"  intro ", "", "results"})
	if tree.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", tree.Pages)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected blank page to be skipped, got %d nodes", len(tree.Children))
	}
	if tree.Children[0].Page != 1 || tree.Children[0].Text != "intro" {
		t.Errorf("unexpected first node: %+v", tree.Children[0])
	}
	if tree.Children[1].Page != 3 {
		t.Errorf("expected page 3 after blank page, got %d", tree.Children[1].Page)
	}
}

func TestSectionBuilder_SiblingHeadingsCloseSections(t *testing.T) {
	b := newSectionBuilder()
	b.Paragraph("lead")
	b.Heading(2, "A")
	b.Paragraph("a text")
	b.Heading(3, "A.1")
	b.Paragraph("a1 text")
	b.Heading(1, "B")
	b.Heading(0, "ignored")
	b.Paragraph("b text")
	tree := b.Tree("T")

	if len(tree.Children) != 3 {
		t.Fatalf("expected lead, A, B at top level, got %d", len(tree.Children))
	}
	if tree.Children[0].Text != "lead" {
		t.Errorf("expected lead text first, got %+v", tree.Children[0])
	}
	a := tree.Children[1]
	if a.Title != "A" || a.Text != "a text" || len(a.Children) != 1 {
		t.Errorf("unexpected section A: %+v", a)
	}
	if tree.Children[2].Title != "B" || tree.Children[2].Text != "b text" {
		t.Errorf("unexpected section B: %+v", tree.Children[2])
	}
}
