// Package tui is the terminal chat screen for pdfchat.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/pdfrag/internal/client"
	"github.com/dgallion1/pdfrag/internal/rag"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			MarginBottom(1)

	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			PaddingLeft(2)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0")).
			PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD93D"))
)

// Asker is the part of the API client the chat screen needs.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string, k int) (client.Exchange, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// Model is the bubbletea model for a chat session.
type Model struct {
	asker     Asker
	sessionID string
	k         int
	timeout   time.Duration

	input    string
	history  []client.Exchange
	pending  string
	err      error
	notice   string
	loading  bool
	quitting bool
	width    int
}

func NewModel(asker Asker, sessionID string, k int) *Model {
	return &Model{asker: asker, sessionID: sessionID, k: k, timeout: 2 * time.Minute, width: 80}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

type answerMsg struct {
	exchange client.Exchange
	err      error
}

type clearedMsg struct{ err error }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		}
		if m.loading {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyBackspace:
			if r := []rune(m.input); len(r) > 0 {
				m.input = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.input += " "
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		}
		return m, nil

	case answerMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pending = ""
		m.history = append(m.history, msg.exchange)
		return m, nil

	case clearedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.history = nil
		m.notice = "History cleared."
		return m, nil
	}

	return m, nil
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input)
	m.input = ""
	m.err = nil
	m.notice = ""
	switch text {
	case "":
		return m, nil
	case "/quit", "exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.loading = true
		return m, m.clear()
	}
	m.loading = true
	m.pending = text
	return m, m.ask(text)
}

func (m *Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		ex, err := m.asker.Ask(ctx, m.sessionID, question, m.k)
		return answerMsg{exchange: ex, err: err}
	}
}

func (m *Model) clear() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		return clearedMsg{err: m.asker.ClearHistory(ctx, m.sessionID)}
	}
}

func (m *Model) View() string {
	if m.quitting {
		return "\nBye!\n\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("PDF RAG chat"))
	b.WriteString("\n")

	width := max(m.width-4, 20)
	for _, ex := range m.history {
		b.WriteString(questionStyle.Render("You: " + ex.Question.Content))
		b.WriteString("\n")
		b.WriteString(answerStyle.Width(width).Render(ex.Answer.Content))
		b.WriteString("\n")
		for i, src := range ex.Answer.Sources {
			b.WriteString(sourceStyle.Width(width).Render(FormatSource(i+1, src)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.pending != "" {
		b.WriteString(questionStyle.Render("You: " + m.pending))
		b.WriteString("\n")
	}
	if m.loading {
		b.WriteString(loadingStyle.Render("Thinking..."))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(m.notice)
		b.WriteString("\n")
	}

	b.WriteString("\nAsk a question (Enter: send, /clear: clear history, Esc: quit)\n")
	b.WriteString("> " + m.input)
	if !m.loading {
		b.WriteString("_")
	}
	b.WriteString("\n")
	return b.String()
}

// FormatSource renders one numbered citation line.
func FormatSource(n int, src rag.Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", n, src.Source)
	if src.Page > 0 {
		fmt.Fprintf(&b, " (page %d)", src.Page)
	}
	if src.Cited {
		b.WriteString(" *")
	}
	if src.TextPreview != "" {
		b.WriteString("\n    ")
		b.WriteString(src.TextPreview)
	}
	return b.String()
}

// Run starts the chat screen on the alternate screen buffer.
func Run(asker Asker, sessionID string, k int) error {
	p := tea.NewProgram(NewModel(asker, sessionID, k), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
