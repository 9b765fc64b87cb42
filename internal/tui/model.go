package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Jaywestty/Anime-AI-Chatbot/internal/chat"
	"github.com/Jaywestty/Anime-AI-Chatbot/internal/models"
)

// ChatPort is the TUI-facing subset of a chat session.
type ChatPort interface {
	ProcessURL(ctx context.Context, url string) error
	Ask(ctx context.Context, question string) (models.Turn, error)
	Ready() bool
	ProcessedURL() string
	History() []models.Turn
}

const urlCommand = "/url"

type processedMsg struct {
	url string
	err error
}

type answerMsg struct {
	turn models.Turn
	err  error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	session  ChatPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	initialURL string
	status     string
	busy       bool
	ready      bool
}

// New creates the model; a non-empty url is processed on start.
func New(ctx context.Context, session ChatPort, url string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		session:    session,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		initialURL: strings.TrimSpace(url),
		status:     "Enter an anime page URL to get started.",
	}
	m.setPlaceholder()
	if m.initialURL != "" {
		m.busy = true
		m.status = "Processing " + m.initialURL
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.initialURL == "" {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.processCmd(m.initialURL))
}

func (m *Model) beginProcess(url string) tea.Cmd {
	m.busy = true
	m.status = "Processing " + url
	return tea.Batch(m.spinner.Tick, m.processCmd(url))
}

func (m Model) processCmd(url string) tea.Cmd {
	return func() tea.Msg {
		return processedMsg{url: url, err: m.session.ProcessURL(m.ctx, url)}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.session.Ask(m.ctx, question)
		return answerMsg{turn: turn, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ih := inputBoxStyle.GetFrameSize()
		_, ch := chatBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header lines, status, input box
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-ch)
		m.refresh()
		return m, nil

	case processedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "❌ Failed to process URL: " + msg.err.Error()
		} else {
			m.status = "✅ Processed " + msg.url + ". Ask away!"
		}
		m.setPlaceholder()
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		switch {
		case errors.Is(msg.err, chat.ErrNotReady):
			m.status = "Process a URL before chatting."
		case msg.err != nil:
			m.status = "❌ " + msg.err.Error()
		default:
			m.status = "Source: " + m.session.ProcessedURL()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if fields := strings.Fields(text); fields[0] == urlCommand {
		if len(fields) < 2 {
			m.status = "Usage: /url <address>"
			return m, nil
		}
		return m, m.beginProcess(fields[1])
	}
	if !m.session.Ready() {
		return m, m.beginProcess(text)
	}

	m.busy = true
	m.status = "Thinking..."
	m.showPending(text)
	return m, tea.Batch(m.spinner.Tick, m.askCmd(text))
}

func (m *Model) setPlaceholder() {
	if m.session.Ready() {
		m.input.Placeholder = "Ask about the page, or /url <address> to switch"
	} else {
		m.input.Placeholder = "https://..."
	}
}

// refresh redraws the transcript from the session history.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory(m.session.History()))
	m.viewport.GotoBottom()
}

// the question is not in the session history until Ask takes the lock
func (m *Model) showPending(question string) {
	history := append(m.session.History(), models.Turn{Role: models.RoleUser, Content: question})
	m.viewport.SetContent(m.renderHistory(history))
	m.viewport.GotoBottom()
}

func (m Model) renderHistory(turns []models.Turn) string {
	if len(turns) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case t.Role == models.RoleUser:
			b.WriteString(userStyle.Render("You"))
		case strings.HasPrefix(t.Content, models.ErrorPrefix):
			b.WriteString(errorStyle.Render("AnimeKIQ"))
		default:
			b.WriteString(botStyle.Render("AnimeKIQ"))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.Content))
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("🎌 AnimeKIQ")
	source := hintStyle.Render("No page loaded")
	if u := m.session.ProcessedURL(); u != "" {
		source = hintStyle.Render("Page: " + u)
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + source + "\n" +
		chatBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
