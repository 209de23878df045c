// Package tui is the terminal chat interface.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/pdf"
	"github.com/flynn-ai/tripwise/pkg/protocol"
)

const help = "Enter a question. Commands: /new starts a session, /clear forgets this one, " +
	"/pdf saves the latest plan, /quit exits."

type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entryInfo
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// Messages
type (
	answerMsg struct {
		resp *protocol.QueryResponse
		err  error
	}
	progressMsg string
	clearedMsg  struct{ err error }
	exportedMsg struct {
		path string
		err  error
	}
)

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx       context.Context
	asker     Asker
	sessionID string
	outDir    string

	input    textinput.Model
	view     viewport.Model
	spinner  spinner.Model
	entries  []entry
	status   string
	busy     bool
	waiting  bool // a waitProgress command is outstanding
	progress chan string
	width    int
	ready    bool
	now      func() time.Time
}

// New creates the chat model. sessionID may be empty; outDir receives
// exported PDFs.
func New(ctx context.Context, asker Asker, sessionID, outDir string) Model {
	in := textinput.New()
	in.Placeholder = "Plan a 4-day trip to Lisbon on a medium budget"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:       ctx,
		asker:     asker,
		sessionID: sessionID,
		outDir:    outDir,
		input:     in,
		view:      viewport.New(80, 20),
		spinner:   sp,
		entries:   []entry{{kind: entryInfo, text: help}},
		progress:  make(chan string, 16),
		width:     80,
		now:       time.Now,
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, asker Asker, sessionID, outDir string) error {
	p := tea.NewProgram(New(ctx, asker, sessionID, outDir), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case progressMsg:
		m.waiting = false
		if m.busy {
			m.status = string(msg)
			return m, m.waitProgress()
		}
		return m, nil

	case answerMsg:
		m.busy = false
		m.status = ""
		if msg.err != nil {
			m.add(entryError, describe(msg.err))
		} else {
			m.sessionID = msg.resp.SessionID
			m.add(entryAgent, msg.resp.Answer)
			m.add(entryInfo, summary(msg.resp))
		}
		return m, nil

	case clearedMsg:
		m.busy = false
		if msg.err != nil {
			m.add(entryError, describe(msg.err))
		} else {
			m.add(entryInfo, "Session cleared.")
		}
		return m, nil

	case exportedMsg:
		m.busy = false
		if msg.err != nil {
			m.add(entryError, describe(msg.err))
		} else {
			m.add(entryInfo, "Saved "+msg.path)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the input line.
func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}

	switch line {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/new":
		m.sessionID = ""
		m.add(entryInfo, "Started a new session.")
		return m, nil
	case "/clear":
		if m.sessionID == "" {
			m.add(entryInfo, "Nothing to clear yet.")
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.clear(m.sessionID))
	case "/pdf":
		if m.sessionID == "" {
			m.add(entryInfo, "Ask for a plan first.")
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.export(m.sessionID))
	}
	if strings.HasPrefix(line, "/") {
		m.add(entryError, "Unknown command "+line+". "+help)
		return m, nil
	}

	m.add(entryUser, line)
	m.busy = true
	m.status = "thinking"
	cmds := []tea.Cmd{m.spinner.Tick, m.ask(m.sessionID, line)}
	if !m.waiting {
		cmds = append(cmds, m.waitProgress())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) ask(sessionID, question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.asker.Ask(m.ctx, sessionID, question, func(s string) {
			select {
			case m.progress <- s:
			default:
			}
		})
		return answerMsg{resp: resp, err: err}
	}
}

// waitProgress must be called on the copy that is returned to the program.
func (m *Model) waitProgress() tea.Cmd {
	m.waiting = true
	return func() tea.Msg {
		select {
		case s := <-m.progress:
			return progressMsg(s)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) clear(sessionID string) tea.Cmd {
	return func() tea.Msg {
		return clearedMsg{err: m.asker.Clear(m.ctx, sessionID)}
	}
}

func (m Model) export(sessionID string) tea.Cmd {
	return func() tea.Msg {
		data, err := m.asker.Export(m.ctx, sessionID)
		if err != nil {
			return exportedMsg{err: err}
		}
		path := filepath.Join(m.outDir, pdf.Filename(m.now()))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportedMsg{err: errors.Wrap(err, errors.CodeFileWriteFailed, "cannot write "+path, errors.CategorySystem)}
		}
		return exportedMsg{path: path}
	}
}

func (m *Model) add(kind entryKind, text string) {
	m.entries = append(m.entries, entry{kind: kind, text: text})
	m.refresh()
}

func (m *Model) refresh() {
	m.view.SetContent(m.transcript())
	m.view.GotoBottom()
}

func (m Model) transcript() string {
	var sb strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch e.kind {
		case entryUser:
			sb.WriteString(userStyle.Render("You: ") + e.text)
		case entryAgent:
			sb.WriteString(renderMarkdown(e.text, m.width))
		case entryInfo:
			sb.WriteString(infoStyle.Render(e.text))
		case entryError:
			sb.WriteString(errorStyle.Render("Error: " + e.text))
		}
	}
	return sb.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Starting tripwise..."
	}

	status := statusStyle.Render(m.footer())
	if m.busy {
		status = m.spinner.View() + " " + statusStyle.Render(m.status)
	}
	return m.view.View() + "\n" + status + "\n" + m.input.View()
}

func (m Model) footer() string {
	if m.sessionID == "" {
		return "new session"
	}
	return "session " + m.sessionID
}

func summary(resp *protocol.QueryResponse) string {
	meta := resp.Metadata
	s := fmt.Sprintf("%s · %d rounds · %d tools · %d tokens · %.1fs",
		meta.Model, meta.Rounds, len(meta.ToolCalls), meta.TokensUsed, float64(meta.DurationMs)/1000)
	if meta.Cost > 0 {
		s += fmt.Sprintf(" · $%.4f", meta.Cost)
	}
	return s
}

func describe(err error) string {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	s := appErr.Message
	for _, hint := range appErr.Suggestions {
		s += "\n  - " + hint
	}
	return s
}
