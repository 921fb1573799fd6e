// Package console is the terminal display for a monitor session.
package console

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/boardlink/internal/monitor"
	"github.com/buckleypaul/boardlink/internal/transport"
	"github.com/buckleypaul/boardlink/internal/ui"
	"github.com/buckleypaul/boardlink/internal/upload"
)

// maxOutput bounds the scrollback; older output is dropped first.
const maxOutput = 256 * 1024

// OutputMsg carries a batch of bytes received from the board.
type OutputMsg struct {
	Data []byte
}

type uploadDoneMsg struct {
	result *upload.Result
	err    error
}

// Actions are what the console can ask of the session.
type Actions struct {
	Send func(text string) error
	// Upload is nil when no artifact was given.
	Upload func() (*upload.Result, error)
}

type KeyMap struct {
	Send   key.Binding
	Upload key.Binding
	Clear  key.Binding
	Scroll key.Binding
	Quit   key.Binding
}

var Keys = KeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Upload: key.NewBinding(
		key.WithKeys("ctrl+u"),
		key.WithHelp("ctrl+u", "upload"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	Scroll: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "autoscroll"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

// ProgramSink forwards monitor batches into a running program.
func ProgramSink(p *tea.Program) monitor.Sink {
	return func(data []byte) { p.Send(OutputMsg{Data: data}) }
}

// Model is the monitor console.
type Model struct {
	port    string
	baud    int
	actions Actions

	output     strings.Builder
	viewport   viewport.Model
	input      textinput.Model
	autoscroll bool
	uploading  bool
	message    string

	width, height int
}

// New returns a console for port.
func New(port string, baud int, actions Actions) *Model {
	ti := textinput.New()
	ti.Placeholder = "message to send"
	ti.Prompt = ui.PromptStyle.Render("> ")
	ti.CharLimit = 512
	ti.Focus()

	return &Model{
		port:       port,
		baud:       baud,
		actions:    actions,
		viewport:   viewport.New(0, 0),
		input:      ti,
		autoscroll: true,
	}
}

func (m *Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case OutputMsg:
		m.appendOutput(msg.Data)
		return m, nil

	case uploadDoneMsg:
		m.uploading = false
		m.message = ui.UploadSummary(msg.result, msg.err)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, Keys.Upload):
			return m, m.startUpload()
		case key.Matches(msg, Keys.Clear):
			m.output.Reset()
			m.viewport.SetContent("")
			m.message = ""
			return m, nil
		case key.Matches(msg, Keys.Scroll):
			m.autoscroll = !m.autoscroll
			return m, nil
		case key.Matches(msg, Keys.Send):
			m.send()
			return m, nil
		}
		switch msg.String() {
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) send() {
	text := m.input.Value()
	m.input.Reset()
	if m.actions.Send == nil {
		return
	}
	if err := m.actions.Send(text); err != nil {
		m.message = ui.ErrorStyle.Render("Send failed: " + err.Error())
	}
}

func (m *Model) startUpload() tea.Cmd {
	if m.actions.Upload == nil {
		m.message = ui.WarningStyle.Render("No artifact given; start with -artifact to upload from here.")
		return nil
	}
	if m.uploading {
		return nil
	}
	m.uploading = true
	m.message = ui.DimStyle.Render("Uploading...")
	run := m.actions.Upload
	return func() tea.Msg {
		res, err := run()
		return uploadDoneMsg{result: res, err: err}
	}
}

func (m *Model) appendOutput(data []byte) {
	m.output.Write(data)
	if m.output.Len() > maxOutput {
		s := m.output.String()
		s = s[len(s)-maxOutput/2:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			// Never start inside a multibyte character.
			for len(s) > 0 && !utf8.RuneStart(s[0]) {
				s = s[1:]
			}
		}
		m.output.Reset()
		m.output.WriteString(s)
	}
	m.viewport.SetContent(m.output.String())
	if m.autoscroll {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(ui.PortBadge(transport.Classify(m.port)) + " " +
		ui.Title(fmt.Sprintf("Monitor %s @ %d", m.port, m.baud)))
	b.WriteString("\n")

	note := ""
	if !m.autoscroll {
		note = "autoscroll off"
	}
	b.WriteString(ui.Panel("Output", note, m.viewport.View(), m.width, m.viewport.Height+2, !m.uploading))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.message != "" {
		b.WriteString(m.message + "\n")
	}

	b.WriteString(ui.KeyHints(
		"enter", "send",
		"ctrl+u", "upload",
		"ctrl+l", "clear",
		"ctrl+s", "autoscroll",
		"esc", "quit",
	))
	return b.String()
}

// SetSize lays out the viewport for a w by h terminal.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	vpHeight := h - 9
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = w - 4
	m.viewport.Height = vpHeight
	m.input.Width = w - 4
}

// Output returns everything currently in the scrollback.
func (m *Model) Output() string { return m.output.String() }
