package console

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/boardlink/internal/upload"
)

func typeText(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestConsoleShowsOutput(t *testing.T) {
	m := New("/dev/ttyACM0", 9600, Actions{})
	m.SetSize(80, 24)

	m.Update(OutputMsg{Data: []byte("temp=21.5\n")})
	m.Update(OutputMsg{Data: []byte("temp=21.6\n")})

	if m.Output() != "temp=21.5\ntemp=21.6\n" {
		t.Fatalf("unexpected output %q", m.Output())
	}
	if view := m.View(); !strings.Contains(view, "temp=21.6") || !strings.Contains(view, "/dev/ttyACM0 @ 9600") {
		t.Errorf("view missing output or header:\n%s", view)
	}
}

func TestConsoleSendsInput(t *testing.T) {
	var sent []string
	m := New("COM3", 115200, Actions{Send: func(text string) error {
		sent = append(sent, text)
		return nil
	}})

	typeText(m, "reset")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if len(sent) != 1 || sent[0] != "reset" {
		t.Fatalf("expected reset sent, got %v", sent)
	}
	if m.input.Value() != "" {
		t.Error("expected input cleared after send")
	}
}

func TestConsoleSendErrorShowsMessage(t *testing.T) {
	m := New("COM3", 9600, Actions{Send: func(string) error { return errors.New("device gone") }})
	typeText(m, "x")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.message, "device gone") {
		t.Errorf("unexpected message %q", m.message)
	}
}

func TestConsoleUpload(t *testing.T) {
	calls := 0
	m := New("/dev/ttyACM0", 9600, Actions{Upload: func() (*upload.Result, error) {
		calls++
		return &upload.Result{Success: true, Size: 924, MaxSize: 32256}, nil
	}})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
	if cmd == nil {
		t.Fatal("expected upload command")
	}
	if _, again := m.Update(tea.KeyMsg{Type: tea.KeyCtrlU}); again != nil {
		t.Error("second ctrl+u while uploading must be ignored")
	}

	m.Update(cmd())
	if calls != 1 {
		t.Errorf("expected one upload, got %d", calls)
	}
	if m.uploading {
		t.Error("expected upload finished")
	}
	if !strings.Contains(m.message, "Done uploading") {
		t.Errorf("unexpected message %q", m.message)
	}
}

func TestConsoleUploadWithoutArtifact(t *testing.T) {
	m := New("/dev/ttyACM0", 9600, Actions{})
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlU}); cmd != nil {
		t.Error("expected no upload without artifact")
	}
	if !strings.Contains(m.message, "No artifact") {
		t.Errorf("unexpected message %q", m.message)
	}
}

func TestConsoleScrollbackIsBounded(t *testing.T) {
	m := New("COM3", 9600, Actions{})
	line := []byte(strings.Repeat("x", 99) + "\n")
	for i := 0; i < 4000; i++ {
		m.Update(OutputMsg{Data: line})
	}
	if n := len(m.Output()); n > maxOutput {
		t.Errorf("scrollback grew to %d bytes", n)
	}
	if !strings.HasPrefix(m.Output(), "xxx") {
		t.Error("expected trimming on a line boundary")
	}
}

func TestConsoleClear(t *testing.T) {
	m := New("COM3", 9600, Actions{})
	m.Update(OutputMsg{Data: []byte("old\n")})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if m.Output() != "" {
		t.Errorf("expected cleared output, got %q", m.Output())
	}
}

func TestConsoleTrimKeepsWholeCharacters(t *testing.T) {
	m := New("/dev/ttyACM0", 9600, Actions{})
	m.SetSize(80, 24)

	// 3-byte characters with no newline to cut at.
	m.Update(OutputMsg{Data: []byte(strings.Repeat("温", 100000))})

	out := m.Output()
	if len(out) > maxOutput {
		t.Fatalf("output not trimmed: %d bytes", len(out))
	}
	if !utf8.ValidString(out) || !strings.HasPrefix(out, "温") {
		t.Errorf("trim split a character: %q...", out[:min(len(out), 8)])
	}
}
