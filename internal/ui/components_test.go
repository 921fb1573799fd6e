package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/boardlink/internal/transport"
)

func TestPanelWidth(t *testing.T) {
	for _, note := range []string{"", "autoscroll off"} {
		out := Panel("Output", note, "hello\nworld", 40, 0, true)
		lines := strings.Split(out, "\n")
		if len(lines) != 4 {
			t.Fatalf("expected top, two content lines and bottom, got %d:\n%s", len(lines), out)
		}
		for i, l := range lines {
			if w := lipgloss.Width(l); w != 40 {
				t.Errorf("note %q line %d is %d wide: %q", note, i, w, l)
			}
		}
		if !strings.Contains(lines[0], "Output") || !strings.Contains(lines[0], note) {
			t.Errorf("unexpected top border %q", lines[0])
		}
	}
}

func TestPanelHeight(t *testing.T) {
	out := Panel("Output", "", "one line", 30, 8, false)
	if n := len(strings.Split(out, "\n")); n != 8 {
		t.Errorf("expected 8 lines, got %d", n)
	}
}

func TestKeyHints(t *testing.T) {
	got := KeyHints("enter", "send", "esc", "quit", "dangling")
	if !strings.Contains(got, "enter") || !strings.Contains(got, ":quit") || strings.Contains(got, "dangling") {
		t.Errorf("unexpected hints %q", got)
	}
}

func TestPortBadge(t *testing.T) {
	if !strings.Contains(PortBadge(transport.Classify("192.168.1.5")), "NET") {
		t.Error("expected network badge")
	}
	if !strings.Contains(PortBadge(transport.Classify("/dev/ttyUSB0")), "SERIAL") {
		t.Error("expected serial badge")
	}
}
