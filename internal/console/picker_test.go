package console

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

var boards = []Choice{
	{Label: "arduino:avr:uno", Value: "arduino:avr:uno", Desc: "Arduino Uno"},
	{Label: "arduino:avr:nano", Value: "arduino:avr:nano", Desc: "Arduino Nano"},
	{Label: "esp8266com:esp8266:generic", Value: "esp8266com:esp8266:generic", Desc: "Generic ESP8266"},
}

func TestPickerFilters(t *testing.T) {
	p := NewPicker("Board", boards)
	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("esp")})

	if len(p.filtered) != 1 || p.filtered[0].Value != "esp8266com:esp8266:generic" {
		t.Fatalf("unexpected filter result %v", p.filtered)
	}
}

func TestPickerFiltersOnDescription(t *testing.T) {
	p := NewPicker("Port", []Choice{
		{Label: "/dev/ttyACM0", Value: "/dev/ttyACM0", Desc: "2341:0043 Arduino Uno"},
		{Label: "/dev/ttyS0", Value: "/dev/ttyS0"},
	})
	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("uno")})

	if len(p.filtered) != 1 || p.filtered[0].Value != "/dev/ttyACM0" {
		t.Fatalf("unexpected filter result %v", p.filtered)
	}
}

func TestPickerChooses(t *testing.T) {
	p := NewPicker("Board", boards)
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if cmd == nil {
		t.Fatal("expected quit after choosing")
	}
	if p.chosen == nil || p.chosen.Value != "arduino:avr:nano" {
		t.Fatalf("unexpected choice %v", p.chosen)
	}
}

func TestPickerCursorStaysInRange(t *testing.T) {
	p := NewPicker("Board", boards)
	for i := 0; i < 5; i++ {
		p.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if p.cursor != len(boards)-1 {
		t.Errorf("cursor ran past the end: %d", p.cursor)
	}
	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("esp")})
	if p.cursor != 0 {
		t.Errorf("cursor not clamped after filtering: %d", p.cursor)
	}
}

func TestPickerCancel(t *testing.T) {
	p := NewPicker("Port", []Choice{{Label: "COM3", Value: "COM3"}})
	p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !p.canceled || p.chosen != nil {
		t.Error("expected cancel without a choice")
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !fuzzyMatch("arduino:avr:uno", "avuno") {
		t.Error("expected in-order match")
	}
	if fuzzyMatch("arduino:avr:uno", "onu") {
		t.Error("out-of-order characters must not match")
	}
}
