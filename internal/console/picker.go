package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/buckleypaul/boardlink/internal/ui"
)

// ErrPickCanceled is returned by Pick when the user leaves without choosing.
var ErrPickCanceled = errors.New("selection canceled")

const maxPickerItems = 12

// Choice is one entry of a picker: a board FQBN, a port or a programmer.
type Choice struct {
	Label string
	Value string
	Desc  string
}

// Picker is a filtered list the user narrows by typing.
type Picker struct {
	title    string
	choices  []Choice
	filtered []Choice
	input    textinput.Model
	cursor   int
	width    int

	chosen   *Choice
	canceled bool
}

// NewPicker returns a picker over choices.
func NewPicker(title string, choices []Choice) *Picker {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = ui.PromptStyle.Render("> ")
	ti.CharLimit = 128
	ti.Focus()

	p := &Picker{title: title, choices: choices, input: ti, width: 64}
	p.filter()
	return p
}

// Pick runs a picker on the terminal and returns the chosen value.
func Pick(title string, choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", errors.Errorf("nothing to choose for %s", strings.ToLower(title))
	}
	final, err := tea.NewProgram(NewPicker(title, choices)).Run()
	if err != nil {
		return "", err
	}
	p := final.(*Picker)
	if p.chosen == nil {
		return "", ErrPickCanceled
	}
	return p.chosen.Value, nil
}

func (p *Picker) Init() tea.Cmd { return textinput.Blink }

func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		return p, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			p.canceled = true
			return p, tea.Quit
		case "enter":
			if len(p.filtered) == 0 {
				return p, nil
			}
			c := p.filtered[p.cursor]
			p.chosen = &c
			return p, tea.Quit
		case "up", "ctrl+p":
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil
		case "down", "ctrl+n":
			if p.cursor < len(p.filtered)-1 {
				p.cursor++
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	p.filter()
	return p, cmd
}

func (p *Picker) View() string {
	if p.chosen != nil || p.canceled {
		return ""
	}
	boxWidth := min(max(p.width-4, 30), 72)
	inner := boxWidth - 4

	var b strings.Builder
	p.input.Width = inner - 3
	b.WriteString(p.input.View() + "\n\n")

	start, end := p.window()
	selected := lipgloss.NewStyle().Foreground(ui.Primary).Bold(true)
	for i := start; i < end; i++ {
		c := p.filtered[i]
		line := c.Label
		if c.Desc != "" {
			line += "  " + ui.DimStyle.Render(c.Desc)
		}
		if i == p.cursor {
			b.WriteString(selected.Render("> "+c.Label))
			if c.Desc != "" {
				b.WriteString("  " + ui.DimStyle.Render(c.Desc))
			}
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if len(p.filtered) == 0 {
		b.WriteString(ui.DimStyle.Render("  No matches") + "\n")
	}
	b.WriteString("\n" + ui.DimStyle.Render(fmt.Sprintf("(%d/%d)  enter:choose  esc:cancel", len(p.filtered), len(p.choices))))

	return ui.Title(p.title) + "\n" + lipgloss.NewStyle().
		Width(boxWidth).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ui.Primary).
		Padding(0, 1).
		Render(b.String())
}

// window returns the visible slice of filtered around the cursor.
func (p *Picker) window() (int, int) {
	visible := min(maxPickerItems, len(p.filtered))
	start := 0
	if p.cursor >= visible {
		start = p.cursor - visible + 1
	}
	return start, start + visible
}

func (p *Picker) filter() {
	query := strings.ToLower(p.input.Value())
	p.filtered = p.filtered[:0]
	for _, c := range p.choices {
		if query == "" || fuzzyMatch(strings.ToLower(c.Label+" "+c.Desc), query) {
			p.filtered = append(p.filtered, c)
		}
	}
	p.cursor = max(0, min(p.cursor, len(p.filtered)-1))
}

// fuzzyMatch reports whether the bytes of query appear in s in order.
func fuzzyMatch(s, query string) bool {
	qi := 0
	for i := 0; i < len(s) && qi < len(query); i++ {
		if s[i] == query[qi] {
			qi++
		}
	}
	return qi == len(query)
}
