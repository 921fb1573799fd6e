package selection

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/hardware"
)

// Manager owns the process-wide selection. All mutation goes through it and
// is persisted immediately; readers take a copy with Current.
type Manager struct {
	mu   sync.Mutex
	sel  Selection
	path string
}

// NewManager loads the selection stored at path. An empty path keeps the
// selection in memory only.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path, sel: Selection{Custom: map[string]string{}}}
	if path == "" {
		return m, nil
	}
	sel, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.sel = sel
	return m, nil
}

// Current returns a copy of the selection.
func (m *Manager) Current() Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel.Clone()
}

// SelectBoardKey validates key against idx and makes it the current board.
// Menu options given in the key replace the stored ones for those menus.
func (m *Manager) SelectBoardKey(idx *hardware.Index, key string) (*hardware.Board, error) {
	bk, err := ParseBoardKey(key)
	if err != nil {
		return nil, err
	}
	board, custom, err := bk.Resolve(idx)
	if err != nil {
		return nil, err
	}
	err = m.update(func(s *Selection) {
		s.Package = bk.Package
		s.Platform = bk.Platform
		s.Board = bk.Board
		for menu, entry := range custom {
			s.Custom[menu] = entry
		}
	})
	return board, err
}

// SelectPort sets the port identifier.
func (m *Manager) SelectPort(port string) error {
	return m.update(func(s *Selection) { s.Port = port })
}

// SelectProgrammer sets the programmer as "<package>:<id>".
func (m *Manager) SelectProgrammer(programmer string) error {
	return m.update(func(s *Selection) { s.Programmer = programmer })
}

// SelectOption stores the option of a menu for the given board.
func (m *Manager) SelectOption(board *hardware.Board, menuID, optionID string) error {
	if !board.HasMenuOption(menuID, optionID) {
		return &SelectionError{
			Key:    board.FQBN() + ":" + menuID + "=" + optionID,
			Reason: "unknown menu option",
		}
	}
	return m.update(func(s *Selection) { s.Custom[menuID] = board.OptionEntry(optionID) })
}

func (m *Manager) update(fn func(*Selection)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.sel)
	if m.path == "" {
		return nil
	}
	if err := Save(m.path, m.sel); err != nil {
		log.WithField("file", m.path).Errorf("saving selection: %v", err)
		return err
	}
	return nil
}
