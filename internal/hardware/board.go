package hardware

import (
	"strings"

	"github.com/arduino/go-properties-orderedmap"
)

// Board is a concrete target definition from boards.txt.
type Board struct {
	ID         string
	Platform   *Platform
	Properties *properties.Map // base preferences, without "menu.*" keys

	menus *properties.Map // "<menu>.<option>[.<key>]" entries
}

// Option is a selectable value of a board custom menu.
type Option struct {
	ID    string
	Label string
}

func newBoard(id string, platform *Platform, definition *properties.Map) *Board {
	base := properties.NewMap()
	for _, k := range definition.Keys() {
		if strings.HasPrefix(k, "menu.") {
			continue
		}
		base.Set(k, definition.Get(k))
	}
	return &Board{
		ID:         id,
		Platform:   platform,
		Properties: base,
		menus:      definition.SubTree("menu"),
	}
}

// Name returns the display name from the "name" preference.
func (b *Board) Name() string {
	return b.Properties.Get("name")
}

// MenuIDs returns the custom menus this board declares, in declaration order.
func (b *Board) MenuIDs() []string {
	return b.menus.FirstLevelKeys()
}

// HasMenu reports whether the board declares options for menuID.
func (b *Board) HasMenu(menuID string) bool {
	return b.menus.SubTree(menuID).Size() > 0
}

// MenuOptions returns the options of a menu in declaration order.
func (b *Board) MenuOptions(menuID string) []Option {
	entries := b.menus.SubTree(menuID)
	var res []Option
	for _, id := range entries.FirstLevelKeys() {
		res = append(res, Option{ID: id, Label: entries.Get(id)})
	}
	return res
}

// HasMenuOption reports whether optionID is a declared value of menuID.
func (b *Board) HasMenuOption(menuID, optionID string) bool {
	return b.menus.ContainsKey(menuID + "." + optionID)
}

// MenuLabel returns the label of an option.
func (b *Board) MenuLabel(menuID, optionID string) string {
	return b.menus.Get(menuID + "." + optionID)
}

// MenuOptionProperties returns the override fragment of an option.
func (b *Board) MenuOptionProperties(menuID, optionID string) *properties.Map {
	return b.menus.SubTree(menuID + "." + optionID)
}

// OptionEntry builds the persisted value of a menu choice for this board.
func (b *Board) OptionEntry(optionID string) string {
	return b.ID + "_" + optionID
}

// EffectivePreferences returns the base preferences overlaid with the
// selected option of each menu. custom maps a menu id to its persisted
// entry ("<board>_<option>"); entries for other boards are ignored.
// Menus are applied in declaration order, so when two menus set the same
// key the one declared later wins.
func (b *Board) EffectivePreferences(custom map[string]string) *properties.Map {
	prefs := b.Properties.Clone()
	name := prefs.Get("name")
	prefix := b.ID + "_"
	for _, menuID := range b.MenuIDs() {
		entry, ok := custom[menuID]
		if !ok || !strings.HasPrefix(entry, prefix) {
			continue
		}
		optionID := strings.TrimPrefix(entry, prefix)
		if !b.HasMenuOption(menuID, optionID) {
			continue
		}
		prefs.Merge(b.MenuOptionProperties(menuID, optionID))
		name += ", " + b.MenuLabel(menuID, optionID)
	}
	prefs.Set("name", name)
	return prefs
}

// FQBN returns "package:architecture:board".
func (b *Board) FQBN() string {
	return b.Platform.Package.ID + ":" + b.Platform.ID + ":" + b.ID
}
