package selection

import (
	"fmt"
	"strings"

	"github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"

	"github.com/buckleypaul/boardlink/internal/hardware"
)

// ErrIncomplete is returned when no board is selected.
var ErrIncomplete = errors.New("no board selected")

// Target is a selection resolved against the hardware index.
type Target struct {
	Package    *hardware.Package
	Platform   *hardware.Platform
	Board      *hardware.Board
	Programmer *hardware.Programmer // nil when none selected
	Custom     map[string]string

	// Preferences is the effective board map for the selected options.
	Preferences *properties.Map
}

// Resolve looks up every id of sel. It is called each time an action needs
// the target so menu overlays always reflect the latest choice.
func Resolve(idx *hardware.Index, sel Selection) (*Target, error) {
	if !sel.HasBoard() {
		return nil, ErrIncomplete
	}
	key := &BoardKey{Package: sel.Package, Platform: sel.Platform, Board: sel.Board}
	pkg := idx.Package(sel.Package)
	if pkg == nil {
		return nil, &SelectionError{Key: key.String(), Reason: fmt.Sprintf("unknown package %q", sel.Package)}
	}
	platform := pkg.Platforms[sel.Platform]
	if platform == nil {
		return nil, &SelectionError{Key: key.String(), Reason: fmt.Sprintf("unknown architecture %q", sel.Platform)}
	}
	board := platform.Boards[sel.Board]
	if board == nil {
		return nil, &SelectionError{Key: key.String(), Reason: fmt.Sprintf("unknown board %q", sel.Board)}
	}

	t := &Target{
		Package:     pkg,
		Platform:    platform,
		Board:       board,
		Custom:      sel.Clone().Custom,
		Preferences: board.EffectivePreferences(sel.Custom),
	}
	if sel.Programmer != "" {
		parts := strings.SplitN(sel.Programmer, ":", 2)
		if len(parts) != 2 {
			return nil, &SelectionError{Key: sel.Programmer, Reason: "expected package:programmer"}
		}
		t.Programmer = idx.Programmer(parts[0], sel.Platform, parts[1])
		if t.Programmer == nil {
			return nil, &SelectionError{Key: sel.Programmer, Reason: "unknown programmer"}
		}
	}
	return t, nil
}

// UploadPreferences returns the platform properties overlaid with the
// effective board preferences and the runtime paths tools refer to.
func (t *Target) UploadPreferences() *properties.Map {
	prefs := t.Platform.Properties.Clone()
	prefs.Merge(t.Preferences)
	prefs.Set("runtime.platform.path", t.Platform.Folder.String())
	prefs.Set("runtime.hardware.path", t.Package.Folder.Parent().String())
	return prefs
}

// FQBN renders the board key of the target including chosen options.
func (t *Target) FQBN() string {
	key := &BoardKey{Package: t.Package.ID, Platform: t.Platform.ID, Board: t.Board.ID}
	prefix := t.Board.ID + "_"
	for _, menu := range t.Board.MenuIDs() {
		entry, ok := t.Custom[menu]
		if !ok || !strings.HasPrefix(entry, prefix) {
			continue
		}
		value := strings.TrimPrefix(entry, prefix)
		if t.Board.HasMenuOption(menu, value) {
			key.Options = append(key.Options, KeyOption{Menu: menu, Value: value})
		}
	}
	return key.String()
}
