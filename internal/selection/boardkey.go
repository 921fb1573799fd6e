package selection

import (
	"fmt"
	"strings"

	"github.com/buckleypaul/boardlink/internal/hardware"
)

// SelectionError reports a board selection that is malformed or does not
// resolve against the loaded hardware.
type SelectionError struct {
	Key    string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid board selection %q: %s", e.Key, e.Reason)
}

// BoardKey is a parsed "package:architecture:board[:opt=val,...]" string.
type BoardKey struct {
	Package  string
	Platform string
	Board    string
	Options  []KeyOption
}

// KeyOption is a single "menu=option" pair of a BoardKey.
type KeyOption struct {
	Menu  string
	Value string
}

// ParseBoardKey splits a board selection key. It only checks syntax; use
// Resolve to validate the ids against the hardware index.
func ParseBoardKey(s string) (*BoardKey, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return nil, &SelectionError{Key: s, Reason: "expected package:architecture:board[:options]"}
	}
	for i, name := range []string{"package", "architecture", "board"} {
		if parts[i] == "" {
			return nil, &SelectionError{Key: s, Reason: "empty " + name}
		}
	}
	key := &BoardKey{Package: parts[0], Platform: parts[1], Board: parts[2]}
	if len(parts) < 4 {
		return key, nil
	}
	for _, opt := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, &SelectionError{Key: s, Reason: fmt.Sprintf("invalid option %q, expected menu=value", opt)}
		}
		key.Options = append(key.Options, KeyOption{Menu: kv[0], Value: kv[1]})
	}
	return key, nil
}

// String renders the key back to its textual form.
func (k *BoardKey) String() string {
	s := k.Package + ":" + k.Platform + ":" + k.Board
	if len(k.Options) == 0 {
		return s
	}
	opts := make([]string, 0, len(k.Options))
	for _, o := range k.Options {
		opts = append(opts, o.Menu+"="+o.Value)
	}
	return s + ":" + strings.Join(opts, ",")
}

// Resolve looks the key up in idx. It returns the board and the custom menu
// entries ("custom_<menu>" values) the options translate to.
func (k *BoardKey) Resolve(idx *hardware.Index) (*hardware.Board, map[string]string, error) {
	if idx.Package(k.Package) == nil {
		return nil, nil, &SelectionError{Key: k.String(), Reason: fmt.Sprintf("unknown package %q", k.Package)}
	}
	if idx.Platform(k.Package, k.Platform) == nil {
		return nil, nil, &SelectionError{Key: k.String(), Reason: fmt.Sprintf("unknown architecture %q", k.Platform)}
	}
	board := idx.Board(k.Package, k.Platform, k.Board)
	if board == nil {
		return nil, nil, &SelectionError{Key: k.String(), Reason: fmt.Sprintf("unknown board %q", k.Board)}
	}
	custom := map[string]string{}
	for _, o := range k.Options {
		if !board.HasMenu(o.Menu) {
			return nil, nil, &SelectionError{Key: k.String(), Reason: fmt.Sprintf("board %s has no menu %q", board.ID, o.Menu)}
		}
		if !board.HasMenuOption(o.Menu, o.Value) {
			return nil, nil, &SelectionError{Key: k.String(), Reason: fmt.Sprintf("invalid value %q for menu %q", o.Value, o.Menu)}
		}
		custom[o.Menu] = board.OptionEntry(o.Value)
	}
	return board, custom, nil
}
