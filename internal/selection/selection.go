package selection

import (
	"sort"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"
)

// Keys used in preferences.txt.
const (
	keyPackage    = "target_package"
	keyPlatform   = "target_platform"
	keyBoard      = "board"
	keyPort       = "serial.port"
	keyProgrammer = "programmer"
	customPrefix  = "custom_"
)

// Selection is the user's current target: board, port, programmer and the
// chosen option of each board menu.
type Selection struct {
	Package    string
	Platform   string
	Board      string
	Port       string
	Programmer string            // "<package>:<programmer id>"
	Custom     map[string]string // menu id -> "<board>_<option>"
}

// Clone returns a deep copy.
func (s Selection) Clone() Selection {
	c := s
	c.Custom = make(map[string]string, len(s.Custom))
	for k, v := range s.Custom {
		c.Custom[k] = v
	}
	return c
}

// HasBoard reports whether package, platform and board are all set.
func (s Selection) HasBoard() bool {
	return s.Package != "" && s.Platform != "" && s.Board != ""
}

// Load reads the selection from a preferences file. A missing file yields
// an empty selection.
func Load(path string) (Selection, error) {
	sel := Selection{Custom: map[string]string{}}
	prefs, err := properties.SafeLoadFromPath(paths.New(path))
	if err != nil {
		return sel, errors.Wrapf(err, "reading %s", path)
	}
	sel.Package = prefs.Get(keyPackage)
	sel.Platform = prefs.Get(keyPlatform)
	sel.Board = prefs.Get(keyBoard)
	sel.Port = prefs.Get(keyPort)
	sel.Programmer = prefs.Get(keyProgrammer)
	for _, k := range prefs.Keys() {
		if strings.HasPrefix(k, customPrefix) {
			sel.Custom[strings.TrimPrefix(k, customPrefix)] = prefs.Get(k)
		}
	}
	return sel, nil
}

// Save writes the selection into the preferences file. Keys that do not
// belong to the selection are preserved.
func Save(path string, sel Selection) error {
	prefs, err := properties.SafeLoadFromPath(paths.New(path))
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	for _, k := range prefs.Keys() {
		if strings.HasPrefix(k, customPrefix) {
			prefs.Remove(k)
		}
	}
	set := func(k, v string) {
		if v == "" {
			prefs.Remove(k)
			return
		}
		prefs.Set(k, v)
	}
	set(keyPackage, sel.Package)
	set(keyPlatform, sel.Platform)
	set(keyBoard, sel.Board)
	set(keyPort, sel.Port)
	set(keyProgrammer, sel.Programmer)
	for menu, entry := range sel.Custom {
		set(customPrefix+menu, entry)
	}

	keys := prefs.Keys()
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k + "=" + prefs.Get(k) + "\n")
	}

	file := paths.New(path)
	if err := file.Parent().MkdirAll(); err != nil {
		return err
	}
	return file.WriteFile([]byte(sb.String()))
}
