package hardware

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoPackages is returned when no hardware package could be loaded from
// any of the roots.
var ErrNoPackages = errors.New("no valid hardware definitions found")

// ParseError reports a package or platform folder that could not be loaded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error loading hardware folder %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadHardwareTree scans every root for package folders. Bad packages or
// platforms are logged and skipped; a package found in a later root
// replaces one with the same id from an earlier root.
func LoadHardwareTree(roots []*paths.Path) (*Index, error) {
	idx := &Index{packages: map[string]*Package{}}
	for _, root := range roots {
		for _, folder := range subfolders(root) {
			if folder.Base() == "tools" {
				continue
			}
			pkg, err := loadPackage(folder)
			if err != nil {
				log.WithField("folder", folder.String()).Warn(err)
				continue
			}
			if prev, ok := idx.packages[pkg.ID]; ok {
				log.WithField("package", pkg.ID).
					Debugf("%s overrides %s", pkg.Folder, prev.Folder)
			}
			idx.packages[pkg.ID] = pkg
		}
	}
	if len(idx.packages) == 0 {
		return nil, ErrNoPackages
	}
	return idx, nil
}

// subfolders lists the directories of root in case-insensitive order.
func subfolders(root *paths.Path) paths.PathList {
	if root == nil || !root.IsDir() {
		return nil
	}
	list, err := root.ReadDir()
	if err != nil {
		log.WithField("folder", root.String()).Warnf("reading hardware folder: %v", err)
		return nil
	}
	list.FilterDirs()
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].Base()) < strings.ToLower(list[j].Base())
	})
	return list
}

func loadPackage(folder *paths.Path) (*Package, error) {
	pkg := &Package{
		ID:        folder.Base(),
		Folder:    folder,
		Platforms: map[string]*Platform{},
	}
	for _, platformFolder := range subfolders(folder) {
		platform, err := loadPlatform(pkg, platformFolder)
		if err != nil {
			log.WithField("package", pkg.ID).Warn(err)
			continue
		}
		pkg.Platforms[platform.ID] = platform
	}
	if len(pkg.Platforms) == 0 {
		return nil, &ParseError{Path: folder.String(), Err: errors.New("no valid platform found")}
	}
	return pkg, nil
}

func loadPlatform(pkg *Package, folder *paths.Path) (*Platform, error) {
	boardsFile := folder.Join("boards.txt")
	if !boardsFile.Exist() {
		return nil, &ParseError{Path: folder.String(), Err: errors.New("missing boards.txt")}
	}
	boards, err := properties.LoadFromPath(boardsFile)
	if err != nil {
		return nil, &ParseError{Path: folder.String(), Err: errors.Wrap(err, "parsing boards.txt")}
	}
	platformProps, err := properties.SafeLoadFromPath(folder.Join("platform.txt"))
	if err != nil {
		return nil, &ParseError{Path: folder.String(), Err: errors.Wrap(err, "parsing platform.txt")}
	}
	programmers, err := properties.SafeLoadFromPath(folder.Join("programmers.txt"))
	if err != nil {
		return nil, &ParseError{Path: folder.String(), Err: errors.Wrap(err, "parsing programmers.txt")}
	}

	platform := &Platform{
		ID:          folder.Base(),
		Folder:      folder,
		Package:     pkg,
		Properties:  platformProps,
		Menus:       boards.SubTree("menu"),
		Boards:      map[string]*Board{},
		Programmers: map[string]*Programmer{},
	}

	definitions := boards.FirstLevelOf()
	for _, id := range boards.FirstLevelKeys() {
		if id == "menu" {
			continue
		}
		definition := definitions[id]
		if definition == nil {
			continue
		}
		if !definition.ContainsKey("name") {
			log.WithField("platform", platform.ID).Warnf("board %q has no name, skipped", id)
			continue
		}
		platform.Boards[id] = newBoard(id, platform, definition)
		platform.boardOrder = append(platform.boardOrder, id)
	}
	if len(platform.Boards) == 0 {
		return nil, &ParseError{Path: folder.String(), Err: errors.New("no boards defined")}
	}

	programmerDefs := programmers.FirstLevelOf()
	for _, id := range programmers.FirstLevelKeys() {
		if programmerDefs[id] == nil {
			continue
		}
		platform.Programmers[id] = &Programmer{
			ID:         id,
			Platform:   platform,
			Properties: programmerDefs[id],
		}
	}
	return platform, nil
}
