package hardware

import (
	"sort"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/arduino/go-properties-orderedmap"
)

// Package is a vendor grouping of platforms, one folder under a hardware root.
type Package struct {
	ID        string
	Folder    *paths.Path
	Platforms map[string]*Platform
}

// Platform is an architecture folder inside a package.
type Platform struct {
	ID          string
	Folder      *paths.Path
	Package     *Package
	Properties  *properties.Map // platform.txt
	Menus       *properties.Map // menu id -> label, from boards.txt "menu.*"
	Boards      map[string]*Board
	Programmers map[string]*Programmer

	boardOrder []string
}

// Programmer is an entry of programmers.txt.
type Programmer struct {
	ID         string
	Platform   *Platform
	Properties *properties.Map
}

// Name returns the display name of the programmer.
func (p *Programmer) Name() string {
	return p.Properties.Get("name")
}

// MenuLabel returns the label of a platform custom menu, or the id itself
// when the menu has no label.
func (p *Platform) MenuLabel(menuID string) string {
	if label, ok := p.Menus.GetOk(menuID); ok {
		return label
	}
	return menuID
}

// OrderedBoards returns the boards in boards.txt declaration order.
func (p *Platform) OrderedBoards() []*Board {
	res := make([]*Board, 0, len(p.boardOrder))
	for _, id := range p.boardOrder {
		res = append(res, p.Boards[id])
	}
	return res
}

// Index is the set of packages loaded from the hardware roots.
type Index struct {
	packages map[string]*Package
}

// Package returns the package with the given id, or nil.
func (i *Index) Package(id string) *Package {
	return i.packages[id]
}

// Packages returns all loaded packages sorted by id.
func (i *Index) Packages() []*Package {
	res := make([]*Package, 0, len(i.packages))
	for _, p := range i.packages {
		res = append(res, p)
	}
	sort.Slice(res, func(a, b int) bool {
		return strings.ToLower(res[a].ID) < strings.ToLower(res[b].ID)
	})
	return res
}

// Platform returns the platform arch inside package pkg, or nil.
func (i *Index) Platform(pkg, arch string) *Platform {
	p := i.packages[pkg]
	if p == nil {
		return nil
	}
	return p.Platforms[arch]
}

// Board returns the board with the given id, or nil.
func (i *Index) Board(pkg, arch, board string) *Board {
	p := i.Platform(pkg, arch)
	if p == nil {
		return nil
	}
	return p.Boards[board]
}

// Programmer returns a programmer declared by a platform, or nil.
func (i *Index) Programmer(pkg, arch, id string) *Programmer {
	p := i.Platform(pkg, arch)
	if p == nil {
		return nil
	}
	return p.Programmers[id]
}

// SortedPlatforms returns the platforms of a package sorted by id.
func (p *Package) SortedPlatforms() []*Platform {
	res := make([]*Platform, 0, len(p.Platforms))
	for _, pl := range p.Platforms {
		res = append(res, pl)
	}
	sort.Slice(res, func(a, b int) bool { return res[a].ID < res[b].ID })
	return res
}
