package exports

import (
	"slices"
)

// Canonical group names. Their order here is the order used for resolved
// sets, macro lists and loader output.
const (
	GroupGetSet         = "getset"
	GroupFractalGetSet  = "fractalGetSet"
	GroupPerlin         = "perlin"
	GroupPerlinFractal  = "perlinFractal"
	GroupSimplex        = "simplex"
	GroupSimplexFractal = "simplexFractal"
	GroupCellularGetSet = "cellularGetSet"
	GroupCellular       = "cellular"
)

// BaseGroup is kept by the export filter whatever else is enabled.
const BaseGroup = GroupGetSet

var canonicalGroups = []string{
	GroupGetSet,
	GroupFractalGetSet,
	GroupPerlin,
	GroupPerlinFractal,
	GroupSimplex,
	GroupSimplexFractal,
	GroupCellularGetSet,
	GroupCellular,
}

// AllGroups returns every canonical group name in canonical order.
func AllGroups() []string {
	return slices.Clone(canonicalGroups)
}

// Flag is one enable switch from the command line.
type Flag int

const (
	EnableAll Flag = iota
	EnablePerlin
	EnablePerlinFractal
	EnableAllPerlin
	EnableSimplex
	EnableSimplexFractal
	EnableAllSimplex
	EnableCellular
)

type flagInfo struct {
	name        string
	description string
	groups      []string
}

// EnableAll short-circuits in Resolve, so its group list is unused.
var flagTable = [...]flagInfo{
	EnableAll: {"EnableAll", "Enable all function sets", nil},
	EnablePerlin: {"EnablePerlin", "Enable non-fractal Perlin functions only",
		[]string{GroupGetSet, GroupPerlin}},
	EnablePerlinFractal: {"EnablePerlinFractal", "Enable fractal Perlin functions only",
		[]string{GroupGetSet, GroupFractalGetSet, GroupPerlinFractal}},
	EnableAllPerlin: {"EnableAllPerlin", "Enable all Perlin functions (fractal and non-fractal)",
		[]string{GroupGetSet, GroupFractalGetSet, GroupPerlin, GroupPerlinFractal}},
	EnableSimplex: {"EnableSimplex", "Enable non-fractal Simplex functions only",
		[]string{GroupGetSet, GroupSimplex}},
	EnableSimplexFractal: {"EnableSimplexFractal", "Enable fractal Simplex functions only",
		[]string{GroupGetSet, GroupFractalGetSet, GroupSimplexFractal}},
	EnableAllSimplex: {"EnableAllSimplex", "Enable all Simplex functions (fractal and non-fractal)",
		[]string{GroupGetSet, GroupFractalGetSet, GroupSimplex, GroupSimplexFractal}},
	EnableCellular: {"EnableCellular", "Enable Cellular functions",
		[]string{GroupGetSet, GroupCellularGetSet, GroupCellular}},
}

// Flags returns every enable flag in declaration order.
func Flags() []Flag {
	flags := make([]Flag, len(flagTable))
	for i := range flagTable {
		flags[i] = Flag(i)
	}
	return flags
}

// ParseFlag maps a flag name such as "EnablePerlin" to its Flag.
func ParseFlag(name string) (Flag, bool) {
	for i, info := range flagTable {
		if info.name == name {
			return Flag(i), true
		}
	}
	return 0, false
}

func (f Flag) valid() bool {
	return f >= 0 && int(f) < len(flagTable)
}

func (f Flag) String() string {
	if !f.valid() {
		return "Enable?"
	}
	return flagTable[f].name
}

// Description is the help text for f.
func (f Flag) Description() string {
	if !f.valid() {
		return ""
	}
	return flagTable[f].description
}

// Groups returns the groups f expands to. EnableAll expands to every group.
func (f Flag) Groups() []string {
	if f == EnableAll {
		return AllGroups()
	}
	if !f.valid() {
		return nil
	}
	return slices.Clone(flagTable[f].groups)
}

// GroupSet is a set of enabled group names kept in canonical order.
type GroupSet struct {
	names []string
}

// NewGroupSet builds a set from names, dropping duplicates. Canonical groups
// come first in canonical order, any others follow in the order given.
func NewGroupSet(names ...string) GroupSet {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	var ordered []string
	for _, n := range canonicalGroups {
		if seen[n] {
			ordered = append(ordered, n)
			delete(seen, n)
		}
	}
	for _, n := range names {
		if seen[n] {
			ordered = append(ordered, n)
			delete(seen, n)
		}
	}
	return GroupSet{names: ordered}
}

// Names returns the group names in order.
func (s GroupSet) Names() []string {
	return slices.Clone(s.names)
}

// Has reports whether name is in the set.
func (s GroupSet) Has(name string) bool {
	return slices.Contains(s.names, name)
}

// Len returns the number of groups.
func (s GroupSet) Len() int {
	return len(s.names)
}

// Resolve ORs together the groups of every flag. EnableAll anywhere in flags
// yields every canonical group regardless of the other flags.
func Resolve(flags []Flag) GroupSet {
	if slices.Contains(flags, EnableAll) {
		return NewGroupSet(canonicalGroups...)
	}
	var names []string
	for _, f := range flags {
		names = append(names, f.Groups()...)
	}
	return NewGroupSet(names...)
}
