package exports

import (
	"bytes"
	_ "embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmnoise/errors"
)

// DefaultDescriptor is the descriptor shipped with the library sources.
//
//go:embed default_exports.json
var DefaultDescriptor []byte

// DefaultStartup is the static-initialiser export the loader calls once the
// module is instantiated.
const DefaultStartup = "_GLOBAL__sub_I_WasmNoiseInterface.cpp"

// Group is a named bundle of exported symbols toggled by one compiler macro.
type Group struct {
	Name  string
	Macro string
	Funcs []string
}

// Table is the read-only group table loaded from an export descriptor.
type Table struct {
	groups  []Group
	index   map[string]int
	startup string
}

type groupDoc struct {
	Macro string   `yaml:"macro"`
	Funcs []string `yaml:"funcs"`
}

type descriptorDoc struct {
	Startup string    `yaml:"startup"`
	Exports yaml.Node `yaml:"exports"`
}

// Parse decodes a descriptor document:
//
//	{"startup": "...", "exports": {"perlin": {"macro": "-D...", "funcs": [...]}, ...}}
//
// JSON and YAML are both accepted. Group order follows the document.
func Parse(data []byte) (*Table, error) {
	var doc descriptorDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.ParseFailed(errors.PhaseExports, "", err)
	}

	if doc.Exports.Kind != yaml.MappingNode {
		return nil, errors.InvalidInput(errors.PhaseExports, `descriptor has no "exports" mapping`)
	}

	t := &Table{
		index:   make(map[string]int),
		startup: doc.Startup,
	}
	if t.startup == "" {
		t.startup = DefaultStartup
	}

	content := doc.Exports.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		var g groupDoc
		if err := content[i+1].Decode(&g); err != nil {
			return nil, errors.New(errors.PhaseExports, errors.KindParse).
				Detail("group %q (line %d)", name, content[i].Line).
				Cause(err).
				Build()
		}
		if _, dup := t.index[name]; dup {
			return nil, errors.InvalidInput(errors.PhaseExports, fmt.Sprintf("group %q declared twice", name))
		}
		t.index[name] = len(t.groups)
		t.groups = append(t.groups, Group{Name: name, Macro: g.Macro, Funcs: g.Funcs})
	}
	return t, nil
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseExports, "export descriptor", path)
		}
		return nil, errors.IO(errors.PhaseExports, path, err)
	}
	t, err := Parse(data)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Path == "" {
			e.Path = path
		}
		return nil, err
	}
	return t, nil
}

// Default returns the table described by DefaultDescriptor.
func Default() *Table {
	t, err := Parse(DefaultDescriptor)
	if err != nil {
		panic(fmt.Errorf("embedded export descriptor: %w", err))
	}
	return t
}

// Group returns the named group.
func (t *Table) Group(name string) (Group, bool) {
	i, ok := t.index[name]
	if !ok {
		return Group{}, false
	}
	return t.groups[i], true
}

// Names returns group names in document order.
func (t *Table) Names() []string {
	names := make([]string, len(t.groups))
	for i, g := range t.groups {
		names[i] = g.Name
	}
	return names
}

// Startup returns the static-initialiser symbol.
func (t *Table) Startup() string {
	return t.startup
}

// Missing returns the groups in set that the table does not declare.
func (t *Table) Missing(set GroupSet) []string {
	var missing []string
	for _, name := range set.Names() {
		if _, ok := t.index[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Macros returns the compiler macros for the enabled groups, skipping groups
// that are undeclared or carry no macro.
func (t *Table) Macros(set GroupSet) []string {
	var macros []string
	for _, name := range set.Names() {
		g, ok := t.Group(name)
		if !ok || g.Macro == "" || slices.Contains(macros, g.Macro) {
			continue
		}
		macros = append(macros, g.Macro)
	}
	return macros
}

// Symbols returns the symbols of the enabled groups in group order, without
// duplicates.
func (t *Table) Symbols(set GroupSet) []string {
	seen := make(map[string]bool)
	var syms []string
	for _, name := range set.Names() {
		g, ok := t.Group(name)
		if !ok {
			continue
		}
		for _, fn := range g.Funcs {
			if !seen[fn] {
				seen[fn] = true
				syms = append(syms, fn)
			}
		}
	}
	return syms
}

// Allowed returns the symbols that survive export filtering: the base group
// plus every enabled group.
func (t *Table) Allowed(set GroupSet) SymbolSet {
	allowed := make(SymbolSet)
	if g, ok := t.Group(BaseGroup); ok {
		allowed.add(g.Funcs...)
	}
	allowed.add(t.Symbols(set)...)
	return allowed
}

// LinkerExports returns one --export=<symbol> switch per enabled symbol, for
// linkers that take the export list on the command line.
func (t *Table) LinkerExports(set GroupSet) []string {
	syms := t.Symbols(set)
	flags := make([]string, len(syms))
	for i, s := range syms {
		flags[i] = "--export=" + s
	}
	return flags
}

// SymbolSet is a set of export names.
type SymbolSet map[string]struct{}

func (s SymbolSet) add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Contains reports whether name is in the set.
func (s SymbolSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}
