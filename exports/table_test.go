package exports

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmnoise/errors"
)

const testDescriptor = `{
  "exports": {
    "getset": {"funcs": ["_GLOBAL__sub_I_WasmNoiseInterface.cpp", "SetSeed", "GetSeed"]},
    "perlin": {"macro": "-DWN_INCLUDE_PERLIN", "funcs": ["GetPerlin2", "GetPerlin3"]},
    "simplex": {"macro": "-DWN_INCLUDE_SIMPLEX", "funcs": ["GetSimplex2"]},
    "fractalGetSet": {"funcs": ["SetFractalGain", "GetFractalGain"]}
  }
}`

func mustParse(t *testing.T, doc string) *Table {
	t.Helper()
	table, err := Parse([]byte(doc))
	require.NoError(t, err)
	return table
}

func TestParseKeepsDocumentOrder(t *testing.T) {
	table := mustParse(t, testDescriptor)

	assert.Equal(t, []string{"getset", "perlin", "simplex", "fractalGetSet"}, table.Names())
	assert.Equal(t, DefaultStartup, table.Startup())

	g, ok := table.Group("perlin")
	require.True(t, ok)
	assert.Equal(t, "-DWN_INCLUDE_PERLIN", g.Macro)
	assert.Equal(t, []string{"GetPerlin2", "GetPerlin3"}, g.Funcs)

	_, ok = table.Group("cellular")
	assert.False(t, ok)
}

func TestParseYAML(t *testing.T) {
	table := mustParse(t, `
startup: init
exports:
  getset:
    funcs: [SetSeed]
  cellular:
    macro: -DWN_INCLUDE_CELLULAR
    funcs:
      - GetCellular2
`)
	assert.Equal(t, "init", table.Startup())
	assert.Equal(t, []string{"-DWN_INCLUDE_CELLULAR"}, table.Macros(NewGroupSet("getset", "cellular")))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"not a document", `{"exports": [`, errors.KindParse},
		{"exports not a mapping", `{"exports": ["perlin"]}`, errors.KindInvalidInput},
		{"no exports", `{"startup": "x"}`, errors.KindInvalidInput},
		{"unknown top-level key", `{"exprots": {}}`, errors.KindParse},
		{"bad group body", `{"exports": {"perlin": {"funcs": "GetPerlin2"}}}`, errors.KindParse},
		{"duplicate group", "exports:\n  perlin: {}\n  perlin: {}\n", errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseExports, Kind: tt.kind}), "got %v", err)
		})
	}
}

func TestMacrosAndSymbols(t *testing.T) {
	table := mustParse(t, testDescriptor)
	set := Resolve([]Flag{EnableAllPerlin})

	// perlinFractal is enabled but undeclared; it contributes nothing.
	assert.Equal(t, []string{"-DWN_INCLUDE_PERLIN"}, table.Macros(set))
	assert.Equal(t, []string{"perlinFractal"}, table.Missing(set))
	assert.Equal(t, []string{
		"_GLOBAL__sub_I_WasmNoiseInterface.cpp", "SetSeed", "GetSeed",
		"SetFractalGain", "GetFractalGain",
		"GetPerlin2", "GetPerlin3",
	}, table.Symbols(set))
	assert.Equal(t, []string{"--export=GetSimplex2"}, table.LinkerExports(NewGroupSet("simplex")))
}

func TestAllowedAlwaysHasBaseGroup(t *testing.T) {
	table := mustParse(t, testDescriptor)

	for _, set := range []GroupSet{NewGroupSet(), NewGroupSet("simplex"), Resolve([]Flag{EnableAll})} {
		allowed := table.Allowed(set)
		for _, sym := range []string{"SetSeed", "GetSeed", DefaultStartup} {
			assert.True(t, allowed.Contains(sym), "%s missing for %v", sym, set.Names())
		}
	}
	assert.False(t, table.Allowed(NewGroupSet("simplex")).Contains("GetPerlin2"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wasmnoiseexports.json")
	require.NoError(t, os.WriteFile(path, []byte(testDescriptor), 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, table.Names(), 4)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseExports, Kind: errors.KindNotFound}))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), bad), "path missing from %v", err)
}

func TestDefaultDescriptor(t *testing.T) {
	table := Default()

	assert.Equal(t, AllGroups(), table.Names())
	assert.Empty(t, table.Missing(Resolve([]Flag{EnableAll})))
	assert.Equal(t, []string{
		"-DWN_INCLUDE_PERLIN",
		"-DWN_INCLUDE_PERLIN_FRACTAL",
		"-DWN_INCLUDE_SIMPLEX",
		"-DWN_INCLUDE_SIMPLEX_FRACTAL",
		"-DWN_INCLUDE_CELLULAR_GETSET",
		"-DWN_INCLUDE_CELLULAR",
	}, table.Macros(Resolve([]Flag{EnableAll})))

	base, ok := table.Group(BaseGroup)
	require.True(t, ok)
	assert.Contains(t, base.Funcs, table.Startup())
}
