package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmnoise/args"
	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/version"
	"github.com/wippyai/wasmnoise/wasm/wasmtest"
)

func execute(t *testing.T, argv ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(argv)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func initProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := execute(t, "init", "--root", root)
	require.NoError(t, err)
	return root
}

func TestParseTokens(t *testing.T) {
	tests := []struct {
		name       string
		tokens     []string
		want       app
		positional []string
		opts       args.Options
	}{
		{
			name:   "globals consumed",
			tokens: []string{"--dry-run", "--root", "/proj", "--config=/proj/alt.yaml", "-minor"},
			want:   app{dryRun: true, root: "/proj", configPath: "/proj/alt.yaml"},
			opts:   args.Options{Level: version.LevelMinor, Optimisation: "-O3", Enables: []exports.Flag{exports.EnableAll}},
		},
		{
			name:       "positional and verbose",
			tokens:     []string{"out.wat", "-EnablePerlin", "-v"},
			want:       app{verbose: true},
			positional: []string{"out.wat"},
			opts:       args.Options{Optimisation: "-O3", Verbose: true, Enables: []exports.Flag{exports.EnablePerlin}},
		},
		{
			name:   "unknown dash token",
			tokens: []string{"--verbose", "-bogus"},
			want:   app{verbose: true},
			opts:   args.Options{Optimisation: "-O3", Enables: []exports.Flag{exports.EnableAll}, Unrecognized: []string{"-bogus"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{}
			inv, err := a.parseTokens(tt.tokens)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, *a, cmp.AllowUnexported(app{})); diff != "" {
				t.Errorf("app mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.opts, inv.opts, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.positional, inv.positional)
		})
	}
}

func TestParseTokensMissingValue(t *testing.T) {
	_, err := (&app{}).parseTokens([]string{"-minor", "--root"})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	root := initProject(t)

	assert.FileExists(t, filepath.Join(root, "version.ini"))
	assert.FileExists(t, filepath.Join(root, "wasmnoiseexports.json"))
	assert.FileExists(t, filepath.Join(root, config.FileName))

	out, err := execute(t, "init", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = execute(t, "version", "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "wasmnoise 0.0.0.0\n", out)
}

func TestGroups(t *testing.T) {
	root := initProject(t)

	out, err := execute(t, "groups", "--root", root, "-EnablePerlin")
	require.NoError(t, err)
	assert.Contains(t, out, "-DWN_INCLUDE_PERLIN")
	assert.Contains(t, out, "--export=GetPerlin3_Cube")
	assert.NotContains(t, out, "GetSimplex2")
}

func TestFilterCommand(t *testing.T) {
	root := initProject(t)
	wat := filepath.Join(root, "m.wat")
	require.NoError(t, os.WriteFile(wat, []byte(
		"(module\n (export \"SetSeed\" (func $0))\n (export \"GetSimplex2\" (func $1))\n)\n"), 0o644))

	out, err := execute(t, "filter", wat, "--root", root, "-EnablePerlin")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 exports kept")

	data, err := os.ReadFile(filepath.Join(root, "m.cleanexports.wat"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "GetSimplex2")

	_, err = execute(t, "filter", "--root", root)
	assert.Error(t, err, "filter needs a file")
}

func TestLoaderAndInspect(t *testing.T) {
	root := initProject(t)
	module := filepath.Join(root, "wasmnoise-0.0.0.opt.wasm")
	mod := wasmtest.Module{
		Funcs:        []string{exports.DefaultStartup, "SetSeed", "GetPerlin2"},
		ImportMemory: true,
		MemoryPages:  9,
	}
	require.NoError(t, os.WriteFile(module, mod.Bytes(), 0o644))

	_, err := execute(t, "loader", module, "--root", root, "-EnablePerlin")
	require.NoError(t, err)
	script, err := os.ReadFile(filepath.Join(root, "wasmnoise.autoloader.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "fetch('./wasmnoise-0.0.0.opt.wasm')")

	out, err := execute(t, "inspect", module, "--root", root, "-EnablePerlin")
	require.NoError(t, err)
	assert.Contains(t, out, "GetPerlin2")
	assert.Contains(t, out, "env.memory")
	assert.Contains(t, out, "is valid")

	out, err = execute(t, "inspect", module, "--root", root, "-EnableSimplex")
	assert.Error(t, err)
	assert.Contains(t, out, "Exports (3)")
}

func TestBuildDryRun(t *testing.T) {
	root := initProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "source"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "source", "WasmNoise.cpp"), nil, 0o644))

	out, err := execute(t, "--root", root, "--dry-run", "-minor", "-EnableCellular")
	require.NoError(t, err)
	assert.Contains(t, out, "New Version: 0.1.0.0")
	assert.Contains(t, out, "Enabling function set: cellular")
	assert.Contains(t, out, "$ wasm-opt -O3 wasmnoise-0.1.0.wasm -o wasmnoise-0.1.0.opt.wasm")
	assert.Contains(t, out, "Dry run complete")

	out, err = execute(t, "version", "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "wasmnoise 0.0.0.0\n", out)
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "-help")
	require.NoError(t, err)
	assert.Contains(t, out, "-EnableSimplexFractal")
	assert.Contains(t, out, "-AllowAbort")
}
