package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
)

type recordingRunner struct {
	calls  []Command
	failOn string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, c Command) error {
	r.calls = append(r.calls, c)
	if c.Tool == r.failOn {
		return r.err
	}
	return nil
}

func (r *recordingRunner) tools() []string {
	var tools []string
	for _, c := range r.calls {
		tools = append(tools, c.Tool)
	}
	return tools
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Root = "/proj"
	return cfg
}

func testInputs(dir string) Inputs {
	return Inputs{
		BuildDir:     dir,
		OutName:      "wasmnoise-0.1.0",
		Optimisation: "-O2",
		Sources:      []string{"/proj/source/WasmNoise.cpp", "/proj/source/WasmNoiseInterface.cpp"},
		Macros:       []string{"-DWN_INCLUDE_PERLIN"},
		Table:        exports.Default(),
		Groups:       exports.Resolve([]exports.Flag{exports.EnablePerlin}),
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Tool: "llc", Args: []string{"-O3", "-o", "a.s", "a.bc"}}, "llc -O3 -o a.s a.bc"},
		{Command{Tool: "s2wasm", Args: []string{"-s", "524288", "a.s"}, Stdout: "a.wat"}, "s2wasm -s 524288 a.s > a.wat"},
		{Command{Tool: "clang++", Args: []string{"-I/my dir", ""}}, "clang++ '-I/my dir' ''"},
		{Command{Tool: "echo", Args: []string{"it's"}}, `echo 'it'\''s'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.String())
	}
}

func TestArtifactsFor(t *testing.T) {
	want := Artifacts{
		Bitcode:   "wasmnoise-1.2.3.bc",
		Assembly:  "wasmnoise-1.2.3.s",
		Text:      "wasmnoise-1.2.3.wat",
		Filtered:  "wasmnoise-1.2.3.cleanexports.wat",
		Binary:    "wasmnoise-1.2.3.wasm",
		Optimised: "wasmnoise-1.2.3.opt.wasm",
	}
	if diff := cmp.Diff(want, ArtifactsFor("wasmnoise-1.2.3")); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanCommands(t *testing.T) {
	in := testInputs("/proj/bin/wasmnoise-0.1.0.b4")
	in.AllowAbort = true
	in.Verbose = true
	steps := Plan(testConfig(), in)

	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	assert.Equal(t, []string{StepCompile, StepLink, StepAssemble, StepToText, StepStrip, StepToBinary, StepOptimise}, names)

	dir := in.BuildDir
	want := map[string]Command{
		StepCompile: {Tool: "clang++", Dir: dir, Args: []string{
			"--target=wasm32", "-emit-llvm", "-std=c++14", "-O2", "-c",
			"-I/wasm-stdlib-hack/include/libc",
			"/proj/source/WasmNoise.cpp", "/proj/source/WasmNoiseInterface.cpp",
			"-pedantic", "-Wall", "-Wextra",
			"-DWN_INCLUDE_PERLIN", "-DWN_ALLOW_ABORT", "-v",
		}},
		StepLink:     {Tool: "llvm-link", Dir: dir, Args: []string{"-v", "-o", "wasmnoise-0.1.0.bc"}},
		StepAssemble: {Tool: "llc", Dir: dir, Args: []string{"-asm-verbose=false", "-O2", "-o", "wasmnoise-0.1.0.s", "wasmnoise-0.1.0.bc"}},
		StepToText: {Tool: "s2wasm", Dir: dir, Stdout: "wasmnoise-0.1.0.wat",
			Args: []string{"-s", "524288", "--import-memory", "wasmnoise-0.1.0.s"}},
		StepToBinary: {Tool: "wat2wasm", Dir: dir, Args: []string{"wasmnoise-0.1.0.cleanexports.wat", "-o", "wasmnoise-0.1.0.wasm"}},
		StepOptimise: {Tool: "wasm-opt", Dir: dir, Args: []string{"-O2", "wasmnoise-0.1.0.wasm", "-o", "wasmnoise-0.1.0.opt.wasm"}},
	}

	for _, s := range steps {
		if !s.External() {
			assert.Equal(t, StepStrip, s.Name)
			continue
		}
		if diff := cmp.Diff(want[s.Name], s.Command); diff != "" {
			t.Errorf("step %s mismatch (-want +got):\n%s", s.Name, diff)
		}
	}
}

func TestPlanHonoursToolConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Tools.Clang = "/opt/llvm/bin/clang++"
	cfg.StackSize = 1 << 20

	steps := Plan(cfg, testInputs("/tmp/out"))
	assert.Equal(t, "/opt/llvm/bin/clang++", steps[0].Command.Tool)
	assert.Contains(t, steps[3].Command.Args, "1048576")
	assert.NotContains(t, steps[0].Command.Args, AllowAbortMacro)
	assert.NotContains(t, steps[0].Command.Args, "-v")
}

func TestLinkExpandListsBitcode(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"WasmNoiseInterface.bc", "WasmNoise.bc", "wasmnoise-0.1.0.bc", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	link := Plan(testConfig(), testInputs(dir))[1]
	require.NotNil(t, link.Expand)

	cmd, err := link.Expand(link.Command)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-v", "-o", "wasmnoise-0.1.0.bc",
		"WasmNoise.bc", "WasmNoiseInterface.bc",
		"/proj/source/memory-bitcode/memory.bc",
	}, cmd.Args)
	assert.Equal(t, []string{"-v", "-o", "wasmnoise-0.1.0.bc"}, link.Command.Args, "expansion must not alias the planned args")
}

func TestStripStepFiltersText(t *testing.T) {
	dir := t.TempDir()
	wat := "(module\n (export \"SetSeed\" (func $a))\n (export \"GetSimplex2\" (func $b))\n)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wasmnoise-0.1.0.wat"), []byte(wat), 0o644))

	in := testInputs(dir)
	var stats exports.FilterStats
	in.OnFiltered = func(s exports.FilterStats) { stats = s }

	strip := Plan(testConfig(), in)[4]
	require.NoError(t, strip.Func(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "wasmnoise-0.1.0.cleanexports.wat"))
	require.NoError(t, err)
	assert.Equal(t, "(module\n (export \"SetSeed\" (func $a))\n)\n", string(data))
	assert.Equal(t, []string{"GetSimplex2"}, stats.Removed)
}

func TestDriverStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	failure := errors.ToolFailed("llc", []string{"-O2"}, 1, nil)
	runner := &recordingRunner{failOn: "llc", err: failure}

	var out bytes.Buffer
	d := NewDriver(runner, console.NewPlain(&out))
	err := d.Run(context.Background(), Plan(testConfig(), testInputs(dir)))

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseToolchain, Kind: errors.KindToolFailed}))
	assert.Equal(t, []string{"clang++", "llvm-link", "llc"}, runner.tools())
	assert.Contains(t, out.String(), "Converting to S-expressions with llc...")
	assert.NotContains(t, out.String(), "Removing unwanted exports")
}

func TestDriverRunsInProcessSteps(t *testing.T) {
	var order []string
	runner := &recordingRunner{}
	steps := []Step{
		{Name: "a", Command: Command{Tool: "first"}},
		{Name: "b", Func: func(context.Context) error { order = append(order, "func"); return nil }},
		{Name: "c", Command: Command{Tool: "last"}},
	}

	require.NoError(t, NewDriver(runner, nil).Run(context.Background(), steps))
	assert.Equal(t, []string{"first", "last"}, runner.tools())
	assert.Equal(t, []string{"func"}, order)
}

func TestDriverDryRun(t *testing.T) {
	runner := &recordingRunner{}
	var out bytes.Buffer
	d := NewDriver(runner, console.NewPlain(&out))
	d.DryRun = true

	require.NoError(t, d.Run(context.Background(), Plan(testConfig(), testInputs(t.TempDir()))))
	assert.Empty(t, runner.calls)

	text := out.String()
	assert.Contains(t, text, "$ clang++ --target=wasm32")
	assert.Contains(t, text, "> wasmnoise-0.1.0.wat")
	assert.Contains(t, text, "(in process: strip-exports)")
	assert.Contains(t, text, "$ wasm-opt -O2 wasmnoise-0.1.0.wasm -o wasmnoise-0.1.0.opt.wasm")
}

func TestDriverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &recordingRunner{}
	err := NewDriver(runner, nil).Run(ctx, []Step{{Name: "a", Command: Command{Tool: "x"}}})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseToolchain, Kind: errors.KindCancelled}))
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Empty(t, runner.calls)
}

func TestDiscoverSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.cpp", "a.c", "WasmNoise.hpp", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "memory-bitcode"), 0o755))

	got, err := DiscoverSources(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.c"), filepath.Join(dir, "b.cpp")}, got)

	_, err = DiscoverSources(filepath.Join(dir, "memory-bitcode"))
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseToolchain, Kind: errors.KindNotFound}))

	_, err = DiscoverSources(filepath.Join(dir, "absent"))
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseToolchain, Kind: errors.KindNotFound}))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	requireShell(t)
	var stderr bytes.Buffer
	r := &ExecRunner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	err := r.Run(context.Background(), Command{Tool: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindToolFailed, e.Kind)
	assert.Equal(t, "sh", e.Tool)
	assert.Equal(t, 3, e.ExitCode)
	assert.Equal(t, "broken\n", stderr.String())
}

func TestExecRunnerRedirect(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	var stdout bytes.Buffer
	r := &ExecRunner{Stdout: &stdout, Stderr: &bytes.Buffer{}, Env: []string{"WN_GREETING=hello"}}

	err := r.Run(context.Background(), Command{
		Tool:   "sh",
		Args:   []string{"-c", "echo $WN_GREETING; pwd"},
		Dir:    dir,
		Stdout: "out.txt",
	})
	require.NoError(t, err)
	assert.Empty(t, stdout.String(), "redirected output must not reach the console")

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[1])
	assert.Equal(t, wantDir, gotDir)
}

func TestExecRunnerMissingTool(t *testing.T) {
	r := &ExecRunner{}
	err := r.Run(context.Background(), Command{Tool: "wnbuild-no-such-tool-xyz"})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseToolchain, Kind: errors.KindNotFound}), "got %v", err)
}
