package toolchain

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
)

// AllowAbortMacro compiles in the library's abort() alerts.
const AllowAbortMacro = "-DWN_ALLOW_ABORT"

// Step names, in execution order.
const (
	StepCompile  = "compile"
	StepLink     = "link"
	StepAssemble = "assemble"
	StepToText   = "s2wasm"
	StepStrip    = "strip-exports"
	StepToBinary = "wat2wasm"
	StepOptimise = "optimise"
)

// Step is one stage of the build. Exactly one of Command or Func is used:
// a step with a non-nil Func runs in process.
type Step struct {
	Name    string
	Banner  string
	Command Command
	// Expand, when set, is called just before the command runs and may
	// rewrite it from files produced by earlier steps.
	Expand func(Command) (Command, error)
	Func   func(ctx context.Context) error
}

// External reports whether the step runs an external tool.
func (s Step) External() bool {
	return s.Func == nil
}

// Artifacts are the file names produced inside the build directory.
type Artifacts struct {
	Bitcode   string // linked bitcode
	Assembly  string // llc output
	Text      string // s2wasm text module
	Filtered  string // text module after export stripping
	Binary    string // wat2wasm output
	Optimised string // wasm-opt output, the shipped module
}

// ArtifactsFor names the artefacts for an output base name such as
// "wasmnoise-1.2.3".
func ArtifactsFor(outName string) Artifacts {
	text := outName + ".wat"
	return Artifacts{
		Bitcode:   outName + ".bc",
		Assembly:  outName + ".s",
		Text:      text,
		Filtered:  exports.FilteredName(text),
		Binary:    outName + ".wasm",
		Optimised: outName + ".opt.wasm",
	}
}

// List returns the artefact names in production order.
func (a Artifacts) List() []string {
	return []string{a.Bitcode, a.Assembly, a.Text, a.Filtered, a.Binary, a.Optimised}
}

// Inputs parameterise Plan for one build.
type Inputs struct {
	BuildDir     string
	OutName      string
	Optimisation string
	Sources      []string
	Macros       []string
	AllowAbort   bool
	Verbose      bool

	// Export filter inputs for the strip step.
	Table  *exports.Table
	Groups exports.GroupSet
	// OnFiltered receives the filter statistics. Optional.
	OnFiltered func(exports.FilterStats)
}

// Plan returns the seven build steps for in. Tool names, include
// directories, stack size and language settings come from cfg.
func Plan(cfg *config.Config, in Inputs) []Step {
	art := ArtifactsFor(in.OutName)
	tools := cfg.Tools
	dir := in.BuildDir

	clang := []string{
		"--target=" + cfg.Target,
		"-emit-llvm",
		"-std=" + cfg.Std,
		in.Optimisation,
		"-c",
	}
	for _, inc := range cfg.IncludePaths() {
		clang = append(clang, "-I"+inc)
	}
	clang = append(clang, in.Sources...)
	clang = append(clang, "-pedantic", "-Wall", "-Wextra")
	clang = append(clang, in.Macros...)
	if in.AllowAbort {
		clang = append(clang, AllowAbortMacro)
	}
	if in.Verbose {
		clang = append(clang, "-v")
	}

	memory := cfg.Path(cfg.MemoryBitcode)

	return []Step{
		{
			Name:    StepCompile,
			Banner:  "Compiling with clang...",
			Command: Command{Tool: tools.Clang, Args: clang, Dir: dir},
		},
		{
			Name:    StepLink,
			Banner:  "Linking with llvm-link...",
			Command: Command{Tool: tools.LLVMLink, Args: []string{"-v", "-o", art.Bitcode}, Dir: dir},
			Expand: func(c Command) (Command, error) {
				bitcode, err := ListBitcode(c.Dir, art.Bitcode)
				if err != nil {
					return c, err
				}
				c.Args = append(slices.Clone(c.Args), bitcode...)
				c.Args = append(c.Args, memory)
				return c, nil
			},
		},
		{
			Name:   StepAssemble,
			Banner: "Converting to S-expressions with llc...",
			Command: Command{
				Tool: tools.LLC,
				Args: []string{"-asm-verbose=false", in.Optimisation, "-o", art.Assembly, art.Bitcode},
				Dir:  dir,
			},
		},
		{
			Name:   StepToText,
			Banner: "Converting S-expressions to wat...",
			Command: Command{
				Tool:   tools.S2Wasm,
				Args:   []string{"-s", strconv.Itoa(cfg.StackSize), "--import-memory", art.Assembly},
				Dir:    dir,
				Stdout: art.Text,
			},
		},
		{
			Name:   StepStrip,
			Banner: "Removing unwanted exports from wat file...",
			Func: func(context.Context) error {
				_, stats, err := exports.FilterFile(filepath.Join(dir, art.Text), in.Table, in.Groups)
				if err != nil {
					return err
				}
				if in.OnFiltered != nil {
					in.OnFiltered(stats)
				}
				return nil
			},
		},
		{
			Name:    StepToBinary,
			Banner:  "Compiling wat to wasm...",
			Command: Command{Tool: tools.Wat2Wasm, Args: []string{art.Filtered, "-o", art.Binary}, Dir: dir},
		},
		{
			Name:   StepOptimise,
			Banner: "Passing compiled wasm through wasm-opt to try to achieve faster and smaller binary...",
			Command: Command{
				Tool: tools.WasmOpt,
				Args: []string{in.Optimisation, art.Binary, "-o", art.Optimised},
				Dir:  dir,
			},
		},
	}
}

// ListBitcode returns the .bc files in dir in name order, leaving out
// exclude. A missing dir yields no files.
func ListBitcode(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(orDot(dir))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.IO(errors.PhaseToolchain, dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".bc") || name == exclude {
			continue
		}
		files = append(files, name)
	}
	return files, nil
}

// SourceExtensions are the file suffixes compiled by the compile step.
var SourceExtensions = []string{".cpp", ".c"}

// DiscoverSources returns the absolute paths of the translation units in dir,
// sorted by name.
func DiscoverSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseToolchain, "source directory", dir)
		}
		return nil, errors.IO(errors.PhaseToolchain, dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.IO(errors.PhaseToolchain, dir, err)
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(SourceExtensions, filepath.Ext(e.Name())) {
			continue
		}
		sources = append(sources, filepath.Join(abs, e.Name()))
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.PhaseToolchain, errors.KindNotFound).
			Path(dir).
			Detail("no %s sources", strings.Join(SourceExtensions, "/")).
			Build()
	}
	return sources, nil
}

func orDot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
