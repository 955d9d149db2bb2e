// Package config loads the project configuration file, wnbuild.yaml.
//
// Every field has a default matching the stock library layout, so a project
// without a configuration file builds as-is. Relative paths are resolved
// against Root, which defaults to the directory holding the file.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmnoise/errors"
)

// FileName is the configuration file looked up in the project root.
const FileName = "wnbuild.yaml"

// Config holds all build configuration.
type Config struct {
	// Project layout
	Root          string   `yaml:"root,omitempty"`
	VersionFile   string   `yaml:"version_file"`
	ExportsFile   string   `yaml:"exports_file"`
	SourceDir     string   `yaml:"source_dir"`
	BinDir        string   `yaml:"bin_dir"`
	IncludeDirs   []string `yaml:"include_dirs"`
	MemoryBitcode string   `yaml:"memory_bitcode"`

	// Outputs
	OutputPrefix string `yaml:"output_prefix"`
	LoaderFile   string `yaml:"loader_file"`

	// Code generation
	StackSize   int    `yaml:"stack_size"`
	MemoryPages int    `yaml:"memory_pages"` // initial 64KiB pages of the loader's memory
	Std         string `yaml:"std"`
	Target      string `yaml:"target"`

	// Verify compiles the optimised module and checks its exports.
	Verify bool `yaml:"verify"`

	Tools ToolsConfig `yaml:"tools"`
}

// ToolsConfig names the external executables. Bare names are looked up on
// PATH.
type ToolsConfig struct {
	Clang    string `yaml:"clang"`
	LLVMLink string `yaml:"llvm_link"`
	LLC      string `yaml:"llc"`
	S2Wasm   string `yaml:"s2wasm"`
	Wat2Wasm string `yaml:"wat2wasm"`
	WasmOpt  string `yaml:"wasm_opt"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		VersionFile:   "version.ini",
		ExportsFile:   "wasmnoiseexports.json",
		SourceDir:     "source",
		BinDir:        "bin",
		IncludeDirs:   []string{"../wasm-stdlib-hack/include/libc"},
		MemoryBitcode: "source/memory-bitcode/memory.bc",
		OutputPrefix:  "wasmnoise",
		LoaderFile:    "wasmnoise.autoloader.js",
		StackSize:     524288,
		MemoryPages:   9,
		Std:           "c++14",
		Target:        "wasm32",
		Verify:        true,
		Tools: ToolsConfig{
			Clang:    "clang++",
			LLVMLink: "llvm-link",
			LLC:      "llc",
			S2Wasm:   "s2wasm",
			Wat2Wasm: "wat2wasm",
			WasmOpt:  "wasm-opt",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults rooted at the file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ParseFailed(errors.PhaseConfig, path, err)
		}
	case stderrors.Is(err, fs.ErrNotExist):
		Logger().Debug("no config file, using defaults")
	default:
		return nil, errors.IO(errors.PhaseConfig, path, err)
	}

	if cfg.Root == "" {
		cfg.Root = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDir loads FileName from the project root dir.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file. Root is omitted when it is
// the file's own directory.
func (c *Config) Save(path string) error {
	out := *c
	if filepath.Clean(out.Root) == filepath.Clean(filepath.Dir(path)) {
		out.Root = ""
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindParse, err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IO(errors.PhaseConfig, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IO(errors.PhaseConfig, path, err)
	}
	return nil
}

var toolEnv = []struct {
	name  string
	field func(*ToolsConfig) *string
}{
	{"WNBUILD_CLANG", func(t *ToolsConfig) *string { return &t.Clang }},
	{"WNBUILD_LLVM_LINK", func(t *ToolsConfig) *string { return &t.LLVMLink }},
	{"WNBUILD_LLC", func(t *ToolsConfig) *string { return &t.LLC }},
	{"WNBUILD_S2WASM", func(t *ToolsConfig) *string { return &t.S2Wasm }},
	{"WNBUILD_WAT2WASM", func(t *ToolsConfig) *string { return &t.Wat2Wasm }},
	{"WNBUILD_WASM_OPT", func(t *ToolsConfig) *string { return &t.WasmOpt }},
}

func (c *Config) applyEnvOverrides() {
	for _, env := range toolEnv {
		if v := os.Getenv(env.name); v != "" {
			*env.field(&c.Tools) = v
		}
	}
	if dir := os.Getenv("WNBUILD_BIN_DIR"); dir != "" {
		c.BinDir = dir
	}
}

// Path resolves rel against Root. Absolute paths are returned unchanged.
func (c *Config) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// IncludePaths returns IncludeDirs resolved against Root.
func (c *Config) IncludePaths() []string {
	paths := make([]string, len(c.IncludeDirs))
	for i, dir := range c.IncludeDirs {
		paths[i] = c.Path(dir)
	}
	return paths
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	required := map[string]string{
		"version_file":    c.VersionFile,
		"exports_file":    c.ExportsFile,
		"source_dir":      c.SourceDir,
		"bin_dir":         c.BinDir,
		"output_prefix":   c.OutputPrefix,
		"loader_file":     c.LoaderFile,
		"std":             c.Std,
		"target":          c.Target,
		"tools.clang":     c.Tools.Clang,
		"tools.llvm_link": c.Tools.LLVMLink,
		"tools.llc":       c.Tools.LLC,
		"tools.s2wasm":    c.Tools.S2Wasm,
		"tools.wat2wasm":  c.Tools.Wat2Wasm,
		"tools.wasm_opt":  c.Tools.WasmOpt,
	}
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if required[key] == "" {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("%s must not be empty", key))
		}
	}

	if c.StackSize <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("stack_size must be positive, got %d", c.StackSize))
	}
	if c.MemoryPages <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("memory_pages must be positive, got %d", c.MemoryPages))
	}
	return nil
}
