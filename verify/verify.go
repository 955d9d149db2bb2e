// Package verify checks a built module before it ships: its function exports
// must stay within the enabled groups, the symbols the loader calls must be
// present, every import must be one the loader provides, and the module must
// compile.
package verify

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"slices"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/loader"
	"github.com/wippyai/wasmnoise/wasm"
)

// Report describes a checked module.
type Report struct {
	Module     string
	Exports    []string // function exports in declaration order
	Imports    []string // "module.name"
	Unexpected []string // function exports outside the allowed set
	// MemoryMinPages is the minimum size of the imported memory, zero when
	// the module defines its own.
	MemoryMinPages uint64
	Compiled       bool
}

// Checker verifies modules against the loader's environment.
type Checker struct {
	// Required symbols must be exported. The loader calls them directly.
	Required []string
	// MemoryPages is the initial size of the memory the loader creates.
	// Zero disables the size check.
	MemoryPages uint64
	// Env lists the names the loader provides in its "env" import object.
	Env []string
}

// NewChecker returns a Checker for the generated loader with the given
// startup symbol and memory size.
func NewChecker(startup string, memoryPages int) *Checker {
	c := &Checker{
		MemoryPages: uint64(max(memoryPages, 0)),
		Env:         loader.EnvImports(),
	}
	if startup != "" {
		c.Required = []string{startup}
	}
	return c
}

// Check verifies data with the default loader environment.
func Check(ctx context.Context, data []byte, allowed exports.SymbolSet) (Report, error) {
	c := &Checker{Env: loader.EnvImports()}
	return c.Check(ctx, "", data, allowed)
}

// CheckFile reads and verifies the module at path.
func (c *Checker) CheckFile(ctx context.Context, path string, allowed exports.SymbolSet) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Report{Module: path}, errors.NotFound(errors.PhaseVerify, "module", path)
		}
		return Report{Module: path}, errors.IO(errors.PhaseVerify, path, err)
	}
	return c.Check(ctx, path, data, allowed)
}

// Check verifies data. name identifies the module in errors and the report.
// A nil allowed set skips the export check.
func (c *Checker) Check(ctx context.Context, name string, data []byte, allowed exports.SymbolSet) (Report, error) {
	report := Report{Module: name}
	log := Logger().With(zap.String("module", name))

	info, err := wasm.Inspect(data)
	if err != nil {
		return report, errors.InvalidModule(name, err)
	}

	report.Exports = info.FuncExports()
	for _, imp := range info.Imports {
		report.Imports = append(report.Imports, imp.Module+"."+imp.Name)
	}
	if mem, ok := info.MemoryImport(); ok {
		report.MemoryMinPages = mem.MinPages
	}

	if allowed != nil {
		for _, sym := range report.Exports {
			if !allowed.Contains(sym) {
				report.Unexpected = append(report.Unexpected, sym)
			}
		}
		if len(report.Unexpected) > 0 {
			return report, errors.NewUnexpectedExportsError(name, report.Unexpected)
		}
	}

	for _, sym := range c.Required {
		if !slices.Contains(report.Exports, sym) {
			return report, errors.New(errors.PhaseVerify, errors.KindInvalidModule).
				Path(name).
				Detail("required export %q missing", sym).
				Build()
		}
	}

	if err := c.checkImports(name, info); err != nil {
		return report, err
	}

	if err := compile(ctx, data); err != nil {
		return report, errors.InvalidModule(name, err)
	}
	report.Compiled = true

	log.Debug("module verified",
		zap.Int("exports", len(report.Exports)),
		zap.Strings("imports", report.Imports),
		zap.Uint64("memory_min_pages", report.MemoryMinPages))
	return report, nil
}

func (c *Checker) checkImports(name string, info *wasm.Info) error {
	for _, imp := range info.Imports {
		if imp.Module != loader.EnvModule || (c.Env != nil && !slices.Contains(c.Env, imp.Name)) {
			return errors.New(errors.PhaseVerify, errors.KindInvalidModule).
				Path(name).
				Detail("import %s.%s (%s) is not provided by the loader", imp.Module, imp.Name, imp.Kind).
				Build()
		}
		if imp.Kind == wasm.KindMemory && c.MemoryPages > 0 && imp.MinPages > c.MemoryPages {
			return errors.New(errors.PhaseVerify, errors.KindInvalidModule).
				Path(name).
				Detail("module needs %d memory pages, loader provides %d", imp.MinPages, c.MemoryPages).
				Build()
		}
	}
	return nil
}

// compile validates the module with wazero. The module imports its memory,
// so it is compiled but never instantiated.
func compile(ctx context.Context, data []byte) error {
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, data)
	if err != nil {
		return err
	}
	return compiled.Close(ctx)
}
