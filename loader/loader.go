// Package loader renders the JavaScript autoloader shipped next to each
// build. The script fetches the module, instantiates it against a memory it
// owns, lifts the enabled exports onto the WasmNoise namespace and adds
// *_Values helpers that copy generated noise out of linear memory.
package loader

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
)

// DefaultFileName is the autoloader file name.
const DefaultFileName = "wasmnoise.autoloader.js"

// DefaultMemoryPages is the initial size, in 64KiB pages, of the memory the
// loader creates.
const DefaultMemoryPages = 9

// EnvModule is the import module name the loader satisfies.
const EnvModule = "env"

var envImports = []string{"__errno_location", "abort", "sbrk", "memory"}

// EnvImports returns the names the loader provides to the module.
func EnvImports() []string {
	return append([]string(nil), envImports...)
}

// Options parameterise Render.
type Options struct {
	// ModuleFile is fetched relative to the page that includes the loader.
	ModuleFile  string
	MemoryPages int
	Table       *exports.Table
	Groups      exports.GroupSet
}

// Helper is one generated *_Values convenience function.
type Helper struct {
	Func   string // exported function, e.g. GetPerlin3
	Kind   string // Strip, Square or Cube
	Start  string // start coordinate parameters
	Params string // shape parameters
	Size   string // byte length expression of the result
}

// Name returns the helper's property name.
func (h Helper) Name() string {
	return h.Func + "_" + h.Kind + "_Values"
}

// Elevations returns the enabled symbols lifted onto the namespace: every
// symbol of the enabled groups except the startup symbol, without
// duplicates.
func Elevations(table *exports.Table, set exports.GroupSet) []string {
	var out []string
	for _, sym := range table.Symbols(set) {
		if sym != table.Startup() {
			out = append(out, sym)
		}
	}
	return out
}

// Helpers returns the *_Values helpers for syms. A symbol ending in 2 gets
// Strip and Square helpers; one ending in 3 or 4 also gets Cube.
func Helpers(syms []string) []Helper {
	var helpers []Helper
	for _, sym := range syms {
		if sym == "" {
			continue
		}
		var start string
		switch sym[len(sym)-1] {
		case '2':
			start = "startX, startY"
			helpers = append(helpers,
				Helper{sym, "Strip", start, "length, direction", "length * 4"},
				Helper{sym, "Square", start, "width, height", "width * height * 4"})
			continue
		case '3':
			start = "startX, startY, startZ"
		case '4':
			start = "startX, startY, startZ, startW"
		default:
			continue
		}
		helpers = append(helpers,
			Helper{sym, "Strip", start, "length, direction", "length * 4"},
			Helper{sym, "Square", start, "width, height, plane", "width * height * 4"},
			Helper{sym, "Cube", start, "width, height, depth", "width * height * depth * 4"})
	}
	return helpers
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// member renders a property access, falling back to bracket notation for
// names that are not identifiers.
func member(name string) string {
	if identifier.MatchString(name) {
		return "." + name
	}
	return "['" + template.JSEscapeString(name) + "']"
}

var scriptTemplate = template.Must(template.New("autoloader").
	Funcs(template.FuncMap{"member": member}).
	Parse(`var WasmNoise = WasmNoise || {};
WasmNoise.memory = WasmNoise.memory || new WebAssembly.Memory({initial: {{.MemoryPages}}});
WasmNoise.Interp = WasmNoise.Interp || Object.freeze({Linear: 0, Hermite: 1, Quintic: 2});
{{- if .Fractal}}
WasmNoise.FractalType = WasmNoise.FractalType || Object.freeze({FBM: 0, Billow: 1, RidgedMulti: 2});
{{- end}}
WasmNoise.StripDirection = WasmNoise.StripDirection || Object.freeze({XAxis: 0, YAxis: 1, ZAxis: 2, WAxis: 3});
WasmNoise.SquarePlane = WasmNoise.SquarePlane || Object.freeze({XYPlane: 0, XZPlane: 1, ZYPlane: 2});
WasmNoise.fetchCompileAndInstantiate = WasmNoise.fetchCompileAndInstantiate || function() {
  return fetch('./{{js .ModuleFile}}')
    .then(res => {
      if (res.ok) {
        return res.arrayBuffer();
      }
      throw new Error('Unable to fetch WasmNoise!');
    })
    .then(bytes => WebAssembly.compile(bytes))
    .then(wasmnoiseModule => {
      return WebAssembly.instantiate(wasmnoiseModule, {
        env: {
          __errno_location: function() { return 8; },
          abort: function() { throw new Error('Abort called!'); },
          sbrk: function(len) { return (WasmNoise.memory.grow(len >> 16) << 16); },
          memory: this.memory
        }
      });
    })
    .then(instance => {
      this.instance = instance;
      this.instance.exports['{{js .Startup}}']();
{{- range .Elevations}}
      this{{member .}} = this.instance.exports{{member .}};
{{- end}}
{{- range .Helpers}}
      this.{{.Name}} = function({{.Start}}, {{.Params}}) {
        let offset = this.{{.Func}}_{{.Kind}}({{.Start}}, {{.Params}});
        return new Float32Array(this.memory.buffer.slice(offset, offset + {{.Size}}));
      };
{{- end}}
      this.GetValues = function(offset, elements) {
        return new Float32Array(this.memory.buffer.slice(offset, offset + (elements * 4)));
      };
      if (this.onLoaded) this.onLoaded();
    });
};
WasmNoise.onLoaded = WasmNoise.onLoaded || null;
WasmNoise.fetchCompileAndInstantiate();
`))

type scriptData struct {
	ModuleFile  string
	MemoryPages int
	Fractal     bool
	Startup     string
	Elevations  []string
	Helpers     []Helper
}

// Render writes the autoloader for opts to w.
func Render(w io.Writer, opts Options) error {
	if opts.Table == nil {
		return errors.InvalidInput(errors.PhaseLoader, "no export table")
	}
	if strings.TrimSpace(opts.ModuleFile) == "" {
		return errors.InvalidInput(errors.PhaseLoader, "no module file name")
	}
	pages := opts.MemoryPages
	if pages <= 0 {
		pages = DefaultMemoryPages
	}

	elevations := Elevations(opts.Table, opts.Groups)
	data := scriptData{
		ModuleFile:  filepath.ToSlash(opts.ModuleFile),
		MemoryPages: pages,
		Fractal:     opts.Groups.Has(exports.GroupFractalGetSet),
		Startup:     opts.Table.Startup(),
		Elevations:  elevations,
		Helpers:     Helpers(elevations),
	}
	if err := scriptTemplate.Execute(w, data); err != nil {
		return errors.Wrap(errors.PhaseLoader, errors.KindIO, err, "render autoloader")
	}
	return nil
}

// WriteFile renders the autoloader to path.
func WriteFile(path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IO(errors.PhaseLoader, path, err)
	}
	bw := bufio.NewWriter(f)
	err = Render(bw, opts)
	if err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = errors.IO(errors.PhaseLoader, path, ferr)
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.IO(errors.PhaseLoader, path, cerr)
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	Logger().Debug("wrote autoloader",
		zap.String("path", path),
		zap.String("module", opts.ModuleFile),
		zap.Strings("groups", opts.Groups.Names()))
	return nil
}
