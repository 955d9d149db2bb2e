// Package exports resolves which groups of library functions a build exports
// and strips every other export from the generated text module.
//
// A group bundles exported symbols with the compiler macro that compiles them
// in. Groups are declared in an export descriptor (JSON or YAML):
//
//	{
//	  "startup": "_GLOBAL__sub_I_WasmNoiseInterface.cpp",
//	  "exports": {
//	    "getset": {"funcs": ["SetSeed", "GetSeed"]},
//	    "perlin": {"macro": "-DWN_INCLUDE_PERLIN", "funcs": ["GetPerlin2"]}
//	  }
//	}
//
// Enable flags from the command line expand to groups through a fixed lookup
// table:
//
//	set := exports.Resolve([]exports.Flag{exports.EnablePerlin})
//	// set.Names() == ["getset", "perlin"]
//
// The filter then keeps an export line only when its symbol belongs to the
// base group ("getset") or to an enabled group:
//
//	out, stats, err := exports.FilterFile("bin/wasmnoise-0.1.0.wat", table, set)
//	// out == "bin/wasmnoise-0.1.0.cleanexports.wat"
package exports
