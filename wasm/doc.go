// Package wasm reads the import and export surface of a WebAssembly binary
// module.
//
// Only the header, the section list, and the import and export sections are
// decoded. That is enough to check what a built module exposes without
// pulling in a full decoder:
//
//	exports, err := wasm.ReadExports(data)
//	for _, e := range exports {
//		fmt.Println(e.Kind, e.Name)
//	}
package wasm
