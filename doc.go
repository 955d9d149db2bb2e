// Package wasmnoise builds the WasmNoise C++ noise library into a WebAssembly
// module together with a JavaScript autoloader.
//
// Each build increments a four-part version, compiles the sources with an
// LLVM toolchain, removes the exports of function sets that were not enabled
// and writes an autoloader that knows exactly which functions survived.
//
// # Architecture Overview
//
// The repository is organized into several packages with distinct responsibilities:
//
//	wasmnoise/
//	├── cmd/wnbuild/     Command-line entry point
//	├── pipeline/        Full build, build manifest and watch mode
//	├── args/            Build token interpretation (-minor, -O2, -EnablePerlin)
//	├── version/         version.ini store and bump arithmetic
//	├── exports/         Export descriptor, group resolution and export filter
//	├── toolchain/       Step plan and external tool driver
//	├── loader/          JavaScript autoloader emitter
//	├── wasm/            Binary module import/export inspection
//	├── verify/          Output module verification
//	├── config/          wnbuild.yaml loading
//	├── console/         Coloured progress output
//	└── errors/          Structured error types
//
// # Build Steps
//
// A build runs these steps strictly in order and stops at the first failure:
//
//	clang++     sources      -> *.bc
//	llvm-link   *.bc         -> <out>.bc
//	llc         <out>.bc     -> <out>.s
//	s2wasm      <out>.s      -> <out>.wat
//	(filter)    <out>.wat    -> <out>.cleanexports.wat
//	wat2wasm    .cleanexports.wat -> <out>.wasm
//	wasm-opt    <out>.wasm   -> <out>.opt.wasm
//
// where <out> is "wasmnoise-M.m.p". Everything lands in bin/<out>.b<build>,
// alongside wasmnoise.autoloader.js and a build.yaml manifest.
//
// # Quick Start
//
//	wnbuild init
//	wnbuild -minor -EnablePerlin -O3
//	wnbuild groups -EnableAllSimplex
//	wnbuild watch -EnablePerlin
//
// Programmatic use:
//
//	cfg, err := config.LoadDir(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := pipeline.Build(ctx, cfg, pipeline.Options{
//	    Options: args.Parse([]string{"-patch", "-EnableSimplex"}),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Module())
//
// # Function Sets
//
// Function sets (groups) are declared in wasmnoiseexports.json. Each names
// the symbols it exports and, optionally, the compiler macro that compiles it
// in. The getset group is always kept. Enable tokens map to groups:
//
//	-EnableAll             every group
//	-EnablePerlin          getset, perlin
//	-EnablePerlinFractal   getset, fractalGetSet, perlinFractal
//	-EnableAllPerlin       getset, fractalGetSet, perlin, perlinFractal
//	-EnableSimplex         getset, simplex
//	-EnableSimplexFractal  getset, fractalGetSet, simplexFractal
//	-EnableAllSimplex      getset, fractalGetSet, simplex, simplexFractal
//	-EnableCellular        getset, cellularGetSet, cellular
//
// # Concurrency
//
// A build is sequential: each step blocks on its tool. The watcher owns a
// single goroutine and never overlaps rebuilds.
package wasmnoise
