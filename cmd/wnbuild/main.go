// Command wnbuild builds the WasmNoise WebAssembly module and its autoloader.
//
//	wnbuild [-build|-patch|-minor|-major] [-O0..-O3] [-v] [-Enable...] [-AllowAbort]
//
// Without a subcommand the arguments are build tokens. See "wnbuild -help".
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wippyai/wasmnoise/console"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		console.Stderr().Error("Error: %v", err)
		stop()
		os.Exit(1)
	}
}
