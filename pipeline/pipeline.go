// Package pipeline runs a complete build: it bumps the version, resolves the
// enabled function groups, drives the toolchain, verifies the optimised
// module and writes the autoloader and build manifest next to it.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/args"
	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/loader"
	"github.com/wippyai/wasmnoise/toolchain"
	"github.com/wippyai/wasmnoise/verify"
	"github.com/wippyai/wasmnoise/version"
)

// Options parameterise one build.
type Options struct {
	args.Options

	// DryRun prints the commands without running them. The version file is
	// read but not rewritten and nothing is written under the bin directory.
	DryRun bool

	// Runner executes external tools. Nil runs them as child processes
	// streaming to Console.
	Runner  toolchain.Runner
	Console *console.Console
}

// Result describes a finished build.
type Result struct {
	ID        string
	Previous  version.Version
	Version   version.Version
	BuildDir  string
	Artifacts toolchain.Artifacts
	Groups    exports.GroupSet
	Macros    []string
	Sources   []string
	Filter    exports.FilterStats
	// Report is nil when verification is disabled or the build is a dry run.
	Report   *verify.Report
	Loader   string
	Manifest string
	Elapsed  time.Duration
}

// Module returns the path of the shipped module.
func (r *Result) Module() string {
	return filepath.Join(r.BuildDir, r.Artifacts.Optimised)
}

// Build runs every stage for cfg and opts and stops at the first failure.
// The version file is bumped before the toolchain runs, so a failed build
// still consumes its version number.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := opts.Console
	if out == nil {
		out = console.Stdout()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &toolchain.ExecRunner{Stdout: out.Writer(), Stderr: out.Writer()}
	}

	start := time.Now()
	res := &Result{ID: uuid.NewString()}
	log := Logger().With(zap.String("build_id", res.ID))

	for _, tok := range opts.Unrecognized {
		out.Warn("Ignoring unrecognised option '%s'", tok)
	}

	out.Println("Building WasmNoise, incrementing", opts.Level.String())
	prev, next, err := bumpVersion(cfg, opts.Level, opts.DryRun)
	if err != nil {
		return nil, err
	}
	res.Previous, res.Version = prev, next
	out.Println("New Version: " + next.String())

	res.Groups = exports.Resolve(opts.Enables)
	for _, name := range res.Groups.Names() {
		out.Info("Enabling function set: %s", name)
	}

	table, err := exports.Load(cfg.Path(cfg.ExportsFile))
	if err != nil {
		return nil, err
	}
	for _, name := range table.Missing(res.Groups) {
		out.Warn("Function set %s is not declared in %s", name, cfg.ExportsFile)
	}
	res.Macros = table.Macros(res.Groups)

	res.Sources, err = toolchain.DiscoverSources(cfg.Path(cfg.SourceDir))
	if err != nil {
		return nil, err
	}

	outName := next.OutputName(cfg.OutputPrefix)
	res.Artifacts = toolchain.ArtifactsFor(outName)
	res.BuildDir = filepath.Join(cfg.Path(cfg.BinDir), next.BuildDir(cfg.OutputPrefix))
	if !opts.DryRun {
		if err := os.MkdirAll(res.BuildDir, 0o755); err != nil {
			return nil, errors.IO(errors.PhaseToolchain, res.BuildDir, err)
		}
	}

	log.Info("build started",
		zap.String("version", next.String()),
		zap.String("level", opts.Level.String()),
		zap.Strings("groups", res.Groups.Names()),
		zap.String("dir", res.BuildDir))

	steps := toolchain.Plan(cfg, toolchain.Inputs{
		BuildDir:     res.BuildDir,
		OutName:      outName,
		Optimisation: opts.Optimisation,
		Sources:      res.Sources,
		Macros:       res.Macros,
		AllowAbort:   opts.AllowAbort,
		Verbose:      opts.Verbose,
		Table:        table,
		Groups:       res.Groups,
		OnFiltered: func(stats exports.FilterStats) {
			res.Filter = stats
			log.Debug("exports filtered",
				zap.Int("kept", stats.Kept()),
				zap.Strings("removed", stats.Removed))
		},
	})

	driver := toolchain.NewDriver(runner, out)
	driver.DryRun = opts.DryRun
	if err := driver.Run(ctx, steps); err != nil {
		return nil, err
	}

	if opts.DryRun {
		out.Detail("(skipping verification, autoloader and manifest)")
		res.Elapsed = time.Since(start)
		return res, nil
	}

	out.Success("Wasm compiled successfully! %s file now located at %s", res.Artifacts.Optimised, res.BuildDir)

	if cfg.Verify {
		checker := verify.NewChecker(table.Startup(), cfg.MemoryPages)
		report, err := checker.CheckFile(ctx, res.Module(), table.Allowed(res.Groups))
		if err != nil {
			return nil, err
		}
		res.Report = &report
		out.Detail("verified %d exports, imports %v", len(report.Exports), report.Imports)
	}

	out.Info("Writing Autoloader Script...")
	res.Loader = filepath.Join(res.BuildDir, cfg.LoaderFile)
	err = loader.WriteFile(res.Loader, loader.Options{
		ModuleFile:  res.Artifacts.Optimised,
		MemoryPages: cfg.MemoryPages,
		Table:       table,
		Groups:      res.Groups,
	})
	if err != nil {
		return nil, err
	}
	out.Success("%s written successfully!", cfg.LoaderFile)

	res.Elapsed = time.Since(start)
	res.Manifest = filepath.Join(res.BuildDir, ManifestFileName)
	if err := WriteManifest(res.Manifest, NewManifest(res, opts.Options, time.Now())); err != nil {
		return nil, err
	}

	log.Info("build finished", zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func bumpVersion(cfg *config.Config, level version.Level, dryRun bool) (version.Version, version.Version, error) {
	store := version.NewStore(cfg.Path(cfg.VersionFile))
	if !dryRun {
		return store.Increment(level)
	}
	v, err := store.Load()
	if err != nil {
		return version.Version{}, version.Version{}, err
	}
	return v, v.Bump(level), nil
}
