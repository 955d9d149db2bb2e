package main

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasmnoise/args"
	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/loader"
	"github.com/wippyai/wasmnoise/pipeline"
	"github.com/wippyai/wasmnoise/verify"
	"github.com/wippyai/wasmnoise/version"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	root := a.tokenCommand(&cobra.Command{
		Use:   "wnbuild [tokens...]",
		Short: "Build the WasmNoise WebAssembly module",
		Long: `wnbuild compiles the WasmNoise C++ sources to an optimised WebAssembly
module, strips the exports of disabled function sets and writes a JavaScript
autoloader next to it. Each build increments the version in version.ini.

Build tokens are single-dash words such as -minor, -O2 or -EnablePerlin.
Run "wnbuild -help" for the full list. Global options such as --root and
--dry-run are accepted after the subcommand name.`,
	}, a.runBuild)
	root.Args = cobra.ArbitraryArgs
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default <root>/"+config.FileName+")")
	root.PersistentFlags().StringVar(&a.root, "root", "", "project root (default: working directory)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentPostRun = func(*cobra.Command, []string) { a.sync() }

	root.AddCommand(
		a.tokenCommand(&cobra.Command{
			Use:   "build [tokens...]",
			Short: "Bump the version and run the full build (default command)",
		}, a.runBuild),
		a.tokenCommand(&cobra.Command{
			Use:   "groups [tokens...]",
			Short: "Show the function sets, macros and symbols the enable tokens select",
		}, a.runGroups),
		a.tokenCommand(&cobra.Command{
			Use:   "filter <file.wat> [tokens...]",
			Short: "Strip disabled exports from a text module",
		}, a.runFilter),
		a.tokenCommand(&cobra.Command{
			Use:   "loader <module.wasm> [tokens...]",
			Short: "Write the autoloader for a module",
		}, a.runLoader),
		a.tokenCommand(&cobra.Command{
			Use:   "inspect <module.wasm> [tokens...]",
			Short: "List a module's exports and imports and verify it",
		}, a.runInspect),
		a.tokenCommand(&cobra.Command{
			Use:   "watch [tokens...]",
			Short: "Rebuild whenever a source file changes",
		}, a.runWatch),
		&cobra.Command{
			Use:   "version",
			Short: "Print the current version",
			Args:  cobra.NoArgs,
			RunE:  a.runVersion,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create version.ini, the export descriptor and " + config.FileName,
			Args:  cobra.NoArgs,
			RunE:  a.runInit,
		},
	)
	return root
}

// tokenCommand disables cobra's flag parsing for cmd so build tokens reach
// the argument interpreter untouched.
func (a *app) tokenCommand(cmd *cobra.Command, run func(*cobra.Command, invocation) error) *cobra.Command {
	cmd.DisableFlagParsing = true
	cmd.RunE = func(cmd *cobra.Command, tokens []string) error {
		inv, err := a.parseTokens(tokens)
		if err != nil {
			return err
		}
		a.setupLogging(cmd.ErrOrStderr())
		if inv.opts.Help {
			fmt.Fprintf(cmd.OutOrStdout(), "Usage: %s\n\n%s", cmd.UseLine(), args.Usage())
			return nil
		}
		return run(cmd, inv)
	}
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	opts := inv.opts
	opts.Unrecognized = append(opts.Unrecognized, inv.positional...)

	res, err := pipeline.Build(cmd.Context(), cfg, pipeline.Options{
		Options: opts,
		DryRun:  a.dryRun,
		Console: out,
	})
	if err != nil {
		return err
	}
	if a.dryRun {
		out.Success("Dry run complete, %s would be built in %s", res.Version, res.BuildDir)
	}
	return nil
}

func (a *app) runGroups(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	warnUnrecognized(out, inv.opts)
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	set := exports.Resolve(inv.opts.Enables)
	for _, name := range table.Missing(set) {
		out.Warn("Function set %s is not declared in %s", name, cfg.ExportsFile)
	}

	out.Info("Function sets:")
	for _, name := range set.Names() {
		g, ok := table.Group(name)
		if !ok {
			continue
		}
		macro := g.Macro
		if macro == "" {
			macro = "(no macro)"
		}
		out.Printf("  %-16s %-28s %d symbols\n", g.Name, macro, len(g.Funcs))
	}

	out.Info("Macros:")
	for _, m := range table.Macros(set) {
		out.Println("  " + m)
	}
	out.Info("Symbols:")
	for _, s := range table.Symbols(set) {
		out.Println("  " + s)
	}
	out.Info("Linker exports:")
	out.Println("  " + strings.Join(table.LinkerExports(set), " "))
	return nil
}

func (a *app) runFilter(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	warnUnrecognized(out, inv.opts)
	path, err := single(inv, "text module")
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	dst, stats, err := exports.FilterFile(path, table, exports.Resolve(inv.opts.Enables))
	if err != nil {
		return err
	}
	for _, sym := range stats.Removed {
		out.Detail("removed %s", sym)
	}
	out.Success("Wrote %s (%d of %d exports kept)", dst, stats.Kept(), stats.Exports)
	return nil
}

func (a *app) runLoader(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	warnUnrecognized(out, inv.opts)
	module, err := single(inv, "module")
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	dst := filepath.Join(filepath.Dir(module), cfg.LoaderFile)
	err = loader.WriteFile(dst, loader.Options{
		ModuleFile:  filepath.Base(module),
		MemoryPages: cfg.MemoryPages,
		Table:       table,
		Groups:      exports.Resolve(inv.opts.Enables),
	})
	if err != nil {
		return err
	}
	out.Success("%s written successfully!", dst)
	return nil
}

func (a *app) runInspect(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	warnUnrecognized(out, inv.opts)
	module, err := single(inv, "module")
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	checker := verify.NewChecker(table.Startup(), cfg.MemoryPages)
	report, err := checker.CheckFile(cmd.Context(), module, table.Allowed(exports.Resolve(inv.opts.Enables)))

	out.Info("Exports (%d):", len(report.Exports))
	for _, name := range report.Exports {
		out.Println("  " + name)
	}
	out.Info("Imports (%d):", len(report.Imports))
	for _, name := range report.Imports {
		out.Println("  " + name)
	}
	if report.MemoryMinPages > 0 {
		out.Detail("imported memory: %d pages minimum", report.MemoryMinPages)
	}
	if err != nil {
		return err
	}
	out.Success("%s is valid", module)
	return nil
}

func (a *app) runWatch(cmd *cobra.Command, inv invocation) error {
	out := console.New(cmd.OutOrStdout())
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	opts := inv.opts
	opts.Unrecognized = append(opts.Unrecognized, inv.positional...)

	w, err := pipeline.NewWatcher(cfg, pipeline.Options{Options: opts, Console: out})
	if err != nil {
		return err
	}
	out.Info("Watching %s for changes, press Ctrl-C to stop", cfg.Path(cfg.SourceDir))
	return w.Run(cmd.Context())
}

func (a *app) runVersion(cmd *cobra.Command, _ []string) error {
	a.setupLogging(cmd.ErrOrStderr())
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	v, err := version.NewStore(cfg.Path(cfg.VersionFile)).Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.OutputPrefix, v)
	return nil
}

func (a *app) runInit(cmd *cobra.Command, _ []string) error {
	a.setupLogging(cmd.ErrOrStderr())
	out := console.New(cmd.OutOrStdout())
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	store := version.NewStore(cfg.Path(cfg.VersionFile))
	created, err := store.Init()
	if err != nil {
		return err
	}
	report(out, store.Path(), created)

	descriptor := cfg.Path(cfg.ExportsFile)
	created, err = writeIfAbsent(descriptor, func() error {
		if err := os.WriteFile(descriptor, exports.DefaultDescriptor, 0o644); err != nil {
			return errors.IO(errors.PhaseExports, descriptor, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	report(out, descriptor, created)

	cfgPath := a.configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(cfg.Root, config.FileName)
	}
	created, err = writeIfAbsent(cfgPath, func() error { return cfg.Save(cfgPath) })
	if err != nil {
		return err
	}
	report(out, cfgPath, created)
	return nil
}

func writeIfAbsent(path string, write func() error) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !stderrors.Is(err, fs.ErrNotExist) {
		return false, errors.IO(errors.PhaseConfig, path, err)
	}
	return true, write()
}

func report(out *console.Console, path string, created bool) {
	if created {
		out.Success("Created %s", path)
		return
	}
	out.Detail("%s already exists", path)
}

// single returns the one positional argument of inv.
func single(inv invocation, what string) (string, error) {
	if len(inv.positional) != 1 {
		return "", errors.InvalidInput(errors.PhaseArgs,
			fmt.Sprintf("expected one %s path, got %d", what, len(inv.positional)))
	}
	return inv.positional[0], nil
}
