package main

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasmnoise/args"
	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/loader"
	"github.com/wippyai/wasmnoise/pipeline"
	"github.com/wippyai/wasmnoise/toolchain"
	"github.com/wippyai/wasmnoise/verify"
)

// app holds the options shared by every subcommand.
type app struct {
	configPath string
	root       string
	verbose    bool
	dryRun     bool

	logger *zap.Logger
}

// invocation is a token command line split into its parts.
type invocation struct {
	opts       args.Options
	positional []string
}

// parseTokens consumes the global options from tokens, interprets the build
// tokens and collects positional arguments. Global options are accepted in
// both "--name value" and "--name=value" form.
func (a *app) parseTokens(tokens []string) (invocation, error) {
	var inv invocation
	var rest []string

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		name, value, hasValue := strings.Cut(tok, "=")
		switch name {
		case "--dry-run":
			a.dryRun = true
			continue
		case "--verbose":
			a.verbose = true
			continue
		case "--config", "--root":
			if !hasValue {
				if i+1 >= len(tokens) {
					return inv, errors.InvalidInput(errors.PhaseArgs, name+" needs a value")
				}
				i++
				value = tokens[i]
			}
			if name == "--config" {
				a.configPath = value
			} else {
				a.root = value
			}
			continue
		}
		if tok != "" && !strings.HasPrefix(tok, "-") {
			inv.positional = append(inv.positional, tok)
			continue
		}
		rest = append(rest, tok)
	}

	inv.opts = args.Parse(rest)
	if inv.opts.Verbose {
		a.verbose = true
	}
	return inv, nil
}

// setupLogging installs a console logger in every package. Only warnings are
// shown unless verbose output was requested.
func (a *app) setupLogging(w io.Writer) {
	level := zapcore.WarnLevel
	if a.verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	a.logger = zap.New(core).Named("wnbuild")

	config.SetLogger(a.logger.Named("config"))
	exports.SetLogger(a.logger.Named("exports"))
	toolchain.SetLogger(a.logger.Named("toolchain"))
	loader.SetLogger(a.logger.Named("loader"))
	verify.SetLogger(a.logger.Named("verify"))
	pipeline.SetLogger(a.logger.Named("pipeline"))
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// loadConfig reads the project configuration. --config names the file;
// otherwise wnbuild.yaml is looked up in --root or the working directory.
// --root overrides the root recorded in the file.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case a.configPath != "":
		cfg, err = config.Load(a.configPath)
	case a.root != "":
		cfg, err = config.LoadDir(a.root)
	default:
		var wd string
		wd, err = os.Getwd()
		if err != nil {
			return nil, errors.IO(errors.PhaseConfig, ".", err)
		}
		cfg, err = config.LoadDir(wd)
	}
	if err != nil {
		return nil, err
	}
	if a.root != "" {
		cfg.Root = a.root
	}
	return cfg, nil
}

// loadTable loads the export descriptor named by cfg.
func loadTable(cfg *config.Config) (*exports.Table, error) {
	return exports.Load(cfg.Path(cfg.ExportsFile))
}

func warnUnrecognized(out *console.Console, opts args.Options) {
	for _, tok := range opts.Unrecognized {
		out.Warn("Ignoring unrecognised option '%s'", tok)
	}
}
