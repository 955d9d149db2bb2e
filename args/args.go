// Package args interprets the build's flat command-line token vocabulary.
//
// The vocabulary is single-dash and case-sensitive (-minor, -O2,
// -EnablePerlin, -AllowAbort). Tokens outside it are reported back to the
// caller rather than rejected, so a build never fails on a stray option.
package args

import (
	"strings"

	"github.com/wippyai/wasmnoise/exports"
	"github.com/wippyai/wasmnoise/version"
)

// DefaultOptimisation is used when no -O token is given.
const DefaultOptimisation = "-O3"

// Options is the interpreted form of a token list.
type Options struct {
	Level        version.Level
	Optimisation string
	Verbose      bool
	AllowAbort   bool
	Help         bool
	Enables      []exports.Flag
	Unrecognized []string
}

var levelTokens = map[string]version.Level{
	"-build": version.LevelBuild,
	"-patch": version.LevelPatch,
	"-minor": version.LevelMinor,
	"-major": version.LevelMajor,
}

var optimisationTokens = map[string]bool{
	"-O0": true,
	"-O1": true,
	"-O2": true,
	"-O3": true,
}

var helpTokens = map[string]bool{
	"-h": true, "-help": true, "--h": true, "--help": true, "-H": true, "--H": true,
}

const (
	verboseToken    = "-v"
	allowAbortToken = "-AllowAbort"
)

// Parse interprets tokens. The program name must not be included.
// When no enable flag is present the result enables everything.
func Parse(tokens []string) Options {
	opts := Options{
		Level:        version.LevelBuild,
		Optimisation: DefaultOptimisation,
	}

	for _, raw := range tokens {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if helpTokens[tok] {
			opts.Help = true
			continue
		}
		if !opts.apply(tok) {
			// Accept --minor as well as -minor.
			if !strings.HasPrefix(tok, "--") || !opts.apply(tok[1:]) {
				opts.Unrecognized = append(opts.Unrecognized, raw)
			}
		}
	}

	if len(opts.Enables) == 0 {
		opts.Enables = []exports.Flag{exports.EnableAll}
	}
	return opts
}

func (o *Options) apply(tok string) bool {
	if level, ok := levelTokens[tok]; ok {
		o.Level = level
		return true
	}
	if optimisationTokens[tok] {
		o.Optimisation = tok
		return true
	}
	if name, ok := strings.CutPrefix(tok, "-"); ok {
		if flag, ok := exports.ParseFlag(name); ok {
			o.Enables = append(o.Enables, flag)
			return true
		}
	}
	switch tok {
	case verboseToken:
		o.Verbose = true
		return true
	case allowAbortToken:
		o.AllowAbort = true
		return true
	}
	return false
}

// Usage returns the help text listing every recognised token.
func Usage() string {
	var b strings.Builder
	b.WriteString("Allowed configuration arguments:\n")
	b.WriteString("Build types:\n")
	b.WriteString("\t-build\tIncrement build number (default)\n")
	b.WriteString("\t-patch\tIncrement patch number\n")
	b.WriteString("\t-minor\tIncrement minor number\n")
	b.WriteString("\t-major\tIncrement major number\n")
	b.WriteString("Optimisation:\n")
	b.WriteString("\t-O0, -O1, -O2, -O3 (default -O3)\n")
	b.WriteString("Verbose:\n")
	b.WriteString("\t-v\n")
	b.WriteString("Enable function sets (combine as necessary, default -EnableAll):\n")
	for _, f := range exports.Flags() {
		b.WriteString("\t-")
		b.WriteString(f.String())
		b.WriteString("\t")
		b.WriteString(f.Description())
		b.WriteByte('\n')
	}
	b.WriteString("Allow abort alerts (testing and development only, not for production):\n")
	b.WriteString("\t-AllowAbort\n")
	b.WriteString("This help message:\n")
	b.WriteString("\t-h --h -H --H -help --help\n")
	return b.String()
}
