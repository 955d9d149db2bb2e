// Package toolchain runs the external compile, link and convert tools that
// turn the C++ sources into an optimised wasm binary.
//
// A build is a fixed sequence of Steps produced by Plan and executed in order
// by a Driver. Each step is either an external Command, run through a Runner,
// or an in-process function such as the export filter. The first failing
// step stops the sequence.
package toolchain

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/errors"
)

// Command is one external tool invocation.
type Command struct {
	Tool string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Stdout, when set, names a file that receives the tool's standard
	// output instead of the console. Relative names resolve against Dir.
	Stdout string
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+3)
	parts = append(parts, quote(c.Tool))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	if c.Stdout != "" {
		parts = append(parts, ">", quote(c.Stdout))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (c Command) stdoutPath() string {
	if c.Stdout == "" || filepath.IsAbs(c.Stdout) {
		return c.Stdout
	}
	return filepath.Join(c.Dir, c.Stdout)
}

// Runner executes a Command and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes. Tool output streams to Stdout
// and Stderr, which default to the process's own streams.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Env is appended to the inherited environment.
	Env []string
}

// Run starts the tool and waits for it. A non-zero exit is reported as a
// tool_failed error carrying the tool, its arguments and the exit code.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	log := Logger().With(zap.String("tool", c.Tool), zap.Strings("args", c.Args))

	cmd := exec.CommandContext(ctx, c.Tool, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = orDefault(r.Stdout, os.Stdout)
	cmd.Stderr = orDefault(r.Stderr, os.Stderr)
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var redirect *os.File
	if path := c.stdoutPath(); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.IO(errors.PhaseToolchain, path, err)
		}
		redirect = f
		cmd.Stdout = f
	}

	log.Debug("starting tool", zap.String("dir", c.Dir))
	err := cmd.Run()

	if redirect != nil {
		if cerr := redirect.Close(); err == nil && cerr != nil {
			return errors.IO(errors.PhaseToolchain, redirect.Name(), cerr)
		}
	}

	if err == nil {
		log.Debug("tool finished")
		return nil
	}

	if ctx.Err() != nil {
		log.Debug("tool cancelled", zap.Error(ctx.Err()))
		return errors.New(errors.PhaseToolchain, errors.KindCancelled).
			Tool(c.Tool, c.Args...).
			Cause(ctx.Err()).
			Build()
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		log.Debug("tool exited non-zero", zap.Int("code", exitErr.ExitCode()))
		return errors.ToolFailed(c.Tool, c.Args, exitErr.ExitCode(), err)
	}

	if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
		return errors.New(errors.PhaseToolchain, errors.KindNotFound).
			Tool(c.Tool, c.Args...).
			Detail("executable %q not found", c.Tool).
			Cause(err).
			Build()
	}

	return errors.New(errors.PhaseToolchain, errors.KindToolFailed).
		Tool(c.Tool, c.Args...).
		ExitCode(-1).
		Cause(err).
		Build()
}

func orDefault(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
