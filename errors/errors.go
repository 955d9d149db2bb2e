package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates which build stage produced the error
type Phase string

const (
	PhaseArgs      Phase = "args"      // command-line interpretation
	PhaseConfig    Phase = "config"    // wnbuild.yaml loading
	PhaseVersion   Phase = "version"   // version file read/write
	PhaseExports   Phase = "exports"   // export descriptor and group resolution
	PhaseToolchain Phase = "toolchain" // external tool invocation
	PhaseFilter    Phase = "filter"    // export stripping
	PhaseLoader    Phase = "loader"    // autoloader generation
	PhaseVerify    Phase = "verify"    // output module checks
	PhaseWatch     Phase = "watch"     // source watching
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindParse            Kind = "parse"
	KindIO               Kind = "io"
	KindToolFailed       Kind = "tool_failed"
	KindUnknownGroup     Kind = "unknown_group"
	KindUnexpectedExport Kind = "unexpected_export"
	KindInvalidModule    Kind = "invalid_module"
	KindCancelled        Kind = "cancelled"
)

// Error is the structured error type used by every build stage
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Tool     string
	Detail   string
	Path     string
	Args     []string
	ExitCode int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Tool != "" {
		b.WriteString(": ")
		b.WriteString(e.Tool)
		if len(e.Args) > 0 {
			b.WriteByte(' ')
			b.WriteString(strings.Join(e.Args, " "))
		}
		if e.Kind == KindToolFailed {
			fmt.Fprintf(&b, " returned code %d", e.ExitCode)
		}
	}

	if e.Detail != "" {
		if e.Tool != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the file the error refers to
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Tool sets the external tool and its arguments
func (b *Builder) Tool(tool string, args ...string) *Builder {
	b.err.Tool = tool
	b.err.Args = args
	return b
}

// ExitCode sets the tool's exit status
func (b *Builder) ExitCode(code int) *Builder {
	b.err.ExitCode = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NotFound creates a not-found error for a file or named entity
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// ParseFailed creates a parse error for the given file
func ParseFailed(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindParse,
		Path:   path,
		Detail: "malformed document",
		Cause:  cause,
	}
}

// IO wraps a file system failure
func IO(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindIO,
		Path:  path,
		Cause: cause,
	}
}

// ToolFailed reports a tool that exited with a non-zero status
func ToolFailed(tool string, args []string, code int, cause error) *Error {
	return &Error{
		Phase:    PhaseToolchain,
		Kind:     KindToolFailed,
		Tool:     tool,
		Args:     args,
		ExitCode: code,
		Cause:    cause,
	}
}

// UnknownGroup reports an export group missing from the descriptor
func UnknownGroup(phase Phase, group string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownGroup,
		Detail: fmt.Sprintf("export group %q not declared", group),
	}
}

// InvalidModule reports a binary module that failed to decode or compile
func InvalidModule(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindInvalidModule,
		Path:   path,
		Detail: "module rejected",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnexpectedExportsError is returned when a built module exports symbols
// that none of the enabled groups declare.
type UnexpectedExportsError struct {
	Module  string
	Symbols []string
}

// NewUnexpectedExportsError creates an error listing the given symbols in sorted order
func NewUnexpectedExportsError(module string, symbols []string) *UnexpectedExportsError {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return &UnexpectedExportsError{Module: module, Symbols: sorted}
}

func (e *UnexpectedExportsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[verify] unexpected_export: no symbols specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s exports %d symbol(s) outside the enabled groups:", e.Module, len(e.Symbols))
	for _, sym := range e.Symbols {
		b.WriteString("\n  - ")
		b.WriteString(sym)
	}
	return b.String()
}

// Is reports whether target matches this error type or the verify phase
func (e *UnexpectedExportsError) Is(target error) bool {
	switch t := target.(type) {
	case *UnexpectedExportsError:
		return true
	case *Error:
		return t.Phase == PhaseVerify && t.Kind == KindUnexpectedExport
	}
	return false
}
