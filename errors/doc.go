// Package errors provides structured error types for the wasmnoise build.
//
// Errors are categorized by Phase (which build stage failed) and Kind (error
// category). The Error type carries the file, tool invocation and exit code
// involved, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseVersion, errors.KindParse).
//		Path("version.ini").
//		Detail("key %q is not an integer", "minor").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ToolFailed("llc", args, 1, cause)
//	err := errors.NotFound(errors.PhaseExports, "descriptor", path)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
