// Package diag implements the error/diagnostic taxonomy of the extraction
// pipeline. Every concrete error type carries a position (where applicable)
// and renders through the stdlib error interface, mirroring the teacher
// repository's position-carrying error types (SQLUserError,
// SQLCodeParseErrors).
package diag

import "fmt"

// Stable diagnostic codes, surfaced to operators and matched on by the CLI
// shell to decide exit status (spec.md §6 "User-visible behavior").
const (
	CodeIOFailure             = "CM-IO-001"
	CodeMalformedSource       = "CM-CLEAN-001"
	CodeSignatureParseError   = "CM-SIG-001"
	CodeCallExtractionWarning = "CM-CALL-001"
	CodeStructuralMismatch    = "CM-STRUCT-001"
	CodeStorageFailure        = "CM-STORE-001"
)

// Severity distinguishes diagnostics that abort processing of a file from
// ones attached to a single code object as a best-effort note.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Pos is the position a diagnostic refers to. Line/Col are 1-based; Byte is
// the offset into the original (uncleaned) source file.
type Pos struct {
	File string
	Line int
	Col  int
	Byte int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Diagnostic is the machine-readable envelope every error/warning is
// reported through to callers of the workflow: a stable Code, a Severity,
// the file it concerns, and a human Message.
type Diagnostic struct {
	Code     string
	Severity Severity
	Path     string
	Message  string
	Pos      Pos
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s [%s] %s: %s", d.Pos, d.Code, d.Severity, d.Message)
}

// ConfigurationError reports a missing or invalid workflow input. Fatal at
// startup.
type ConfigurationError struct {
	Message string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// IOFailure reports that a source file could not be read. Per-file fatal;
// the workflow continues with the remaining files.
type IOFailure struct {
	Path string
	Err  error
}

func (e IOFailure) Error() string {
	return fmt.Sprintf("%s: io failure: %s", e.Path, e.Err)
}

func (e IOFailure) Unwrap() error { return e.Err }

func (e IOFailure) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeIOFailure,
		Severity: SeverityFatal,
		Path:     e.Path,
		Message:  e.Error(),
	}
}

// MalformedSource reports that the cleaner or structural parser gave up on a
// file entirely. Per-file fatal; no store mutation happens for this file.
type MalformedSource struct {
	Path   string
	Reason string
	AtByte int
}

func (e MalformedSource) Error() string {
	return fmt.Sprintf("%s: malformed source at byte %d: %s", e.Path, e.AtByte, e.Reason)
}

func (e MalformedSource) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeMalformedSource,
		Severity: SeverityFatal,
		Path:     e.Path,
		Message:  e.Reason,
		Pos:      Pos{File: e.Path, Byte: e.AtByte},
	}
}

// SignatureParseError reports that the header grammar failed to match for
// one code object. Non-fatal: the object is still recorded with empty
// parameters.
type SignatureParseError struct {
	Object string
	Reason string
	AtByte int
}

func (e SignatureParseError) Error() string {
	return fmt.Sprintf("%s: signature parse error at byte %d: %s", e.Object, e.AtByte, e.Reason)
}

func (e SignatureParseError) Diagnostic(path string) Diagnostic {
	return Diagnostic{
		Code:     CodeSignatureParseError,
		Severity: SeverityWarning,
		Path:     path,
		Message:  fmt.Sprintf("%s: %s", e.Object, e.Reason),
		Pos:      Pos{File: path, Byte: e.AtByte},
	}
}

// CallExtractionWarning reports that the call extractor had to make a
// best-effort decision for one code object. Non-fatal.
type CallExtractionWarning struct {
	Object string
	Reason string
}

func (e CallExtractionWarning) Error() string {
	return fmt.Sprintf("%s: call extraction warning: %s", e.Object, e.Reason)
}

func (e CallExtractionWarning) Diagnostic(path string) Diagnostic {
	return Diagnostic{
		Code:     CodeCallExtractionWarning,
		Severity: SeverityWarning,
		Path:     path,
		Message:  fmt.Sprintf("%s: %s", e.Object, e.Reason),
	}
}

// StructuralMismatch reports an unbalanced scope stack. Per-file fatal.
type StructuralMismatch struct {
	Path   string
	AtLine int
	Reason string
}

func (e StructuralMismatch) Error() string {
	return fmt.Sprintf("%s:%d: structural mismatch: %s", e.Path, e.AtLine, e.Reason)
}

func (e StructuralMismatch) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeStructuralMismatch,
		Severity: SeverityFatal,
		Path:     e.Path,
		Message:  e.Reason,
		Pos:      Pos{File: e.Path, Line: e.AtLine},
	}
}

// StorageFailure reports that a store transaction failed and was rolled
// back. Per-file fatal; the workflow continues with the remaining files.
type StorageFailure struct {
	Path   string
	Reason string
	Err    error
}

func (e StorageFailure) Error() string {
	return fmt.Sprintf("%s: storage failure: %s: %s", e.Path, e.Reason, e.Err)
}

func (e StorageFailure) Unwrap() error { return e.Err }

func (e StorageFailure) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeStorageFailure,
		Severity: SeverityFatal,
		Path:     e.Path,
		Message:  fmt.Sprintf("%s: %s", e.Reason, e.Err),
	}
}
