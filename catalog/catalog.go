// Package catalog holds the plain data model shared by every stage of the
// extraction pipeline: the code objects discovered in PL/SQL source, their
// signatures and outbound calls, and the file records used for incremental
// processing.
package catalog

import (
	"fmt"
	"time"
)

// Kind identifies the sort of PL/SQL construct a CodeObject represents.
type Kind string

const (
	KindPackageSpec    Kind = "package_spec"
	KindPackageBody    Kind = "package_body"
	KindProcedure      Kind = "procedure"
	KindFunction       Kind = "function"
	KindTrigger        Kind = "trigger"
	KindAnonymousBlock Kind = "anonymous_block"
)

// Mode is a parameter passing mode.
type Mode string

const (
	ModeIn    Mode = "IN"
	ModeOut   Mode = "OUT"
	ModeInOut Mode = "IN OUT"
)

// Pos is a 1-based line/column position together with the byte offset it
// corresponds to in the original (uncleaned) source file.
type Pos struct {
	Line int
	Col  int
	Byte int
}

// Span is an inclusive line range plus a half-open byte range, both in the
// coordinates of the original source file.
type Span struct {
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartByte, s.EndLine, s.EndByte)
}

// Contains reports whether other is fully nested within s.
func (s Span) Contains(other Span) bool {
	return s.StartByte <= other.StartByte && other.EndByte <= s.EndByte
}

// Overlaps reports whether s and other share any byte range without one
// containing the other — the condition the span-forest invariant forbids.
func (s Span) Overlaps(other Span) bool {
	if s.Contains(other) || other.Contains(s) {
		return false
	}
	return s.StartByte < other.EndByte && other.StartByte < s.EndByte
}

// Parameter is one entry of a procedure/function's parameter list.
type Parameter struct {
	Position    int
	Name        string
	Mode        Mode
	TypeText    string
	DefaultText string // empty if absent
	HasDefault  bool
}

// Argument is one entry of a call's argument list.
type Argument struct {
	Position int
	Name     string // non-empty for named ("=>") arguments
	Text     string
	Named    bool
}

// Call is a single outbound invocation recorded within a code object's body.
type Call struct {
	Position       int
	CalleeName     string
	PositionalArgs []Argument
	NamedArgs      []Argument
	Span           Span
}

// CodeObject is the primary catalog entity: a discovered PL/SQL package,
// procedure, function, trigger or anonymous block.
type CodeObject struct {
	ID string // schema.package.name#overload_index

	Kind Kind
	Name string

	Schema  string
	Package string

	ParentID string // empty if top-level

	Parameters []Parameter
	ReturnType string
	HasReturn  bool

	SourceFile string
	Span       Span

	// Docstring holds contiguous "--" comment lines immediately preceding
	// the object's CREATE/PROCEDURE/FUNCTION header, comment markers
	// stripped, in source order. Empty if none precede it.
	Docstring []string

	Calls []Call

	OverloadIndex int
	Overloaded    bool
}

// FileRecord tracks the last-processed state of one source file.
type FileRecord struct {
	Path            string
	ContentHash     string
	LastProcessedAt time.Time
	LastRunID       string // correlation id of the workflow run that wrote this record
	ObjectIDs       []string
}
