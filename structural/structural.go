// Package structural implements the line-oriented scope-stack recognizer
// (spec.md §4.D): a single pass over cleaned text that produces provisional
// code objects with kind/name/parent/span but no signature or calls yet.
//
// It is deliberately not an AST or token-stream parser — per the design
// note in spec.md §9, PL/SQL source is irregular enough that a line-
// oriented recognizer with a scope stack is the robust choice, the same
// spirit as the teacher's own package-level regexp.MustCompile recognizers
// in preprocess.go and sqlparser/parser.go.
package structural

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/diag"
)

// Object is a provisional code object produced by the structural pass: a
// catalog.CodeObject plus the extra byte offsets the signature parser and
// call extractor need to slice their own input ranges.
type Object struct {
	catalog.CodeObject
	// HeaderEndByte is the position of the IS/AS/; terminator chosen for
	// this object's header (spec.md §4.E input range). Zero for kinds that
	// have no header grammar (anonymous_block, trigger).
	HeaderEndByte int
	// BodyStartByte is where BEGIN opened the executable section, or zero
	// if the object has no executable section of its own (e.g. a package
	// spec, or a procedure/function declared in one).
	BodyStartByte int
}

type frameKind int

const (
	frameObject frameKind = iota
	frameBlock
)

type frame struct {
	kind          frameKind
	objKind       catalog.Kind
	name          string
	startLine     int
	startByte     int
	headerEndByte int
	bodyStartByte int
	children      []Object
}

// Parser recognizes code object spans in cleaned text for one source file.
type Parser struct {
	path string
}

func New(path string) *Parser { return &Parser{path: path} }

var (
	createPackageRe   = regexp.MustCompile(`(?i)^\s*create\s+(or\s+replace\s+)?package\s+(body\s+)?("?[a-z0-9_$#]+"?)`)
	createTriggerRe   = regexp.MustCompile(`(?i)^\s*create\s+(or\s+replace\s+)?trigger\s+("?[a-z0-9_$#]+"?)`)
	createTypeRe      = regexp.MustCompile(`(?i)^\s*create\s+(or\s+replace\s+)?type\s+("?[a-z0-9_$#]+"?)`)
	// The optional "create [or replace]" prefix covers both in-package
	// headers (procedure foo is ...) and standalone .prc/.fnc/.sql units
	// (create or replace procedure foo is ...) with a single pattern.
	procedureHeaderRe = regexp.MustCompile(`(?i)^\s*(?:create\s+(?:or\s+replace\s+)?)?procedure\s+("?[a-z0-9_$#]+"?)`)
	functionHeaderRe  = regexp.MustCompile(`(?i)^\s*(?:create\s+(?:or\s+replace\s+)?)?function\s+("?[a-z0-9_$#]+"?)`)
	declareRe         = regexp.MustCompile(`(?i)^\s*declare\b`)
	beginRe           = regexp.MustCompile(`(?i)^\s*begin\b`)
	ifThenRe          = regexp.MustCompile(`(?i)\bif\b.*\bthen\b`)
	loopOpenRe        = regexp.MustCompile(`(?i)(^|\s)loop\s*$`)
	caseOpenRe        = regexp.MustCompile(`(?i)^\s*case\b`)
	endRe             = regexp.MustCompile(`(?i)^\s*end\s*("?[a-z0-9_$#]+"?)?\s*;`)
	endIfRe           = regexp.MustCompile(`(?i)^\s*end\s+if\s*;`)
	endLoopRe         = regexp.MustCompile(`(?i)^\s*end\s+loop\s*;`)
	endCaseRe         = regexp.MustCompile(`(?i)^\s*end\s+case\s*;`)
	batchSeparatorRe  = regexp.MustCompile(`^/\s*$`)
)

// Parse recognizes code object spans in cleaned text. It returns the
// top-level and nested Objects produced, or a diag.StructuralMismatch if
// the scope stack cannot be balanced.
func (p *Parser) Parse(cleaned string) ([]Object, error) {
	lines := splitLinesKeepOffsets(cleaned)

	var stack []*frame
	var top []Object
	var idCounter int

	// Multi-line header accumulation state: a signature is scanned until
	// a terminator is found at parenthesis depth 0, per spec.md §4.D.
	var headerOpen bool
	var headerKind catalog.Kind
	var headerName string
	var headerStartLine int
	var headerStartByte int
	var parenDepth int

	pushHeader := func(kind catalog.Kind, name string, line, startByte int) {
		headerOpen = true
		headerKind = kind
		headerName = name
		headerStartLine = line
		headerStartByte = startByte
		parenDepth = strings.Count(lines[line].text, "(") - strings.Count(lines[line].text, ")")
	}

	// A ';'-terminated header directly inside a package spec is one of the
	// spec's declarations and becomes an object with no body; anywhere else
	// it is a forward declaration and produces nothing.
	emitDeclaration := func(kind catalog.Kind, name string, startLine, startByte, lineIdx int, ln lineSpan, idx int) {
		if len(stack) == 0 || stack[len(stack)-1].objKind != catalog.KindPackageSpec {
			return
		}
		f := &frame{kind: frameObject, objKind: kind, name: name, startLine: startLine, startByte: startByte, headerEndByte: ln.startByte + idx}
		emitObjectFrame(&top, stack, f, lineIdx, ln.endByte, p.path, &idCounter)
	}

	for lineIdx, ln := range lines {
		text := ln.text
		if strings.TrimSpace(text) == "" {
			continue
		}

		if batchSeparatorRe.MatchString(text) {
			for len(stack) > 0 {
				f := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if f.kind == frameBlock {
					continue
				}
				emitObjectFrame(&top, stack, f, lineIdx, ln.endByte, p.path, &idCounter)
			}
			continue
		}

		if headerOpen {
			if idx := findTerminator(text, parenDepth); idx >= 0 {
				headerOpen = false
				if terminatesAsForwardDecl(text, idx) {
					// Declaration or forward declaration: no scope pushed.
					emitDeclaration(headerKind, headerName, headerStartLine, headerStartByte, lineIdx, ln, idx)
					continue
				}
				stack = append(stack, &frame{
					kind:          frameObject,
					objKind:       headerKind,
					name:          headerName,
					startLine:     headerStartLine,
					startByte:     headerStartByte,
					headerEndByte: ln.startByte + idx,
				})
			} else {
				parenDepth += strings.Count(text, "(") - strings.Count(text, ")")
			}
			continue
		}

		switch {
		case createPackageRe.MatchString(text):
			m := createPackageRe.FindStringSubmatch(text)
			kind := catalog.KindPackageSpec
			if strings.TrimSpace(m[2]) != "" {
				kind = catalog.KindPackageBody
			}
			name := unquote(m[3])
			if idx := findTerminator(text, 0); idx >= 0 {
				stack = append(stack, &frame{
					kind: frameObject, objKind: kind, name: name,
					startLine: lineIdx, startByte: ln.startByte,
					headerEndByte: ln.startByte + idx,
				})
			} else {
				pushHeader(kind, name, lineIdx, ln.startByte)
			}

		case createTriggerRe.MatchString(text):
			m := createTriggerRe.FindStringSubmatch(text)
			// A trigger header has no IS/AS terminator (its DECLARE or
			// BEGIN follows the timing clause), so its scope opens here.
			stack = append(stack, &frame{
				kind: frameObject, objKind: catalog.KindTrigger, name: unquote(m[2]),
				startLine: lineIdx, startByte: ln.startByte,
			})

		case createTypeRe.MatchString(text):
			// Block-only frame: balanced but never emitted as a catalog
			// row (no "object_type" Kind exists — see DESIGN.md).
			stack = append(stack, &frame{kind: frameBlock, name: "type", startLine: lineIdx, startByte: ln.startByte})

		case procedureHeaderRe.MatchString(text):
			m := procedureHeaderRe.FindStringSubmatch(text)
			name := unquote(m[1])
			if idx := findTerminator(text, 0); idx >= 0 {
				if terminatesAsForwardDecl(text, idx) {
					emitDeclaration(catalog.KindProcedure, name, lineIdx, ln.startByte, lineIdx, ln, idx)
					continue
				}
				stack = append(stack, &frame{
					kind: frameObject, objKind: catalog.KindProcedure, name: name,
					startLine: lineIdx, startByte: ln.startByte,
					headerEndByte: ln.startByte + idx,
				})
			} else {
				pushHeader(catalog.KindProcedure, name, lineIdx, ln.startByte)
			}

		case functionHeaderRe.MatchString(text):
			m := functionHeaderRe.FindStringSubmatch(text)
			name := unquote(m[1])
			if idx := findTerminator(text, 0); idx >= 0 {
				if terminatesAsForwardDecl(text, idx) {
					emitDeclaration(catalog.KindFunction, name, lineIdx, ln.startByte, lineIdx, ln, idx)
					continue
				}
				stack = append(stack, &frame{
					kind: frameObject, objKind: catalog.KindFunction, name: name,
					startLine: lineIdx, startByte: ln.startByte,
					headerEndByte: ln.startByte + idx,
				})
			} else {
				pushHeader(catalog.KindFunction, name, lineIdx, ln.startByte)
			}

		case declareRe.MatchString(text) && len(stack) == 0:
			stack = append(stack, &frame{
				kind: frameObject, objKind: catalog.KindAnonymousBlock,
				startLine: lineIdx, startByte: ln.startByte,
			})

		case beginRe.MatchString(text):
			switch {
			case len(stack) > 0 && stack[len(stack)-1].kind == frameObject:
				stack[len(stack)-1].bodyStartByte = ln.startByte
			case len(stack) == 0:
				stack = append(stack, &frame{
					kind: frameObject, objKind: catalog.KindAnonymousBlock,
					startLine: lineIdx, startByte: ln.startByte, bodyStartByte: ln.startByte,
				})
			}

		case endIfRe.MatchString(text):
			if !popBlockFrame(&stack, "if") {
				return nil, mismatch(p.path, lineIdx, "END IF without matching IF")
			}
		case endLoopRe.MatchString(text):
			if !popBlockFrame(&stack, "loop") {
				return nil, mismatch(p.path, lineIdx, "END LOOP without matching LOOP")
			}
		case endCaseRe.MatchString(text):
			if !popBlockFrame(&stack, "case") {
				return nil, mismatch(p.path, lineIdx, "END CASE without matching CASE")
			}
		case endRe.MatchString(text):
			if len(stack) == 0 {
				return nil, mismatch(p.path, lineIdx, "END without open scope")
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.kind == frameBlock {
				return nil, mismatch(p.path, lineIdx, "END closes a block frame unexpectedly")
			}
			emitObjectFrame(&top, stack, f, lineIdx, ln.endByte, p.path, &idCounter)

		case caseOpenRe.MatchString(text):
			stack = append(stack, &frame{kind: frameBlock, name: "case", startLine: lineIdx, startByte: ln.startByte})
		case loopOpenRe.MatchString(text):
			stack = append(stack, &frame{kind: frameBlock, name: "loop", startLine: lineIdx, startByte: ln.startByte})
		case ifThenRe.MatchString(text):
			stack = append(stack, &frame{kind: frameBlock, name: "if", startLine: lineIdx, startByte: ln.startByte})
		}
	}

	if len(stack) > 0 {
		return nil, mismatch(p.path, len(lines)-1, "unbalanced scope stack at end of file")
	}

	return top, nil
}

func terminatesAsForwardDecl(text string, idx int) bool {
	terminator := strings.TrimSpace(text[idx:])
	return len(terminator) > 0 && terminator[0] == ';'
}

func mismatch(path string, line int, reason string) error {
	return diag.StructuralMismatch{Path: path, AtLine: line + 1, Reason: reason}
}

func popBlockFrame(stack *[]*frame, name string) bool {
	s := *stack
	if len(s) == 0 || s[len(s)-1].kind != frameBlock || s[len(s)-1].name != name {
		return false
	}
	*stack = s[:len(s)-1]
	return true
}

// emitObjectFrame finalizes a popped object frame into an Object,
// reparenting its already-emitted children, and appends it either to top
// or to the new top-of-stack frame's children.
//
// The ID assigned here (path:kind:counter) is a file-local placeholder used
// only to link ParentID within this pass; schema/package are not known yet
// at this point in the pipeline. The workflow replaces it with the stable
// schema.package.name#overload_index id (spec.md §3) once classification
// and overload indexing have run, remapping ParentID along with it.
func emitObjectFrame(top *[]Object, stack []*frame, f *frame, endLine, endByte int, path string, idCounter *int) {
	*idCounter++
	obj := Object{
		CodeObject: catalog.CodeObject{
			ID:         fmt.Sprintf("%s:%s:%d", path, f.objKind, *idCounter),
			Kind:       f.objKind,
			Name:       f.name,
			SourceFile: path,
			Span: catalog.Span{
				StartLine: f.startLine + 1,
				EndLine:   endLine + 1,
				StartByte: f.startByte,
				EndByte:   endByte,
			},
		},
		HeaderEndByte: f.headerEndByte,
		BodyStartByte: f.bodyStartByte,
	}
	for i := range f.children {
		f.children[i].ParentID = obj.ID
	}
	if len(stack) > 0 {
		stack[len(stack)-1].children = append(stack[len(stack)-1].children, obj)
		stack[len(stack)-1].children = append(stack[len(stack)-1].children, f.children...)
	} else {
		*top = append(*top, obj)
		*top = append(*top, f.children...)
	}
}

type lineSpan struct {
	text      string
	startByte int
	endByte   int
}

func splitLinesKeepOffsets(s string) []lineSpan {
	var out []lineSpan
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, lineSpan{text: s[start:i], startByte: start, endByte: i + 1})
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, lineSpan{text: s[start:], startByte: start, endByte: len(s)})
	}
	return out
}

// findTerminator scans text left to right tracking parenthesis depth and
// returns the byte index of the first ';', "IS", or "AS" token encountered
// at depth 0, or -1 if none is found on this line. depth is the
// accumulated parenthesis depth carried in from prior lines of the same
// header.
func findTerminator(text string, depth int) int {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				return i
			}
		default:
			if depth == 0 && isWordAt(text, i, "is") {
				return i
			}
			if depth == 0 && isWordAt(text, i, "as") {
				return i
			}
		}
	}
	return -1
}

func isWordAt(text string, i int, word string) bool {
	if i+len(word) > len(text) {
		return false
	}
	if !strings.EqualFold(text[i:i+len(word)], word) {
		return false
	}
	if i > 0 && !isWordBoundary(text[i-1]) {
		return false
	}
	if end := i + len(word); end < len(text) && !isWordBoundary(text[end]) {
		return false
	}
	return true
}

func isWordBoundary(b byte) bool {
	return !(b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_')
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
