// Package calls implements the tolerant call extractor (spec.md §4.F): a
// token-scanning pass over a code object's body range that records call
// candidates (identifier immediately followed by '(' at depth 0, or a bare
// identifier statement) while staying opaque to embedded SQL statement
// bodies, built on plsqlscan.Scanner the same way the teacher's own
// recursive-descent parsers walk its Scanner directly rather than an AST.
package calls

import (
	"strings"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/cleaner"
	"github.com/ordinal-labs/plsqlcat/plsqlscan"
)

// Options configures the call extractor.
type Options struct {
	// KeywordsToDrop holds fully-qualified callee names (case-folded) that
	// are never recorded as calls, e.g. built-in aggregates.
	KeywordsToDrop map[string]struct{}
}

// sqlOpeners start embedded SQL statements that are treated as opaque blobs
// per spec.md §4.F: not mined for calls. Each one runs to the next ';'.
var sqlOpeners = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "merge": {},
}

// Extract scans bodyText (cleaned text for one code object's body range)
// and returns the calls found, in source order, with argument text
// restored from lm.
func Extract(bodyText string, lm cleaner.LiteralMap, opts Options) []catalog.Call {
	sc := plsqlscan.NewScanner(bodyText, lm)
	var calls []catalog.Call

	inOpaqueSQL := false
	// atStatementStart is true when the previous token ended a statement or
	// opened a statement list, so the next identifier begins a statement.
	atStatementStart := true

	for {
		tt := sc.NextNonWhitespaceToken()
		if tt == plsqlscan.EOFToken {
			break
		}
		statementStart := atStatementStart
		atStatementStart = tt == plsqlscan.SemicolonToken

		if tt == plsqlscan.ReservedWordToken {
			lower := sc.ReservedWord()
			atStatementStart = lower == "begin" || lower == "then" || lower == "else" || lower == "loop"
			if _, ok := sqlOpeners[lower]; ok {
				inOpaqueSQL = true
				continue
			}
		}
		if inOpaqueSQL {
			if tt == plsqlscan.SemicolonToken {
				inOpaqueSQL = false
			}
			continue
		}

		if tt != plsqlscan.UnquotedIdentifierToken && tt != plsqlscan.QuotedIdentifierToken {
			continue
		}

		nameStart := sc.StartByte()
		name := readQualifiedName(sc)

		switch sc.TokenType() {
		case plsqlscan.LeftParenToken:
			positional, named, closeEnd, ok := readArgList(sc, lm)
			if !ok {
				continue
			}
			if _, dropped := opts.KeywordsToDrop[strings.ToLower(name)]; dropped {
				continue
			}
			calls = append(calls, catalog.Call{
				Position:       len(calls),
				CalleeName:     name,
				PositionalArgs: positional,
				NamedArgs:      named,
				Span:           catalog.Span{StartByte: nameStart, EndByte: closeEnd},
			})
		case plsqlscan.SemicolonToken:
			atStatementStart = true
			if !statementStart {
				continue
			}
			if _, dropped := opts.KeywordsToDrop[strings.ToLower(name)]; !dropped {
				calls = append(calls, catalog.Call{
					Position:   len(calls),
					CalleeName: name,
					Span:       catalog.Span{StartByte: nameStart, EndByte: sc.StartByte()},
				})
			}
		}
	}

	return calls
}

// readQualifiedName consumes a.b.c starting at the scanner's current
// identifier token and leaves the scanner positioned at the token that
// follows the name (e.g. '(' or ';').
func readQualifiedName(sc *plsqlscan.Scanner) string {
	var b strings.Builder
	b.WriteString(sc.Token())
	for {
		tt := sc.NextNonWhitespaceToken()
		if tt != plsqlscan.DotToken {
			return b.String()
		}
		b.WriteByte('.')
		tt = sc.NextNonWhitespaceToken()
		if tt != plsqlscan.UnquotedIdentifierToken && tt != plsqlscan.QuotedIdentifierToken && tt != plsqlscan.ReservedWordToken {
			return b.String()
		}
		b.WriteString(sc.Token())
	}
}

// readArgList consumes "(arg (, arg)*)" with the scanner positioned at the
// opening '(' (not yet consumed). It returns positional and named
// arguments in source order plus the byte offset just past the matching
// ')'. ok is false if the list never closes (malformed input — the call
// candidate is dropped per spec.md §4.F's tolerant policy).
func readArgList(sc *plsqlscan.Scanner, lm cleaner.LiteralMap) ([]catalog.Argument, []catalog.Argument, int, bool) {
	var positional, named []catalog.Argument
	position := 0

	tt := sc.NextNonWhitespaceToken()
	if tt == plsqlscan.RightParenToken {
		return nil, nil, sc.StopByte(), true
	}

	for {
		arg, next, ok := readOneArg(sc, lm, position)
		if !ok {
			return nil, nil, 0, false
		}
		if arg.Named {
			named = append(named, arg)
		} else {
			positional = append(positional, arg)
		}
		position++

		switch next {
		case plsqlscan.CommaToken:
			sc.NextNonWhitespaceToken()
			continue
		case plsqlscan.RightParenToken:
			return positional, named, sc.StopByte(), true
		default:
			return nil, nil, 0, false
		}
	}
}

func readOneArg(sc *plsqlscan.Scanner, lm cleaner.LiteralMap, position int) (catalog.Argument, plsqlscan.TokenType, bool) {
	var b strings.Builder
	depth := 0

	// Detect "<ident> => expr" named-argument form by peeking one token
	// ahead; plsqlscan has no backtracking so we branch on the first two
	// tokens directly.
	firstTok := sc.Token()
	firstType := sc.TokenType()
	if firstType == plsqlscan.UnquotedIdentifierToken {
		save := *sc
		next := sc.NextNonWhitespaceToken()
		if next == plsqlscan.ArrowToken {
			exprText, terminator, ok := readExprUntilTopLevelCommaOrParen(sc, lm)
			if !ok {
				return catalog.Argument{}, 0, false
			}
			return catalog.Argument{Position: position, Name: firstTok, Text: exprText, Named: true}, terminator, true
		}
		*sc = save
	}

	tt := firstType
	for {
		if tt == plsqlscan.EOFToken {
			return catalog.Argument{}, 0, false
		}
		if tt == plsqlscan.LeftParenToken {
			depth++
		} else if tt == plsqlscan.RightParenToken {
			if depth == 0 {
				return catalog.Argument{Position: position, Text: strings.TrimSpace(b.String())}, tt, true
			}
			depth--
		} else if tt == plsqlscan.CommaToken && depth == 0 {
			return catalog.Argument{Position: position, Text: strings.TrimSpace(b.String())}, tt, true
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(lm.Resolve(sc.Token()))
		tt = sc.NextNonWhitespaceToken()
	}
}

func readExprUntilTopLevelCommaOrParen(sc *plsqlscan.Scanner, lm cleaner.LiteralMap) (string, plsqlscan.TokenType, bool) {
	var b strings.Builder
	depth := 0
	tt := sc.NextNonWhitespaceToken()
	for {
		if tt == plsqlscan.EOFToken {
			return "", 0, false
		}
		if tt == plsqlscan.LeftParenToken {
			depth++
		} else if tt == plsqlscan.RightParenToken {
			if depth == 0 {
				return strings.TrimSpace(b.String()), tt, true
			}
			depth--
		} else if tt == plsqlscan.CommaToken && depth == 0 {
			return strings.TrimSpace(b.String()), tt, true
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(lm.Resolve(sc.Token()))
		tt = sc.NextNonWhitespaceToken()
	}
}
