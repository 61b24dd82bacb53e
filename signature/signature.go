// Package signature implements the grammar-driven PROCEDURE/FUNCTION header
// parser (spec.md §4.E), built on plsqlscan.Scanner the same way the
// teacher's sqlparser/mssql/document.go TSqlDocument.parseDeclare and
// parseTypeExpression are hand-written recursive descent over its own
// Scanner rather than a parser-generator grammar.
package signature

import (
	"strings"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/cleaner"
	"github.com/ordinal-labs/plsqlcat/diag"
	"github.com/ordinal-labs/plsqlcat/plsqlscan"
)

type parser struct {
	sc         *plsqlscan.Scanner
	lm         cleaner.LiteralMap
	objectName string
}

// Parse reads the header byte range [start_byte, header_end_byte) of
// cleaned text (the caller has already sliced headerText to that range)
// and returns the parsed parameter list and, for functions, the return
// type.
//
// On grammar mismatch it returns a diag.SignatureParseError; callers
// record the enclosing object with empty Parameters per spec.md §4.E's
// workflow policy.
func Parse(headerText string, lm cleaner.LiteralMap, objectName string) ([]catalog.Parameter, string, bool, error) {
	p := &parser{sc: plsqlscan.NewScanner(headerText, lm), lm: lm, objectName: objectName}
	return p.parse()
}

func (p *parser) err(reason string) error {
	return diag.SignatureParseError{Object: p.objectName, Reason: reason, AtByte: p.sc.StartByte()}
}

func (p *parser) resolve(tok string) string {
	return p.lm.Resolve(tok)
}

func (p *parser) parse() ([]catalog.Parameter, string, bool, error) {
	sc := p.sc
	tt := sc.NextNonWhitespaceToken()
	// A standalone unit's header starts with CREATE [OR REPLACE].
	if tt == plsqlscan.ReservedWordToken && sc.ReservedWord() == "create" {
		tt = sc.NextNonWhitespaceToken()
		if tt == plsqlscan.ReservedWordToken && sc.ReservedWord() == "or" {
			sc.NextNonWhitespaceToken() // REPLACE
			tt = sc.NextNonWhitespaceToken()
		}
	}

	if tt != plsqlscan.ReservedWordToken || (sc.ReservedWord() != "procedure" && sc.ReservedWord() != "function") {
		return nil, "", false, p.err("expected PROCEDURE or FUNCTION")
	}
	isFunction := sc.ReservedWord() == "function"

	tt = sc.NextNonWhitespaceToken()
	if tt != plsqlscan.UnquotedIdentifierToken && tt != plsqlscan.QuotedIdentifierToken && tt != plsqlscan.ReservedWordToken {
		return nil, "", false, p.err("expected object name")
	}
	for {
		tt = sc.NextNonWhitespaceToken()
		if tt == plsqlscan.DotToken {
			tt = sc.NextNonWhitespaceToken()
			continue
		}
		break
	}

	var params []catalog.Parameter
	if tt == plsqlscan.LeftParenToken {
		var err error
		params, tt, err = p.parseParamList()
		if err != nil {
			return nil, "", false, err
		}
	}

	var returnType string
	if isFunction {
		if tt != plsqlscan.ReservedWordToken || sc.ReservedWord() != "return" {
			return params, "", false, p.err("expected RETURN clause on function")
		}
		var b strings.Builder
		for {
			tt = sc.NextNonWhitespaceToken()
			if tt == plsqlscan.EOFToken {
				break
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(p.resolve(sc.Token()))
		}
		returnType = strings.TrimSpace(b.String())
	}

	return params, returnType, isFunction, nil
}

// parseParamList parses "(param (, param)*)" starting with the scanner
// positioned at the opening '('. It returns the params and the token type
// that follows the closing ')'.
func (p *parser) parseParamList() ([]catalog.Parameter, plsqlscan.TokenType, error) {
	sc := p.sc
	var params []catalog.Parameter
	position := 0

	tt := sc.NextNonWhitespaceToken()
	if tt == plsqlscan.RightParenToken {
		return nil, sc.NextNonWhitespaceToken(), nil
	}

	for {
		param, next, err := p.parseOneParam(position)
		if err != nil {
			return nil, 0, err
		}
		params = append(params, param)
		position++

		switch next {
		case plsqlscan.CommaToken:
			sc.NextNonWhitespaceToken()
			continue
		case plsqlscan.RightParenToken:
			return params, sc.NextNonWhitespaceToken(), nil
		default:
			return nil, 0, p.err("expected ',' or ')' in parameter list")
		}
	}
}

// parseOneParam parses "pname [mode] [NOCOPY] type [DEFAULT expr | := expr]"
// with the scanner positioned at the parameter name. It returns the
// parameter and the token that terminated it (comma or right-paren at
// depth 0 relative to this parameter).
func (p *parser) parseOneParam(position int) (catalog.Parameter, plsqlscan.TokenType, error) {
	sc := p.sc
	tt := sc.TokenType()
	if tt != plsqlscan.UnquotedIdentifierToken && tt != plsqlscan.QuotedIdentifierToken {
		return catalog.Parameter{}, 0, p.err("expected parameter name")
	}
	name := sc.Token()

	mode := catalog.ModeIn
	tt = sc.NextNonWhitespaceToken()
	if tt == plsqlscan.ReservedWordToken && (sc.ReservedWord() == "in" || sc.ReservedWord() == "out") {
		if sc.ReservedWord() == "out" {
			mode = catalog.ModeOut
		}
		tt = sc.NextNonWhitespaceToken()
		if mode == catalog.ModeIn && tt == plsqlscan.ReservedWordToken && sc.ReservedWord() == "out" {
			mode = catalog.ModeInOut
			tt = sc.NextNonWhitespaceToken()
		}
	}
	if tt == plsqlscan.ReservedWordToken && sc.ReservedWord() == "nocopy" {
		tt = sc.NextNonWhitespaceToken()
	}

	var typeBuf strings.Builder
	depth := 0
	for {
		if tt == plsqlscan.LeftParenToken {
			depth++
		} else if tt == plsqlscan.RightParenToken {
			if depth == 0 {
				return catalog.Parameter{Position: position, Name: name, Mode: mode, TypeText: strings.TrimSpace(typeBuf.String())}, tt, nil
			}
			depth--
		} else if tt == plsqlscan.CommaToken && depth == 0 {
			return catalog.Parameter{Position: position, Name: name, Mode: mode, TypeText: strings.TrimSpace(typeBuf.String())}, tt, nil
		} else if tt == plsqlscan.ReservedWordToken && sc.ReservedWord() == "default" && depth == 0 {
			defaultText, next, err := p.parseExpr()
			if err != nil {
				return catalog.Parameter{}, 0, err
			}
			return catalog.Parameter{
				Position: position, Name: name, Mode: mode,
				TypeText: strings.TrimSpace(typeBuf.String()),
				DefaultText: defaultText, HasDefault: true,
			}, next, nil
		} else if tt == plsqlscan.AssignToken && depth == 0 {
			defaultText, next, err := p.parseExpr()
			if err != nil {
				return catalog.Parameter{}, 0, err
			}
			return catalog.Parameter{
				Position: position, Name: name, Mode: mode,
				TypeText: strings.TrimSpace(typeBuf.String()),
				DefaultText: defaultText, HasDefault: true,
			}, next, nil
		} else if tt == plsqlscan.EOFToken {
			return catalog.Parameter{}, 0, p.err("unterminated parameter")
		}

		if typeBuf.Len() > 0 {
			typeBuf.WriteByte(' ')
		}
		typeBuf.WriteString(p.resolve(sc.Token()))
		tt = sc.NextNonWhitespaceToken()
	}
}

// parseExpr captures raw text (placeholders resolved) up to the next
// top-level comma or closing paren, with the scanner positioned just
// before the expression (at DEFAULT or := ).
func (p *parser) parseExpr() (string, plsqlscan.TokenType, error) {
	sc := p.sc
	var b strings.Builder
	depth := 0
	tt := sc.NextNonWhitespaceToken()
	for {
		if tt == plsqlscan.EOFToken {
			return "", 0, p.err("unterminated default expression")
		}
		if tt == plsqlscan.LeftParenToken {
			depth++
		} else if tt == plsqlscan.RightParenToken {
			if depth == 0 {
				return strings.TrimSpace(b.String()), tt, nil
			}
			depth--
		} else if tt == plsqlscan.CommaToken && depth == 0 {
			return strings.TrimSpace(b.String()), tt, nil
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.resolve(sc.Token()))
		tt = sc.NextNonWhitespaceToken()
	}
}
