package plsqlscan

// reservedWords is the PL/SQL keyword set the scanner recognizes as
// ReservedWordToken rather than UnquotedIdentifierToken. It is scoped to the
// keywords the structural, signature, and call-extraction stages actually
// inspect, not the full Oracle reserved-word list.
var reservedWords = map[string]struct{}{
	"package":    {},
	"body":       {},
	"procedure":  {},
	"function":   {},
	"trigger":    {},
	"is":         {},
	"as":         {},
	"begin":      {},
	"end":        {},
	"declare":    {},
	"return":     {},
	"returning":  {},
	"in":         {},
	"out":        {},
	"nocopy":     {},
	"default":    {},
	"loop":       {},
	"end loop":   {},
	"if":         {},
	"then":       {},
	"else":       {},
	"elsif":      {},
	"case":       {},
	"when":       {},
	"exception":  {},
	"for":        {},
	"while":      {},
	"cursor":     {},
	"type":       {},
	"subtype":    {},
	"record":     {},
	"table":      {},
	"of":         {},
	"constant":   {},
	"exit":       {},
	"null":       {},
	"pragma":     {},
	"create":     {},
	"or":         {},
	"replace":    {},
	"before":     {},
	"after":      {},
	"instead":    {},
	"on":         {},
	"each":       {},
	"row":        {},
	"insert":     {},
	"update":     {},
	"delete":     {},
	"into":       {},
	"from":       {},
	"select":     {},
	"merge":      {},
	"values":     {},
	"set":        {},
	"where":      {},
	"and":        {},
	"not":        {},
	"authid":     {},
	"definer":    {},
	"current_user": {},
	"deterministic": {},
	"pipelined":  {},
	"result_cache": {},
}
