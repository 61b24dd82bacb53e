package plsqlscan

// TokenType identifies the lexical class of a scanned token.
type TokenType int

const (
	EOFToken TokenType = iota + 1
	WhitespaceToken

	LeftParenToken
	RightParenToken
	SemicolonToken
	CommaToken
	DotToken
	ColonToken
	AssignToken     // :=
	ArrowToken      // =>
	PercentToken    // %  (used by %TYPE / %ROWTYPE)
	OtherPunctToken // any other single punctuation rune

	NumberToken
	StringLiteralToken // a cleaner placeholder standing in for 'literal text'
	QuotedIdentifierToken
	UnquotedIdentifierToken
	ReservedWordToken
	BindVariableToken // :name or positional :1

	BatchSeparatorToken // a '/' that is the first token on its line

	UnterminatedLiteralErrorToken
	NonUTF8ErrorToken
	OtherToken
)
