package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean_LengthPreserving(t *testing.T) {
	inputs := []string{
		"",
		"select 1 from dual;",
		"-- a comment\nprocedure foo is begin null; end;",
		"/* block\ncomment */ procedure bar is begin null; end;",
		"v_x := 'it''s a test';",
		`v_y := "Quoted_Ident";`,
		"-- unterminated line comment with no eol",
	}
	for _, in := range inputs {
		res, err := Clean(in)
		require.NoError(t, err)
		require.Equal(t, len(in), len(res.Cleaned), "input: %q", in)
	}
}

func TestClean_LineComment(t *testing.T) {
	in := "begin -- do it\n  null;\nend;"
	res, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, len(in), len(res.Cleaned))
	require.NotContains(t, res.Cleaned, "do it")
	require.True(t, strings.HasSuffix(res.Cleaned, "end;"))
}

func TestClean_BlockComment(t *testing.T) {
	in := "a/* multi\nline\ncomment */b"
	res, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, len(in), len(res.Cleaned))
	require.NotContains(t, res.Cleaned, "multi")
	require.Equal(t, strings.Count(in, "\n"), strings.Count(res.Cleaned, "\n"))
}

func TestClean_UnterminatedBlockComment(t *testing.T) {
	_, err := Clean("begin /* oops")
	require.Error(t, err)
}

func TestClean_StringLiteralPlaceholderAndRoundTrip(t *testing.T) {
	in := `v_msg := 'hello ''world''';`
	res, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, len(in), len(res.Cleaned))
	require.Len(t, res.LiteralMap, 1)

	for placeholder := range res.LiteralMap {
		require.Contains(t, res.Cleaned, placeholder)
	}

	restored := res.LiteralMap.ResolveAll(res.Cleaned)
	require.Equal(t, in, restored)
}

func TestClean_QuotedIdentifierPreserved(t *testing.T) {
	in := `select "MyColumn" from "MyTable";`
	res, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, in, res.Cleaned)
}

func TestClean_Idempotent(t *testing.T) {
	in := "-- hi\nv_x := 'literal value here';\n/* block */\nend;"
	first, err := Clean(in)
	require.NoError(t, err)

	second, err := Clean(first.Cleaned)
	require.NoError(t, err)
	require.Equal(t, first.Cleaned, second.Cleaned)
}

func TestClean_PlaceholderCollisionInInput(t *testing.T) {
	in := `v_x := '§L0§ literal that mentions the marker itself';`
	res, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, len(in), len(res.Cleaned))
}
