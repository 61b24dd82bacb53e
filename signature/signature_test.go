package signature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/cleaner"
)

func cleanHeader(t *testing.T, header string) (string, cleaner.LiteralMap) {
	t.Helper()
	res, err := cleaner.Clean(header)
	require.NoError(t, err)
	return res.Cleaned, res.LiteralMap
}

func TestParse_ProcedureNoParams(t *testing.T) {
	text, lm := cleanHeader(t, "procedure log_error")
	params, ret, isFn, err := Parse(text, lm, "log_error")
	require.NoError(t, err)
	require.False(t, isFn)
	require.Empty(t, ret)
	require.Empty(t, params)
}

func TestParse_ProcedureWithParamsAndDefault(t *testing.T) {
	text, lm := cleanHeader(t, "procedure log_error(p_msg varchar2, p_code number default SQLCODE)")
	params, _, isFn, err := Parse(text, lm, "log_error")
	require.NoError(t, err)
	require.False(t, isFn)
	require.Len(t, params, 2)
	require.Equal(t, "p_msg", params[0].Name)
	require.Equal(t, catalog.ModeIn, params[0].Mode)
	require.False(t, params[0].HasDefault)
	require.Equal(t, "p_code", params[1].Name)
	require.True(t, params[1].HasDefault)
	require.Equal(t, "SQLCODE", params[1].DefaultText)
}

func TestParse_FunctionReturnType(t *testing.T) {
	text, lm := cleanHeader(t, "function format_date(p_d date, p_fmt varchar2) return varchar2")
	params, ret, isFn, err := Parse(text, lm, "format_date")
	require.NoError(t, err)
	require.True(t, isFn)
	require.Equal(t, "varchar2", ret)
	require.Len(t, params, 2)
}

func TestParse_OutAndInOutModes(t *testing.T) {
	text, lm := cleanHeader(t, "procedure get_employee(p_id number, p_name out varchar2, p_salary in out number)")
	params, _, _, err := Parse(text, lm, "get_employee")
	require.NoError(t, err)
	require.Len(t, params, 3)
	require.Equal(t, catalog.ModeIn, params[0].Mode)
	require.Equal(t, catalog.ModeOut, params[1].Mode)
	require.Equal(t, catalog.ModeInOut, params[2].Mode)
}

func TestParse_TypeWithPrecisionAndAttribute(t *testing.T) {
	text, lm := cleanHeader(t, "procedure set_amount(p_amt number(10,2), p_id employees.id%TYPE)")
	params, _, _, err := Parse(text, lm, "set_amount")
	require.NoError(t, err)
	require.Len(t, params, 2)
	require.Contains(t, params[0].TypeText, "number")
	require.Contains(t, params[1].TypeText, "%")
}

func TestParse_DefaultWithLiteralResolved(t *testing.T) {
	text, lm := cleanHeader(t, "procedure greet(p_name varchar2 := 'world')")
	params, _, _, err := Parse(text, lm, "greet")
	require.NoError(t, err)
	require.Len(t, params, 1)
	require.True(t, params[0].HasDefault)
	require.Equal(t, "'world'", params[0].DefaultText)
}

func TestParse_MismatchedHeaderReturnsSignatureParseError(t *testing.T) {
	text, lm := cleanHeader(t, "not_a_header whatever")
	_, _, _, err := Parse(text, lm, "mystery")
	require.Error(t, err)
}
