package hashpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentHash_Stability(t *testing.T) {
	a := ContentHash([]byte("procedure foo is begin null; end;"))
	b := ContentHash([]byte("procedure foo is begin null; end;"))
	require.Equal(t, a, b)
}

func TestContentHash_SingleByteFlip(t *testing.T) {
	a := ContentHash([]byte("procedure foo is begin null; end;"))
	b := ContentHash([]byte("procedure fop is begin null; end;"))
	require.NotEqual(t, a, b)
}

func TestClassify_SchemaAndPackage(t *testing.T) {
	c := NewClassifier(nil)
	cl := c.Classify("schema_util_common/packages/logger_pkg.pks")
	require.Equal(t, "schema_util_common", cl.Schema)
	require.Equal(t, "logger_pkg", cl.Package)
}

func TestClassify_StandaloneFileHasNoPackage(t *testing.T) {
	c := NewClassifier(nil)
	cl := c.Classify("schema_app_core/scripts/seed.sql")
	require.Equal(t, "schema_app_core", cl.Schema)
	require.Empty(t, cl.Package)
}

func TestClassify_ExcludedComponentDropped(t *testing.T) {
	c := NewClassifier([]string{"packages"})
	cl := c.Classify("schema_app_core/packages/employee_pkg.pkb")
	require.Equal(t, "schema_app_core", cl.Schema)
	require.Equal(t, "employee_pkg", cl.Package)
}

func TestClassify_NoSchemaPrefixLeavesSchemaEmpty(t *testing.T) {
	c := NewClassifier(nil)
	cl := c.Classify("misc/util_pkg.pkb")
	require.Empty(t, cl.Schema)
	require.Equal(t, "util_pkg", cl.Package)
}
