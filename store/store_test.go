package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ordinal-labs/plsqlcat/catalog"
)

// openTest opens a fresh catalog database under a scratch filename, named
// the way sqltest.Fixture names its scratch databases (a UUID with dashes
// stripped) rather than a fixed file within the temp dir.
func openTest(t *testing.T) *Store {
	t.Helper()
	name := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	s, err := Open(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleObject(id string) catalog.CodeObject {
	return catalog.CodeObject{
		ID:      id,
		Kind:    catalog.KindProcedure,
		Name:    "log_error",
		Schema:  "schema_util_common",
		Package: "logger_pkg",
		Parameters: []catalog.Parameter{
			{Position: 0, Name: "p_msg", Mode: catalog.ModeIn, TypeText: "varchar2"},
		},
		SourceFile: "util/logger_pkg.pkb",
		Span:       catalog.Span{StartLine: 1, EndLine: 5, StartByte: 0, EndByte: 60},
		Calls: []catalog.Call{
			{
				Position:       0,
				CalleeName:     "dbms_output.put_line",
				PositionalArgs: []catalog.Argument{{Position: 0, Text: "p_msg"}},
				Span:           catalog.Span{StartByte: 10, EndByte: 35},
			},
		},
	}
}

func TestUpsertAndGetFile_RoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	err := s.UpsertFileAndObjects(ctx, "util/logger_pkg.pkb", "hash1", "run1", []catalog.CodeObject{sampleObject("schema_util_common.logger_pkg.log_error#0")})
	require.NoError(t, err)

	rec, err := s.GetFile(ctx, "util/logger_pkg.pkb")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "hash1", rec.ContentHash)
	require.Equal(t, "run1", rec.LastRunID)
	require.Len(t, rec.ObjectIDs, 1)
}

func TestGetFile_UnknownPathReturnsNil(t *testing.T) {
	s := openTest(t)
	rec, err := s.GetFile(context.Background(), "nope.pkb")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestUpsertFileAndObjects_ReplacesPriorObjects(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFileAndObjects(ctx, "p.pkb", "h1", "run1", []catalog.CodeObject{
		sampleObject("schema_util_common.logger_pkg.log_error#0"),
	}))

	second := sampleObject("schema_util_common.logger_pkg.log_error#0")
	second.Name = "log_error_v2"
	require.NoError(t, s.UpsertFileAndObjects(ctx, "p.pkb", "h2", "run2", []catalog.CodeObject{second}))

	rec, err := s.GetFile(ctx, "p.pkb")
	require.NoError(t, err)
	require.Equal(t, "h2", rec.ContentHash)

	objs, err := s.ListObjects(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "log_error_v2", objs[0].Name)
}

func TestDeleteFileHistory_CascadesToObjectsParametersAndCalls(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFileAndObjects(ctx, "p.pkb", "h1", "run1", []catalog.CodeObject{
		sampleObject("schema_util_common.logger_pkg.log_error#0"),
	}))

	require.NoError(t, s.DeleteFileHistory(ctx, "p.pkb"))

	rec, err := s.GetFile(ctx, "p.pkb")
	require.NoError(t, err)
	require.Nil(t, rec)

	objs, err := s.ListObjects(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, objs)

	var remaining int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM parameters) + (SELECT COUNT(*) FROM calls) + (SELECT COUNT(*) FROM call_args)`,
	).Scan(&remaining))
	require.Zero(t, remaining)
}

func TestListObjects_FiltersBySchemaPackageKind(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	objA := sampleObject("schema_util_common.logger_pkg.log_error#0")
	objB := sampleObject("schema_app_core.employee_pkg.get_employee#0")
	objB.Name = "get_employee"
	objB.Schema = "schema_app_core"
	objB.Package = "employee_pkg"
	objB.Kind = catalog.KindFunction
	objB.HasReturn = true
	objB.ReturnType = "employees%rowtype"

	require.NoError(t, s.UpsertFileAndObjects(ctx, "a.pkb", "h1", "run1", []catalog.CodeObject{objA}))
	require.NoError(t, s.UpsertFileAndObjects(ctx, "b.pkb", "h2", "run1", []catalog.CodeObject{objB}))

	all, err := s.ListObjects(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyFns, err := s.ListObjects(ctx, Filter{Kind: catalog.KindFunction})
	require.NoError(t, err)
	require.Len(t, onlyFns, 1)
	require.Equal(t, "get_employee", onlyFns[0].Name)
	require.True(t, onlyFns[0].HasReturn)
	require.Equal(t, "employees%rowtype", onlyFns[0].ReturnType)

	bySchema, err := s.ListObjects(ctx, Filter{Schema: "schema_util_common"})
	require.NoError(t, err)
	require.Len(t, bySchema, 1)
	require.Equal(t, "log_error", bySchema[0].Name)
}

func TestListObjects_LoadsParametersInPositionOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	obj := sampleObject("schema_util_common.logger_pkg.log_error#0")
	obj.Parameters = []catalog.Parameter{
		{Position: 0, Name: "p_code", Mode: catalog.ModeIn, TypeText: "number", HasDefault: true, DefaultText: "sqlcode"},
		{Position: 1, Name: "p_msg", Mode: catalog.ModeOut, TypeText: "varchar2"},
	}
	require.NoError(t, s.UpsertFileAndObjects(ctx, "p.pkb", "h1", "run1", []catalog.CodeObject{obj}))

	objs, err := s.ListObjects(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Len(t, objs[0].Parameters, 2)
	require.Equal(t, "p_code", objs[0].Parameters[0].Name)
	require.True(t, objs[0].Parameters[0].HasDefault)
	require.Equal(t, "sqlcode", objs[0].Parameters[0].DefaultText)
	require.Equal(t, catalog.ModeOut, objs[0].Parameters[1].Mode)
}

func TestUpsertFileAndObjects_RollsBackOnForeignKeyViolation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	bad := sampleObject("schema_util_common.logger_pkg.log_error#0")
	bad.ParentID = "does-not-exist"

	err := s.UpsertFileAndObjects(ctx, "p.pkb", "h1", "run1", []catalog.CodeObject{bad})
	require.Error(t, err)

	rec, getErr := s.GetFile(ctx, "p.pkb")
	require.NoError(t, getErr)
	require.Nil(t, rec, "failed transaction must not leave a partial file record behind")
}

func TestListObjectsTopological_OrdersCalleeBeforeCaller(t *testing.T) {
	callee := catalog.CodeObject{
		ID: "a", Name: "helper", Package: "pkg",
		Kind: catalog.KindProcedure,
		Span: catalog.Span{StartLine: 1, EndLine: 3},
	}
	caller := catalog.CodeObject{
		ID: "b", Name: "main", Package: "pkg",
		Kind: catalog.KindProcedure,
		Span: catalog.Span{StartLine: 4, EndLine: 8},
		Calls: []catalog.Call{
			{CalleeName: "pkg.helper"},
		},
	}

	ordered := ListObjectsTopological([]catalog.CodeObject{caller, callee})
	require.Len(t, ordered, 2)
	require.Equal(t, "helper", ordered[0].Name)
	require.Equal(t, "main", ordered[1].Name)
}

func TestListObjectsTopological_MutualRecursionDoesNotInfiniteLoop(t *testing.T) {
	a := catalog.CodeObject{ID: "a", Name: "a_fn", Package: "pkg", Calls: []catalog.Call{{CalleeName: "pkg.b_fn"}}}
	b := catalog.CodeObject{ID: "b", Name: "b_fn", Package: "pkg", Calls: []catalog.Call{{CalleeName: "pkg.a_fn"}}}

	ordered := ListObjectsTopological([]catalog.CodeObject{a, b})
	require.Len(t, ordered, 2)
}
