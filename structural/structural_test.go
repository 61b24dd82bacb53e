package structural

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/cleaner"
)

func parseClean(t *testing.T, path, src string) []Object {
	t.Helper()
	res, err := cleaner.Clean(src)
	require.NoError(t, err)
	objs, err := New(path).Parse(res.Cleaned)
	require.NoError(t, err)
	return objs
}

func TestParse_PackageSpecWithProcedures(t *testing.T) {
	src := `create or replace package logger_pkg as
  procedure log_message(p_msg varchar2);
  procedure log_debug(p_msg varchar2);
  procedure log_error(p_msg varchar2, p_code number default SQLCODE);
end logger_pkg;
/
`
	objs := parseClean(t, "logger_pkg.pks", src)
	require.Len(t, objs, 4)
	require.Equal(t, catalog.KindPackageSpec, objs[0].Kind)
	require.Equal(t, "logger_pkg", objs[0].Name)
}

func TestParse_PackageBodyTwoTopLevelPackages(t *testing.T) {
	src := `create or replace package body logger_pkg is
  procedure log_message(p_msg varchar2) is
  begin
    null;
  end;
end logger_pkg;
/
create or replace package body date_utils_pkg is
  function format_date(p_d date) return varchar2 is
  begin
    return null;
  end;
  function format_date(p_d date, p_fmt varchar2) return varchar2 is
  begin
    return null;
  end;
end date_utils_pkg;
/
`
	objs := parseClean(t, "logger_pkg.pkb", src)

	var bodies []Object
	collectByKind(objs, catalog.KindPackageBody, &bodies)
	require.Len(t, bodies, 2)
	require.Equal(t, "logger_pkg", bodies[0].Name)
	require.Equal(t, "date_utils_pkg", bodies[1].Name)

	var fns []Object
	collectByKind(objs, catalog.KindFunction, &fns)
	require.Len(t, fns, 2)
	for _, fn := range fns {
		require.Equal(t, bodies[1].ID, fn.ParentID)
	}
}

func TestParse_OverloadIndexing(t *testing.T) {
	src := `create or replace package body date_utils_pkg is
  function format_date(p_d date) return varchar2 is
  begin
    return null;
  end;
  function format_date(p_d date, p_fmt varchar2) return varchar2 is
  begin
    return null;
  end;
end date_utils_pkg;
/
`
	res, err := cleaner.Clean(src)
	require.NoError(t, err)
	top, err := New("x.pkb").Parse(res.Cleaned)
	require.NoError(t, err)

	// The catalog is a flat list with parent_id pointers, not a tree —
	// verify both same-named siblings are produced here; overload_index/
	// Overloaded assignment itself happens in the workflow, once Schema/
	// Package are known (see workflow.assignStableIDs and
	// TestRun_TwoPackageBodiesWithOverloads).
	var fns []Object
	collectByKind(top, catalog.KindFunction, &fns)
	require.Len(t, fns, 2)
	require.Equal(t, fns[0].Name, fns[1].Name)
}

func collectByKind(objs []Object, kind catalog.Kind, out *[]Object) {
	for _, o := range objs {
		if o.Kind == kind {
			*out = append(*out, o)
		}
	}
}

func TestParse_ForwardDeclarationProducesNoObject(t *testing.T) {
	src := `create or replace package body pkg1 is
  procedure helper(p_x number);
  procedure helper2(p_x number) is
  begin
    null;
  end;
end pkg1;
/
`
	objs := parseClean(t, "pkg1.pkb", src)
	require.Len(t, objs, 2)

	var bodies []Object
	collectByKind(objs, catalog.KindPackageBody, &bodies)
	require.Len(t, bodies, 1)
	require.Len(t, bodies[0].CodeObject.Calls, 0)

	var procs []Object
	collectByKind(objs, catalog.KindProcedure, &procs)
	require.Len(t, procs, 1)
	require.Equal(t, "helper2", procs[0].Name)
}

func TestParse_UnbalancedEndIsStructuralMismatch(t *testing.T) {
	src := "create or replace package body pkg1 is\n  procedure p is\n  begin\n    null;\n  end;\nend;\nend;\n/\n"
	res, err := cleaner.Clean(src)
	require.NoError(t, err)
	_, err = New("pkg1.pkb").Parse(res.Cleaned)
	require.Error(t, err)
}

func TestParse_AnonymousBlock(t *testing.T) {
	src := "declare\n  v_x number;\nbegin\n  v_x := 1;\nend;\n/\n"
	objs := parseClean(t, "scratch.sql", src)
	require.Len(t, objs, 1)
	require.Equal(t, catalog.KindAnonymousBlock, objs[0].Kind)
}

// TestParse_StandaloneCreateProcedure covers spec.md §4.B's standalone
// .prc/.fnc/.sql units (no enclosing package): a bare "create or replace
// procedure" must be recognized as a procedure, not fall through to the
// empty-stack BEGIN branch and get catalogued as an anonymous_block.
func TestParse_StandaloneCreateProcedure(t *testing.T) {
	src := `create or replace procedure recalc_balances(p_account_id number) is
  v_total number;
begin
  v_total := 0;
end recalc_balances;
/
`
	objs := parseClean(t, "recalc_balances.prc", src)
	require.Len(t, objs, 1)
	require.Equal(t, catalog.KindProcedure, objs[0].Kind)
	require.Equal(t, "recalc_balances", objs[0].Name)
}

// TestParse_StandaloneCreateFunction covers the same standalone case for a
// function, including the RETURN clause between the parameter list and IS.
func TestParse_StandaloneCreateFunction(t *testing.T) {
	src := `create or replace function compute_total(p_account_id number) return number is
begin
  return 0;
end compute_total;
/
`
	objs := parseClean(t, "compute_total.fnc", src)
	require.Len(t, objs, 1)
	require.Equal(t, catalog.KindFunction, objs[0].Kind)
	require.Equal(t, "compute_total", objs[0].Name)
}

// TestParse_SpansFormAValidForest checks spec.md §8 property 4: for any
// two objects, their spans are either disjoint or one strictly contains the
// other (never a partial overlap), and a child's span sits inside its
// parent's.
func TestParse_SpansFormAValidForest(t *testing.T) {
	src := `create or replace package body pkg1 is
  procedure outer_proc is
    procedure inner_proc is
    begin
      null;
    end;
  begin
    inner_proc();
  end;

  function helper(p_x number) return number is
  begin
    return p_x;
  end;
end pkg1;
/
`
	objs := parseClean(t, "pkg1.pkb", src)
	require.True(t, len(objs) > 1)

	byID := make(map[string]Object, len(objs))
	for _, o := range objs {
		byID[o.ID] = o
	}

	for i := range objs {
		for j := range objs {
			if i == j {
				continue
			}
			a, b := objs[i].Span, objs[j].Span
			disjoint := !a.Overlaps(b)
			nested := a.Contains(b) || b.Contains(a)
			require.True(t, disjoint || nested,
				"spans for %q and %q must be disjoint or nested, got %v / %v", objs[i].Name, objs[j].Name, a, b)
		}
		if objs[i].ParentID != "" {
			parent, ok := byID[objs[i].ParentID]
			require.True(t, ok, "parent_id must reference an object in the same flat list")
			require.True(t, parent.Span.Contains(objs[i].Span), "%q's span must sit inside its parent %q's span", objs[i].Name, parent.Name)
		}
	}
}

func TestParse_NestedProcedureHasParentID(t *testing.T) {
	src := `create or replace package body pkg1 is
  procedure outer_proc is
    procedure inner_proc is
    begin
      null;
    end;
  begin
    inner_proc();
  end;
end pkg1;
/
`
	objs := parseClean(t, "pkg1.pkb", src)
	require.Len(t, objs, 3) // package body + outer_proc + inner_proc

	var outer, inner Object
	for _, o := range objs {
		switch o.Name {
		case "outer_proc":
			outer = o
		case "inner_proc":
			inner = o
		}
	}
	require.Equal(t, outer.ID, inner.ParentID)
}
