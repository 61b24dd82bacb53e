// Package store implements the persistent Catalog Store (spec.md §4.C): a
// single-writer SQLite database, grounded on theRebelliousNerd-codenerd's
// internal/store/tool_store.go ToolStore (sql.Open("sqlite3", ...),
// CREATE TABLE IF NOT EXISTS schema with indices, a mutex-guarded *sql.DB)
// and on the teacher's Deployable.Upload transaction-per-unit-of-work
// pattern (conn.BeginTx / per-statement ExecContext / rollback-on-error).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/diag"
)

// Store is the single-writer Catalog Store. Concurrency: operations are
// serialized per process via mu (spec.md §4.C "Concurrency").
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	processed_at DATETIME NOT NULL,
	last_run_id TEXT
);

CREATE TABLE IF NOT EXISTS objects (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	schema_name TEXT,
	package_name TEXT,
	name TEXT NOT NULL,
	parent_id TEXT REFERENCES objects(id) ON DELETE CASCADE,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	start_byte INTEGER NOT NULL,
	end_byte INTEGER NOT NULL,
	return_type TEXT,
	overload_index INTEGER NOT NULL DEFAULT 0,
	overloaded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_objects_file ON objects(file_path);
CREATE INDEX IF NOT EXISTS idx_objects_parent ON objects(parent_id);
CREATE INDEX IF NOT EXISTS idx_objects_name ON objects(schema_name, package_name, name, kind);

CREATE TABLE IF NOT EXISTS parameters (
	object_id TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	mode TEXT NOT NULL,
	type_text TEXT,
	default_text TEXT,
	has_default INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_parameters_object ON parameters(object_id);

CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id TEXT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	callee TEXT NOT NULL,
	call_start INTEGER NOT NULL,
	call_end INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_object ON calls(object_id);

CREATE TABLE IF NOT EXISTS call_args (
	call_rowid INTEGER NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	arg_name TEXT,
	arg_text TEXT NOT NULL,
	named INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_call_args_call ON call_args(call_rowid);
`

// Open creates or opens the catalog database at dbPath, applying the
// schema if not already present. Foreign-key cascade enforcement requires
// PRAGMA foreign_keys=ON per connection, set here.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, diag.ConfigurationError{Message: fmt.Sprintf("cannot create output directory: %s", err)}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, diag.ConfigurationError{Message: fmt.Sprintf("cannot open catalog store: %s", err)}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, diag.StorageFailure{Path: dbPath, Reason: "schema initialization failed", Err: err}
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// GetFile returns the FileRecord for path, or (nil, nil) if no record
// exists.
func (s *Store) GetFile(ctx context.Context, path string) (*catalog.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT hash, processed_at, last_run_id FROM files WHERE path = ?`, path)
	var rec catalog.FileRecord
	var runID sql.NullString
	if err := row.Scan(&rec.ContentHash, &rec.LastProcessedAt, &runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, diag.StorageFailure{Path: path, Reason: "get_file failed", Err: err}
	}
	rec.Path = path
	rec.LastRunID = runID.String

	ids, err := s.objectIDsForFile(ctx, path)
	if err != nil {
		return nil, err
	}
	rec.ObjectIDs = ids
	return &rec, nil
}

func (s *Store) objectIDsForFile(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM objects WHERE file_path = ?`, path)
	if err != nil {
		return nil, diag.StorageFailure{Path: path, Reason: "list object ids failed", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, diag.StorageFailure{Path: path, Reason: "scan object id failed", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertFileAndObjects atomically replaces the object set for path: deletes
// any prior objects (cascading to parameters/calls/call_args via FK),
// inserts the new file row, and inserts all objects/parameters/calls/
// call_args for it, per spec.md §4.C and §4.G step 2.g. On any failure the
// transaction is rolled back and a diag.StorageFailure returned; the
// store's prior state remains untouched (spec.md §8 property 8).
func (s *Store) UpsertFileAndObjects(ctx context.Context, path, hash, runID string, objects []catalog.CodeObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return diag.StorageFailure{Path: path, Reason: "begin transaction failed", Err: err}
	}

	if err := s.deleteFileLocked(ctx, tx, path); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files(path, hash, processed_at, last_run_id) VALUES (?, ?, ?, ?)`,
		path, hash, time.Now().UTC(), runID,
	); err != nil {
		tx.Rollback()
		return diag.StorageFailure{Path: path, Reason: "insert file row failed", Err: err}
	}

	for _, obj := range objects {
		obj.SourceFile = path
		if err := insertObject(ctx, tx, obj); err != nil {
			tx.Rollback()
			return diag.StorageFailure{Path: path, Reason: fmt.Sprintf("insert object %s failed", obj.ID), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return diag.StorageFailure{Path: path, Reason: "commit failed", Err: err}
	}
	return nil
}

func insertObject(ctx context.Context, tx *sql.Tx, obj catalog.CodeObject) error {
	var parentID sql.NullString
	if obj.ParentID != "" {
		parentID = sql.NullString{String: obj.ParentID, Valid: true}
	}
	var returnType sql.NullString
	if obj.HasReturn {
		returnType = sql.NullString{String: obj.ReturnType, Valid: true}
	}

	overloaded := 0
	if obj.Overloaded {
		overloaded = 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objects(id, file_path, kind, schema_name, package_name, name, parent_id,
			start_line, end_line, start_byte, end_byte, return_type, overload_index, overloaded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obj.ID, obj.SourceFile, string(obj.Kind), obj.Schema, obj.Package, obj.Name, parentID,
		obj.Span.StartLine, obj.Span.EndLine, obj.Span.StartByte, obj.Span.EndByte,
		returnType, obj.OverloadIndex, overloaded,
	); err != nil {
		return err
	}

	for _, p := range obj.Parameters {
		var defaultText sql.NullString
		if p.HasDefault {
			defaultText = sql.NullString{String: p.DefaultText, Valid: true}
		}
		hasDefault := 0
		if p.HasDefault {
			hasDefault = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO parameters(object_id, position, name, mode, type_text, default_text, has_default)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			obj.ID, p.Position, p.Name, string(p.Mode), p.TypeText, defaultText, hasDefault,
		); err != nil {
			return err
		}
	}

	for _, c := range obj.Calls {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO calls(object_id, position, callee, call_start, call_end)
			VALUES (?, ?, ?, ?, ?)`,
			obj.ID, c.Position, c.CalleeName, c.Span.StartByte, c.Span.EndByte,
		)
		if err != nil {
			return err
		}
		callRowID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, a := range append(append([]catalog.Argument{}, c.PositionalArgs...), c.NamedArgs...) {
			named := 0
			var argName sql.NullString
			if a.Named {
				named = 1
				argName = sql.NullString{String: a.Name, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO call_args(call_rowid, position, arg_name, arg_text, named)
				VALUES (?, ?, ?, ?, ?)`,
				callRowID, a.Position, argName, a.Text, named,
			); err != nil {
				return err
			}
		}
	}

	return nil
}

// DeleteFileHistory removes path's file record and all its objects
// (cascading to parameters/calls/call_args).
func (s *Store) DeleteFileHistory(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return diag.StorageFailure{Path: path, Reason: "begin transaction failed", Err: err}
	}
	if err := s.deleteFileLocked(ctx, tx, path); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return diag.StorageFailure{Path: path, Reason: "commit failed", Err: err}
	}
	return nil
}

func (s *Store) deleteFileLocked(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return diag.StorageFailure{Path: path, Reason: "delete prior file record failed", Err: err}
	}
	return nil
}

// Filter selects a subset of objects from ListObjects.
type Filter struct {
	Schema  string
	Package string
	Kind    catalog.Kind
}

// ListObjects returns code objects matching filter (zero-value fields are
// unconstrained), each with its parameters and outbound calls populated —
// ListObjectsTopological depends on Calls being filled in to order its
// result.
func (s *Store) ListObjects(ctx context.Context, filter Filter) ([]catalog.CodeObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, file_path, kind, schema_name, package_name, name, parent_id,
		start_line, end_line, start_byte, end_byte, return_type, overload_index, overloaded
		FROM objects WHERE 1=1`
	var args []any
	if filter.Schema != "" {
		query += " AND schema_name = ?"
		args = append(args, filter.Schema)
	}
	if filter.Package != "" {
		query += " AND package_name = ?"
		args = append(args, filter.Package)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, diag.StorageFailure{Reason: "list_objects failed", Err: err}
	}
	defer rows.Close()

	var objs []catalog.CodeObject
	for rows.Next() {
		var o catalog.CodeObject
		var parentID, returnType sql.NullString
		var overloaded int
		if err := rows.Scan(&o.ID, &o.SourceFile, &o.Kind, &o.Schema, &o.Package, &o.Name, &parentID,
			&o.Span.StartLine, &o.Span.EndLine, &o.Span.StartByte, &o.Span.EndByte,
			&returnType, &o.OverloadIndex, &overloaded); err != nil {
			return nil, diag.StorageFailure{Reason: "scan object failed", Err: err}
		}
		o.ParentID = parentID.String
		if returnType.Valid {
			o.ReturnType = returnType.String
			o.HasReturn = true
		}
		o.Overloaded = overloaded != 0
		objs = append(objs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, diag.StorageFailure{Reason: "list_objects iteration failed", Err: err}
	}

	for i := range objs {
		params, err := s.paramsForObject(ctx, objs[i].ID)
		if err != nil {
			return nil, err
		}
		objs[i].Parameters = params

		calls, err := s.callsForObject(ctx, objs[i].ID)
		if err != nil {
			return nil, err
		}
		objs[i].Calls = calls
	}
	return objs, nil
}

// callsForObject loads the outbound calls recorded for objectID, in
// position order, each with its positional/named arguments restored from
// call_args.
func (s *Store) callsForObject(ctx context.Context, objectID string) ([]catalog.Call, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, callee, call_start, call_end
		FROM calls WHERE object_id = ? ORDER BY position`, objectID)
	if err != nil {
		return nil, diag.StorageFailure{Reason: "load calls failed", Err: err}
	}
	defer rows.Close()

	type rawCall struct {
		rowID int64
		call  catalog.Call
	}
	var raws []rawCall
	for rows.Next() {
		var rc rawCall
		if err := rows.Scan(&rc.rowID, &rc.call.Position, &rc.call.CalleeName, &rc.call.Span.StartByte, &rc.call.Span.EndByte); err != nil {
			return nil, diag.StorageFailure{Reason: "scan call failed", Err: err}
		}
		raws = append(raws, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, diag.StorageFailure{Reason: "list calls iteration failed", Err: err}
	}

	calls := make([]catalog.Call, len(raws))
	for i, rc := range raws {
		args, err := s.argsForCall(ctx, rc.rowID)
		if err != nil {
			return nil, err
		}
		rc.call.PositionalArgs = args.positional
		rc.call.NamedArgs = args.named
		calls[i] = rc.call
	}
	return calls, nil
}

type callArgs struct {
	positional []catalog.Argument
	named      []catalog.Argument
}

func (s *Store) argsForCall(ctx context.Context, callRowID int64) (callArgs, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, arg_name, arg_text, named
		FROM call_args WHERE call_rowid = ? ORDER BY position`, callRowID)
	if err != nil {
		return callArgs{}, diag.StorageFailure{Reason: "load call_args failed", Err: err}
	}
	defer rows.Close()

	var out callArgs
	for rows.Next() {
		var a catalog.Argument
		var argName sql.NullString
		var named int
		if err := rows.Scan(&a.Position, &argName, &a.Text, &named); err != nil {
			return callArgs{}, diag.StorageFailure{Reason: "scan call_arg failed", Err: err}
		}
		a.Named = named != 0
		a.Name = argName.String
		if a.Named {
			out.named = append(out.named, a)
		} else {
			out.positional = append(out.positional, a)
		}
	}
	return out, rows.Err()
}

func (s *Store) paramsForObject(ctx context.Context, objectID string) ([]catalog.Parameter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, name, mode, type_text, default_text, has_default
		FROM parameters WHERE object_id = ? ORDER BY position`, objectID)
	if err != nil {
		return nil, diag.StorageFailure{Reason: "load parameters failed", Err: err}
	}
	defer rows.Close()

	var params []catalog.Parameter
	for rows.Next() {
		var p catalog.Parameter
		var mode string
		var typeText, defaultText sql.NullString
		var hasDefault int
		if err := rows.Scan(&p.Position, &p.Name, &mode, &typeText, &defaultText, &hasDefault); err != nil {
			return nil, diag.StorageFailure{Reason: "scan parameter failed", Err: err}
		}
		p.Mode = catalog.Mode(mode)
		p.TypeText = typeText.String
		p.DefaultText = defaultText.String
		p.HasDefault = hasDefault != 0
		params = append(params, p)
	}
	return params, rows.Err()
}

// ListObjectsTopological returns all objects ordered so that every object
// appears after the objects it calls within the same file set; a call is
// followed only when its callee name, as written, equals the callee's
// package.name (or bare name when it has no package) (a
// supplemented feature; see SPEC_FULL.md §13), grounded on the teacher's
// sqlparser/sqldocument/topological_sort.go TopologicalSort/CycleError.
// Cycles (mutual recursion) are broken at an arbitrary edge rather than
// reported as an error, since mutual recursion is ordinary PL/SQL and not
// a malformed-input condition.
func ListObjectsTopological(objs []catalog.CodeObject) []catalog.CodeObject {
	byID := make(map[string]catalog.CodeObject, len(objs))
	for _, o := range objs {
		byID[o.ID] = o
	}
	byFQN := make(map[string]string, len(objs))
	for _, o := range objs {
		fqn := fqName(o)
		byFQN[fqn] = o.ID
	}

	visited := make(map[string]bool, len(objs))
	visiting := make(map[string]bool, len(objs))
	var order []catalog.CodeObject

	var visit func(id string)
	visit = func(id string) {
		if visited[id] || visiting[id] {
			return
		}
		visiting[id] = true
		o := byID[id]
		for _, c := range o.Calls {
			if depID, ok := byFQN[c.CalleeName]; ok {
				visit(depID)
			}
		}
		visiting[id] = false
		visited[id] = true
		order = append(order, o)
	}

	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return order
}

func fqName(o catalog.CodeObject) string {
	if o.Package != "" {
		return o.Package + "." + o.Name
	}
	return o.Name
}
