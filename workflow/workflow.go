// Package workflow implements the extraction workflow (spec.md §4.G):
// walk a source tree, skip unchanged files by content hash, and dispatch
// each changed file through the cleaner, structural parser, signature
// parser and call extractor into the Catalog Store, one transaction per
// file. Grounded on the teacher's sqlparser.ParseFilesystems (WalkDir,
// extension filter, per-file hash, deterministic lexical order) and
// Deployable.Upload (transaction-per-unit-of-work).
package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ordinal-labs/plsqlcat/calls"
	"github.com/ordinal-labs/plsqlcat/catalog"
	"github.com/ordinal-labs/plsqlcat/cleaner"
	"github.com/ordinal-labs/plsqlcat/diag"
	"github.com/ordinal-labs/plsqlcat/hashpath"
	"github.com/ordinal-labs/plsqlcat/signature"
	"github.com/ordinal-labs/plsqlcat/store"
	"github.com/ordinal-labs/plsqlcat/structural"
)

// Config is the plain Go struct carrying the workflow's external inputs,
// mapping 1:1 to spec.md §6. The CLI shell (cmd/plsqlcat) is responsible
// for assembling one of these from flags/TOML/environment.
type Config struct {
	SourceRoot string
	OutputRoot string

	// DatabaseFilename is the store file created under OutputRoot. Empty
	// defaults to "catalog.db".
	DatabaseFilename string

	// IncludeExtensions holds extensions without the leading dot, e.g.
	// "pkb". Empty defaults to {sql, pks, pkb, fnc, prc, trg}.
	IncludeExtensions []string

	ExcludePathNames                 []string
	ExcludeNamesForPackageDerivation []string
	CallExtractorKeywordsToDrop      []string

	ForceReprocess      []string
	ClearHistoryForFile []string

	// LogVerbosity is 0..3 per spec.md §6; higher logs more per-file detail.
	LogVerbosity int

	// EnableProfiler is accepted for CLI compatibility; the core workflow
	// does not implement profiling itself (outer-layer concern per
	// SPEC_FULL.md §1).
	EnableProfiler bool

	Logger logrus.FieldLogger
}

var defaultIncludeExtensions = []string{"sql", "pks", "pkb", "fnc", "prc", "trg"}

func (c Config) databaseFilename() string {
	if c.DatabaseFilename != "" {
		return c.DatabaseFilename
	}
	return "catalog.db"
}

func (c Config) includeExtensions() map[string]struct{} {
	exts := c.IncludeExtensions
	if len(exts) == 0 {
		exts = defaultIncludeExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

// FileOutcome is one file's disposition in a run, used to build Summary.
type FileOutcome string

const (
	OutcomeScanned     FileOutcome = "scanned"
	OutcomeSkipped     FileOutcome = "skipped"
	OutcomeReprocessed FileOutcome = "reprocessed"
	OutcomeFailed      FileOutcome = "failed"
)

// Summary is the end-of-run report (spec.md §4.G.3), serializable to YAML
// for operator consumption the way the teacher serializes sqlcode.yaml.
type Summary struct {
	RunID       string            `yaml:"run_id"`
	StartedAt   time.Time         `yaml:"started_at"`
	FinishedAt  time.Time         `yaml:"finished_at"`
	Scanned     int               `yaml:"scanned"`
	Skipped     int               `yaml:"skipped"`
	Reprocessed int               `yaml:"reprocessed"`
	Failed      int               `yaml:"failed"`
	Diagnostics []diag.Diagnostic `yaml:"diagnostics"`
}

func (s Summary) YAML() (string, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// catalogStore is the subset of *store.Store the workflow depends on,
// letting tests substitute a spy that counts writes (spec.md §8 property 3).
type catalogStore interface {
	GetFile(ctx context.Context, path string) (*catalog.FileRecord, error)
	UpsertFileAndObjects(ctx context.Context, path, hash, runID string, objects []catalog.CodeObject) error
	DeleteFileHistory(ctx context.Context, path string) error
}

// Run executes one pass of the extraction workflow: walks cfg.SourceRoot,
// skips unchanged files, and dispatches the rest through the pipeline into
// st. Cancellation is checked between files and between objects within a
// file, per spec.md §5.
func Run(ctx context.Context, cfg Config, st catalogStore) (Summary, error) {
	if cfg.SourceRoot == "" {
		return Summary{}, diag.ConfigurationError{Message: "source_root is required"}
	}
	if _, err := os.Stat(cfg.SourceRoot); err != nil {
		return Summary{}, diag.ConfigurationError{Message: fmt.Sprintf("source_root does not exist: %s", cfg.SourceRoot)}
	}

	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		logger = discard
	}

	runID := uuid.Must(uuid.NewV4()).String()
	summary := Summary{RunID: runID, StartedAt: time.Now().UTC()}

	classifier := hashpath.NewClassifier(cfg.ExcludeNamesForPackageDerivation)
	includeExt := cfg.includeExtensions()
	excludePath := toSet(cfg.ExcludePathNames)
	forceReprocess := toSet(cfg.ForceReprocess)
	clearHistory := toSet(cfg.ClearHistoryForFile)
	keywordsToDrop := toSet(lowerAll(cfg.CallExtractorKeywordsToDrop))

	paths, err := walkSourceFiles(cfg.SourceRoot, includeExt, excludePath)
	if err != nil {
		return Summary{}, diag.ConfigurationError{Message: fmt.Sprintf("cannot walk source_root: %s", err)}
	}

	for _, relPath := range paths {
		select {
		case <-ctx.Done():
			summary.FinishedAt = time.Now().UTC()
			return summary, ctx.Err()
		default:
		}

		outcome, diags := processFile(ctx, cfg, st, classifier, relPath, runID, forceReprocess, clearHistory, keywordsToDrop)
		summary.Diagnostics = append(summary.Diagnostics, diags...)

		switch outcome {
		case OutcomeSkipped:
			summary.Skipped++
			logAtLevel(logger, cfg.LogVerbosity, 2, relPath, "skipped (hash unchanged)")
		case OutcomeReprocessed:
			summary.Reprocessed++
			logAtLevel(logger, cfg.LogVerbosity, 1, relPath, "reprocessed")
		case OutcomeFailed:
			summary.Failed++
			logger.WithField("path", relPath).Warn("failed")
		default:
			summary.Scanned++
			logAtLevel(logger, cfg.LogVerbosity, 1, relPath, "scanned")
		}
	}

	summary.FinishedAt = time.Now().UTC()
	return summary, nil
}

func logAtLevel(logger logrus.FieldLogger, verbosity, threshold int, path, msg string) {
	if verbosity < threshold {
		return
	}
	logger.WithField("path", path).Info(msg)
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

// processFile runs steps 2.a-2.g of spec.md §4.G for one file.
func processFile(
	ctx context.Context,
	cfg Config,
	st catalogStore,
	classifier *hashpath.Classifier,
	relPath string,
	runID string,
	forceReprocess, clearHistory, keywordsToDrop map[string]struct{},
) (FileOutcome, []diag.Diagnostic) {
	absPath := filepath.Join(cfg.SourceRoot, relPath)

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return OutcomeFailed, []diag.Diagnostic{diag.IOFailure{Path: relPath, Err: err}.Diagnostic()}
	}

	hash := hashpath.ContentHash(raw)

	_, forced := forceReprocess[relPath]
	_, clear := clearHistory[relPath]
	prior, err := st.GetFile(ctx, relPath)
	if err != nil {
		return OutcomeFailed, []diag.Diagnostic{diag.StorageFailure{Path: relPath, Reason: "get_file failed", Err: err}.Diagnostic()}
	}
	if prior != nil && prior.ContentHash == hash && !forced && !clear {
		return OutcomeSkipped, nil
	}

	if clear {
		if err := st.DeleteFileHistory(ctx, relPath); err != nil {
			return OutcomeFailed, []diag.Diagnostic{diag.StorageFailure{Path: relPath, Reason: "clear_history_for_file failed", Err: err}.Diagnostic()}
		}
	}

	cleaned, err := cleaner.Clean(string(raw))
	if err != nil {
		ce := err.(cleaner.Error)
		d := diag.MalformedSource{Path: relPath, Reason: ce.Reason, AtByte: ce.AtByte}
		return OutcomeFailed, []diag.Diagnostic{d.Diagnostic()}
	}

	classification := classifier.Classify(relPath)

	parser := structural.New(relPath)
	objs, err := parser.Parse(cleaned.Cleaned)
	if err != nil {
		if sm, ok := err.(diag.StructuralMismatch); ok {
			return OutcomeFailed, []diag.Diagnostic{sm.Diagnostic()}
		}
		return OutcomeFailed, []diag.Diagnostic{{Code: diag.CodeStructuralMismatch, Severity: diag.SeverityFatal, Path: relPath, Message: err.Error()}}
	}

	var diags []diag.Diagnostic
	finished := make([]catalog.CodeObject, 0, len(objs))
	// enclosingPackage maps a structural placeholder id to the name of the
	// package spec/body that is, or contains, that object; parents precede
	// their children in objs, so one forward pass fills it.
	enclosingPackage := make(map[string]string, len(objs))

	for _, obj := range objs {
		select {
		case <-ctx.Done():
			return OutcomeFailed, diags
		default:
		}

		co := obj.CodeObject
		co.SourceFile = relPath
		if co.Schema == "" {
			co.Schema = classification.Schema
		}
		if co.Kind == catalog.KindPackageSpec || co.Kind == catalog.KindPackageBody {
			enclosingPackage[co.ID] = co.Name
		} else if pkg, ok := enclosingPackage[co.ParentID]; ok {
			enclosingPackage[co.ID] = pkg
		}
		if co.Package == "" {
			co.Package = classification.Package
			if pkg, ok := enclosingPackage[co.ID]; ok {
				co.Package = pkg
			}
		}
		co.Docstring = captureDocstring(raw, co.Span.StartLine)

		if co.Kind == catalog.KindProcedure || co.Kind == catalog.KindFunction {
			headerText := cleaned.Cleaned[co.Span.StartByte:obj.HeaderEndByte]
			params, ret, isFn, sigErr := signature.Parse(headerText, cleaned.LiteralMap, co.Name)
			if sigErr != nil {
				var spe diag.SignatureParseError
				if e, ok := sigErr.(diag.SignatureParseError); ok {
					spe = e
				} else {
					spe = diag.SignatureParseError{Object: co.Name, Reason: sigErr.Error(), AtByte: co.Span.StartByte}
				}
				diags = append(diags, spe.Diagnostic(relPath))
			} else {
				co.Parameters = params
				co.ReturnType = ret
				co.HasReturn = isFn
			}
		}

		if obj.BodyStartByte > 0 && obj.BodyStartByte < co.Span.EndByte {
			bodyText := cleaned.Cleaned[obj.BodyStartByte:co.Span.EndByte]
			co.Calls = calls.Extract(bodyText, cleaned.LiteralMap, calls.Options{KeywordsToDrop: keywordsToDrop})
			for i := range co.Calls {
				co.Calls[i].Span.StartByte += obj.BodyStartByte
				co.Calls[i].Span.EndByte += obj.BodyStartByte
			}
		}

		finished = append(finished, co)
	}

	assignStableIDs(finished)

	if err := st.UpsertFileAndObjects(ctx, relPath, hash, runID, finished); err != nil {
		return OutcomeFailed, append(diags, diag.StorageFailure{Path: relPath, Reason: "upsert failed", Err: err}.Diagnostic())
	}

	outcome := OutcomeScanned
	if prior != nil {
		outcome = OutcomeReprocessed
	}
	return outcome, diags
}

// assignStableIDs assigns the spec.md §3 overload index and stable id
// (schema.package.name#overload_index) to every object from one file, then
// remaps ParentID from the structural pass's file-local placeholder ids to
// the new stable ones. This must run here, after Schema/Package have been
// populated above, rather than in the structural pass: grouping by
// (schema, package, name, kind) before classification would wrongly treat
// same-named procedures in two different packages of the same file as
// overloads of each other.
func assignStableIDs(objs []catalog.CodeObject) {
	type key struct {
		schema, pkg, name string
		kind              catalog.Kind
	}
	counts := map[key]int{}
	for i := range objs {
		k := key{objs[i].Schema, objs[i].Package, objs[i].Name, objs[i].Kind}
		counts[k]++
	}
	idx := map[key]int{}
	oldToNew := make(map[string]string, len(objs))
	for i := range objs {
		k := key{objs[i].Schema, objs[i].Package, objs[i].Name, objs[i].Kind}
		if counts[k] > 1 {
			objs[i].Overloaded = true
		}
		overloadIndex := idx[k]
		idx[k]++
		objs[i].OverloadIndex = overloadIndex
		oldToNew[objs[i].ID] = fmt.Sprintf("%s.%s.%s#%d", objs[i].Schema, objs[i].Package, objs[i].Name, overloadIndex)
	}
	for i := range objs {
		if objs[i].ParentID != "" {
			if newParent, ok := oldToNew[objs[i].ParentID]; ok {
				objs[i].ParentID = newParent
			}
		}
		objs[i].ID = oldToNew[objs[i].ID]
	}
}

// captureDocstring walks raw lines backward from startLine-1 (1-based),
// collecting contiguous "--" comment lines, stopping at the first blank or
// non-comment line, mirroring the teacher's Batch.DocString accumulation/
// reset rule in sqlparser/sqldocument/batch.go.
func captureDocstring(raw []byte, startLine int) []string {
	lines := strings.Split(string(raw), "\n")
	idx := startLine - 2 // 0-based index of the line immediately above startLine
	var collected []string
	for idx >= 0 && idx < len(lines) {
		line := strings.TrimSpace(lines[idx])
		if !strings.HasPrefix(line, "--") {
			break
		}
		collected = append([]string{strings.TrimSpace(strings.TrimPrefix(line, "--"))}, collected...)
		idx--
	}
	return collected
}

func walkSourceFiles(root string, includeExt, excludePath map[string]struct{}) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		name := d.Name()
		if _, excluded := excludePath[name]; excluded {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if _, ok := includeExt[ext]; !ok {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// OpenStore opens the Catalog Store at cfg.OutputRoot/cfg.databaseFilename,
// the single store file per spec.md §6 "Persisted state layout".
func OpenStore(cfg Config) (*store.Store, error) {
	return store.Open(filepath.Join(cfg.OutputRoot, cfg.databaseFilename()))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
