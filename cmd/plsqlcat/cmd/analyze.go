package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ordinal-labs/plsqlcat/diag"
	"github.com/ordinal-labs/plsqlcat/workflow"
)

var (
	flagSourceRoot          string
	flagOutputRoot          string
	flagDatabaseFilename    string
	flagIncludeExtensions   []string
	flagExcludePathNames    []string
	flagExcludeForPackage   []string
	flagKeywordsToDrop      []string
	flagForceReprocess      []string
	flagClearHistoryForFile []string
	flagLogVerbosity        int
	flagEnableProfiler      bool

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Catalog a PL/SQL source tree into the store",
		RunE:  runAnalyze,
	}
)

func init() {
	analyzeCmd.Flags().StringVar(&flagSourceRoot, "source-root", "", "directory containing PL/SQL source")
	analyzeCmd.Flags().StringVar(&flagOutputRoot, "output-root", "", "directory where the catalog store and logs live")
	analyzeCmd.Flags().StringVar(&flagDatabaseFilename, "database-filename", "", "store filename under output-root (default catalog.db)")
	analyzeCmd.Flags().StringSliceVar(&flagIncludeExtensions, "include-extensions", nil, "extensions to process, default sql,pks,pkb,fnc,prc,trg")
	analyzeCmd.Flags().StringSliceVar(&flagExcludePathNames, "exclude-path-names", nil, "path components to skip entirely")
	analyzeCmd.Flags().StringSliceVar(&flagExcludeForPackage, "exclude-names-for-package-derivation", nil, "path components ignored when deriving schema/package")
	analyzeCmd.Flags().StringSliceVar(&flagKeywordsToDrop, "call-extractor-keywords-to-drop", nil, "fully-qualified callee names never recorded as calls")
	analyzeCmd.Flags().StringSliceVar(&flagForceReprocess, "force-reprocess", nil, "relative paths to reprocess even if the content hash is unchanged")
	analyzeCmd.Flags().StringSliceVar(&flagClearHistoryForFile, "clear-history-for-file", nil, "relative paths whose prior catalog records are deleted before reprocessing")
	analyzeCmd.Flags().IntVar(&flagLogVerbosity, "log-verbosity", 0, "0..3")
	analyzeCmd.Flags().BoolVar(&flagEnableProfiler, "enable-profiler", false, "accepted for compatibility; the core workflow does not profile itself")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		_ = cmd.Help()
		return errors.New("analyze takes no positional arguments")
	}

	fc, err := loadFileConfig(configFile)
	if err != nil {
		return err
	}

	flagsConfig := workflow.Config{
		SourceRoot:                       flagSourceRoot,
		OutputRoot:                       flagOutputRoot,
		DatabaseFilename:                 flagDatabaseFilename,
		IncludeExtensions:                flagIncludeExtensions,
		ExcludePathNames:                 flagExcludePathNames,
		ExcludeNamesForPackageDerivation: flagExcludeForPackage,
		CallExtractorKeywordsToDrop:      flagKeywordsToDrop,
		ForceReprocess:                   flagForceReprocess,
		ClearHistoryForFile:              flagClearHistoryForFile,
		LogVerbosity:                     flagLogVerbosity,
		EnableProfiler:                   flagEnableProfiler,
	}

	cfg := overlayNonEmpty(fc.toWorkflowConfig(), flagsConfig)

	logger := logrus.StandardLogger()
	if cfg.LogVerbosity >= 3 {
		logger.SetLevel(logrus.DebugLevel)
	}
	cfg.Logger = logger

	if cfg.SourceRoot == "" {
		_ = cmd.Help()
		return errors.New("--source-root (or source_root in --config-file) is required")
	}
	if cfg.OutputRoot == "" {
		_ = cmd.Help()
		return errors.New("--output-root (or output_root in --config-file) is required")
	}

	st, err := workflow.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := workflow.Run(context.Background(), cfg, st)
	if err != nil {
		return err
	}

	if err := writeSummaryLog(cfg.OutputRoot, summary); err != nil {
		return err
	}

	fmt.Printf("scanned=%d skipped=%d reprocessed=%d failed=%d\n",
		summary.Scanned, summary.Skipped, summary.Reprocessed, summary.Failed)
	for _, d := range summary.Diagnostics {
		fmt.Printf("%s [%s] %s: %s\n", d.Path, d.Code, d.Severity, d.Message)
	}

	// Per-file fatals (IOFailure, MalformedSource, StructuralMismatch) are a
	// clean run with diagnostics attached (spec.md §6 "Propagation policy");
	// only a catalog store failure makes the run itself non-clean.
	for _, d := range summary.Diagnostics {
		if d.Code == diag.CodeStorageFailure {
			return errors.New("a catalog store failure occurred; see diagnostics above")
		}
	}
	return nil
}

// writeSummaryLog writes the run summary as YAML under output_root/logs/,
// the only other file the workflow is permitted to mutate (spec.md §6
// "Persisted state layout").
func writeSummaryLog(outputRoot string, summary workflow.Summary) error {
	logsDir := filepath.Join(outputRoot, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return err
	}
	body, err := summary.YAML()
	if err != nil {
		return err
	}
	logPath := filepath.Join(logsDir, summary.RunID+".yaml")
	return os.WriteFile(logPath, []byte(body), 0o644)
}
