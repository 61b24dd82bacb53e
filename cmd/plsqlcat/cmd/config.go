package cmd

import (
	"errors"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ordinal-labs/plsqlcat/workflow"
)

// fileConfig mirrors workflow.Config field-for-field for TOML decoding
// (§2.3: the teacher loads YAML for sqlcode.yaml; this config loads TOML
// per spec.md §6's CLI contract instead).
type fileConfig struct {
	SourceRoot                       string   `toml:"source_root"`
	OutputRoot                       string   `toml:"output_root"`
	DatabaseFilename                 string   `toml:"database_filename"`
	IncludeExtensions                []string `toml:"include_extensions"`
	ExcludePathNames                 []string `toml:"exclude_path_names"`
	ExcludeNamesForPackageDerivation []string `toml:"exclude_names_for_package_derivation"`
	CallExtractorKeywordsToDrop      []string `toml:"call_extractor_keywords_to_drop"`
	ForceReprocess                   []string `toml:"force_reprocess"`
	ClearHistoryForFile              []string `toml:"clear_history_for_file"`
	LogVerbosity                     int      `toml:"log_verbosity"`
	EnableProfiler                   bool     `toml:"enable_profiler"`
}

// loadFileConfig reads a TOML config file into fileConfig. A missing path
// that was never specified (empty string) is not an error; an explicitly
// given but unreadable path is.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fc, errors.New("config file not found: " + path)
	}
	_, err := toml.DecodeFile(path, &fc)
	return fc, err
}

func (fc fileConfig) toWorkflowConfig() workflow.Config {
	return workflow.Config{
		SourceRoot:                       fc.SourceRoot,
		OutputRoot:                       fc.OutputRoot,
		DatabaseFilename:                 fc.DatabaseFilename,
		IncludeExtensions:                fc.IncludeExtensions,
		ExcludePathNames:                 fc.ExcludePathNames,
		ExcludeNamesForPackageDerivation: fc.ExcludeNamesForPackageDerivation,
		CallExtractorKeywordsToDrop:      fc.CallExtractorKeywordsToDrop,
		ForceReprocess:                   fc.ForceReprocess,
		ClearHistoryForFile:              fc.ClearHistoryForFile,
		LogVerbosity:                     fc.LogVerbosity,
		EnableProfiler:                   fc.EnableProfiler,
	}
}

// overlayNonEmpty copies any non-zero-value field of override onto base,
// letting explicit flags win over the TOML file the same way environment
// overlays won in the teacher's own config loading story (§2.3).
func overlayNonEmpty(base, override workflow.Config) workflow.Config {
	if override.SourceRoot != "" {
		base.SourceRoot = override.SourceRoot
	}
	if override.OutputRoot != "" {
		base.OutputRoot = override.OutputRoot
	}
	if override.DatabaseFilename != "" {
		base.DatabaseFilename = override.DatabaseFilename
	}
	if len(override.IncludeExtensions) > 0 {
		base.IncludeExtensions = override.IncludeExtensions
	}
	if len(override.ExcludePathNames) > 0 {
		base.ExcludePathNames = override.ExcludePathNames
	}
	if len(override.ExcludeNamesForPackageDerivation) > 0 {
		base.ExcludeNamesForPackageDerivation = override.ExcludeNamesForPackageDerivation
	}
	if len(override.CallExtractorKeywordsToDrop) > 0 {
		base.CallExtractorKeywordsToDrop = override.CallExtractorKeywordsToDrop
	}
	if len(override.ForceReprocess) > 0 {
		base.ForceReprocess = override.ForceReprocess
	}
	if len(override.ClearHistoryForFile) > 0 {
		base.ClearHistoryForFile = override.ClearHistoryForFile
	}
	if override.LogVerbosity != 0 {
		base.LogVerbosity = override.LogVerbosity
	}
	if override.EnableProfiler {
		base.EnableProfiler = true
	}
	return base
}
