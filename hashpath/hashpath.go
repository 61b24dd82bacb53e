// Package hashpath computes content hashes and derives schema/package names
// from a source-tree relative path, grounded on the teacher's
// SchemaSuffixFromHash (preprocess.go) and the per-file sha256 dedup check in
// sqlparser/parser.go's ParseFilesystems.
package hashpath

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// ContentHash returns the lowercase hex SHA-256 digest of raw, the same
// shape as the teacher's SchemaSuffixFromHash.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Classification is the schema/package derived from a relative path per
// spec.md §4.B.
type Classification struct {
	Schema  string
	Package string
}

// Classifier derives Classification values from slash-separated relative
// paths using configured exclude names and a schema-prefix pattern.
type Classifier struct {
	// ExcludeNamesForPackageDerivation holds path components (matched
	// case-insensitively) dropped before interpreting the remaining
	// components as [schema?, ..., package?].
	ExcludeNamesForPackageDerivation map[string]struct{}
	// SchemaPrefix is the case-insensitive prefix (default "schema_")
	// that marks the first remaining component as a schema name.
	SchemaPrefix string
}

// NewClassifier builds a Classifier with the default schema prefix
// "schema_" and the given exclude set (may be nil).
func NewClassifier(excludeNames []string) *Classifier {
	ex := make(map[string]struct{}, len(excludeNames))
	for _, n := range excludeNames {
		ex[strings.ToLower(n)] = struct{}{}
	}
	return &Classifier{ExcludeNamesForPackageDerivation: ex, SchemaPrefix: "schema_"}
}

var packageExtensions = map[string]struct{}{
	".pks": {},
	".pkb": {},
}

// Classify derives schema and package for relPath, a slash-separated path
// relative to the source root.
func (c *Classifier) Classify(relPath string) Classification {
	dir, file := path.Split(relPath)
	ext := strings.ToLower(path.Ext(file))
	stem := strings.TrimSuffix(file, path.Ext(file))

	var components []string
	for _, comp := range strings.Split(strings.Trim(dir, "/"), "/") {
		if comp == "" {
			continue
		}
		if _, excluded := c.ExcludeNamesForPackageDerivation[strings.ToLower(comp)]; excluded {
			continue
		}
		components = append(components, comp)
	}

	var result Classification
	if len(components) > 0 && hasCaseInsensitivePrefix(components[0], c.SchemaPrefix) {
		result.Schema = components[0]
	}

	if _, isPackageFile := packageExtensions[ext]; isPackageFile {
		result.Package = stem
	}

	return result
}

func hasCaseInsensitivePrefix(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}
