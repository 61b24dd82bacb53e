// Package cleaner implements the literal/comment cleaning stage: it produces
// a length-preserving cleaned copy of PL/SQL source with comments blanked
// out and string literals replaced by fixed-length placeholder tokens, plus
// a map back to the original literal text.
package cleaner

import (
	"fmt"
	"strings"
)

// LiteralMap maps a placeholder token (e.g. "§L0§") back to the original
// literal text it replaced, including the surrounding quotes.
type LiteralMap map[string]string

// Result is the output of Clean: the cleaned text (same length as the
// input) and the literal placeholder map.
type Result struct {
	Cleaned    string
	LiteralMap LiteralMap
}

// Error reports that the cleaner could not finish a single deterministic
// pass over the input, surfaced by callers as diag.MalformedSource.
type Error struct {
	Reason string
	AtByte int
}

func (e Error) Error() string {
	return fmt.Sprintf("cleaner: %s at byte %d", e.Reason, e.AtByte)
}

const placeholderBase = "L"

// Clean strips line comments, block comments, and substitutes string
// literals with length-preserving placeholders. The returned text has
// exactly the same length as raw; any byte offset into raw denotes the same
// logical construct in the returned text.
func Clean(raw string) (Result, error) {
	prefix, err := choosePlaceholderPrefix(raw)
	if err != nil {
		return Result{}, err
	}

	var out strings.Builder
	out.Grow(len(raw))
	lm := make(LiteralMap)

	i := 0
	n := len(raw)
	literalIndex := 0

	for i < n {
		c := raw[i]
		switch {
		case c == '-' && i+1 < n && raw[i+1] == '-':
			// Line comment: blank out up to (not including) the line
			// terminator.
			j := i
			for j < n && raw[j] != '\n' && raw[j] != '\r' {
				j++
			}
			out.WriteString(strings.Repeat(" ", j-i))
			i = j

		case c == '/' && i+1 < n && raw[i+1] == '*':
			end := strings.Index(raw[i+2:], "*/")
			if end == -1 {
				return Result{}, Error{Reason: "unterminated block comment", AtByte: i}
			}
			length := end + 4 // "/*" + body + "*/"
			writeBlankPreservingNewlines(&out, raw[i:i+length])
			i += length

		case c == '\'':
			start := i
			j := i + 1
			for {
				idx := strings.IndexByte(raw[j:], '\'')
				if idx == -1 {
					return Result{}, Error{Reason: "unterminated string literal", AtByte: start}
				}
				j = j + idx + 1
				if j < n && raw[j] == '\'' {
					// doubled '' escape, keep scanning
					j++
					continue
				}
				break
			}
			original := raw[start:j]
			placeholder := fmt.Sprintf("%s%s%d%s", sectionMark, prefix, literalIndex, sectionMark)
			literalIndex++
			if len(placeholder) > len(original) {
				// A literal shorter than its placeholder (every literal of
				// five bytes or fewer, since "§L0§" alone is six bytes)
				// cannot be replaced without changing the length, so it is
				// written through unchanged and gets no LiteralMap entry.
				out.WriteString(original)
			} else {
				lm[placeholder] = original
				out.WriteString(placeholder)
				out.WriteString(strings.Repeat(" ", len(original)-len(placeholder)))
			}
			i = j

		case c == '"':
			// Quoted identifiers are preserved verbatim.
			j := i + 1
			for j < n && raw[j] != '"' {
				j++
			}
			if j < n {
				j++
			}
			out.WriteString(raw[i:j])
			i = j

		default:
			out.WriteByte(c)
			i++
		}
	}

	return Result{Cleaned: out.String(), LiteralMap: lm}, nil
}

const sectionMark = "§" // §

// choosePlaceholderPrefix picks a prefix for the "L" placeholder marker such
// that "§<prefix>" never collides with the raw input; regenerates with a
// longer prefix if it does, per spec.md §4.A rule 3.
func choosePlaceholderPrefix(raw string) (string, error) {
	prefix := placeholderBase
	for attempt := 0; attempt < 8; attempt++ {
		if !strings.Contains(raw, sectionMark+prefix) {
			return prefix, nil
		}
		prefix = prefix + placeholderBase
	}
	return "", Error{Reason: "could not find a placeholder prefix free of collisions", AtByte: 0}
}

// writeBlankPreservingNewlines writes len(s) spaces to out, except that any
// '\n' or '\r' byte in s is copied through unchanged so that line numbers in
// the cleaned text still match the original.
func writeBlankPreservingNewlines(out *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			out.WriteByte(s[i])
		} else {
			out.WriteByte(' ')
		}
	}
}

// Resolve looks up the original literal text for a placeholder token found
// in cleaned/argument text, returning the raw value unchanged if it is not
// a placeholder. The token may carry the placeholder's trailing pad spaces,
// as a scanned StringLiteralToken does.
func (lm LiteralMap) Resolve(token string) string {
	if v, ok := lm[strings.TrimRight(token, " ")]; ok {
		return v
	}
	return token
}

// ResolveAll replaces every placeholder occurrence within text with its
// original literal. Since placeholders are padded with spaces to preserve
// length, the padding that immediately follows a placeholder marker is
// consumed along with it so the substitution is an exact, not merely
// textual, round trip.
func (lm LiteralMap) ResolveAll(text string) string {
	if len(lm) == 0 {
		return text
	}
	result := text
	for placeholder, original := range lm {
		pad := len(original) - len(placeholder)
		if pad < 0 {
			pad = 0
		}
		padded := placeholder + strings.Repeat(" ", pad)
		result = strings.ReplaceAll(result, padded, original)
	}
	return result
}

// PadLength returns how many padding spaces follow the given placeholder
// marker in the cleaned text, i.e. len(original)-len(placeholder).
func (lm LiteralMap) PadLength(placeholder string) int {
	original, ok := lm[placeholder]
	if !ok {
		return 0
	}
	pad := len(original) - len(placeholder)
	if pad < 0 {
		return 0
	}
	return pad
}
