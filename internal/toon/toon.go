// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/typescan/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a ScanResult into TOON format.
func Encode(res *model.ScanResult) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("workspace: %s", encodeValue(res.Workspace)))
	parts = append(parts, formatList("projects", res.Projects))
	parts = append(parts, formatList("targets", res.Targets))

	var matchRows [][]any
	for i := range res.Matches {
		m := &res.Matches[i]
		matchRows = append(matchRows, []any{
			m.Project,
			m.File,
			m.FullName,
			string(m.Kind),
			m.Line,
			m.Column,
			m.MatchedBase,
			m.Depth,
			m.CyclicChainTruncated,
		})
	}
	parts = append(parts, formatTabular("matches",
		[]string{"project", "file", "name", "kind", "line", "column", "base", "depth", "cyclic"}, matchRows))

	var skippedRows [][]any
	for i := range res.Skipped {
		d := &res.Skipped[i]
		skippedRows = append(skippedRows, []any{d.Project, d.File, string(d.Kind), d.Reason})
	}
	parts = append(parts, formatTabular("skipped", []string{"project", "file", "kind", "reason"}, skippedRows))

	if len(res.Warnings) > 0 {
		var warnRows [][]any
		for i := range res.Warnings {
			d := &res.Warnings[i]
			warnRows = append(warnRows, []any{d.Project, d.File, d.Name, d.Reason})
		}
		parts = append(parts, formatTabular("warnings", []string{"project", "file", "name", "reason"}, warnRows))
	}

	return strings.Join(parts, "\n")
}

// EncodePresets lists named predicate sets, one row per name.
func EncodePresets(presets map[string][]string, names []string) string {
	rows := make([][]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, []any{name, strings.Join(presets[name], " ")})
	}
	return formatTabular("presets", []string{"name", "targets"}, rows)
}

func formatList(name string, values []string) string {
	if len(values) == 0 {
		return fmt.Sprintf("%s[0]:", name)
	}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeValue(v)
	}
	return fmt.Sprintf("%s[%d]: %s", name, len(values), strings.Join(encoded, ","))
}

func formatTabular(name string, columns []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeCell(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

// encodeCell writes numbers and booleans as TOON primitives and everything
// else as a string value.
func encodeCell(cell any) string {
	switch v := cell.(type) {
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return encodeValue(v)
	default:
		return encodeValue(fmt.Sprint(v))
	}
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
