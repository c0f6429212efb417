// Package output renders scan results in the supported formats.
package output

import (
	"encoding/json"
	"slices"

	"gitlab.com/tozd/go/errors"

	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/toon"
)

// Formats lists the accepted format names; the first is the default.
var Formats = []string{"toon", "json"}

// ErrUnknownFormat is returned for a format not in Formats.
var ErrUnknownFormat = errors.Base("unknown output format")

type matchJSON struct {
	Project  string `json:"project"`
	File     string `json:"file"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Base     string `json:"base"`
	Depth    int    `json:"depth"`
	Cyclic   bool   `json:"cyclic,omitempty"`
	Declared string `json:"declared"`
}

type diagnosticJSON struct {
	Project string `json:"project"`
	File    string `json:"file"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

type resultJSON struct {
	Workspace string           `json:"workspace"`
	Projects  []string         `json:"projects"`
	Targets   []string         `json:"targets"`
	Matches   []matchJSON      `json:"matches"`
	Skipped   []diagnosticJSON `json:"skipped"`
	Warnings  []diagnosticJSON `json:"warnings,omitempty"`
}

// Supported reports whether format is empty or one of Formats.
func Supported(format string) bool {
	return format == "" || slices.Contains(Formats, format)
}

// Encode renders res as format ("" means the default).
func Encode(res *model.ScanResult, format string) (string, error) {
	if !Supported(format) {
		return "", errors.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	if format == "" {
		format = Formats[0]
	}
	if format == "json" {
		return encodeJSON(res)
	}
	return toon.Encode(res), nil
}

func encodeJSON(res *model.ScanResult) (string, error) {
	out := resultJSON{
		Workspace: res.Workspace,
		Projects:  nonNil(res.Projects),
		Targets:   nonNil(res.Targets),
		Matches:   make([]matchJSON, 0, len(res.Matches)),
		Skipped:   make([]diagnosticJSON, 0, len(res.Skipped)),
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, matchJSON{
			Project:  m.Project,
			File:     m.File,
			Name:     m.FullName,
			Kind:     string(m.Kind),
			Line:     m.Line,
			Column:   m.Column,
			Base:     m.MatchedBase,
			Depth:    m.Depth,
			Cyclic:   m.CyclicChainTruncated,
			Declared: m.Name,
		})
	}
	for _, d := range res.Skipped {
		out.Skipped = append(out.Skipped, diagnostic(d))
	}
	for _, d := range res.Warnings {
		out.Warnings = append(out.Warnings, diagnostic(d))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", errors.Errorf("encoding json: %w", err)
	}
	return string(data), nil
}

func diagnostic(d model.Diagnostic) diagnosticJSON {
	return diagnosticJSON{
		Project: d.Project,
		File:    d.File,
		Name:    d.Name,
		Kind:    string(d.Kind),
		Reason:  d.Reason,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
