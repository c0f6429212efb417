package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/phobologic/typescan/internal/config"
	"github.com/phobologic/typescan/internal/output"
	"github.com/phobologic/typescan/internal/scan"
	"github.com/phobologic/typescan/internal/toon"
)

// ScanTool handles the scan_types MCP tool.
type ScanTool struct {
	workspaces  *Workspaces
	presets     map[string][]string
	simpleNames bool
	format      string
}

// NewScanTool creates a ScanTool. presets is read-only for the tool's lifetime.
func NewScanTool(workspaces *Workspaces, presets map[string][]string, simpleNames bool, format string) *ScanTool {
	return &ScanTool{workspaces: workspaces, presets: presets, simpleNames: simpleNames, format: format}
}

// Definition returns the MCP tool definition for scan_types.
func (t *ScanTool) Definition() mcp.Tool {
	return mcp.NewTool("scan_types",
		mcp.WithDescription(scanDescription(t.presets)),
		mcp.WithString("descriptor",
			mcp.Required(),
			mcp.Description("Solution (.sln, .slnx) or project (.csproj) file, relative to the server root"),
		),
		mcp.WithString("project",
			mcp.Description("Restrict the scan to this project (exact name). Default: every project"),
		),
		mcp.WithString("bases",
			mcp.Description("Comma-separated base type names, e.g. Microsoft.AspNetCore.Mvc.ControllerBase"),
		),
		mcp.WithString("preset",
			mcp.Description("Named set of base types to add to 'bases' (see list_presets)"),
		),
		mcp.WithString("kinds",
			mcp.Description("Comma-separated declaration kinds to report: class, interface, struct, enum, record, record struct"),
		),
		mcp.WithBoolean("simple_names",
			mcp.Description("Let an undotted base name match the last segment of a qualified name (default: false)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: toon or json (default: toon)"),
		),
	)
}

// Handle processes the scan_types tool call.
func (t *ScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descriptor := req.GetString("descriptor", "")
	if descriptor == "" {
		return mcp.NewToolResultError("'descriptor' is required"), nil
	}

	targets := splitList(req.GetString("bases", ""))
	if name := req.GetString("preset", ""); name != "" {
		preset, ok := t.presets[name]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown preset %q (available: %s)",
				name, strings.Join(config.PresetNames(t.presets), ", "))), nil
		}
		targets = append(targets, preset...)
	}

	pred, err := scan.NewPredicate(targets, splitList(req.GetString("kinds", "")), boolArg(req, "simple_names", t.simpleNames))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if pred.Empty() {
		return mcp.NewToolResultError("no base types given: pass 'bases' or 'preset'"), nil
	}

	ws, scanner, err := t.workspaces.Get(ctx, descriptor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load workspace: %v", err)), nil
	}

	res, err := scanner.Scan(ctx, ws, req.GetString("project", ""), pred)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	text, err := output.Encode(res, req.GetString("format", t.format))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// PresetsTool handles the list_presets MCP tool.
type PresetsTool struct {
	presets map[string][]string
}

// NewPresetsTool creates a PresetsTool over a read-only catalog.
func NewPresetsTool(presets map[string][]string) *PresetsTool {
	return &PresetsTool{presets: presets}
}

// Definition returns the MCP tool definition for list_presets.
func (t *PresetsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_presets",
		mcp.WithDescription("List the named base-type sets accepted by scan_types' 'preset' parameter."),
	)
}

// Handle processes the list_presets tool call.
func (t *PresetsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(toon.EncodePresets(t.presets, config.PresetNames(t.presets))), nil
}

// scanDescription builds the scan_types description from the preset catalog.
func scanDescription(presets map[string][]string) string {
	var sb strings.Builder
	sb.WriteString("Find C# type declarations whose base types include, directly or through ")
	sb.WriteString("inheritance, any of the given base type names. Names are matched fully qualified ")
	sb.WriteString("for types declared in the workspace; types from outside it (framework or NuGet) ")
	sb.WriteString("match by the name written in source or by that name qualified with an enclosing ")
	sb.WriteString("namespace or a using directive. Results are sorted by project, file and position; ")
	sb.WriteString("files that failed to parse are listed under 'skipped'.")
	if names := config.PresetNames(presets); len(names) > 0 {
		sb.WriteString(" Presets: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
