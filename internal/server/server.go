// Package server exposes scans as MCP tools over stdio.
//
// This is the composition root: it builds the tools and injects their
// dependencies. No scanning logic lives here.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/phobologic/typescan/internal/config"
	"github.com/phobologic/typescan/internal/workspace"
)

// Options configure the MCP server.
type Options struct {
	Root    string
	Version string
	Load    workspace.Options
	// Presets is the read-only catalog offered to scan_types.
	Presets     map[string][]string
	SimpleNames bool
	Format      string
}

// New creates the MCP server with every tool registered.
func New(opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"typescan",
		opts.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions(opts.Presets)),
	)

	workspaces := NewWorkspaces(opts.Root, opts.Load)

	scanTool := NewScanTool(workspaces, opts.Presets, opts.SimpleNames, opts.Format)
	s.AddTool(scanTool.Definition(), scanTool.Handle)

	presetsTool := NewPresetsTool(opts.Presets)
	s.AddTool(presetsTool.Definition(), presetsTool.Handle)

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func serverInstructions(presets map[string][]string) string {
	msg := "typescan answers \"which types derive from X?\" for C# solutions. " +
		"Call scan_types with a solution or project path and one or more base type names; " +
		"prefer fully qualified names (Microsoft.AspNetCore.Mvc.ControllerBase)."
	if len(presets) > 0 {
		msg += " Call list_presets to see predefined base type sets such as " + config.PresetNames(presets)[0] + "."
	}
	return msg
}
