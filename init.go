package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/phobologic/typescan/internal/config"
)

const (
	sentinelStart = "<!-- typescan:start -->"
	sentinelEnd   = "<!-- typescan:end -->"
)

// runInit implements the `typescan init` subcommand, which writes (or updates)
// a typescan usage section in an agent instructions file.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("typescan init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: typescan init [flags] [path-to-CLAUDE.md]

Write a typescan usage section to a CLAUDE.md file. The section is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path-to-CLAUDE.md defaults to ./CLAUDE.md.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	section := generateSection(config.BuiltinPresets())

	if dryRun && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := "CLAUDE.md"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return errors.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote typescan section to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped typescan documentation block,
// listing the given presets.
func generateSection(presets map[string][]string) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(sentinelStart)
	line("## typescan: derived type search for C#")
	line("")
	line("Run `typescan` via the Bash tool to find every class, record, struct or")
	line("interface that derives from a base type, directly or through a chain of")
	line("bases. It reads the solution and project files itself, so prefer it to")
	line("grepping for `: ControllerBase` and friends.")
	line("")
	line("**Availability:** Check with `typescan --version` first; skip gracefully if")
	line("not found.")
	line("")
	line("**Run it:**")
	line("```bash")
	line("typescan -b Microsoft.AspNetCore.Mvc.ControllerBase Shop.sln")
	line("typescan --preset aspnet-controllers            # single .sln in the current directory")
	line("typescan -b IRepository -p Shop.Data Shop.sln   # one project only")
	line("typescan -b ControllerBase --format json Shop.sln")
	line("typescan --cache .typescan-cache.db -b IHandler Shop.sln")
	line("```")
	line("")
	if names := config.PresetNames(presets); len(names) > 0 {
		line("**Presets:**")
		for _, name := range names {
			fmt.Fprintf(&b, "- `%s`: %s\n", name, strings.Join(presets[name], ", "))
		}
		line("")
	}
	line("**All flags:** `typescan --help`")
	line("")
	line("**Reading the output:**")
	line("")
	line("1. `matches` lists one row per declaration, sorted by project, file and")
	line("   position. `base` is the name that matched and `depth` how far up the")
	line("   chain it sits (1 means a direct base).")
	line("")
	line("2. Base names are matched fully qualified for types declared in the")
	line("   solution. Framework types match by the name written in source or that")
	line("   name qualified by a using directive, so pass qualified names.")
	line("")
	line("3. `skipped` lists files that could not be parsed or bound. Their types")
	line("   are missing from `matches`; read them directly if they matter.")
	b.WriteString(sentinelEnd)

	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
