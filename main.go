// typescan lists the C# types in a solution that derive from given base types.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"

	"github.com/phobologic/typescan/internal/cache"
	"github.com/phobologic/typescan/internal/config"
	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/output"
	"github.com/phobologic/typescan/internal/scan"
	"github.com/phobologic/typescan/internal/server"
	"github.com/phobologic/typescan/internal/workspace"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// listFlag collects a repeatable flag whose values may also be comma-separated.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// options holds the parsed command line.
type options struct {
	root        string
	descriptor  string
	project     string
	bases       listFlag
	preset      string
	kinds       string
	simpleNames bool
	jobs        int
	maxFileSize string
	format      string
	configPath  string
	cachePath   string
	verbose     bool
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			return runServe(args[1:], stderr)
		case "init":
			return runInit(args[1:], stdout, stderr)
		}
	}

	fs := flag.NewFlagSet("typescan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		o           options
		showVersion bool
	)

	fs.StringVar(&o.root, "C", ".", "root directory; the descriptor is resolved relative to it")
	fs.StringVar(&o.project, "p", "", "scan only this project")
	fs.StringVar(&o.project, "project", "", "scan only this project")
	fs.Var(&o.bases, "b", "base type name (repeatable, comma-separated)")
	fs.Var(&o.bases, "base", "base type name (repeatable, comma-separated)")
	fs.StringVar(&o.preset, "preset", "", "add the base types of a named preset")
	fs.StringVar(&o.kinds, "kinds", "", "comma-separated declaration kinds to report")
	fs.BoolVar(&o.simpleNames, "simple-names", false, "let an undotted base name match the last segment of a qualified name")
	fs.IntVar(&o.jobs, "j", 0, "number of parallel workers (default GOMAXPROCS)")
	fs.IntVar(&o.jobs, "jobs", 0, "number of parallel workers (default GOMAXPROCS)")
	fs.StringVar(&o.maxFileSize, "max-file-size", "", "skip source files larger than this, e.g. 2MB (default 1MB)")
	fs.StringVar(&o.format, "format", "", "output format: toon or json (default toon)")
	fs.StringVar(&o.configPath, "config", "", "config file (default <root>/"+config.DefaultFile+" if present)")
	fs.StringVar(&o.cachePath, "cache", "", "cache results in this SQLite file")
	fs.BoolVar(&o.verbose, "v", false, "log progress to stderr")
	fs.BoolVar(&o.verbose, "verbose", false, "log progress to stderr")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: typescan [flags] [descriptor]
       typescan serve [flags]
       typescan init [flags] [path-to-CLAUDE.md]

List the C# type declarations that derive, directly or transitively, from any
of the given base types. descriptor is a .sln, .slnx or .csproj file; when
omitted, the single solution or project file in the root is used.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "typescan %s\n", version)
		return nil
	}
	if fs.NArg() > 1 {
		return errors.Errorf("expected one descriptor, got %d", fs.NArg())
	}
	if fs.NArg() == 1 {
		o.descriptor = fs.Arg(0)
	}

	// Interrupting stops the load and scan at the next file boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return scanCommand(ctx, o, stdout, stderr)
}

func scanCommand(ctx context.Context, o options, stdout, stderr io.Writer) error {
	root, err := filepath.Abs(o.root)
	if err != nil {
		return errors.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return errors.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return errors.Errorf("%s: not a directory", root)
	}

	cfg, err := loadConfig(root, o.configPath)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		level, _ = config.ParseLevel(cfg.LogLevel)
	}
	if o.verbose {
		level = slog.LevelDebug
	}
	ctx = slogctx.NewCtx(ctx, newLogger(stderr, level))

	descriptor, err := resolveDescriptor(root, o.descriptor)
	if err != nil {
		return err
	}

	targets := append([]string(nil), o.bases...)
	if o.preset != "" {
		catalog := cfg.Catalog()
		preset, ok := catalog[o.preset]
		if !ok {
			return errors.Errorf("unknown preset %q (available: %s)", o.preset, strings.Join(config.PresetNames(catalog), ", "))
		}
		targets = append(targets, preset...)
	}
	if len(targets) == 0 {
		return errors.New("no base types given: use -b or --preset")
	}

	kinds := cfg.Kinds
	if o.kinds != "" {
		var l listFlag
		_ = l.Set(o.kinds)
		kinds = l
	}
	simpleNames := o.simpleNames || cfg.SimpleNames

	pred, err := scan.NewPredicate(targets, kinds, simpleNames)
	if err != nil {
		return err
	}

	format := cfg.Format
	if o.format != "" {
		format = o.format
	}
	if format == "" {
		format = "toon"
	}

	loadOpts, err := loadOptions(o, cfg)
	if err != nil {
		return err
	}

	if o.cachePath == "" {
		text, err := scanWorkspace(ctx, root, descriptor, o.project, pred, format, loadOpts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, text)
		return nil
	}

	store, err := cache.Open(o.cachePath)
	if err != nil {
		return err
	}
	defer store.Close()

	key := cache.Key{
		Descriptor:  descriptor,
		Project:     o.project,
		Targets:     pred.Targets,
		Kinds:       kinds,
		SimpleNames: simpleNames,
		Format:      format,
		MaxFileSize: loadOpts.MaxFileSize,
		Version:     version,
	}
	inputs, err := workspace.Inputs(root, descriptor, loadOpts)
	if err != nil {
		return err
	}
	fp, err := cache.Fingerprint(root, key, inputs)
	if err != nil {
		return err
	}

	if data, ok, err := store.Get(ctx, key, fp); err != nil {
		slogctx.Warn(ctx, "reading cache", "path", o.cachePath, "err", err)
	} else if ok {
		slogctx.Debug(ctx, "cache hit", "path", o.cachePath)
		_, _ = fmt.Fprintln(stdout, string(data))
		return nil
	}

	text, err := scanWorkspace(ctx, root, descriptor, o.project, pred, format, loadOpts)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, fp, []byte(text)); err != nil {
		slogctx.Warn(ctx, "writing cache", "path", o.cachePath, "err", err)
	}
	_, _ = fmt.Fprintln(stdout, text)
	return nil
}

func scanWorkspace(ctx context.Context, root, descriptor, project string, pred model.Predicate, format string, opts workspace.Options) (string, error) {
	start := time.Now()

	ws, err := workspace.Load(ctx, root, descriptor, opts)
	if err != nil {
		return "", err
	}

	res, err := scan.New(scan.Options{Concurrency: opts.Concurrency}).Scan(ctx, ws, project, pred)
	if err != nil {
		return "", err
	}

	slogctx.Info(ctx, "scan complete",
		"projects", len(res.Projects),
		"matches", len(res.Matches),
		"skipped", len(res.Skipped),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return output.Encode(res, format)
}

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("typescan serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		root       string
		configPath string
		jobs       int
		verbose    bool
	)
	fs.StringVar(&root, "C", ".", "root directory; descriptors are resolved relative to it")
	fs.StringVar(&configPath, "config", "", "config file (default <root>/"+config.DefaultFile+" if present)")
	fs.IntVar(&jobs, "j", 0, "number of parallel workers (default GOMAXPROCS)")
	fs.BoolVar(&verbose, "v", false, "log requests to stderr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: typescan serve [flags]

Run an MCP server on stdin/stdout exposing the scan_types and list_presets
tools. Logs go to stderr.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return errors.Errorf("resolving root: %w", err)
	}
	cfg, err := loadConfig(root, configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, _ = config.ParseLevel(cfg.LogLevel)
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(stderr, level))

	loadOpts, err := loadOptions(options{jobs: jobs}, cfg)
	if err != nil {
		return err
	}

	s := server.New(server.Options{
		Root:        root,
		Version:     version,
		Load:        loadOpts,
		Presets:     cfg.Catalog(),
		SimpleNames: cfg.SimpleNames,
		Format:      cfg.Format,
	})
	return server.Serve(s)
}

// newLogger writes colored records to w; attributes stored in the context
// with slogctx.With are added to every record.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogctx.NewHandler(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}), nil))
}

func loadConfig(root, path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault(root)
}

// loadOptions merges flags over the config file.
func loadOptions(o options, cfg *config.Config) (workspace.Options, error) {
	opts := workspace.Options{
		Concurrency:      cfg.Concurrency,
		MaxFileSize:      int64(cfg.MaxFileSize),
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.RespectGitignore(),
	}
	if o.jobs < 0 {
		return opts, errors.Errorf("jobs must not be negative, got %d", o.jobs)
	}
	if o.jobs > 0 {
		opts.Concurrency = o.jobs
	}
	if o.maxFileSize != "" {
		n, err := humanize.ParseBytes(o.maxFileSize)
		if err != nil {
			return opts, errors.Errorf("invalid max file size %q: %w", o.maxFileSize, err)
		}
		opts.MaxFileSize = int64(n)
	}
	return opts, nil
}

// resolveDescriptor returns descriptor relative to root. An empty descriptor
// selects the only solution in root, or failing that the only project.
func resolveDescriptor(root, descriptor string) (string, error) {
	if descriptor != "" {
		if !filepath.IsAbs(descriptor) {
			return filepath.ToSlash(descriptor), nil
		}
		rel, err := filepath.Rel(root, descriptor)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", errors.Errorf("descriptor %s is outside root %s", descriptor, root)
		}
		return filepath.ToSlash(rel), nil
	}

	for _, patterns := range [][]string{{"*.sln", "*.slnx"}, {"*.csproj"}} {
		var found []string
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				return "", errors.WithStack(err)
			}
			for _, m := range matches {
				found = append(found, filepath.Base(m))
			}
		}
		sort.Strings(found)
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return "", errors.Errorf("several descriptors in %s (%s): pass one explicitly", root, strings.Join(found, ", "))
		}
	}
	return "", errors.Errorf("no .sln, .slnx or .csproj file in %s", root)
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-C": true, "--C": true,
	"-p": true, "--p": true,
	"-project": true, "--project": true,
	"-b": true, "--b": true,
	"-base": true, "--base": true,
	"-preset": true, "--preset": true,
	"-kinds": true, "--kinds": true,
	"-j": true, "--j": true,
	"-jobs": true, "--jobs": true,
	"-max-file-size": true, "--max-file-size": true,
	"-format": true, "--format": true,
	"-config": true, "--config": true,
	"-cache": true, "--cache": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
