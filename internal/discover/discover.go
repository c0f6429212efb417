// Package discover finds the source files that belong to a project.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"gitlab.com/tozd/go/errors"

	"github.com/phobologic/typescan/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to the workspace root, forward slashes
	Language string
}

// Options mirrors the compile item settings of a project file.
type Options struct {
	// DefaultItems includes every source file under the project directory,
	// the way SDK-style projects do unless EnableDefaultCompileItems is false.
	DefaultItems bool
	// Include and Remove are Compile item patterns relative to the project directory.
	Include []string
	Remove  []string
	// Ignore filters workspace-relative paths (.gitignore plus configured excludes).
	Ignore *ignore.GitIgnore
}

var skipDirs = map[string]struct{}{
	"bin":          {},
	"obj":          {},
	"node_modules": {},
	"packages":     {},
	"TestResults":  {},
}

// Files discovers the source files of the project in projectDir.
// projectDir is relative to root; the returned paths are relative to root
// and sorted.
func Files(root, projectDir string, opts Options) ([]FileEntry, error) {
	absDir := filepath.Join(root, filepath.FromSlash(projectDir))
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, errors.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s: not a directory", projectDir)
	}

	var remove *ignore.GitIgnore
	if len(opts.Remove) > 0 {
		remove = ignore.CompileIgnoreLines(normalizePatterns(opts.Remove)...)
	}

	found := make(map[string]string)
	keep := func(abs string) {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if opts.Ignore != nil && opts.Ignore.MatchesPath(rel) {
			return
		}
		if remove != nil {
			if projRel, err := filepath.Rel(absDir, abs); err == nil && remove.MatchesPath(filepath.ToSlash(projRel)) {
				return
			}
		}
		langName := lang.ForExtension(filepath.Ext(abs))
		if langName == "" {
			return
		}
		found[rel] = langName
	}

	if opts.DefaultItems {
		if err := walkSources(absDir, true, func(abs, _ string) { keep(abs) }); err != nil {
			return nil, err
		}
	}

	for _, pattern := range normalizePatterns(opts.Include) {
		if err := expandInclude(absDir, pattern, keep); err != nil {
			return nil, err
		}
	}

	results := make([]FileEntry, 0, len(found))
	for path, langName := range found {
		results = append(results, FileEntry{Path: path, Language: langName})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, nil
}

// walkSources calls fn for every regular, non-hidden file below dir. When
// ownProject is set, directories holding another project file are skipped
// because that project owns their files.
func walkSources(dir string, ownProject bool, fn func(abs, rel string)) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == dir {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if ownProject && containsProjectFile(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		fn(path, filepath.ToSlash(rel))
		return nil
	})
}

func containsProjectFile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csproj") {
			return true
		}
	}
	return false
}

// expandInclude resolves one Compile Include pattern. Plain paths name a
// single file; patterns with wildcards are matched below their longest
// wildcard-free directory prefix using gitignore-style globbing.
func expandInclude(projectDir, pattern string, keep func(abs string)) error {
	if !strings.ContainsAny(pattern, "*?[") {
		abs := filepath.Join(projectDir, filepath.FromSlash(pattern))
		if fi, err := os.Stat(abs); err == nil && fi.Mode().IsRegular() {
			keep(abs)
		}
		return nil
	}

	segments := strings.Split(pattern, "/")
	var prefix []string
	for _, seg := range segments {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		prefix = append(prefix, seg)
	}
	rest := strings.Join(segments[len(prefix):], "/")
	base := filepath.Join(projectDir, filepath.FromSlash(strings.Join(prefix, "/")))
	if fi, err := os.Stat(base); err != nil || !fi.IsDir() {
		return nil
	}

	matcher := ignore.CompileIgnoreLines("/" + rest)
	return walkSources(base, false, func(abs, rel string) {
		if matcher.MatchesPath(rel) {
			keep(abs)
		}
	})
}

// normalizePatterns converts MSBuild item values (semicolon separated,
// backslash paths) into slash-separated patterns.
func normalizePatterns(items []string) []string {
	var out []string
	for _, item := range items {
		for _, p := range strings.Split(item, ";") {
			p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
			p = strings.TrimPrefix(p, "./")
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// LoadIgnore compiles the workspace .gitignore (if present) together with
// extra gitignore-style patterns. It returns nil when there is nothing to ignore.
func LoadIgnore(root string, respectGitignore bool, extra []string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	if respectGitignore {
		if _, err := os.Stat(path); err == nil {
			gi, err := ignore.CompileIgnoreFileAndLines(path, extra...)
			if err == nil {
				return gi
			}
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(extra...)
}
