// Package manifest reads workspace descriptors (.sln, .slnx) and MSBuild
// project files (.csproj).
package manifest

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// solutionFolderType is the project type GUID Visual Studio uses for
// solution folders, which hold no code.
const solutionFolderType = "2150E333-8FDC-42A3-9474-1A3956D46DE8"

var slnProjectRe = regexp.MustCompile(`^Project\("\{([^}]*)\}"\)\s*=\s*"([^"]*)"\s*,\s*"([^"]*)"\s*,\s*"\{[^}]*\}"\s*$`)

// ErrUnsupportedDescriptor is returned for descriptor files that are neither
// solutions nor C# project files.
var ErrUnsupportedDescriptor = errors.Base("unsupported workspace descriptor")

// ProjectEntry is a project listed in a workspace descriptor.
type ProjectEntry struct {
	Name string
	Path string // project file, relative to the workspace root, forward slashes
}

// Solution is a parsed workspace descriptor.
type Solution struct {
	Path     string // relative to the workspace root
	Projects []ProjectEntry
}

// ReadSolution reads the descriptor rel (relative to root). A .csproj
// descriptor yields a solution holding just that project.
func ReadSolution(root, rel string) (*Solution, error) {
	rel = CleanPath(rel)
	abs := filepath.Join(root, filepath.FromSlash(rel))
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Errorf("reading descriptor: %w", err)
	}

	dir := path.Dir(rel)
	var entries []ProjectEntry
	switch strings.ToLower(path.Ext(rel)) {
	case ".sln":
		entries, err = parseSln(data, dir)
	case ".slnx":
		entries, err = parseSlnx(data, dir)
	case ".csproj":
		entries = []ProjectEntry{{Name: ProjectName(rel), Path: rel}}
	default:
		return nil, errors.Errorf("%s: %w", rel, ErrUnsupportedDescriptor)
	}
	if err != nil {
		return nil, err
	}
	return &Solution{Path: rel, Projects: entries}, nil
}

func parseSln(data []byte, dir string) ([]ProjectEntry, error) {
	var entries []ProjectEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if !strings.HasPrefix(line, "Project(") {
			continue
		}
		m := slnProjectRe.FindStringSubmatch(line)
		if m == nil {
			return nil, errors.Errorf("line %d: malformed project entry %q", lineNo, line)
		}
		typeGUID, name, projPath := m[1], m[2], m[3]
		if strings.EqualFold(typeGUID, solutionFolderType) {
			continue
		}
		if !strings.EqualFold(path.Ext(CleanPath(projPath)), ".csproj") {
			continue
		}
		if name == "" {
			return nil, errors.Errorf("line %d: project entry without a name", lineNo)
		}
		entries = append(entries, ProjectEntry{Name: name, Path: JoinPath(dir, projPath)})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Errorf("reading solution: %w", err)
	}
	return entries, nil
}

type slnxFolder struct {
	Projects []slnxProject `xml:"Project"`
	Folders  []slnxFolder  `xml:"Folder"`
}

type slnxProject struct {
	Path string `xml:"Path,attr"`
	Name string `xml:"Name,attr"`
}

func parseSlnx(data []byte, dir string) ([]ProjectEntry, error) {
	var doc slnxFolder
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Errorf("parsing solution: %w", err)
	}

	var entries []ProjectEntry
	var walk func(f slnxFolder) error
	walk = func(f slnxFolder) error {
		for _, p := range f.Projects {
			if p.Path == "" {
				return errors.New("project entry without a Path attribute")
			}
			rel := JoinPath(dir, p.Path)
			if !strings.EqualFold(path.Ext(rel), ".csproj") {
				continue
			}
			name := p.Name
			if name == "" {
				name = ProjectName(rel)
			}
			entries = append(entries, ProjectEntry{Name: name, Path: rel})
		}
		for _, sub := range f.Folders {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return nil, err
	}
	return entries, nil
}

// ProjectName derives a project name from its file name.
func ProjectName(projectPath string) string {
	base := path.Base(CleanPath(projectPath))
	return strings.TrimSuffix(base, path.Ext(base))
}

// CleanPath converts an MSBuild path (backslashes allowed) to a clean
// slash-separated path.
func CleanPath(p string) string {
	return path.Clean(strings.ReplaceAll(strings.TrimSpace(p), `\`, "/"))
}

// JoinPath resolves an MSBuild path relative to dir.
func JoinPath(dir, p string) string {
	p = CleanPath(p)
	if path.IsAbs(p) || dir == "" || dir == "." {
		return p
	}
	return path.Join(dir, p)
}
