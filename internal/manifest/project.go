package manifest

import (
	"encoding/xml"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ProjectFile holds the parts of an MSBuild project file the loader needs.
// Conditions on properties and items are not evaluated; the last
// unconditional-looking value wins.
type ProjectFile struct {
	Sdk string
	// DefaultItems is false for legacy (non-SDK) projects and when
	// EnableDefaultCompileItems is false.
	DefaultItems   bool
	ImplicitUsings bool
	CompileInclude []string
	CompileRemove  []string
	// References are referenced project files, relative to the workspace root.
	References []string
}

type projectXML struct {
	Sdk        string          `xml:"Sdk,attr"`
	SdkElems   []sdkXML        `xml:"Sdk"`
	Properties []propertyGroup `xml:"PropertyGroup"`
	Items      []itemGroup     `xml:"ItemGroup"`
}

type sdkXML struct {
	Name string `xml:"Name,attr"`
}

type propertyGroup struct {
	EnableDefaultCompileItems []string `xml:"EnableDefaultCompileItems"`
	EnableDefaultItems        []string `xml:"EnableDefaultItems"`
	ImplicitUsings            []string `xml:"ImplicitUsings"`
}

type itemGroup struct {
	Compile           []itemXML `xml:"Compile"`
	ProjectReferences []itemXML `xml:"ProjectReference"`
}

type itemXML struct {
	Include string `xml:"Include,attr"`
	Remove  string `xml:"Remove,attr"`
}

// ReadProject reads the project file rel, relative to root.
func ReadProject(root, rel string) (*ProjectFile, error) {
	rel = CleanPath(rel)
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, errors.Errorf("reading project file: %w", err)
	}
	return parseProject(data, path.Dir(rel))
}

func parseProject(data []byte, dir string) (*ProjectFile, error) {
	var doc projectXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Errorf("parsing project file: %w", err)
	}

	pf := &ProjectFile{Sdk: doc.Sdk}
	if pf.Sdk == "" && len(doc.SdkElems) > 0 {
		pf.Sdk = doc.SdkElems[0].Name
	}
	pf.DefaultItems = pf.Sdk != ""

	for _, pg := range doc.Properties {
		if v, ok := last(pg.EnableDefaultItems); ok && strings.EqualFold(v, "false") {
			pf.DefaultItems = false
		}
		if v, ok := last(pg.EnableDefaultCompileItems); ok {
			pf.DefaultItems = pf.Sdk != "" && !strings.EqualFold(v, "false")
		}
		if v, ok := last(pg.ImplicitUsings); ok {
			pf.ImplicitUsings = strings.EqualFold(v, "enable") || strings.EqualFold(v, "true")
		}
	}

	for _, ig := range doc.Items {
		for _, c := range ig.Compile {
			if c.Include != "" {
				pf.CompileInclude = append(pf.CompileInclude, c.Include)
			}
			if c.Remove != "" {
				pf.CompileRemove = append(pf.CompileRemove, c.Remove)
			}
		}
		for _, r := range ig.ProjectReferences {
			for _, inc := range strings.Split(r.Include, ";") {
				if inc = strings.TrimSpace(inc); inc != "" {
					pf.References = append(pf.References, JoinPath(dir, inc))
				}
			}
		}
	}
	return pf, nil
}

func last(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[len(values)-1]), true
}

// implicitUsings lists the global usings the .NET SDKs add when
// ImplicitUsings is enabled.
var implicitUsings = map[string][]string{
	"Microsoft.NET.Sdk": {
		"System",
		"System.Collections.Generic",
		"System.IO",
		"System.Linq",
		"System.Net.Http",
		"System.Threading",
		"System.Threading.Tasks",
	},
	"Microsoft.NET.Sdk.Web": {
		"System.Net.Http.Json",
		"Microsoft.AspNetCore.Builder",
		"Microsoft.AspNetCore.Hosting",
		"Microsoft.AspNetCore.Http",
		"Microsoft.AspNetCore.Routing",
		"Microsoft.Extensions.Configuration",
		"Microsoft.Extensions.DependencyInjection",
		"Microsoft.Extensions.Hosting",
		"Microsoft.Extensions.Logging",
	},
	"Microsoft.NET.Sdk.Worker": {
		"Microsoft.Extensions.Configuration",
		"Microsoft.Extensions.DependencyInjection",
		"Microsoft.Extensions.Hosting",
		"Microsoft.Extensions.Logging",
	},
}

// ImplicitUsingNamespaces returns the namespaces the project's SDK imports globally,
// or nil when implicit usings are off.
func (pf *ProjectFile) ImplicitUsingNamespaces() []string {
	if !pf.ImplicitUsings || pf.Sdk == "" {
		return nil
	}
	out := append([]string(nil), implicitUsings["Microsoft.NET.Sdk"]...)
	if pf.Sdk != "Microsoft.NET.Sdk" {
		out = append(out, implicitUsings[pf.Sdk]...)
	}
	return out
}
