package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/workspace"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// loadSingle writes files into one SDK project named App and loads it.
func loadSingle(t *testing.T, files map[string]string) *model.Workspace {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "App/App.csproj", `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
	for rel, src := range files {
		writeTestFile(t, dir, "App/"+rel, src)
	}
	ws, err := workspace.Load(context.Background(), dir, "App/App.csproj", workspace.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ws
}

// loadShop writes the Api/Lib solution.
func loadShop(t *testing.T) *model.Workspace {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "Shop.sln", `Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "Api", "Api\Api.csproj", "{00000000-0000-0000-0000-000000000001}"
EndProject
Project("{9A19103F-16F7-4668-BE54-9A1E7A4F7556}") = "Lib", "Lib\Lib.csproj", "{00000000-0000-0000-0000-000000000002}"
EndProject
`)
	writeTestFile(t, dir, "Api/Api.csproj", `<Project Sdk="Microsoft.NET.Sdk.Web"></Project>`)
	writeTestFile(t, dir, "Api/Orders.cs", "class Orders : ControllerBase { }\n")
	writeTestFile(t, dir, "Lib/Lib.csproj", `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
	writeTestFile(t, dir, "Lib/Util.cs", "static class Util { }\nclass Holder : System.Object { }\n")
	ws, err := workspace.Load(context.Background(), dir, "Shop.sln", workspace.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ws
}

func mustPredicate(t *testing.T, targets ...string) model.Predicate {
	t.Helper()
	p, err := NewPredicate(targets, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func matchNames(res *model.ScanResult) []string {
	var out []string
	for _, m := range res.Matches {
		out = append(out, m.FullName)
	}
	return out
}

func TestScanApiLibScenario(t *testing.T) {
	t.Parallel()
	ws := loadShop(t)

	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "ControllerBase"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("matches = %+v", res.Matches)
	}
	m := res.Matches[0]
	if m.Project != "Api" || m.Name != "Orders" || m.File != "Api/Orders.cs" || m.MatchedBase != "ControllerBase" {
		t.Errorf("match = %+v", m)
	}
	if m.Line != 1 || m.Column != 7 || m.Depth != 1 {
		t.Errorf("position = %d:%d depth %d", m.Line, m.Column, m.Depth)
	}
	if len(res.Skipped) != 0 || len(res.Warnings) != 0 {
		t.Errorf("diagnostics: skipped=%v warnings=%v", res.Skipped, res.Warnings)
	}
	if !reflect.DeepEqual(res.Projects, []string{"Api", "Lib"}) {
		t.Errorf("projects = %v", res.Projects)
	}
}

func TestScanTransitiveChain(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"A.cs": "class A : B { }\n",
		"B.cs": "class B : C { }\n",
		"C.cs": "class C { }\n",
	})

	res, err := New(Options{}).Scan(context.Background(), ws, "App", mustPredicate(t, "C"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := matchNames(res); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("matches = %v", got)
	}
	if res.Matches[0].Depth != 2 || res.Matches[1].Depth != 1 {
		t.Errorf("depths = %d, %d", res.Matches[0].Depth, res.Matches[1].Depth)
	}
}

func TestScanNoBasesNeverMatch(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Plain.cs": "class Plain { }\nstruct Point { }\nenum Color { Red }\n",
	})

	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "Plain", "Point", "Color", "System.Object"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Errorf("matches = %v", matchNames(res))
	}
}

func TestScanSameNamesInDifferentProjects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "X.slnx", `<Solution>
  <Project Path="One/One.csproj" />
  <Project Path="Two/Two.csproj" />
</Solution>`)
	writeTestFile(t, dir, "One/One.csproj", `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
	writeTestFile(t, dir, "One/Widget.cs", "namespace Shared;\nclass Widget : Base { }\n")
	writeTestFile(t, dir, "Two/Two.csproj", `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
	writeTestFile(t, dir, "Two/Widget.cs", "namespace Shared;\nclass Widget : Base { }\n")

	ws, err := workspace.Load(context.Background(), dir, "X.slnx", workspace.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "Base"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Matches) != 2 || res.Matches[0].Project != "One" || res.Matches[1].Project != "Two" {
		t.Errorf("matches = %+v", res.Matches)
	}
}

func TestScanCycle(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Cycle.cs": "class A : B { }\nclass B : A { }\n",
	})

	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "A"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := matchNames(res); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("matches = %v", got)
	}
	if !res.Matches[0].CyclicChainTruncated {
		t.Error("match should be flagged cyclic")
	}
	if len(res.Warnings) != 2 || res.Warnings[0].Name != "A" || res.Warnings[1].Name != "B" {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if w.Kind != model.CycleDiagnostic {
			t.Errorf("warning kind = %q", w.Kind)
		}
	}
}

func TestScanSkippedFiles(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Bad.cs":  "class Broken : ControllerBase {\n",
		"Dup1.cs": "class Dup : ControllerBase { }\n",
		"Dup2.cs": "class Dup : ControllerBase { }\n",
	})

	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "ControllerBase"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := matchNames(res); !reflect.DeepEqual(got, []string{"Dup"}) || res.Matches[0].File != "App/Dup1.cs" {
		t.Errorf("matches = %+v", res.Matches)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
	if res.Skipped[0].File != "App/Bad.cs" || res.Skipped[0].Kind != model.ParseDiagnostic {
		t.Errorf("skipped[0] = %+v", res.Skipped[0])
	}
	if res.Skipped[1].File != "App/Dup2.cs" || res.Skipped[1].Kind != model.BindDiagnostic {
		t.Errorf("skipped[1] = %+v", res.Skipped[1])
	}
}

func TestScanDeterministic(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[name+".cs"] = "namespace N;\ninterface I" + name + " : IBase { }\nclass C" + name + " : Base, I" + name + " { }\n"
	}
	files["base.cs"] = "namespace N;\ninterface IBase { }\nclass Base { }\n"
	ws := loadSingle(t, files)
	pred := mustPredicate(t, "N.IBase")

	var outputs []*model.ScanResult
	for _, n := range []int{1, 4, 16} {
		s := New(Options{Concurrency: n})
		for range 2 {
			res, err := s.Scan(context.Background(), ws, "", pred)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			outputs = append(outputs, res)
		}
	}
	if len(outputs[0].Matches) != 16 {
		t.Fatalf("matches = %v", matchNames(outputs[0]))
	}
	for i := 1; i < len(outputs); i++ {
		if !reflect.DeepEqual(outputs[0], outputs[i]) {
			t.Fatalf("output %d differs from output 0", i)
		}
	}
}

func TestScanRecordStructKind(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Types.cs": `namespace R {
record struct RS : IRoot { }
record RC : IRoot { }
}
`,
	})
	s := New(Options{})

	tests := []struct {
		kinds []string
		want  []string
	}{
		{[]string{"record struct"}, []string{"R.RS"}},
		{[]string{"record"}, []string{"R.RC"}},
		{nil, []string{"R.RS", "R.RC"}},
	}
	for _, tt := range tests {
		pred, err := NewPredicate([]string{"IRoot"}, tt.kinds, false)
		if err != nil {
			t.Fatal(err)
		}
		res, err := s.Scan(context.Background(), ws, "", pred)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if got := matchNames(res); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("kinds %v: matches = %v, want %v", tt.kinds, got, tt.want)
		}
	}
	res, _ := s.Scan(context.Background(), ws, "", mustPredicate(t, "IRoot"))
	if len(res.Matches) != 2 || res.Matches[0].Kind != model.RecordStruct {
		t.Errorf("record struct kind = %+v", res.Matches)
	}
}

func TestScanKindsAndSimpleNames(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Types.cs": `using Microsoft.AspNetCore.Mvc;
namespace Shop;
class Home : Controller { }
interface IHome : Controller { }
record Dto : Controller { }
`,
	})
	s := New(Options{})

	pred, err := NewPredicate([]string{"Microsoft.AspNetCore.Mvc.Controller"}, []string{"class", "record"}, false)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan(context.Background(), ws, "", pred)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := matchNames(res); !reflect.DeepEqual(got, []string{"Shop.Home", "Shop.Dto"}) {
		t.Errorf("kind-filtered matches = %v", got)
	}
	if res.Matches[0].MatchedBase != "Microsoft.AspNetCore.Mvc.Controller" {
		t.Errorf("matched base = %q", res.Matches[0].MatchedBase)
	}

	pred, err = NewPredicate([]string{"Mvc.Controller"}, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	res, err = s.Scan(context.Background(), ws, "", pred)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Errorf("dotted target must not use simple-name matching: %v", matchNames(res))
	}

	if _, err := NewPredicate([]string{"X"}, []string{"delegate"}, false); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestScanGenericTarget(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{
		"Repo.cs": "class Repository<T> { }\nclass Orders : Repository<Order> { }\nclass Order { }\n",
	})

	res, err := New(Options{}).Scan(context.Background(), ws, "", mustPredicate(t, "Repository<T>"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := matchNames(res); !reflect.DeepEqual(got, []string{"Orders"}) {
		t.Errorf("matches = %v", got)
	}
}

func TestScanErrors(t *testing.T) {
	t.Parallel()
	ws := loadShop(t)
	s := New(Options{})

	if _, err := s.Scan(context.Background(), ws, "", mustPredicate(t, " ", "")); !errors.Is(err, ErrEmptyPredicate) {
		t.Errorf("expected ErrEmptyPredicate, got %v", err)
	}

	_, err := s.Scan(context.Background(), ws, "Nope", mustPredicate(t, "X"))
	var nf *model.ProjectNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected ProjectNotFoundError, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Scan(ctx, ws, "", mustPredicate(t, "X")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScanReusesChains(t *testing.T) {
	t.Parallel()
	ws := loadSingle(t, map[string]string{"A.cs": "class A : B { }\nclass B { }\n"})
	s := New(Options{})

	if _, err := s.Scan(context.Background(), ws, "", mustPredicate(t, "B")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if s.chains.Len() != 2 {
		t.Errorf("cached chains = %d, want 2", s.chains.Len())
	}
}
