package toon

import (
	"strings"
	"testing"

	"github.com/phobologic/typescan/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"true keyword", "true", `"true"`},
		{"True keyword", "True", `"True"`},
		{"false keyword", "false", `"false"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"leading zero invalid", "01", "01"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "a[b", `"a[b"`},
		{"brace", "a{b", `"a{b"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"path", "src/Api/Orders.cs", "src/Api/Orders.cs"},
		{"dotted name", "Shop.Api.Orders", "Shop.Api.Orders"},
		{"generic arity", "Repository`1", "Repository`1"},
		{"kind with space", "record struct", "record struct"},
		{"reason no special", "syntax error at 3 (line)", "syntax error at 3 (line)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	res := &model.ScanResult{
		Workspace: "Shop.sln",
		Projects:  []string{"Lib", "Api"},
		Targets:   []string{"ControllerBase"},
		Matches: []model.Match{
			{
				Project:     "Api",
				File:        "src/Api/Orders.cs",
				Name:        "Orders",
				FullName:    "Shop.Api.Orders",
				Kind:        model.Class,
				Line:        5,
				Column:      14,
				MatchedBase: "ControllerBase",
				Depth:       1,
			},
		},
		Skipped: []model.Diagnostic{
			{Project: "Lib", File: "src/Lib/Bad.cs", Kind: model.ParseDiagnostic, Reason: "syntax error at 1:17"},
		},
	}

	got := Encode(res)
	want := []string{
		"workspace: Shop.sln",
		"projects[2]: Lib,Api",
		"targets[1]: ControllerBase",
		"matches[1]{project,file,name,kind,line,column,base,depth,cyclic}:",
		"  Api,src/Api/Orders.cs,Shop.Api.Orders,class,5,14,ControllerBase,1,false",
		"skipped[1]{project,file,kind,reason}:",
		`  Lib,src/Lib/Bad.cs,parse,"syntax error at 1:17"`,
	}
	lines := strings.Split(got, "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEncodeWarnings(t *testing.T) {
	t.Parallel()

	res := &model.ScanResult{
		Workspace: "App.csproj",
		Projects:  []string{"App"},
		Targets:   []string{"A"},
		Matches: []model.Match{
			{Project: "App", File: "Cycle.cs", Name: "B", FullName: "B", Kind: model.Class, Line: 2, Column: 7, MatchedBase: "A", Depth: 1, CyclicChainTruncated: true},
		},
		Warnings: []model.Diagnostic{
			{Project: "App", File: "Cycle.cs", Name: "A", Kind: model.CycleDiagnostic, Reason: "inheritance cycle"},
		},
	}

	got := Encode(res)
	if !strings.Contains(got, "  App,Cycle.cs,B,class,2,7,A,1,true") {
		t.Errorf("missing cyclic match row:\n%s", got)
	}
	if !strings.Contains(got, "warnings[1]{project,file,name,reason}:\n  App,Cycle.cs,A,inheritance cycle") {
		t.Errorf("missing warnings section:\n%s", got)
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(&model.ScanResult{Workspace: "empty.sln"})
	for _, section := range []string{
		"projects[0]:",
		"targets[0]:",
		"matches[0]{project,file,name,kind,line,column,base,depth,cyclic}:",
		"skipped[0]{project,file,kind,reason}:",
	} {
		if !strings.Contains(got, section) {
			t.Errorf("expected %q, got:\n%s", section, got)
		}
	}
	if strings.Contains(got, "warnings") {
		t.Errorf("warnings section should be omitted when empty:\n%s", got)
	}
}

func TestEncodePresets(t *testing.T) {
	t.Parallel()

	presets := map[string][]string{
		"mvc": {"Microsoft.AspNetCore.Mvc.Controller", "Microsoft.AspNetCore.Mvc.ControllerBase"},
	}
	got := EncodePresets(presets, []string{"mvc"})
	want := "presets[1]{name,targets}:\n  mvc,Microsoft.AspNetCore.Mvc.Controller Microsoft.AspNetCore.Mvc.ControllerBase"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
