package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverDefaultItems(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeTestFile(t, dir, "src/Api/Api.csproj", "<Project/>")
	writeTestFile(t, dir, "src/Api/Program.cs", "class Program {}")
	writeTestFile(t, dir, "src/Api/Controllers/Orders.cs", "class Orders {}")
	// Non-source file should be ignored
	writeTestFile(t, dir, "src/Api/readme.txt", "hello")
	// Hidden file should be ignored
	writeTestFile(t, dir, "src/Api/.hidden.cs", "class Hidden {}")

	entries, err := Files(dir, "src/Api", Options{DefaultItems: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	got := paths(entries)
	want := []string{"src/Api/Controllers/Orders.cs", "src/Api/Program.cs"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
	for _, e := range entries {
		if e.Language != "csharp" {
			t.Errorf("entry %q: language = %q, want csharp", e.Path, e.Language)
		}
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeTestFile(t, dir, "Lib/Lib.csproj", "<Project/>")
	writeTestFile(t, dir, "Lib/Thing.cs", "class Thing {}")
	writeTestFile(t, dir, "Lib/bin/Debug/Gen.cs", "class Gen {}")
	writeTestFile(t, dir, "Lib/obj/Debug/AssemblyInfo.cs", "class Info {}")
	writeTestFile(t, dir, "Lib/.vs/secret.cs", "class Secret {}")
	// A nested project owns its own files.
	writeTestFile(t, dir, "Lib/Tests/Tests.csproj", "<Project/>")
	writeTestFile(t, dir, "Lib/Tests/ThingTests.cs", "class ThingTests {}")

	entries, err := Files(dir, "Lib", Options{DefaultItems: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", paths(entries))
	}
	if entries[0].Path != "Lib/Thing.cs" {
		t.Errorf("expected Lib/Thing.cs, got %q", entries[0].Path)
	}
}

func TestDiscoverIncludeRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeTestFile(t, dir, "App/App.csproj", "<Project/>")
	writeTestFile(t, dir, "App/Keep.cs", "class Keep {}")
	writeTestFile(t, dir, "App/Legacy/Old.cs", "class Old {}")
	writeTestFile(t, dir, "App/Form.Designer.cs", "class Form {}")
	writeTestFile(t, dir, "Shared/Common.cs", "class Common {}")
	writeTestFile(t, dir, "Shared/Deep/More.cs", "class More {}")

	entries, err := Files(dir, "App", Options{
		DefaultItems: true,
		Remove:       []string{`Legacy\**;**/*.Designer.cs`},
		Include:      []string{`..\Shared\**\*.cs`},
	})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	got := paths(entries)
	want := []string{"App/Keep.cs", "Shared/Common.cs", "Shared/Deep/More.cs"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverExplicitItemsOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeTestFile(t, dir, "Old/Old.csproj", "<Project/>")
	writeTestFile(t, dir, "Old/A.cs", "class A {}")
	writeTestFile(t, dir, "Old/B.cs", "class B {}")

	entries, err := Files(dir, "Old", Options{Include: []string{"A.cs", "Missing.cs"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "Old/A.cs" {
		t.Errorf("expected [Old/A.cs], got %v", got)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, ".gitignore", "Generated/\n")
	writeTestFile(t, dir, "P/P.csproj", "<Project/>")
	writeTestFile(t, dir, "P/Real.cs", "class Real {}")
	writeTestFile(t, dir, "P/Generated/Proxy.cs", "class Proxy {}")
	writeTestFile(t, dir, "P/Scratch.cs", "class Scratch {}")

	gi := LoadIgnore(dir, true, []string{"Scratch.cs"})
	if gi == nil {
		t.Fatal("LoadIgnore returned nil")
	}

	entries, err := Files(dir, "P", Options{DefaultItems: true, Ignore: gi})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "P/Real.cs" {
		t.Errorf("expected [P/Real.cs], got %v", got)
	}

	if LoadIgnore(t.TempDir(), true, nil) != nil {
		t.Error("expected nil matcher without .gitignore or patterns")
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "P/real.cs", "class Real {}")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "P", "real.cs"), filepath.Join(dir, "P", "link.cs"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, "P", Options{DefaultItems: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "P/real.cs" {
		t.Errorf("expected P/real.cs, got %q", entries[0].Path)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := Files(t.TempDir(), "nope", Options{DefaultItems: true}); err == nil {
		t.Fatal("expected error for missing project directory")
	}
}
