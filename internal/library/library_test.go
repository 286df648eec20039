package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildRelativePathDefaultTemplate(t *testing.T) {
	got := BuildRelativePath("", Vars{Designer: "Acme", Channel: "C1", Title: "Dragon v2"})
	want := filepath.Join("Acme", "C1", "Dragon v2")
	if got != want {
		t.Fatalf("BuildRelativePath() = %q, want %q", got, want)
	}
}

func TestBuildRelativePathSanitisesReservedChars(t *testing.T) {
	got := BuildRelativePath("", Vars{Designer: "Acme/Evil", Channel: "C1", Title: "Weird: Title?"})
	want := filepath.Join("Acme_Evil", "C1", "Weird_ Title_")
	if got != want {
		t.Fatalf("BuildRelativePath() = %q, want %q", got, want)
	}
}

func TestBuildRelativePathDefaultsMissingDesignerAndTitle(t *testing.T) {
	got := BuildRelativePath("", Vars{Channel: "C1"})
	want := filepath.Join("Unknown", "C1", "Untitled")
	if got != want {
		t.Fatalf("BuildRelativePath() = %q, want %q", got, want)
	}
}

func TestBuildRelativePathDateVariable(t *testing.T) {
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	got := BuildRelativePath("{title}/{date}", Vars{Title: "Dragon", Date: date})
	want := filepath.Join("Dragon", "2026-01-02")
	if got != want {
		t.Fatalf("BuildRelativePath() = %q, want %q", got, want)
	}
}

func TestResolveConflictAppendsSuffixWhenTaken(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Acme", "Dragon"), 0o755); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}

	got, err := ResolveConflict(root, filepath.Join("Acme", "Dragon"))
	if err != nil {
		t.Fatalf("ResolveConflict error: %v", err)
	}
	want := filepath.Join("Acme", "Dragon (2)")
	if got != want {
		t.Fatalf("ResolveConflict() = %q, want %q", got, want)
	}
}

func TestResolveConflictReturnsUnsuffixedWhenFree(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveConflict(root, filepath.Join("Acme", "Dragon"))
	if err != nil {
		t.Fatalf("ResolveConflict error: %v", err)
	}
	if got != filepath.Join("Acme", "Dragon") {
		t.Fatalf("ResolveConflict() = %q, want unsuffixed path", got)
	}
}

func TestMoveFileAcrossRenameAndFallback(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.stl")
	if err := os.WriteFile(src, []byte("geometry"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	dst := filepath.Join(root, "nested", "dst.stl")

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile error: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone after move")
	}
	content, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile dst: %v", err)
	}
	if string(content) != "geometry" {
		t.Fatalf("unexpected dst content %q", content)
	}
}

func TestRemoveEmptyDirsStopsAtNonEmptyOrBoundary(t *testing.T) {
	root := t.TempDir()
	leaf := filepath.Join(root, "design-id", "a", "b")
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}
	sibling := filepath.Join(root, "design-id", "sibling.txt")
	if err := os.WriteFile(sibling, []byte("x"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	RemoveEmptyDirs(leaf, root)

	if _, err := os.Stat(filepath.Join(root, "design-id", "a")); !os.IsNotExist(err) {
		t.Fatalf("expected empty intermediate dirs to be removed")
	}
	if _, err := os.Stat(filepath.Join(root, "design-id")); err != nil {
		t.Fatalf("expected non-empty design dir to survive, got %v", err)
	}
}
