package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSHA256ReaderKnownVector(t *testing.T) {
	// sha256("") == e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
	got, err := SHA256Reader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("SHA256Reader error: %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("SHA256Reader empty input = %s, want %s", got, want)
	}
}

func TestSHA256ReaderCrossesMultipleChunks(t *testing.T) {
	data := strings.Repeat("a", ChunkSize*3+17)
	got, err := SHA256Reader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("SHA256Reader error: %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(got))
	}
}

func TestSHA256FileMatchesReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	content := strings.Repeat("dragon-bust", 4096)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("os.WriteFile error: %v", err)
	}

	fromFile, err := SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File error: %v", err)
	}
	fromReader, err := SHA256Reader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("SHA256Reader error: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("SHA256File = %s, want %s", fromFile, fromReader)
	}
}
