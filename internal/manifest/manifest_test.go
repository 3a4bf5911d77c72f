package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReadMissingManifest(t *testing.T) {
	entries := Read(t.TempDir())
	if entries == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(entries))
	}
}

func TestReadCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "{not json")
	if entries := Read(dir); len(entries) != 0 {
		t.Fatalf("corrupt manifest should read as empty, got %d entries", len(entries))
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := map[string]Entry{
		"a.txt": {Size: 3, MtimeNS: 12345, Hash: "abc"},
	}
	if err := Write(dir, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := Read(dir)
	if len(got) != 1 || got["a.txt"] != want["a.txt"] {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// No temp files should survive the rename.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != FileName {
			t.Fatalf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestComputeNewFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	d := Compute(dir, []string{"a.txt"}, map[string]Entry{})
	if len(d.ToProcess) != 1 || d.ToProcess[0] != "a.txt" {
		t.Fatalf("expected a.txt to process, got %v", d.ToProcess)
	}
	if _, ok := d.Next["a.txt"]; !ok {
		t.Fatal("staged manifest missing new entry")
	}
	if d.PassiveUpdate {
		t.Fatal("new file should not be a passive update")
	}
}

func TestComputeUnchangedFileSkipsRead(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	first := Compute(dir, []string{"a.txt"}, map[string]Entry{})

	second := Compute(dir, []string{"a.txt"}, first.Next)
	if len(second.ToProcess) != 0 {
		t.Fatalf("unchanged file re-processed: %v", second.ToProcess)
	}
	if second.PassiveUpdate {
		t.Fatal("unchanged file triggered passive update")
	}
}

func TestComputeTouchedIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	first := Compute(dir, []string{"a.txt"}, map[string]Entry{})

	// Bump mtime without changing content.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(filepath.Join(dir, "a.txt"), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second := Compute(dir, []string{"a.txt"}, first.Next)
	if len(second.ToProcess) != 0 {
		t.Fatalf("identical content re-processed: %v", second.ToProcess)
	}
	if !second.PassiveUpdate {
		t.Fatal("expected passive update for refreshed stat fields")
	}
	if second.Next["a.txt"].MtimeNS == first.Next["a.txt"].MtimeNS {
		t.Fatal("staged entry should carry the new mtime")
	}
}

func TestComputeChangedContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	first := Compute(dir, []string{"a.txt"}, map[string]Entry{})

	writeFile(t, dir, "a.txt", "hello world")
	second := Compute(dir, []string{"a.txt"}, first.Next)
	if len(second.ToProcess) != 1 {
		t.Fatalf("changed file not re-processed: %v", second.ToProcess)
	}
	if second.Next["a.txt"].Hash == first.Next["a.txt"].Hash {
		t.Fatal("staged hash should change with content")
	}
}

func TestComputeSkipsSidecars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "crawl-1.txt", "page text")
	writeFile(t, dir, "crawl-1.txt.meta.json", `{"originalUrl":"https://example.com"}`)

	d := Compute(dir, []string{"crawl-1.txt", "crawl-1.txt.meta.json"}, map[string]Entry{})
	if len(d.ToProcess) != 1 || d.ToProcess[0] != "crawl-1.txt" {
		t.Fatalf("sidecar should be skipped, got %v", d.ToProcess)
	}
}

func TestComputeMissingFileSkipped(t *testing.T) {
	dir := t.TempDir()
	d := Compute(dir, []string{"gone.txt"}, map[string]Entry{})
	if len(d.ToProcess) != 0 {
		t.Fatalf("missing file should be skipped, got %v", d.ToProcess)
	}
}
