package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileUnsupportedType(t *testing.T) {
	path := writeFile(t, t.TempDir(), "image.png", "not really an image")
	segments, err := LoadFile(path, Options{})
	if err != nil {
		t.Fatalf("unsupported type must not error: %v", err)
	}
	if segments != nil {
		t.Fatalf("unsupported type must yield no segments, got %d", len(segments))
	}
}

func TestLoadTextSingleSegment(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "  The sky is blue.  ")
	segments, err := LoadFile(path, Options{MaxChunkSize: 4000})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Content != "The sky is blue." {
		t.Fatalf("content not trimmed: %q", segments[0].Content)
	}
	if segments[0].Metadata["filename"] != "notes.txt" {
		t.Fatalf("missing filename metadata: %+v", segments[0].Metadata)
	}
	if segments[0].Metadata["source"] != path {
		t.Fatalf("missing source metadata: %+v", segments[0].Metadata)
	}
}

func TestLoadTextEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.txt", "   \n  ")
	segments, err := LoadFile(path, Options{MaxChunkSize: 4000})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("empty file should yield no segments, got %d", len(segments))
	}
}

func TestLoadTextChunksLargeFile(t *testing.T) {
	para := strings.Repeat("word ", 40) // ~200 bytes
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 10))
	path := writeFile(t, t.TempDir(), "big.md", text)

	segments, err := LoadFile(path, Options{MaxChunkSize: 500, ChunkOverlap: 50, MinChunkSize: 100})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("large file should chunk, got %d segments", len(segments))
	}
	for i, seg := range segments {
		if seg.Metadata["chunk"] != i {
			t.Fatalf("segment %d has chunk metadata %v", i, seg.Metadata["chunk"])
		}
	}
}

func TestLoadTextDeterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 100)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", text)

	first, err := LoadFile(path, Options{MaxChunkSize: 300, ChunkOverlap: 40, MinChunkSize: 50})
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := LoadFile(path, Options{MaxChunkSize: 300, ChunkOverlap: 40, MinChunkSize: 50})
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content != second[i].Content {
			t.Fatalf("chunk %d differs between loads", i)
		}
	}
}

func TestLoadCSVRows(t *testing.T) {
	csv := "name,color\nsky,blue\ngrass,green\n"
	path := writeFile(t, t.TempDir(), "facts.csv", csv)

	segments, err := LoadFile(path, Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 row segments, got %d", len(segments))
	}
	if !strings.Contains(segments[0].Content, "name: sky") || !strings.Contains(segments[0].Content, "color: blue") {
		t.Fatalf("row not rendered with headers: %q", segments[0].Content)
	}
	if segments[0].Metadata["row"] != 1 || segments[1].Metadata["row"] != 2 {
		t.Fatalf("row metadata wrong: %+v %+v", segments[0].Metadata, segments[1].Metadata)
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.csv", "name,color\n")
	segments, err := LoadFile(path, Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("header-only csv should yield no segments, got %d", len(segments))
	}
}

func TestSplitTextRespectsMaxSize(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat(strings.Repeat("x ", 50)+"\n\n", 20))
	chunks := splitText(text, 400, 50, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		// Overlap plus one oversized paragraph can nudge past maxSize, but
		// never by more than one paragraph.
		if len(c) > 600 {
			t.Fatalf("chunk %d is far over budget: %d bytes", i, len(c))
		}
	}
}

func TestSplitLongParagraphWordBoundaries(t *testing.T) {
	paragraph := strings.TrimSpace(strings.Repeat("abcdef ", 100))
	pieces := splitLongParagraph(paragraph, 100)
	if len(pieces) < 2 {
		t.Fatalf("expected a hard split, got %d pieces", len(pieces))
	}
	for i, p := range pieces {
		if strings.HasPrefix(p, " ") || strings.HasSuffix(p, " ") {
			t.Fatalf("piece %d not trimmed: %q", i, p)
		}
		if len(p) > 100 {
			t.Fatalf("piece %d over budget: %d", i, len(p))
		}
	}
	if strings.Join(pieces, " ") != paragraph {
		t.Fatal("pieces do not reassemble the paragraph")
	}
}

func TestOverlapTail(t *testing.T) {
	if got := overlapTail("short", 50); got != "short" {
		t.Fatalf("small text should return whole: %q", got)
	}
	got := overlapTail("one two three four five", 10)
	if got == "" || len(got) > 10 {
		t.Fatalf("tail out of bounds: %q", got)
	}
	if strings.HasPrefix(got, " ") {
		t.Fatalf("tail starts mid-boundary: %q", got)
	}
}
