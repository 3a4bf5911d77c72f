package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ingestloom-backend/internal/config"
	"ingestloom-backend/internal/storage"
	"ingestloom-backend/internal/vectorstore"
)

type fakeEmbedder struct {
	queryCalls int
	docCalls   int
	docsSeen   int
	fail       bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queryCalls++
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.docCalls++
	f.docsSeen += len(texts)
	if f.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// flakyStore fails the first N upserts, then delegates to the wrapped store.
type flakyStore struct {
	*vectorstore.Memory
	failures int
}

func (s *flakyStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("upsert unavailable")
	}
	return s.Memory.Upsert(ctx, points)
}

func testConfig() *config.Config {
	return &config.Config{
		EmbeddingsProvider: "openai",
		OpenAIAPIKey:       "test-key",
		MaxChunkSize:       4000,
		ChunkOverlap:       200,
		MinChunkSize:       100,
	}
}

func newTestIndexer(t *testing.T, cfg *config.Config) (*Indexer, *fakeEmbedder, *vectorstore.Memory, string) {
	t.Helper()
	baseDir := t.TempDir()
	emb := &fakeEmbedder{}
	mem := vectorstore.NewMemory()
	ix := New(cfg, emb, mem, storage.NewLocalStore(baseDir))
	return ix, emb, mem, baseDir
}

func TestIndexMissingCredential(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = ""
	ix, _, _, _ := newTestIndexer(t, cfg)

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Indexed || res.Reason != ReasonMissingKey {
		t.Fatalf("expected missing key result, got %+v", res)
	}
}

func TestIndexNoFiles(t *testing.T) {
	ix, _, _, _ := newTestIndexer(t, testConfig())

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Indexed || res.Reason != ReasonNoFiles {
		t.Fatalf("expected no_files, got %+v", res)
	}
}

func TestIndexNoSupportedDocs(t *testing.T) {
	ix, _, _, baseDir := newTestIndexer(t, testConfig())
	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	os.WriteFile(filepath.Join(userDir, "image.png"), []byte{1, 2, 3}, 0o644)

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Indexed || res.Reason != ReasonNoSupportedDocs {
		t.Fatalf("expected no_supported_docs, got %+v", res)
	}
}

func TestIndexThenNoChanges(t *testing.T) {
	ix, emb, mem, baseDir := newTestIndexer(t, testConfig())
	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("The sky is blue."), 0o644)

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if !res.Indexed || res.Reason != ReasonOK || res.Count != 1 {
		t.Fatalf("expected one indexed segment, got %+v", res)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected 1 point in store, got %d", mem.Len())
	}

	res, err = ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Indexed || res.Reason != ReasonNoChanges {
		t.Fatalf("expected no_changes, got %+v", res)
	}
	if emb.docCalls != 1 {
		t.Fatalf("unchanged file was re-embedded: %d calls", emb.docCalls)
	}
}

func TestIndexTouchedFileNotReEmbedded(t *testing.T) {
	ix, emb, _, baseDir := newTestIndexer(t, testConfig())
	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	path := filepath.Join(userDir, "notes.txt")
	os.WriteFile(path, []byte("The sky is blue."), 0o644)

	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	future := time.Now().Add(2 * time.Second)
	os.Chtimes(path, future, future)

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Indexed || res.Reason != ReasonNoChanges {
		t.Fatalf("touched-only file should report no_changes, got %+v", res)
	}
	if emb.docCalls != 1 {
		t.Fatalf("touched-only file was re-embedded: %d calls", emb.docCalls)
	}

	// The refreshed stat fields must have been persisted: a third pass
	// should not even hash the file again.
	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if emb.docCalls != 1 {
		t.Fatalf("third pass re-embedded: %d calls", emb.docCalls)
	}
}

func TestIndexIdempotentIDs(t *testing.T) {
	ix, _, mem, baseDir := newTestIndexer(t, testConfig())
	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	path := filepath.Join(userDir, "notes.txt")
	os.WriteFile(path, []byte("The sky is blue."), 0o644)

	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Drop the manifest to force a full re-index of identical content.
	os.Remove(filepath.Join(userDir, ".ingest-manifest.json"))

	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("re-index: %v", err)
	}
	if !res.Indexed {
		t.Fatalf("expected re-index, got %+v", res)
	}
	if mem.Len() != 1 {
		t.Fatalf("re-ingesting identical content duplicated points: %d", mem.Len())
	}
}

func TestIndexUpsertFailureRetries(t *testing.T) {
	cfg := testConfig()
	baseDir := t.TempDir()
	emb := &fakeEmbedder{}
	store := &flakyStore{Memory: vectorstore.NewMemory(), failures: 1}
	ix := New(cfg, emb, store, storage.NewLocalStore(baseDir))

	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("The sky is blue."), 0o644)

	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err == nil {
		t.Fatal("expected upsert failure to propagate")
	}

	// The manifest must not have been persisted, so the retry re-indexes.
	res, err := ix.IndexUserUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.Indexed || res.Count != 1 {
		t.Fatalf("retry did not index the file: %+v", res)
	}
}

func TestIndexEmbeddingFailureLeavesManifestUnpersisted(t *testing.T) {
	cfg := testConfig()
	baseDir := t.TempDir()
	emb := &fakeEmbedder{fail: true}
	ix := New(cfg, emb, vectorstore.NewMemory(), storage.NewLocalStore(baseDir))

	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("The sky is blue."), 0o644)

	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
	if _, err := os.Stat(filepath.Join(userDir, ".ingest-manifest.json")); !os.IsNotExist(err) {
		t.Fatal("manifest was persisted despite pipeline failure")
	}
}

func TestIndexTagsOwnership(t *testing.T) {
	ix, _, mem, baseDir := newTestIndexer(t, testConfig())
	userDir := filepath.Join(baseDir, "u1")
	os.MkdirAll(userDir, 0o755)
	os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("The sky is blue."), 0o644)

	if _, err := ix.IndexUserUploads(context.Background(), "u1"); err != nil {
		t.Fatalf("index: %v", err)
	}

	docs, err := mem.Search(context.Background(), []float32{1, 0, 0}, 1,
		&vectorstore.Filter{Key: "metadata.userId", Value: "u1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("owner-scoped search found %d docs", len(docs))
	}
	if docs[0].Metadata["filename"] != "notes.txt" {
		t.Fatalf("missing filename metadata: %+v", docs[0].Metadata)
	}
}
