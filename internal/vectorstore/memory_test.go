package vectorstore

import (
	"context"
	"testing"
)

func TestMemoryUpsertOverwrites(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	point := Point{
		ID:     "p1",
		Vector: []float32{1, 0},
		Payload: Document{
			Content:  "first",
			Metadata: map[string]any{"userId": "u1"},
		},
	}
	if err := mem.Upsert(ctx, []Point{point}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	point.Payload.Content = "second"
	if err := mem.Upsert(ctx, []Point{point}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if mem.Len() != 1 {
		t.Fatalf("same id should overwrite, got %d points", mem.Len())
	}
	docs, _ := mem.Search(ctx, []float32{1, 0}, 1, nil)
	if len(docs) != 1 || docs[0].Content != "second" {
		t.Fatalf("overwrite not visible: %+v", docs)
	}
}

func TestMemorySearchRanksBySimilarity(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	mem.Upsert(ctx, []Point{
		{ID: "close", Vector: []float32{1, 0.1}, Payload: Document{Content: "close"}},
		{ID: "far", Vector: []float32{0, 1}, Payload: Document{Content: "far"}},
	})

	docs, err := mem.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 || docs[0].Content != "close" {
		t.Fatalf("ranking wrong: %+v", docs)
	}
}

func TestMemorySearchLimit(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		mem.Upsert(ctx, []Point{{ID: id, Vector: []float32{1, 0}, Payload: Document{Content: id}}})
	}

	docs, _ := mem.Search(ctx, []float32{1, 0}, 2, nil)
	if len(docs) != 2 {
		t.Fatalf("limit not honored: %d", len(docs))
	}
}

func TestMemoryNestedFilter(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	mem.Upsert(ctx, []Point{{
		ID:     "p1",
		Vector: []float32{1, 0},
		Payload: Document{
			Content:  "mine",
			Metadata: map[string]any{"userId": "u1"},
		},
	}})

	docs, _ := mem.Search(ctx, []float32{1, 0}, 5, &Filter{Key: "metadata.userId", Value: "u1"})
	if len(docs) != 1 {
		t.Fatalf("nested filter missed: %d docs", len(docs))
	}

	docs, _ = mem.Search(ctx, []float32{1, 0}, 5, &Filter{Key: "metadata.userId", Value: "u2"})
	if len(docs) != 0 {
		t.Fatalf("filter leaked other user's docs: %d", len(docs))
	}

	// Upsert nests metadata, so the top-level key must not match.
	docs, _ = mem.Search(ctx, []float32{1, 0}, 5, &Filter{Key: "userId", Value: "u1"})
	if len(docs) != 0 {
		t.Fatalf("top-level filter should not match nested payload: %d", len(docs))
	}
}

func TestMemoryFlatLegacyPayload(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	mem.UpsertRaw("legacy", []float32{1, 0}, map[string]any{
		"content": "old point",
		"userId":  "u1",
	})

	docs, _ := mem.Search(ctx, []float32{1, 0}, 5, &Filter{Key: "userId", Value: "u1"})
	if len(docs) != 1 || docs[0].Content != "old point" {
		t.Fatalf("flat payload not matched: %+v", docs)
	}
	if docs[0].Metadata["userId"] != "u1" {
		t.Fatalf("flat keys should surface as metadata: %+v", docs[0].Metadata)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("mismatched dims should be 0: %f", got)
	}
}
