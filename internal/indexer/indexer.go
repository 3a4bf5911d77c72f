// Package indexer orchestrates incremental ingestion: diff the user's
// uploads against the manifest, load and embed only what changed, upsert
// with stable ids, then persist the manifest.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"ingestloom-backend/internal/ai"
	"ingestloom-backend/internal/config"
	"ingestloom-backend/internal/loader"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/manifest"
	"ingestloom-backend/internal/storage"
	"ingestloom-backend/internal/vectorstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Reason explains a non-error indexing outcome.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonNoFiles         Reason = "no_files"
	ReasonNoChanges       Reason = "no_changes"
	ReasonNoSupportedDocs Reason = "no_supported_docs"
	// ReasonMissingKey keeps its historical value: API consumers match on
	// this string regardless of which embeddings provider is configured.
	ReasonMissingKey Reason = "missing_openai_key"
	// ReasonQueued reports that indexing was deferred to the worker.
	ReasonQueued Reason = "queued"
	// ReasonError reports a propagated pipeline failure to API callers.
	ReasonError Reason = "error"
)

// Result is the outcome of one indexing call.
type Result struct {
	Indexed bool   `json:"indexed"`
	Reason  Reason `json:"reason"`
	Count   int    `json:"count,omitempty"`
}

// Indexer runs the ingestion pipeline. All collaborators are injected so
// tests can swap in fakes.
type Indexer struct {
	cfg      *config.Config
	embedder ai.Embedder
	store    vectorstore.Store
	storage  storage.Store
}

func New(cfg *config.Config, embedder ai.Embedder, store vectorstore.Store, st storage.Store) *Indexer {
	return &Indexer{cfg: cfg, embedder: embedder, store: store, storage: st}
}

// IndexUserUploads indexes every changed file in the user's upload
// directory. It never persists the manifest before the upsert succeeds, so
// any failure leaves the changed files eligible for retry; retries are safe
// because ids are stable.
func (ix *Indexer) IndexUserUploads(ctx context.Context, userID string) (*Result, error) {
	tracer := otel.Tracer("indexer")
	ctx, span := tracer.Start(ctx, "indexer.index_user_uploads")
	defer span.End()

	if ix.cfg.EmbeddingsCredential() == "" {
		logger.Warn("embeddings credential not set; skipping vector indexing", "user_id", userID)
		return &Result{Indexed: false, Reason: ReasonMissingKey}, nil
	}

	us, err := ix.storage.ForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user storage: %w", err)
	}
	userID = us.UserID()
	span.SetAttributes(attribute.String("ingest.user_id", userID))

	names, err := us.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	if len(names) == 0 {
		return &Result{Indexed: false, Reason: ReasonNoFiles}, nil
	}

	userDir := us.Dir()
	previous := manifest.Read(userDir)
	diff := manifest.Compute(userDir, names, previous)
	span.SetAttributes(
		attribute.Int("ingest.files_total", len(names)),
		attribute.Int("ingest.files_changed", len(diff.ToProcess)),
	)

	if len(diff.ToProcess) == 0 {
		if diff.PassiveUpdate {
			if err := manifest.Write(userDir, diff.Next); err != nil {
				return nil, fmt.Errorf("failed to persist manifest: %w", err)
			}
		}
		return &Result{Indexed: false, Reason: ReasonNoChanges}, nil
	}

	perFile, err := ix.loadFiles(ctx, userDir, diff.ToProcess)
	if err != nil {
		return nil, err
	}

	// Flatten preserving file order, then within-file order: segment
	// position is what stable ids are derived from.
	var segments []loader.Segment
	var ids []string
	for i, fileSegments := range perFile {
		relPath := diff.ToProcess[i]
		for j, seg := range fileSegments {
			segments = append(segments, seg)
			ids = append(ids, StableSegmentID(userID, relPath, j))
		}
	}
	if len(segments) == 0 {
		return &Result{Indexed: false, Reason: ReasonNoSupportedDocs}, nil
	}

	// Tag ownership for scoped retrieval.
	texts := make([]string, len(segments))
	for i := range segments {
		segments[i].Metadata["userId"] = userID
		texts[i] = segments[i].Content
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d segments", len(vectors), len(segments))
	}

	if err := ix.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	points := make([]vectorstore.Point, len(segments))
	for i, seg := range segments {
		points[i] = vectorstore.Point{
			ID:     ids[i],
			Vector: vectors[i],
			Payload: vectorstore.Document{
				Content:  seg.Content,
				Metadata: seg.Metadata,
			},
		}
	}
	if err := ix.store.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("vector upsert failed: %w", err)
	}

	// Only now is it safe to claim these files are indexed.
	if err := manifest.Write(userDir, diff.Next); err != nil {
		return nil, fmt.Errorf("failed to persist manifest: %w", err)
	}

	logger.Info("indexed user uploads",
		"user_id", userID,
		"files", len(diff.ToProcess),
		"segments", len(segments),
	)
	span.SetAttributes(attribute.Int("ingest.segments", len(segments)))
	return &Result{Indexed: true, Reason: ReasonOK, Count: len(segments)}, nil
}

// loadFiles loads changed files concurrently. Results land in per-file
// slots so concurrency never perturbs segment order. Any loader error fails
// the call: the manifest stays unpersisted and the next run retries.
func (ix *Indexer) loadFiles(ctx context.Context, userDir string, names []string) ([][]loader.Segment, error) {
	opts := loader.Options{
		MaxChunkSize: ix.cfg.MaxChunkSize,
		ChunkOverlap: ix.cfg.ChunkOverlap,
		MinChunkSize: ix.cfg.MinChunkSize,
	}

	perFile := make([][]loader.Segment, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(slot int, name string) {
			defer wg.Done()
			segments, err := loader.LoadFile(filepath.Join(userDir, name), opts)
			if err != nil {
				errs[slot] = fmt.Errorf("failed to load %s: %w", name, err)
				return
			}
			perFile[slot] = segments
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return perFile, nil
}
