// Package retrieval finds the segments most relevant to a chat query using
// an ordered list of filter strategies with a first-non-empty stopping rule.
package retrieval

import (
	"context"

	"ingestloom-backend/internal/ai"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/vectorstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TopK bounds every retrieval call.
const TopK = 6

// Engine performs scoped similarity search with cascading fallbacks.
type Engine struct {
	embedder ai.Embedder
	store    vectorstore.Store
}

func NewEngine(embedder ai.Embedder, store vectorstore.Store) *Engine {
	return &Engine{embedder: embedder, store: store}
}

type strategy struct {
	name   string
	filter *vectorstore.Filter
}

// strategies builds the ordered filter cascade for a user. Metadata shape
// drifts between indexing-library versions: newer points nest the owner
// under "metadata.userId", older ones kept it at the payload top level, so
// both keys are tried before widening to the whole collection. The final
// unfiltered step intentionally crosses user scope — an answer from the
// wider collection beats silence.
func strategies(userID string) []strategy {
	var s []strategy
	if userID != "" {
		s = append(s,
			strategy{name: "user_id_key", filter: &vectorstore.Filter{Key: "userId", Value: userID}},
			strategy{name: "nested_metadata_key", filter: &vectorstore.Filter{Key: "metadata.userId", Value: userID}},
		)
	}
	return append(s, strategy{name: "unfiltered"})
}

// Retrieve returns up to TopK documents matching the query. It never
// returns an error: infrastructure failures degrade to an empty result so
// the chat flow keeps working without grounding.
func (e *Engine) Retrieve(ctx context.Context, query, userID string) []vectorstore.Document {
	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()

	if query == "" {
		return nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed; continuing without context", "error", err)
		span.SetAttributes(attribute.Bool("retrieval.degraded", true))
		return nil
	}

	for _, st := range strategies(userID) {
		docs, err := e.store.Search(ctx, vector, TopK, st.filter)
		if err != nil {
			logger.Warn("vector search failed; continuing without context",
				"strategy", st.name, "error", err)
			span.SetAttributes(attribute.Bool("retrieval.degraded", true))
			return nil
		}
		if len(docs) > 0 {
			if st.filter == nil && userID != "" {
				logger.Warn("retrieval fell through to unfiltered cross-user results", "user_id", userID)
			}
			span.SetAttributes(
				attribute.String("retrieval.strategy", st.name),
				attribute.Int("retrieval.results", len(docs)),
			)
			return docs
		}
	}

	span.SetAttributes(attribute.Int("retrieval.results", 0))
	return nil
}
