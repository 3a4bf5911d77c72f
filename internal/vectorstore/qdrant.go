package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Qdrant is a minimal REST client to a Qdrant collection. It assumes cosine
// distance. Payloads are stored as {"content": ..., "metadata": {...}}, the
// same shape the original ingestion wrote, so the nested "metadata.userId"
// filter key matches new points while the top-level "userId" key still
// matches points written by older ingestion paths.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dimension)
	}
	var exists struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s/exists", q.url, q.collection), nil, &exists); err != nil {
		return err
	}
	if exists.Result.Exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", q.url, q.collection), body, nil)
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qp := make([]map[string]any, len(points))
	for i, p := range points {
		qp[i] = map[string]any{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]any{
				"content":  p.Payload.Content,
				"metadata": p.Payload.Metadata,
			},
		}
	}
	body := map[string]any{"points": qp}
	return q.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body, nil)
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Document, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": filter.Key, "match": map[string]any{"value": filter.Value}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection), req, &resp); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc := Document{Metadata: map[string]any{}}
		if v, ok := r.Payload["content"].(string); ok {
			doc.Content = v
		}
		if m, ok := r.Payload["metadata"].(map[string]any); ok {
			doc.Metadata = m
		} else {
			// Flat legacy payloads: everything except content is metadata.
			for k, v := range r.Payload {
				if k != "content" {
					doc.Metadata[k] = v
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (q *Qdrant) do(ctx context.Context, method, url string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
