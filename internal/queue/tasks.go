// Package queue defines the background tasks used to defer heavy indexing
// work off the request path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/logger"
)

const TaskIndexUploads = "ingest:index"

// IndexPayload identifies whose uploads to index. The task is a signal, not
// a work list: the handler re-diffs the manifest itself, so duplicate
// deliveries collapse into no-ops.
type IndexPayload struct {
	UserID string `json:"user_id"`
}

func NewIndexTask(userID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexPayload{UserID: userID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIndexUploads,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

type TaskProcessor struct {
	indexer *indexer.Indexer
}

func NewTaskProcessor(ix *indexer.Indexer) *TaskProcessor {
	return &TaskProcessor{indexer: ix}
}

func (p *TaskProcessor) HandleIndexUploads(ctx context.Context, t *asynq.Task) error {
	var payload IndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing deferred indexing task", "user_id", payload.UserID)

	result, err := p.indexer.IndexUserUploads(ctx, payload.UserID)
	if err != nil {
		return err // will retry; ids are stable so retries are safe
	}

	logger.Info("deferred indexing finished",
		"user_id", payload.UserID,
		"indexed", result.Indexed,
		"reason", result.Reason,
		"count", result.Count,
	)
	return nil
}
