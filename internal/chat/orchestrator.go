// Package chat assembles grounded prompts from retrieved segments and
// relays the model's token stream to the caller.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"ingestloom-backend/internal/ai"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/vectorstore"
	"ingestloom-backend/models"
)

// apologyMessage is streamed in place of an answer when the model provider
// cannot be reached at all.
const apologyMessage = "I'm experiencing high demand right now. Please try again in a moment."

const systemPromptFormat = "You are a helpful AI assistant. Use the following CONTEXT, if relevant, to answer the user. " +
	"If the context is not relevant, answer normally. Keep answers concise and cite filenames or page numbers from the context metadata when you use it.\n\nCONTEXT:\n%s"

// Event is one item of the streamed chat response.
type Event struct {
	// Chunk carries a completion delta when non-nil.
	Chunk *models.CompletionChunk
	// Done marks the explicit end of the stream.
	Done bool
	// Err signals a mid-stream failure; the stream ends after it.
	Err error
}

// Retriever is the context lookup the orchestrator depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query, userID string) []vectorstore.Document
}

// Orchestrator turns a conversation into a grounded, streamed completion.
type Orchestrator struct {
	retriever Retriever
	streamer  ai.ChatStreamer
}

func NewOrchestrator(retriever Retriever, streamer ai.ChatStreamer) *Orchestrator {
	return &Orchestrator{retriever: retriever, streamer: streamer}
}

// Stream answers the conversation token by token. An empty or user-less
// history skips retrieval entirely and streams a plain completion over the
// raw history. The returned channel always ends with either a Done or an
// Err event. Cancelling ctx tears down the underlying provider stream.
func (o *Orchestrator) Stream(ctx context.Context, messages []models.ChatMessage, userID string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		prompt := messages
		if len(messages) > 0 {
			query := lastUserQuery(messages)
			docs := o.retriever.Retrieve(ctx, query, userID)
			prompt = append([]models.ChatMessage{{
				Role:    "system",
				Content: fmt.Sprintf(systemPromptFormat, serializeContext(docs)),
			}}, messages...)
		}

		deltas, err := o.streamer.StreamChat(ctx, prompt)
		if err != nil {
			logger.Error("failed to start completion stream", "error", err)
			// Degrade to an in-conversation apology instead of surfacing
			// a raw provider error to the end user.
			emit(ctx, out, Event{Chunk: contentChunk(apologyMessage)})
			emit(ctx, out, Event{Done: true})
			return
		}

		for delta := range deltas {
			if delta.Err != nil {
				emit(ctx, out, Event{Err: delta.Err})
				return
			}
			if delta.Content == "" {
				continue
			}
			if !emit(ctx, out, Event{Chunk: contentChunk(delta.Content)}) {
				return
			}
		}
		emit(ctx, out, Event{Done: true})
	}()
	return out
}

// lastUserQuery returns the content of the most recent user-role message,
// or "" if the history has none.
func lastUserQuery(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// serializeContext renders retrieved documents as a JSON blob for the
// system prompt; no documents yield an empty array.
func serializeContext(docs []vectorstore.Document) string {
	if len(docs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func contentChunk(content string) *models.CompletionChunk {
	return &models.CompletionChunk{
		Object: "chat.completion.chunk",
		Choices: []models.Choice{
			{Delta: models.Delta{Content: content}},
		},
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
