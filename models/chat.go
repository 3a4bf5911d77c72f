package models

// ChatMessage is one turn of a conversation as sent by the caller.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	UserID   string        `json:"userId"`
}

// CompletionChunk is one streamed completion delta, shaped like the
// chat-completions wire format so existing SSE consumers keep working.
type CompletionChunk struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
