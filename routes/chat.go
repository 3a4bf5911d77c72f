package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ingestloom-backend/models"
	"ingestloom-backend/utils"

	"github.com/gin-gonic/gin"
)

// handleChat streams a grounded completion as server-sent events. Each chunk
// is a `data:` line in the chat-completions delta shape; the stream ends
// with `data: [DONE]`. A mid-stream failure is reported as an error event so
// clients can distinguish it from a clean finish.
func handleChat(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			utils.RespondWithInternalError(c, "streaming unsupported", nil)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
		flusher.Flush()

		events := deps.Chat.Stream(c.Request.Context(), req.Messages, req.UserID)
		for ev := range events {
			switch {
			case ev.Err != nil:
				payload, _ := json.Marshal(gin.H{"error": ev.Err.Error()})
				fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", payload)
				flusher.Flush()
				return
			case ev.Done:
				fmt.Fprint(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				return
			case ev.Chunk != nil:
				payload, err := json.Marshal(ev.Chunk)
				if err != nil {
					continue
				}
				fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
