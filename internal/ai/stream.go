package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"ingestloom-backend/internal/config"
	"ingestloom-backend/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// StreamDelta is one increment of a streamed completion. Err is terminal:
// after a delta with a non-nil Err the channel is closed.
type StreamDelta struct {
	Content string
	Err     error
}

// ChatStreamer produces a token stream for a conversation. A returned error
// means the stream could not be started at all; mid-stream failures arrive
// on the channel.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []models.ChatMessage) (<-chan StreamDelta, error)
}

// RateLimits describe the request budget for a provider tier.
type RateLimits struct {
	RPM int
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10}
	case "tier1":
		return RateLimits{RPM: 1000}
	case "tier2":
		return RateLimits{RPM: 2000}
	default:
		return RateLimits{RPM: 10}
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

func newRateLimiter(limits RateLimits) *rate.Limiter {
	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)
}

// NewChatStreamer returns the streamer matching the configured provider.
func NewChatStreamer(cfg *config.Config) (ChatStreamer, error) {
	switch cfg.EmbeddingsProvider {
	case "openai", "":
		return NewOpenAIStreamer(cfg), nil
	case "google":
		return NewGeminiStreamer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.EmbeddingsProvider)
	}
}

// OpenAIStreamer streams chat completions over the OpenAI SSE wire format,
// behind a circuit breaker and a per-process rate limiter.
type OpenAIStreamer struct {
	baseURL     string
	apiKey      string
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	client      *http.Client
}

func NewOpenAIStreamer(cfg *config.Config) *OpenAIStreamer {
	return &OpenAIStreamer{
		baseURL:     strings.TrimRight(cfg.OpenAIAPIURL, "/"),
		apiKey:      cfg.OpenAIAPIKey,
		model:       cfg.OpenAIChatModel,
		breaker:     newBreaker("OpenAIChat"),
		rateLimiter: newRateLimiter(getRateLimits(cfg.ModelTier)),
		// No client timeout: streams are bounded by the request context.
		client: &http.Client{},
	}
}

func (s *OpenAIStreamer) StreamChat(ctx context.Context, messages []models.ChatMessage) (<-chan StreamDelta, error) {
	tracer := otel.Tracer("chat-streamer")
	ctx, span := tracer.Start(ctx, "openai.stream_chat")
	span.SetAttributes(
		attribute.String("chat.model", s.model),
		attribute.Int("chat.messages", len(messages)),
	)

	if s.apiKey == "" {
		span.End()
		return nil, fmt.Errorf("chat API key is not configured")
	}
	if err := s.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("chat.rate_limited", true))
		span.End()
		return nil, err
	}

	reqBody := map[string]any{
		"model":    s.model,
		"messages": messages,
		"stream":   true,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		span.End()
		return nil, err
	}

	// The breaker guards stream establishment; once the response headers
	// are in, failures surface mid-stream on the channel instead.
	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			return nil, fmt.Errorf("chat completion failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("chat.error", true))
		span.End()
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("chat provider unavailable: %w", err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer span.End()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk models.CompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := StreamDelta{Content: chunk.Choices[0].Delta.Content}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			span.SetAttributes(attribute.Bool("chat.stream_error", true))
			select {
			case out <- StreamDelta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// GeminiStreamer streams completions from the Gemini API. Conversation
// history is flattened into a single prompt; the genai SDK handles SSE.
type GeminiStreamer struct {
	apiKey      string
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewGeminiStreamer(cfg *config.Config) *GeminiStreamer {
	return &GeminiStreamer{
		apiKey:      cfg.GeminiAPIKey,
		model:       cfg.GeminiChatModel,
		breaker:     newBreaker("GeminiChat"),
		rateLimiter: newRateLimiter(getRateLimits(cfg.ModelTier)),
	}
}

func (s *GeminiStreamer) StreamChat(ctx context.Context, messages []models.ChatMessage) (<-chan StreamDelta, error) {
	tracer := otel.Tracer("chat-streamer")
	ctx, span := tracer.Start(ctx, "gemini.stream_chat")
	span.SetAttributes(
		attribute.String("chat.model", s.model),
		attribute.Int("chat.messages", len(messages)),
	)

	if s.apiKey == "" {
		span.End()
		return nil, fmt.Errorf("missing GEMINI_API_KEY for chat")
	}
	if err := s.rateLimiter.Wait(ctx); err != nil {
		span.End()
		return nil, err
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	})
	if err != nil {
		span.End()
		return nil, err
	}
	client := result.(*genai.Client)

	model := client.GenerativeModel(s.model)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(2048)

	iter := model.GenerateContentStream(ctx, genai.Text(flattenMessages(messages)))

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer span.End()
		defer client.Close()
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					select {
					case out <- StreamDelta{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			text := candidateText(resp)
			if text == "" {
				continue
			}
			select {
			case out <- StreamDelta{Content: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func flattenMessages(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
		default:
			b.WriteString("User: ")
			b.WriteString(m.Content)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func candidateText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
