// Package questions generates grounded question-answer pairs for chunk
// groups through an OpenAI-compatible chat completion API.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const MaxRetries = 3

var (
	ErrEmptyRequest      = errors.New("questions: request has no chunks")
	ErrMalformedResponse = errors.New("questions: malformed model response")
	ErrNoValidQuestions  = errors.New("questions: no valid questions in response")
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// ChatAPI is the subset of the go-openai client used here.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds model settings. It is read once at startup.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string

	// RequestsPerSecond bounds calls across all runs; 0 disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// Client generates questions with retries, rate limiting and validation.
type Client struct {
	api     ChatAPI
	cfg     Config
	limiter *rate.Limiter
	stats   *LLMStats
	log     *slog.Logger
	backoff func(attempt int) time.Duration
}

// NewClient builds a client backed by the OpenAI API (or a compatible
// endpoint when BaseURL is set).
func NewClient(cfg Config, stats *LLMStats, log *slog.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return NewClientWithAPI(openai.NewClientWithConfig(oc), cfg, stats, log)
}

func NewClientWithAPI(api ChatAPI, cfg Config, stats *LLMStats, log *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if stats == nil {
		stats = NewLLMStats(time.Hour)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return &Client{
		api:     api,
		cfg:     cfg,
		limiter: limiter,
		stats:   stats,
		log:     log,
		backoff: Backoff,
	}
}

// Stats exposes the rolling latency window.
func (c *Client) Stats() *LLMStats {
	return c.stats
}

func (c *Client) Model() string {
	return c.cfg.Model
}

type completion struct {
	Questions []Question `json:"questions"`
}

// Generate asks the model for req.Count questions about req.Chunks.
// Transient API failures are retried up to MaxRetries times. The result
// never holds more than req.Count questions.
func (c *Client) Generate(ctx context.Context, req Request) ([]Question, error) {
	if len(req.Chunks) == 0 {
		return nil, ErrEmptyRequest
	}
	if req.Count < 1 {
		req.Count = 1
	}
	ids := req.ChunkIDs()
	log := c.log.With("chunks", strings.Join(ids, ","), "count", req.Count)

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	}

	var content string
	var lastErr error
	for attempt := range MaxRetries {
		content, lastErr = c.complete(ctx, chatReq)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		c.stats.RecordRetry()
		log.Warn("retryable generation error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var out completion
	if err := json.Unmarshal([]byte(stripCodeBlock(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, truncate(content, 200))
	}

	valid := make([]Question, 0, len(out.Questions))
	for i := range out.Questions {
		if ValidateQuestion(&out.Questions[i], ids) {
			valid = append(valid, out.Questions[i])
		}
	}
	if dropped := len(out.Questions) - len(valid); dropped > 0 {
		log.Warn("dropped invalid questions", "dropped", dropped)
	}
	if len(valid) == 0 {
		return nil, ErrNoValidQuestions
	}
	if len(valid) > req.Count {
		valid = valid[:req.Count]
	}
	return valid, nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	c.stats.Record(time.Since(start).Milliseconds(), err != nil)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify wraps rate limits, server errors and network timeouts as
// RetryableError and returns other errors unchanged.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && transientStatus(apiErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && transientStatus(reqErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RetryableError{Message: err.Error()}
	}
	return fmt.Errorf("chat completion: %w", err)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
