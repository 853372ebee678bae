// Package gemini is a text completion client backed by the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	retryStep         = time.Second
)

var sleep = time.Sleep

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		if t >= 0 {
			c.temperature = genai.Ptr(float32(t))
		}
	}
}

// WithMaxRetries sets the total number of calls made for one request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout bounds a single call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client sends prompts to Gemini and returns the textual answer.
type Client struct {
	models      contentGenerator
	model       string
	temperature *float32
	maxRetries  int
	timeout     time.Duration
	logger      logger.Logger
}

// New creates a Client for the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, opts...), nil
}

func newClient(models contentGenerator, opts ...Option) *Client {
	c := &Client{
		models:     models,
		model:      defaultModel,
		maxRetries: defaultMaxRetries,
		logger:     logger.Named("gemini"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete asks for a JSON answer to prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      c.temperature,
		ResponseMIMEType: "application/json",
	}
	return c.generate(ctx, "complete", prompt, cfg)
}

// Reply asks for a plain text answer under the given system instruction.
func (c *Client) Reply(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: c.temperature}
	if system = strings.TrimSpace(system); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return c.generate(ctx, "reply", prompt, cfg)
}

func (c *Client) generate(ctx context.Context, op, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		out, err := c.call(ctx, prompt, cfg)
		if err == nil {
			metrics.RecordLLMRequest(op, "ok", float64(time.Since(start).Milliseconds()))
			return out, nil
		}
		lastErr = err
		if !temporary(err) || attempt == c.maxRetries {
			break
		}
		c.logger.Warn(ctx, "gemini call failed, retrying",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if err := wait(ctx, time.Duration(attempt)*retryStep); err != nil {
			lastErr = err
			break
		}
	}

	metrics.RecordLLMRequest(op, "error", float64(time.Since(start).Milliseconds()))
	return "", lastErr
}

func (c *Client) call(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ErrEmptyResponse
	}
	return output, nil
}

// temporary reports whether a failed call is worth repeating.
func temporary(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded)
}

func wait(ctx context.Context, d time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
