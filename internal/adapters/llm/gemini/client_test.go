package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	configs []*genai.GenerateContentConfig
	models  []string
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, config)
	f.models = append(f.models, model)
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func noSleep(t *testing.T) {
	t.Helper()
	original := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = original })
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), "  "); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCompleteJoinsPartsAndRequestsJSON(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse(" {\"summary\":", "\"ok\"} "), nil)

	c := newClient(models, WithModel("gemini-test"), WithTemperature(0.2))
	out, err := c.Complete(context.Background(), "score this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "{\"summary\":\n\"ok\"}" {
		t.Fatalf("unexpected output: %q", out)
	}
	if models.models[0] != "gemini-test" {
		t.Fatalf("unexpected model: %q", models.models[0])
	}
	cfg := models.configs[0]
	if cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON mime type, got %q", cfg.ResponseMIMEType)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.2) {
		t.Fatalf("unexpected temperature: %v", cfg.Temperature)
	}
}

func TestReplySetsSystemInstruction(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("Tell me about yourself."), nil)

	c := newClient(models)
	out, err := c.Reply(context.Background(), "You are an interviewer.", "history")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Tell me about yourself." {
		t.Fatalf("unexpected output: %q", out)
	}
	cfg := models.configs[0]
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "You are an interviewer." {
		t.Fatalf("expected system instruction to be set")
	}
	if cfg.ResponseMIMEType != "" {
		t.Fatalf("expected plain text reply, got %q", cfg.ResponseMIMEType)
	}
}

func TestRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	c := newClient(models, WithMaxRetries(2))
	out, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "retry ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(models.configs) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.configs))
	}
}

func TestStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)
	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	c := newClient(models, WithMaxRetries(2))
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(models.configs) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.configs))
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	c := newClient(models, WithMaxRetries(3))
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error")
	}
	if len(models.configs) != 1 {
		t.Fatalf("expected single call, got %d", len(models.configs))
	}
}

func TestEmptyPromptAndResponse(t *testing.T) {
	noSleep(t)
	models := &fakeModels{}
	c := newClient(models, WithMaxRetries(1))
	if _, err := c.Complete(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}

	models.enqueue(textResponse("  "), nil)
	if _, err := c.Complete(context.Background(), "prompt"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
