// Package asr is the HTTP client of the speech-to-text backend behind the
// relay transcription endpoint.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/okian/intervue/pkg/metrics"
)

const defaultTimeout = 60 * time.Second

var (
	ErrNotConfigured = errors.New("asr backend not configured")
	ErrBackend       = errors.New("asr backend error")
)

// Segment is one recognized span of audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is the backend's answer.
type Response struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcript returns the recognized text, joining segments when the backend
// did not provide the full text.
func (r Response) Transcript() string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Client posts audio to <url>/transcribe.
type Client struct {
	url string
	c   *http.Client
}

// New creates a client. An empty url yields a client whose calls fail with
// ErrNotConfigured.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: strings.TrimRight(url, "/"), c: &http.Client{Timeout: timeout}}
}

// Configured reports whether a backend url was set.
func (h *Client) Configured() bool {
	return h.url != ""
}

// Transcribe sends audio as the multipart field "file".
func (h *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (Response, error) {
	if !h.Configured() {
		return Response{}, ErrNotConfigured
	}
	start := time.Now()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Response{}, err
	}
	if _, err = io.Copy(fw, audio); err != nil {
		return Response{}, err
	}
	if err = w.Close(); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/transcribe", &b)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		metrics.RecordLLMRequest("asr", "error", float64(time.Since(start).Milliseconds()))
		return Response{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordLLMRequest("asr", "error", float64(time.Since(start).Milliseconds()))
		return Response{}, fmt.Errorf("%w: %s: %s", ErrBackend, resp.Status, strings.TrimSpace(string(body)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: decode: %w", ErrBackend, err)
	}
	metrics.RecordLLMRequest("asr", "ok", float64(time.Since(start).Milliseconds()))
	return out, nil
}
