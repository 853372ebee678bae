// Package client is the session runtime's view of the server: attempt
// lifecycle, chat turns, proctoring, chunk delivery and the transcription
// relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/adapters/mq/worker"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client talks to one invitation's routes.
type Client struct {
	base  string
	token string
	c     *http.Client
	log   logger.Logger
}

// New creates a client for the server at baseURL acting for token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	cl := &Client{
		base:  baseURL,
		token: token,
		c:     &http.Client{Timeout: defaultTimeout},
		log:   logger.Named("client"),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// Token returns the invitation token the client acts for.
func (cl *Client) Token() string { return cl.token }

// Config reads the attempt configuration.
func (cl *Client) Config(ctx context.Context) (model.InterviewConfig, error) {
	var out api.ConfigResponse
	if err := cl.doJSON(ctx, "config", http.MethodGet, api.PathConfig, nil, &out); err != nil {
		return model.InterviewConfig{}, err
	}
	return out.Config(), nil
}

// SetStatus moves the current attempt to status.
func (cl *Client) SetStatus(ctx context.Context, status model.Status) (model.Attempt, error) {
	var out api.AttemptResponse
	if err := cl.doJSON(ctx, "status", http.MethodPost, api.PathStatus, api.StatusRequest{Status: string(status)}, &out); err != nil {
		return model.Attempt{}, err
	}
	a := model.Attempt{
		ID:              out.ID,
		InterviewID:     out.InterviewID,
		Number:          out.Number,
		Status:          model.Status(out.Status),
		AllowedAttempts: out.AllowedAttempts,
		ProctorStatus:   model.ProctorStatus(out.ProctorStatus),
	}
	if out.StartedAt != nil {
		a.StartedAt = *out.StartedAt
	}
	if out.CompletedAt != nil {
		a.CompletedAt = *out.CompletedAt
	}
	return a, nil
}

// Chat sends one turn and returns the interviewer's reply. An empty history
// and message ask for the opening question.
func (cl *Client) Chat(ctx context.Context, history model.Transcript, message string, elapsed, remaining time.Duration) (string, error) {
	req := api.ChatRequest{
		History:          history,
		Message:          message,
		ElapsedSeconds:   elapsed.Seconds(),
		RemainingSeconds: remaining.Seconds(),
	}
	var out api.ChatResponse
	if err := cl.doJSON(ctx, "chat", http.MethodPost, api.PathChat, req, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// SaveTranscript posts the full conversation of an attempt.
func (cl *Client) SaveTranscript(ctx context.Context, attemptID string, t model.Transcript) error {
	return cl.doJSON(ctx, "transcript", http.MethodPost, api.PathTranscript,
		api.TranscriptRequest{AttemptID: attemptID, Transcript: t}, nil)
}

// ProctorStatus forwards an advisory label.
func (cl *Client) ProctorStatus(ctx context.Context, attemptID string, status model.ProctorStatus) error {
	return cl.doJSON(ctx, "proctor_status", http.MethodPost, api.PathProctorStatus,
		api.ProctorStatusRequest{AttemptID: attemptID, Status: string(status)}, nil)
}

// ProctorPhoto uploads the one-time identity photo. It reports whether the
// server stored it.
func (cl *Client) ProctorPhoto(ctx context.Context, attemptID string, photo []byte, ext string) (bool, error) {
	if ext == "" {
		ext = "jpg"
	}
	var out api.PhotoResponse
	err := cl.doMultipart(ctx, "proctor_photo", api.PathProctorPhoto, api.FieldPhoto, "proctor."+ext, photo,
		map[string]string{api.FieldAttemptID: attemptID}, &out)
	return out.Stored, err
}

// GenerateReport asks the server to score an attempt.
func (cl *Client) GenerateReport(ctx context.Context, req api.ReportRequest) (model.Report, error) { //nolint:gocritic // hugeParam
	var out model.Report
	err := cl.doJSON(ctx, "report", http.MethodPost, api.PathReport, req, &out)
	return out, err
}

// Report fetches a stored report; number 0 selects the latest attempt.
func (cl *Client) Report(ctx context.Context, number int) (model.Report, error) {
	path := api.PathReport
	if number > 0 {
		path += "?attempt=" + strconv.Itoa(number)
	}
	var out model.Report
	err := cl.doJSON(ctx, "report", http.MethodGet, path, nil, &out)
	return out, err
}

// Rubric fetches an interview's normalized rubric.
func (cl *Client) Rubric(ctx context.Context, interviewID string) ([]model.RubricParameter, error) {
	path := strings.Replace(api.PathRubric, "{id}", url.PathEscape(interviewID), 1)
	var out api.RubricResponse
	if err := cl.doJSON(ctx, "rubric", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Parameters, nil
}

// Deliver uploads one media chunk. It satisfies worker.Deliverer; any error
// makes the worker retry.
func (cl *Client) Deliver(ctx context.Context, c worker.Chunk) error { //nolint:gocritic // hugeParam
	fields := map[string]string{
		api.FieldSequence:  strconv.FormatInt(c.Sequence, 10),
		api.FieldTimestamp: c.CapturedAt.UTC().Format(time.RFC3339Nano),
		api.FieldAttemptID: c.AttemptID,
		api.FieldSource:    c.Source,
	}
	name := fmt.Sprintf("chunk-%08d.bin", c.Sequence)
	var ack api.AckResponse
	if err := cl.doMultipart(ctx, "chunk", api.PathChunks, api.FieldChunk, name, c.Payload, fields, &ack); err != nil {
		return err
	}
	if ack.Duplicate {
		cl.log.Debug(ctx, "chunk already stored", logger.Int64("sequence", c.Sequence))
	}
	return nil
}

// Transcribe relays one audio segment. It satisfies transcription.Relay.
func (cl *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var out api.TranscribeResponse
	if err := cl.doMultipart(ctx, "transcribe", api.PathTranscribe, api.FieldAudio, "segment.webm", audio, nil, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (cl *Client) endpoint(path string) string {
	return cl.base + strings.Replace(path, "{token}", url.PathEscape(cl.token), 1)
}

func (cl *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, cl.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return cl.do(op, req, out)
}

func (cl *Client) doMultipart(ctx context.Context, op, path, field, filename string, data []byte, fields map[string]string, out any) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.endpoint(path), &b)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return cl.do(op, req, out)
}

func (cl *Client) do(op string, req *http.Request, out any) error {
	resp, err := cl.c.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Op: op, Status: resp.StatusCode}
		var body api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) == nil && body.Code != "" {
			se.Code, se.Message = body.Code, body.Message
		} else {
			se.Message = strings.TrimSpace(string(raw))
		}
		return se
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
