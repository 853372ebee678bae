// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/intervue/internal/app"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
)

// Request size ceilings.
const (
	maxJSONBody  = 4 << 20
	maxChunkBody = 32 << 20
	maxPhotoBody = 8 << 20
	maxAudioBody = 25 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	AttemptConfig(ctx context.Context, token string) (model.InterviewConfig, error)
	SetStatus(ctx context.Context, token string, status model.Status) (model.Attempt, error)
	Chat(ctx context.Context, token string, req service.ChatRequest) (service.ChatReply, error)
	StoreChunk(ctx context.Context, token string, up service.ChunkUpload) (bool, error)
	SaveTranscript(ctx context.Context, token, attemptID string, t model.Transcript) error
	SaveProctorPhoto(ctx context.Context, token, attemptID string, data []byte, ext string) (bool, error)
	SetProctorStatus(ctx context.Context, token, attemptID, status string) error
	GenerateReport(ctx context.Context, token string, req service.ReportRequest) (model.Report, error)
	Report(ctx context.Context, token string, number int) (model.Report, error)
	Rubric(ctx context.Context, interviewID string) ([]model.RubricParameter, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	attemptsHandler   *AttemptsHandler
	reportsHandler    *ReportsHandler
	transcribeHandler *TranscribeHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	log := logger.Named("api")
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		attemptsHandler:   NewAttemptsHandler(deps, log),
		reportsHandler:    NewReportsHandler(deps, log),
		transcribeHandler: NewTranscribeHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET "+PathConfig, MetricsMiddleware(s.attemptsHandler.HandleConfig, "config"))
	mux.HandleFunc("POST "+PathStatus, MetricsMiddleware(s.attemptsHandler.HandleStatus, "status"))
	mux.HandleFunc("POST "+PathChat, MetricsMiddleware(s.attemptsHandler.HandleChat, "chat"))
	mux.HandleFunc("POST "+PathChunks, MetricsMiddleware(s.attemptsHandler.HandleChunk, "chunks"))
	mux.HandleFunc("POST "+PathTranscript, MetricsMiddleware(s.attemptsHandler.HandleTranscript, "transcript"))
	mux.HandleFunc("POST "+PathProctorPhoto, MetricsMiddleware(s.attemptsHandler.HandleProctorPhoto, "proctor_photo"))
	mux.HandleFunc("POST "+PathProctorStatus, MetricsMiddleware(s.attemptsHandler.HandleProctorStatus, "proctor_status"))

	mux.HandleFunc("POST "+PathReport, MetricsMiddleware(s.reportsHandler.HandleGenerate, "report"))
	mux.HandleFunc("GET "+PathReport, MetricsMiddleware(s.reportsHandler.HandleGet, "report"))
	mux.HandleFunc("GET "+PathRubric, MetricsMiddleware(s.reportsHandler.HandleRubric, "rubric"))

	mux.HandleFunc("POST "+PathTranscribe, MetricsMiddleware(s.transcribeHandler.HandleTranscribe, "transcribe"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

// writeServiceError maps service failures onto status codes.
func writeServiceError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("code", code), logger.Error(err))
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrPayloadTooBig):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownToken):
		return http.StatusNotFound, "unknown_token"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrAttemptsExhausted):
		return http.StatusConflict, "attempts_exhausted"
	case errors.Is(err, service.ErrAttemptCompleted):
		return http.StatusConflict, "attempt_completed"
	case errors.Is(err, service.ErrAttemptNotCompleted):
		return http.StatusConflict, "attempt_not_completed"
	case errors.Is(err, service.ErrAttemptNotStarted):
		return http.StatusConflict, "attempt_not_started"
	case errors.Is(err, service.ErrLLMUnavailable):
		return http.StatusBadGateway, "llm_unavailable"
	case errors.Is(err, service.ErrTranscriptionFailed):
		return http.StatusBadGateway, "transcription_failed"
	case errors.Is(err, service.ErrTranscriptionUnavailable):
		return http.StatusServiceUnavailable, "transcription_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return WrapKind(op, ErrPayloadTooBig, err)
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// readMultipart parses a multipart body and returns the bytes of one file field.
func readMultipart(w http.ResponseWriter, r *http.Request, op, field string, limit int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", WrapKind(op, ErrPayloadTooBig, err)
		}
		return nil, "", WrapKind(op, ErrBadRequest, err)
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", WrapKind(op, ErrBadRequest, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", WrapKind(op, ErrBadRequest, err)
	}
	return data, hdr.Filename, nil
}
