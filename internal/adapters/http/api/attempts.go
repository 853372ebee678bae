package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/intervue/internal/app"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
)

// AttemptsHandler serves the per-invitation attempt routes.
type AttemptsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewAttemptsHandler creates a new attempts handler.
func NewAttemptsHandler(deps Dependencies, log logger.Logger) *AttemptsHandler {
	return &AttemptsHandler{deps: deps, logger: log}
}

// HandleConfig handles GET /api/attempts/{token}/config.
func (h *AttemptsHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.AttemptConfig(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap("api.config", err))
		return
	}
	writeJSON(w, http.StatusOK, NewConfigResponse(cfg))
}

// HandleStatus handles POST /api/attempts/{token}/status.
func (h *AttemptsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.status"
	var req StatusRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	status, ok := model.ParseStatus(req.Status)
	if !ok || status == model.StatusNotStarted {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	a, err := h.deps.SetStatus(r.Context(), r.PathValue("token"), status)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newAttemptResponse(a))
}

// HandleChat handles POST /api/attempts/{token}/chat.
func (h *AttemptsHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat"
	var req ChatRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	reply, err := h.deps.Chat(r.Context(), r.PathValue("token"), service.ChatRequest{
		History:   req.History,
		Message:   req.Message,
		Elapsed:   seconds(req.ElapsedSeconds),
		Remaining: seconds(req.RemainingSeconds),
	})
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{AttemptID: reply.AttemptID, Reply: reply.Reply})
}

// HandleChunk handles POST /api/attempts/{token}/chunks.
func (h *AttemptsHandler) HandleChunk(w http.ResponseWriter, r *http.Request) {
	const op = "api.chunk"
	data, _, err := readMultipart(w, r, op, FieldChunk, maxChunkBody)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	seq, err := strconv.ParseInt(r.FormValue(FieldSequence), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	captured, err := parseTimestamp(r.FormValue(FieldTimestamp))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.StoreChunk(r.Context(), r.PathValue("token"), service.ChunkUpload{
		AttemptID:  r.FormValue(FieldAttemptID),
		Sequence:   seq,
		CapturedAt: captured,
		Source:     r.FormValue(FieldSource),
		Data:       data,
	})
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, AckResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, AckResponse{Status: "accepted"})
}

// HandleTranscript handles POST /api/attempts/{token}/transcript.
func (h *AttemptsHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	const op = "api.transcript"
	var req TranscriptRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if err := h.deps.SaveTranscript(r.Context(), r.PathValue("token"), req.AttemptID, req.Transcript); err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProctorPhoto handles POST /api/attempts/{token}/proctor-photo.
func (h *AttemptsHandler) HandleProctorPhoto(w http.ResponseWriter, r *http.Request) {
	const op = "api.proctor_photo"
	data, name, err := readMultipart(w, r, op, FieldPhoto, maxPhotoBody)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		ext = "jpg"
	}
	stored, err := h.deps.SaveProctorPhoto(r.Context(), r.PathValue("token"), r.FormValue(FieldAttemptID), data, ext)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if stored {
		status = http.StatusCreated
	}
	writeJSON(w, status, PhotoResponse{Stored: stored})
}

// HandleProctorStatus handles POST /api/attempts/{token}/proctor-status.
func (h *AttemptsHandler) HandleProctorStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.proctor_status"
	var req ProctorStatusRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if err := h.deps.SetProctorStatus(r.Context(), r.PathValue("token"), req.AttemptID, req.Status); err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// parseTimestamp accepts RFC3339 or unix milliseconds. Empty means now.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Now().UTC(), nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
