package api

import (
	"bytes"
	"net/http"

	"github.com/okian/intervue/pkg/logger"
)

// TranscribeHandler relays audio segments to the speech backend.
type TranscribeHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewTranscribeHandler creates a new relay handler.
func NewTranscribeHandler(deps Dependencies, log logger.Logger) *TranscribeHandler {
	return &TranscribeHandler{deps: deps, logger: log}
}

// HandleTranscribe handles POST /api/transcribe.
func (h *TranscribeHandler) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	const op = "api.transcribe"
	data, name, err := readMultipart(w, r, op, FieldAudio, maxAudioBody)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if name == "" {
		name = "segment.webm"
	}
	text, err := h.deps.Transcribe(r.Context(), name, bytes.NewReader(data))
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}
