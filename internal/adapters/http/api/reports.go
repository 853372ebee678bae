package api

import (
	"net/http"
	"strconv"

	service "github.com/okian/intervue/internal/app"
	"github.com/okian/intervue/pkg/logger"
)

// ReportsHandler serves report generation and rubric lookups.
type ReportsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies, log logger.Logger) *ReportsHandler {
	return &ReportsHandler{deps: deps, logger: log}
}

// HandleGenerate handles POST /api/attempts/{token}/report.
func (h *ReportsHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_generate"
	var req ReportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, op, &req); err != nil {
			writeServiceError(r.Context(), h.logger, w, err)
			return
		}
	}
	if req.AttemptNumber < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rep, err := h.deps.GenerateReport(r.Context(), r.PathValue("token"), service.ReportRequest{
		AttemptNumber: req.AttemptNumber,
		Transcript:    req.Transcript,
		Rubric:        req.Rubric,
		Regenerate:    req.Regenerate,
		BypassLLM:     req.BypassLLM,
	})
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleGet handles GET /api/attempts/{token}/report?attempt=N.
func (h *ReportsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_get"
	number := 0
	if v := r.URL.Query().Get("attempt"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		number = n
	}
	rep, err := h.deps.Report(r.Context(), r.PathValue("token"), number)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleRubric handles GET /api/interviews/{id}/rubric.
func (h *ReportsHandler) HandleRubric(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	params, err := h.deps.Rubric(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, Wrap("api.rubric", err))
		return
	}
	writeJSON(w, http.StatusOK, RubricResponse{InterviewID: id, Parameters: params})
}
