package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/internal/export"
	"github.com/wonny/sp-ranking/internal/runstore"
	"github.com/wonny/sp-ranking/pkg/logger"
)

const (
	defaultPageSize = 25
	maxPageSize     = 1000
)

// Trigger starts a background ranking run
type Trigger interface {
	Trigger(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error)
}

// RankingsHandler serves run triggering, status, results and export
// ⭐ SSOT: ranking API handlers live in this struct only
type RankingsHandler struct {
	trigger  Trigger
	runs     *runstore.Service
	exporter *export.Exporter
	validate *validator.Validate
	logger   *logger.Logger
}

// NewRankingsHandler creates a rankings handler
func NewRankingsHandler(trigger Trigger, runs *runstore.Service, exporter *export.Exporter, log *logger.Logger) *RankingsHandler {
	return &RankingsHandler{
		trigger:  trigger,
		runs:     runs,
		exporter: exporter,
		validate: validator.New(),
		logger:   log,
	}
}

// RunRequest is the body of POST /rankings/run
type RunRequest struct {
	FormulaMode string                 `json:"formula_mode" validate:"required,oneof=buffett cramer both"`
	Options     map[string]interface{} `json:"options"`
}

// RunResponse acknowledges a triggered run
type RunResponse struct {
	RunID  int64               `json:"run_id"`
	Status contracts.RunStatus `json:"status"`
}

// Run handles POST /rankings/run
func (h *RankingsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.FormulaMode = strings.ToLower(strings.TrimSpace(req.FormulaMode))

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	mode, err := contracts.ParseFormulaMode(req.FormulaMode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.trigger.Trigger(r.Context(), mode)
	if err != nil {
		if errors.Is(err, contracts.ErrInvalidFormulaMode) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to trigger run")
		respondError(w, http.StatusInternalServerError, "Failed to start run")
		return
	}

	respondJSON(w, http.StatusOK, RunResponse{RunID: run.ID, Status: contracts.StatusRunning})
}

// Status handles GET /rankings/status?run_id=
func (h *RankingsHandler) Status(w http.ResponseWriter, r *http.Request) {
	runID, ok := optionalInt64(r, "run_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "run_id must be an integer")
		return
	}

	run, err := h.runs.Status(r.Context(), runID)
	switch {
	case errors.Is(err, contracts.ErrRunNotFound) && runID == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "idle"})
	case errors.Is(err, contracts.ErrRunNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("Run %d not found", *runID))
	case err != nil:
		h.logger.WithError(err).Error("Failed to load run status")
		respondError(w, http.StatusInternalServerError, "Failed to load run status")
	default:
		respondJSON(w, http.StatusOK, run)
	}
}

// Latest handles GET /rankings/latest
func (h *RankingsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	page, err := h.runs.LatestResults(r.Context(), parseResultQuery(r.URL.Query()))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest results")
		respondError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// Export handles GET /rankings/export?run_id=&format=excel|csv
func (h *RankingsHandler) Export(w http.ResponseWriter, r *http.Request) {
	runID, ok := optionalInt64(r, "run_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "run_id must be an integer")
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.runs.ExportRun(r.Context(), runID)
	if errors.Is(err, contracts.ErrNoCompletedRun) || errors.Is(err, contracts.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "No completed run to export")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve export run")
		respondError(w, http.StatusInternalServerError, "Failed to export")
		return
	}

	var buf bytes.Buffer
	if _, err := h.exporter.Write(r.Context(), &buf, run.ID, format); err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to export run")
		respondError(w, http.StatusInternalServerError, "Failed to export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(run.ID)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// parseResultQuery reads filter, sort and paging parameters.
// Malformed values fall back to defaults instead of failing the request.
func parseResultQuery(v url.Values) contracts.ResultQuery {
	q := contracts.ResultQuery{
		SortBy:   contracts.ParseSortField(v.Get("sortBy")),
		SortDir:  contracts.ParseSortDirection(v.Get("sortDir")),
		Page:     intParam(v, "page", 0),
		PageSize: intParam(v, "pageSize", defaultPageSize),
	}

	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	// latest resolution prefers a combined run and falls back to any mode
	q.FormulaMode = contracts.ModeBoth
	if mode, err := contracts.ParseFormulaMode(v.Get("formula_mode")); err == nil {
		q.FormulaMode = mode
	}

	for _, raw := range v["sectors"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Sectors = append(q.Sectors, s)
			}
		}
	}

	q.MarketCapMin = floatParam(v, "marketCapMin")
	q.MarketCapMax = floatParam(v, "marketCapMax")
	q.MinCompleteness = floatParam(v, "completeness")

	return q.Normalized()
}

func intParam(v url.Values, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.Get(key)))
	if err != nil {
		return def
	}
	return n
}

func floatParam(v url.Values, key string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Get(key)), 64)
	if err != nil {
		return nil
	}
	return &f
}
