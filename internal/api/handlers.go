package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/leasepay/reconciler/internal/config"
	"github.com/leasepay/reconciler/internal/ingestion"
	"github.com/leasepay/reconciler/internal/matching"
	"github.com/leasepay/reconciler/internal/reconciliation"
	"github.com/leasepay/reconciler/internal/repository"
)

// maxBodyBytes caps a reconciliation request body.
const maxBodyBytes = 32 << 20

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	reconSvc *reconciliation.Service
	runRepo  *repository.RunRepo
	excRepo  *repository.ExceptionRepo
	log      logrus.FieldLogger
}

// runRequest is the body of POST /reconciliations.
type runRequest struct {
	ingestion.Batch
	Options *runOptions `json:"options,omitempty"`
}

type runOptions struct {
	ReferenceStripPrefixes []string   `json:"reference_strip_prefixes,omitempty"`
	ToleranceMinorUnits    *int64     `json:"tolerance_minor_units,omitempty"`
	FuzzyWindowHours       *int64     `json:"fuzzy_window_hours,omitempty"`
	AsOf                   *time.Time `json:"as_of,omitempty"`
}

func (o *runOptions) matchingOptions() []matching.Option {
	if o == nil {
		return nil
	}
	var opts []matching.Option
	if o.ReferenceStripPrefixes != nil {
		opts = append(opts, matching.WithReferencePrefixes(o.ReferenceStripPrefixes...))
	}
	if o.ToleranceMinorUnits != nil {
		opts = append(opts, matching.WithTolerance(*o.ToleranceMinorUnits))
	}
	if o.FuzzyWindowHours != nil {
		opts = append(opts, matching.WithFuzzyWindow(time.Duration(*o.FuzzyWindowHours)*time.Hour))
	}
	if o.AsOf != nil {
		opts = append(opts, matching.WithAsOf(*o.AsOf))
	}
	return opts
}

func (rr *runRequest) toRequest() reconciliation.Request {
	rr.FillTenant()
	return reconciliation.Request{
		TenantID: rr.TenantID,
		Payments: rr.Payments,
		Invoices: rr.Invoices,
		Options:  rr.Options.matchingOptions(),
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithField("component", "api").Errorf("encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeDecodeError maps JSON decoding failures. A fractional or out of range
// amount surfaces as a type error and is reported like any other invalid
// input.
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "invalid field " + typeErr.Field + ": expected " + typeErr.Type.String(),
		})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
}

// writeRunError maps service errors to status codes.
func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *matching.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    matching.ErrInvalidInput.Error(),
			"problems": verr.Problems,
		})
	case errors.Is(err, matching.ErrTenantMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		config.LogError(h.log, "api", "writeRunError", r.URL.Path, nil, err)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.DateOnly, s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- CreateRun ---

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	run, err := h.reconSvc.Run(r.Context(), body.toRequest())
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// --- CreateRuns ---

func (h *Handlers) CreateRuns(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Runs []runRequest `json:"runs"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(body.Runs) == 0 {
		writeError(w, http.StatusBadRequest, "runs must not be empty")
		return
	}

	reqs := make([]reconciliation.Request, len(body.Runs))
	for i := range body.Runs {
		reqs[i] = body.Runs[i].toRequest()
	}

	runs, err := h.reconSvc.RunAll(r.Context(), reqs)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"runs": runs})
}

// --- ListRuns ---

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RunFilter{
		TenantID: q.Get("tenant_id"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	runs, total, err := h.runRepo.List(r.Context(), filter)
	if err != nil {
		config.LogError(h.log, "api", "ListRuns", "list runs", filter, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// --- GetRun ---

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runRepo.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reconciliation run not found")
		return
	}
	if err != nil {
		config.LogError(h.log, "api", "GetRun", "get run", id, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// --- ListRunExceptions ---

func (h *Handlers) ListRunExceptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exists, err := h.runRepo.Exists(r.Context(), id)
	if err != nil {
		config.LogError(h.log, "api", "ListRunExceptions", "run exists", id, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "reconciliation run not found")
		return
	}

	q := r.URL.Query()
	filter := repository.ExceptionFilter{
		RunID:    id,
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	excs, total, err := h.excRepo.List(r.Context(), filter)
	if err != nil {
		config.LogError(h.log, "api", "ListRunExceptions", "list exceptions", filter, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Sum of deltas and amounts in the page, for quick triage.
	var pageAmount int64
	for _, e := range excs {
		if e.Amount != nil {
			pageAmount += *e.Amount
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exceptions":  excs,
		"total":       total,
		"page":        filter.Page,
		"limit":       filter.Limit,
		"page_amount": pageAmount,
	})
}

// --- GetExceptionSummary ---

func (h *Handlers) GetExceptionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.excRepo.GetSummary(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		config.LogError(h.log, "api", "GetExceptionSummary", "summary", nil, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
