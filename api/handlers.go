/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Records:
    PATCH  /api/records/{id}        Field-level edit from live scanning
    GET    /api/records             Query by date range / status
    POST   /api/records             Create-or-upsert one full record
    POST   /api/records/bulk        Bulk import, all-or-nothing
    DELETE /api/records             Delete by (sku_code, uid) pairs
    DELETE /api/records/{id}        Delete one record by id

  Plan:
    GET    /api/plan/weeks          Known plan weeks
    GET    /api/plan/weeks/{monday} One week's plan
    PUT    /api/plan/weeks/{monday} Replace the week wholesale
    DELETE /api/plan/weeks/{monday} Zero the week
    GET    /api/plan/active_monday  Current week anchor

  Analytics:
    GET    /api/analytics/weeks/{monday}          Full metrics bundle
    GET    /api/analytics/weeks/{monday}/timeline Milestone timeline

  Other:
    GET    /api/bins                Bin weights
    PUT    /api/bins                Upsert bin weights
    GET    /api/export/xlsx         Spreadsheet of a day's records
    GET    /api/events/scan         Completion events (SSE)
    GET    /api/health              Liveness

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, analytics, timeline)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go:    Request/response data structures
  - sse.go:    Completion event streaming
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pinpoint/uid-ops/export"
	"github.com/pinpoint/uid-ops/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *reconcile.Engine
	Bus    *reconcile.Bus
	Cal    *reconcile.Calendar
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *reconcile.Engine, bus *reconcile.Bus, cal *reconcile.Calendar) *Handler {
	return &Handler{Engine: engine, Bus: bus, Cal: cal}
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

// PatchRecord applies one field edit to a record, creating it on first
// touch.
// PATCH /api/records/{id}
func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "record id is required", nil)
		return
	}

	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Engine.PatchField(r.Context(), id, req.Field, req.Value)
	if err != nil {
		status := http.StatusInternalServerError
		if reconcile.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "failed to patch record", err)
		return
	}

	writeJSON(w, http.StatusOK, PatchResponse{
		OK:               res.OK,
		DuplicateIgnored: res.DuplicateIgnored,
		Record:           toRecordDTO(res.Record),
	})
}

// ListRecords queries records by date range and status.
// GET /api/records?date_from=&date_to=&date=&status=&limit=
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := reconcile.QueryFilter{
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
		Status:   q.Get("status"),
	}
	// A bare date parameter pins both ends of the range.
	if d := q.Get("date"); d != "" {
		filter.DateFrom = d
		filter.DateTo = d
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		filter.Limit = n
	}

	records, err := h.Engine.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query records", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetRecord returns one record by id.
// GET /api/records/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Engine.GetRecord(r.Context(), id)
	if err != nil {
		if reconcile.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "record not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get record", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// CreateRecord creates or upserts one full record keyed on
// (po_number, sku_code, uid).
// POST /api/records
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, err := h.Engine.CreateOrUpsert(r.Context(), reconcile.NormalizeRow(raw))
	if err != nil {
		status := http.StatusInternalServerError
		if reconcile.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "failed to upsert record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// BulkRecords imports a batch of rows in one all-or-nothing
// transaction. Rows missing key fields are skipped, not fatal.
// POST /api/records/bulk
func (h *Handler) BulkRecords(w http.ResponseWriter, r *http.Request) {
	var rows []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Engine.BulkUpsert(r.Context(), rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to import records", err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResponse{Applied: res.Applied, Skipped: res.Skipped})
}

// DeleteUnits removes records by (sku_code, uid) pairs, atomically.
// DELETE /api/records
func (h *Handler) DeleteUnits(w http.ResponseWriter, r *http.Request) {
	var req DeleteUnitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Units) == 0 {
		writeError(w, http.StatusBadRequest, "units is required", nil)
		return
	}

	n, err := h.Engine.DeleteUnits(r.Context(), req.Units)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete records", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// DeleteRecord removes one record by id. Idempotent.
// DELETE /api/records/{id}
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.DeleteRecordByID(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete record", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: 1})
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportXLSX streams a spreadsheet of one day's records.
// GET /api/export/xlsx?date=YYYY-MM-DD
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.Cal.Today()
	}
	if _, err := reconcile.ParseYMD(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	records, err := h.Engine.Query(r.Context(), reconcile.QueryFilter{DateFrom: date, DateTo: date})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query records", err)
		return
	}

	wb, err := export.Workbook(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build workbook", err)
		return
	}
	defer wb.Close()

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="uids_%s.xlsx"`, date))
	if err := wb.Write(w); err != nil {
		// Headers already sent; nothing to do but log via middleware.
		return
	}
}

// =============================================================================
// PLAN ENDPOINTS
// =============================================================================

// ListWeeks returns known plan weeks, most recent first.
// GET /api/plan/weeks?limit=
func (h *Handler) ListWeeks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	weeks, err := h.Engine.ListWeeks(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list weeks", err)
		return
	}
	if weeks == nil {
		weeks = []reconcile.WeekInfo{}
	}
	writeJSON(w, http.StatusOK, weeks)
}

// GetWeek returns one week's plan; an empty set when none stored.
// GET /api/plan/weeks/{monday}
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	monday, ok := h.weekParam(w, r)
	if !ok {
		return
	}

	items, err := h.Engine.GetWeek(r.Context(), monday)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanWeekResponse{WeekStart: monday, Items: toPlanItemDTOs(items)})
}

// PutWeek replaces a week's plan wholesale and echoes the normalized
// set actually stored.
// PUT /api/plan/weeks/{monday}
func (h *Handler) PutWeek(w http.ResponseWriter, r *http.Request) {
	monday, ok := h.weekParam(w, r)
	if !ok {
		return
	}

	var req PlanPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	items, err := h.Engine.PutWeek(r.Context(), monday, req.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanWeekResponse{WeekStart: monday, Items: toPlanItemDTOs(items)})
}

// DeleteWeek zeroes a week's plan. The week stays listed with an empty
// set rather than disappearing.
// DELETE /api/plan/weeks/{monday}
func (h *Handler) DeleteWeek(w http.ResponseWriter, r *http.Request) {
	monday, ok := h.weekParam(w, r)
	if !ok {
		return
	}

	if err := h.Engine.ZeroWeek(r.Context(), monday); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to zero plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanWeekResponse{WeekStart: monday, Items: []PlanItemDTO{}})
}

// ActiveMonday returns the Monday anchoring the current business week,
// optionally resolved in a caller-supplied timezone.
// GET /api/plan/active_monday?tz=
func (h *Handler) ActiveMonday(w http.ResponseWriter, r *http.Request) {
	cal := h.Cal
	if tz := r.URL.Query().Get("tz"); tz != "" {
		override, err := cal.InZone(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timezone", err)
			return
		}
		cal = override
	}
	writeJSON(w, http.StatusOK, ActiveMondayResponse{ActiveMonday: cal.ActiveMonday()})
}

// weekParam validates the {monday} URL segment: a real date that is
// actually a Monday.
func (h *Handler) weekParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	monday := chi.URLParam(r, "monday")
	t, err := reconcile.ParseYMD(monday)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid week start date", err)
		return "", false
	}
	if t.Weekday() != time.Monday {
		writeError(w, http.StatusBadRequest, "week start must be a Monday", nil)
		return "", false
	}
	return monday, true
}

// =============================================================================
// BIN ENDPOINTS
// =============================================================================

// ListBins returns all known bin weights.
// GET /api/bins
func (h *Handler) ListBins(w http.ResponseWriter, r *http.Request) {
	bins, err := h.Engine.Bins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bins", err)
		return
	}
	writeJSON(w, http.StatusOK, toBinDTOs(bins))
}

// PutBins upserts bin weights.
// PUT /api/bins
func (h *Handler) PutBins(w http.ResponseWriter, r *http.Request) {
	var req BinsPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Engine.PutBins(r.Context(), req.Bins); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store bins", err)
		return
	}

	bins, err := h.Engine.Bins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bins", err)
		return
	}
	writeJSON(w, http.StatusOK, toBinDTOs(bins))
}

// =============================================================================
// ANALYTICS ENDPOINTS
// =============================================================================

// WeekMetrics recomputes the full analytics bundle for a week.
// GET /api/analytics/weeks/{monday}
func (h *Handler) WeekMetrics(w http.ResponseWriter, r *http.Request) {
	monday, ok := h.weekParam(w, r)
	if !ok {
		return
	}

	metrics, err := h.Engine.Metrics(r.Context(), monday)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// WeekTimeline reconstructs the milestone timeline for a week.
// Operator-entered actual dates arrive as query overrides.
// GET /api/analytics/weeks/{monday}/timeline?baseline_actual=&inventory_actual=&processing_actual=&dispatched_actual=&progress_pct=
func (h *Handler) WeekTimeline(w http.ResponseWriter, r *http.Request) {
	monday, ok := h.weekParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	ov := reconcile.MilestoneOverrides{
		BaselineActual:   q.Get("baseline_actual"),
		InventoryActual:  q.Get("inventory_actual"),
		ProcessingActual: q.Get("processing_actual"),
		DispatchedActual: q.Get("dispatched_actual"),
	}
	if p := q.Get("progress_pct"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid progress_pct", nil)
			return
		}
		ov.ProgressPct = &n
	}

	writeJSON(w, http.StatusOK, reconcile.BuildTimeline(monday, ov))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.Cal.Now().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
