package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpoint/uid-ops/reconcile"
	"github.com/pinpoint/uid-ops/reconcile/store"
)

var handlerClock = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cal, err := reconcile.NewFixedCalendar("UTC", handlerClock)
	require.NoError(t, err)

	bus := reconcile.NewBus()
	engine := reconcile.NewEngine(store.NewMemory(), bus, cal)
	h := NewHandler(engine, bus, cal)

	srv := httptest.NewServer(NewRouter(h, "*"))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var health HealthResponse
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "2025-03-03T10:00:00Z", health.Time)
}

func TestPatchRecordFlow(t *testing.T) {
	srv := newTestServer(t)

	var out PatchResponse
	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/records/r1",
		PatchRequest{Field: "po_number", Value: "PO-100"}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.OK)
	assert.Equal(t, "draft", out.Record.Status)
	assert.Equal(t, "2025-03-03", out.Record.DateLocal)

	for field, value := range map[string]string{
		"sku_code": "SKU-1", "uid": "U-001", "mobile_bin": "BIN-7",
	} {
		resp = doJSON(t, http.MethodPatch, srv.URL+"/api/records/r1",
			PatchRequest{Field: field, Value: value}, &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, "complete", out.Record.Status)
	assert.NotEmpty(t, out.Record.CompletedAt)
}

func TestPatchRecordInvalidField(t *testing.T) {
	srv := newTestServer(t)

	var out ErrorResponse
	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/records/r1",
		PatchRequest{Field: "status", Value: "complete"}, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, out.Error)
}

func TestPatchDuplicateReportsOwner(t *testing.T) {
	srv := newTestServer(t)
	seedComplete(t, srv, "r1", "PO-100", "SKU-1", "U-001")

	for field, value := range map[string]string{
		"po_number": "PO-100", "sku_code": "SKU-1",
	} {
		doJSON(t, http.MethodPatch, srv.URL+"/api/records/r2",
			PatchRequest{Field: field, Value: value}, nil)
	}

	var out PatchResponse
	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/records/r2",
		PatchRequest{Field: "uid", Value: "U-001"}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.OK)
	assert.True(t, out.DuplicateIgnored)
	assert.Equal(t, "r1", out.Record.ID)
}

func TestCreateAndListRecords(t *testing.T) {
	srv := newTestServer(t)

	var created RecordDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/records", map[string]any{
		"po_number": "PO-100", "sku_code": "SKU-1", "uid": "U-001",
		"mobile_bin": "BIN-7", "date_local": "2025-03-04",
	}, &created)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "complete", created.Status)

	var listed []RecordDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/records?date=2025-03-04", nil, &listed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/records?date=2025-03-05", nil, &listed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, listed)
}

func TestCreateRecordMissingKeys(t *testing.T) {
	srv := newTestServer(t)

	var out ErrorResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/records",
		map[string]any{"po_number": "PO-100"}, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBulkImport(t *testing.T) {
	srv := newTestServer(t)

	var out BulkResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/records/bulk", []map[string]any{
		{"PO Number": "PO-100", "SKU": "SKU-1", "UID": "U-001", "Box": "BIN-7"},
		{"po_number": "PO-100", "sku_code": "SKU-1"}, // missing uid
	}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Applied)
	assert.Equal(t, 1, out.Skipped)
}

func TestDeleteUnits(t *testing.T) {
	srv := newTestServer(t)
	seedComplete(t, srv, "r1", "PO-100", "SKU-1", "U-001")

	var out DeleteResponse
	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/records", DeleteUnitsRequest{
		Units: []reconcile.UnitKey{{SKUCode: "SKU-1", UID: "U-001"}},
	}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), out.Deleted)

	var errOut ErrorResponse
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/records",
		DeleteUnitsRequest{}, &errOut)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlanWeekRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	var put PlanWeekResponse
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/plan/weeks/2025-03-03", PlanPutRequest{
		Rows: []reconcile.PlanRowInput{
			{PONumber: "PO-100", SKUCode: "SKU-1", DueDate: "2025-03-06", TargetQty: 40.0},
			{PONumber: "PO-200", SKUCode: "SKU-2"}, // no due date, dropped
		},
	}, &put)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, put.Items, 1)
	assert.Equal(t, 40.0, put.Items[0].TargetQty)
	assert.Equal(t, "2025-03-03", put.Items[0].StartDate)

	var got PlanWeekResponse
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/plan/weeks/2025-03-03", nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, put.Items, got.Items)

	var weeks []reconcile.WeekInfo
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/plan/weeks", nil, &weeks)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, weeks, 1)

	var zeroed PlanWeekResponse
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/plan/weeks/2025-03-03", nil, &zeroed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, zeroed.Items)
}

func TestPlanWeekValidation(t *testing.T) {
	srv := newTestServer(t)

	var out ErrorResponse
	// Not a Monday.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/plan/weeks/2025-03-04", nil, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Not a date at all.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/plan/weeks/garbage", nil, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActiveMonday(t *testing.T) {
	srv := newTestServer(t)

	var out ActiveMondayResponse
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/plan/active_monday", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2025-03-03", out.ActiveMonday)

	// Samoa is still in the prior business week at 10:00 UTC Monday.
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/plan/active_monday?tz=Pacific/Pago_Pago", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2025-02-24", out.ActiveMonday)

	var errOut ErrorResponse
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/plan/active_monday?tz=Nowhere/Nothing", nil, &errOut)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRecordByID(t *testing.T) {
	srv := newTestServer(t)
	seedComplete(t, srv, "r1", "PO-100", "SKU-1", "U-001")

	var rec RecordDTO
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/records/r1", nil, &rec)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "complete", rec.Status)

	var out ErrorResponse
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/records/ghost", nil, &out)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBinsRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	var out []BinDTO
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/bins", map[string]any{
		"bins": []map[string]any{
			{"mobile_bin": "B1", "weight_kg": 14.5},
			{"mobile_bin": "  ", "weight_kg": 3}, // blank id dropped
		},
	}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out, 1)
	assert.Equal(t, "B1", out[0].MobileBin)
	assert.Equal(t, 14.5, out[0].WeightKG)
}

func TestWeekMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPut, srv.URL+"/api/plan/weeks/2025-03-03", PlanPutRequest{
		Rows: []reconcile.PlanRowInput{
			{PONumber: "PO-100", SKUCode: "SKU-1", DueDate: "2025-03-06", TargetQty: 2.0},
		},
	}, nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/records", map[string]any{
		"po_number": "PO-100", "sku_code": "SKU-1", "uid": "U-001",
		"mobile_bin": "BIN-7", "date_local": "2025-03-04",
	}, nil)

	var m reconcile.Metrics
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/analytics/weeks/2025-03-03", nil, &m)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, m.AppliedTotal)
	assert.Equal(t, 50, m.CompletionPct)
	assert.Len(t, m.Radar.Axes, 6)
}

func TestWeekTimelineEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var tl reconcile.Timeline
	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/analytics/weeks/2025-03-03/timeline?inventory_actual=2025-03-04&progress_pct=45",
		nil, &tl)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, tl.Milestones, 4)
	assert.Equal(t, "2025-03-04", tl.Milestones[1].Actual)
	require.NotNil(t, tl.ProgressPct)
	assert.Equal(t, 45, *tl.ProgressPct)

	var out ErrorResponse
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/analytics/weeks/2025-03-03/timeline?progress_pct=lots", nil, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportXLSXHeaders(t *testing.T) {
	srv := newTestServer(t)
	seedComplete(t, srv, "r1", "PO-100", "SKU-1", "U-001")

	resp, err := http.Get(srv.URL + "/api/export/xlsx?date=2025-03-03")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "uids_2025-03-03.xlsx")

	resp, err = http.Get(srv.URL + "/api/export/xlsx?date=banana")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func seedComplete(t *testing.T, srv *httptest.Server, id, po, sku, uid string) {
	t.Helper()
	for field, value := range map[string]string{
		"po_number": po, "sku_code": sku, "uid": uid, "mobile_bin": "BIN-7",
	} {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/api/records/"+id,
			PatchRequest{Field: field, Value: value}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
