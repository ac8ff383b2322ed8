/*
dto.go - Request/response data structures

PURPOSE:
  Data Transfer Objects decouple the wire format from domain types. The
  domain keeps decimal.Decimal and typed enums internally; the API emits
  plain JSON numbers and strings.

CONVENTIONS:
  - snake_case field names
  - dates as YYYY-MM-DD strings, timestamps as RFC3339
  - plan quantities and bin weights as JSON numbers
*/
package api

import (
	"github.com/pinpoint/uid-ops/reconcile"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordDTO is the wire shape of one scan record.
type RecordDTO struct {
	ID          string `json:"id"`
	DateLocal   string `json:"date_local"`
	MobileBin   string `json:"mobile_bin"`
	SSCCLabel   string `json:"sscc_label"`
	PONumber    string `json:"po_number"`
	SKUCode     string `json:"sku_code"`
	UID         string `json:"uid"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
	SyncState   string `json:"sync_state"`
}

func toRecordDTO(r reconcile.Record) RecordDTO {
	return RecordDTO{
		ID:          r.ID,
		DateLocal:   r.DateLocal,
		MobileBin:   r.MobileBin,
		SSCCLabel:   r.SSCCLabel,
		PONumber:    r.PONumber,
		SKUCode:     r.SKUCode,
		UID:         r.UID,
		Status:      string(r.Status),
		CompletedAt: r.CompletedAt,
		SyncState:   string(r.SyncState),
	}
}

func toRecordDTOs(records []reconcile.Record) []RecordDTO {
	dtos := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, toRecordDTO(r))
	}
	return dtos
}

// PatchRequest edits one field of one record.
type PatchRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// PatchResponse reports the resulting record. When the edit collided
// with an existing (po, sku, uid) owner, duplicate_ignored is true and
// record holds the pre-existing owner, unmodified.
type PatchResponse struct {
	OK               bool      `json:"ok"`
	DuplicateIgnored bool      `json:"duplicate_ignored,omitempty"`
	Record           RecordDTO `json:"record"`
}

// BulkResponse summarizes a bulk import.
type BulkResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// DeleteUnitsRequest removes records by (sku_code, uid) pairs.
type DeleteUnitsRequest struct {
	Units []reconcile.UnitKey `json:"units"`
}

// DeleteResponse reports how many rows a delete removed.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

// PlanItemDTO is the wire shape of one plan line-item.
type PlanItemDTO struct {
	PONumber  string  `json:"po_number"`
	SKUCode   string  `json:"sku_code"`
	StartDate string  `json:"start_date"`
	DueDate   string  `json:"due_date"`
	TargetQty float64 `json:"target_qty"`
	Priority  string  `json:"priority,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func toPlanItemDTOs(items []reconcile.PlanItem) []PlanItemDTO {
	dtos := make([]PlanItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, PlanItemDTO{
			PONumber:  it.PONumber,
			SKUCode:   it.SKUCode,
			StartDate: it.StartDate,
			DueDate:   it.DueDate,
			TargetQty: it.TargetQty.InexactFloat64(),
			Priority:  it.Priority,
			Notes:     it.Notes,
		})
	}
	return dtos
}

// PlanPutRequest replaces a week's plan wholesale.
type PlanPutRequest struct {
	Rows []reconcile.PlanRowInput `json:"rows"`
}

// PlanWeekResponse is the stored plan for one week.
type PlanWeekResponse struct {
	WeekStart string        `json:"week_start"`
	Items     []PlanItemDTO `json:"items"`
}

// ActiveMondayResponse carries the Monday anchoring the current
// business week.
type ActiveMondayResponse struct {
	ActiveMonday string `json:"active_monday"`
}

// =============================================================================
// BINS
// =============================================================================

// BinDTO is the wire shape of one bin weight.
type BinDTO struct {
	MobileBin string  `json:"mobile_bin"`
	WeightKG  float64 `json:"weight_kg"`
}

// BinsPutRequest upserts bin weights.
type BinsPutRequest struct {
	Bins []reconcile.Bin `json:"bins"`
}

func toBinDTOs(bins []reconcile.Bin) []BinDTO {
	dtos := make([]BinDTO, 0, len(bins))
	for _, b := range bins {
		dtos = append(dtos, BinDTO{
			MobileBin: b.MobileBin,
			WeightKG:  b.WeightKG.InexactFloat64(),
		})
	}
	return dtos
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
