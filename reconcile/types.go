/*
Package reconcile provides the plan-vs-actual reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  unit-level scan completion ("UID" events) against a weekly production
  plan: the idempotent record lifecycle, the weekly plan normalization
  rules, and the analytics that compare planned targets to applied work.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record:   One physical scanned unit, keyed by a surrogate id with a
              (po_number, sku_code, uid) natural key
  - PlanItem: One planned unit-of-work inside a Monday-anchored week
  - Bin:      Container weight data used for heavy-bin risk scoring
  - UnitKey:  The (sku_code, uid) pair used for duplicate remediation

DESIGN PRINCIPLES:
  1. Monotonic completion: a record never regresses from complete to draft
  2. Precision: decimal.Decimal for plan quantities and bin weights
  3. Stable natural key: (po_number, sku_code, uid) is the dedup boundary
  4. Whole-week-replace: plans are never merged at line-item level

SEE ALSO:
  - merge.go:     Completeness predicate and upsert merge rules
  - engine.go:    Record mutation orchestration
  - analytics.go: Metrics derived from plan + records + bins
*/
package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - One physical scanned unit
// =============================================================================

// Status is the record completion state. It only ever moves forward.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusComplete Status = "complete"
)

// SyncState reflects whether the record's current values have been durably
// merged via the upsert path.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncUnknown SyncState = "unknown"
)

// Record is one physical scanned unit. DateLocal is a business-calendar
// date (YYYY-MM-DD); CompletedAt is an RFC3339 timestamp, empty until the
// record first becomes complete and immutable afterwards.
type Record struct {
	ID          string
	DateLocal   string
	MobileBin   string
	SSCCLabel   string
	PONumber    string
	SKUCode     string
	UID         string
	Status      Status
	CompletedAt string
	SyncState   SyncState
}

// HasUnitKey reports whether all three natural-key fields are populated.
// Only records with a full key participate in deduplication.
func (r Record) HasUnitKey() bool {
	return strings.TrimSpace(r.PONumber) != "" &&
		strings.TrimSpace(r.SKUCode) != "" &&
		strings.TrimSpace(r.UID) != ""
}

// UnitKey identifies records for duplicate remediation: deletes are keyed
// on (sku_code, uid), not the full natural key.
type UnitKey struct {
	SKUCode string `json:"sku_code"`
	UID     string `json:"uid"`
}

// QueryFilter selects records by business-date range and status.
// A zero Limit means no cap.
type QueryFilter struct {
	DateFrom string
	DateTo   string
	Status   string
	Limit    int
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

// PlanItem is one normalized plan line-item. TargetQty is always
// non-negative; malformed input coerces to zero during normalization.
type PlanItem struct {
	PONumber  string          `json:"po_number"`
	SKUCode   string          `json:"sku_code"`
	StartDate string          `json:"start_date"`
	DueDate   string          `json:"due_date"`
	TargetQty decimal.Decimal `json:"target_qty"`
	Priority  string          `json:"priority,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// PlanRowInput is a raw incoming plan row before normalization.
// TargetQty accepts a JSON number or string.
type PlanRowInput struct {
	PONumber  string `json:"po_number"`
	SKUCode   string `json:"sku_code"`
	StartDate string `json:"start_date"`
	DueDate   string `json:"due_date"`
	TargetQty any    `json:"target_qty"`
	Priority  string `json:"priority"`
	Notes     string `json:"notes"`
}

// WeekInfo is a known plan week with its last-updated timestamp.
type WeekInfo struct {
	WeekStart string `json:"week_start"`
	UpdatedAt string `json:"updated_at"`
}

// NormalizePlanRows applies the plan intake rules: trim strings, coerce
// target_qty to a non-negative decimal defaulting to zero, default
// start_date to the week start, and drop rows missing po/sku/due_date.
func NormalizePlanRows(weekStart string, rows []PlanRowInput) []PlanItem {
	items := make([]PlanItem, 0, len(rows))
	for _, r := range rows {
		item := PlanItem{
			PONumber:  strings.TrimSpace(r.PONumber),
			SKUCode:   strings.TrimSpace(r.SKUCode),
			StartDate: strings.TrimSpace(r.StartDate),
			DueDate:   strings.TrimSpace(r.DueDate),
			TargetQty: coerceQty(r.TargetQty),
			Priority:  strings.TrimSpace(r.Priority),
			Notes:     strings.TrimSpace(r.Notes),
		}
		if item.PONumber == "" || item.SKUCode == "" || item.DueDate == "" {
			continue
		}
		if item.StartDate == "" {
			item.StartDate = weekStart
		}
		items = append(items, item)
	}
	return items
}

func coerceQty(v any) decimal.Decimal {
	var d decimal.Decimal
	switch q := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		d = decimal.NewFromFloat(q)
	case int:
		d = decimal.NewFromInt(int64(q))
	case int64:
		d = decimal.NewFromInt(q)
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(q))
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// BIN - External collaborator data, read-only to the core
// =============================================================================

// Bin carries the weight of one mobile bin. Bins over the heavy threshold
// feed the heavy-bin risk signal.
type Bin struct {
	MobileBin string          `json:"mobile_bin"`
	WeightKG  decimal.Decimal `json:"weight_kg"`
}

// HeavyBinThresholdKG is the weight above which a bin counts as heavy.
var HeavyBinThresholdKG = decimal.NewFromInt(12)

// IsHeavy reports whether the bin exceeds the heavy threshold.
func (b Bin) IsHeavy() bool {
	return b.WeightKG.GreaterThan(HeavyBinThresholdKG)
}
