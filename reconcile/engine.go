/*
engine.go - Reconciliation engine: record mutation orchestration

PURPOSE:
  Coordinates the record store, the merge rules and the completion bus.
  Every mutation path funnels through here: field-level patches from
  live scanning, single create/upsert, bulk import, duplicate cleanup,
  and the weekly plan writes.

COMPLETION EVENTS:
  Exactly one event fires per completion transition on the patch path,
  and one per batch on the bulk path. Field edits that do not complete
  a record emit nothing.

DUPLICATE POLICY (patch path):
  An edit producing a (po, sku, uid) triple owned by a different record
  is rejected: any shell created solely for the request is discarded and
  the caller receives the pre-existing record flagged duplicate-ignored.
  The upsert path instead resolves conflicts by merging.

SEE ALSO:
  - merge.go: IsComplete / MergeRecords
  - store.go: Persistence contracts
  - bus.go:   Completion signal fan-out
*/
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// patchableFields is the editable set for PatchField.
var patchableFields = map[string]bool{
	"date_local": true,
	"mobile_bin": true,
	"sscc_label": true,
	"po_number":  true,
	"sku_code":   true,
	"uid":        true,
}

// Engine owns the record/plan mutation paths.
type Engine struct {
	store TxStore
	bus   *Bus
	cal   *Calendar
}

// NewEngine wires the engine to its collaborators.
func NewEngine(store TxStore, bus *Bus, cal *Calendar) *Engine {
	return &Engine{store: store, bus: bus, cal: cal}
}

// =============================================================================
// RESULTS
// =============================================================================

// PatchResult is the outcome of a single field edit. When the edit was
// rejected as a duplicate, Record holds the pre-existing owner of the
// contested key, unmodified.
type PatchResult struct {
	Record           Record
	OK               bool
	DuplicateIgnored bool
}

// BulkResult summarizes a bulk import.
type BulkResult struct {
	Applied int
	Skipped int
}

// =============================================================================
// PATCH PATH - one field at a time, from live scanning
// =============================================================================

// PatchField applies one field edit to a record, creating a draft shell
// stamped with today's business date when the id is unknown. Completion
// is recomputed from the resulting record; the first transition into
// complete stamps completed_at and publishes a completion event.
func (e *Engine) PatchField(ctx context.Context, id, field, value string) (PatchResult, error) {
	if !patchableFields[field] {
		return PatchResult{}, &InvalidFieldError{Field: field}
	}

	var (
		result      PatchResult
		completedAt time.Time
		newly       bool
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			// Shell is built in memory and only persisted if the edit
			// survives the duplicate check, so a rejected request leaves
			// nothing behind.
			rec = &Record{
				ID:        id,
				DateLocal: e.cal.Today(),
				Status:    StatusDraft,
				SyncState: SyncUnknown,
			}
		}

		next := *rec
		e.applyField(&next, field, value)

		if next.HasUnitKey() {
			existing, err := s.FindByUnitKey(ctx, next.PONumber, next.SKUCode, next.UID)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != id {
				result = PatchResult{Record: *existing, DuplicateIgnored: true}
				return nil
			}
		}

		if next.Status != StatusComplete && IsComplete(next) {
			completedAt = e.cal.Now()
			next.Status = StatusComplete
			next.CompletedAt = completedAt.Format(time.RFC3339)
			newly = true
		}
		next.SyncState = SyncPending

		if err := s.SaveRecord(ctx, next); err != nil {
			return err
		}
		result = PatchResult{Record: next, OK: true}
		return nil
	})
	if err != nil {
		return PatchResult{}, err
	}

	if newly {
		e.bus.Publish(completedAt)
	}
	return result, nil
}

func (e *Engine) applyField(rec *Record, field, value string) {
	value = strings.TrimSpace(value)
	switch field {
	case "date_local":
		if value == "" {
			value = e.cal.Today()
		}
		rec.DateLocal = value
	case "mobile_bin":
		rec.MobileBin = value
	case "sscc_label":
		rec.SSCCLabel = value
	case "po_number":
		rec.PONumber = value
	case "sku_code":
		rec.SKUCode = value
	case "uid":
		rec.UID = value
	}
}

// =============================================================================
// UPSERT PATH - full rows, merged on the natural key
// =============================================================================

// CreateOrUpsert validates and applies one full record keyed on
// (po_number, sku_code, uid). On conflict the incoming row merges into
// the stored one: non-blank optional fields overwrite, status only
// escalates, completed_at is adopted once. The result is synced.
func (e *Engine) CreateOrUpsert(ctx context.Context, fields map[string]string) (Record, error) {
	if err := validateKeyFields(fields); err != nil {
		return Record{}, err
	}

	var result Record
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		result, err = e.upsertOne(ctx, s, fields)
		return err
	})
	if err != nil {
		return Record{}, err
	}

	if result.Status == StatusComplete {
		e.bus.Publish(parseCompletedAt(result.CompletedAt, e.cal.Now()))
	}
	return result, nil
}

// BulkUpsert applies upsert semantics to a batch inside one
// all-or-nothing transaction. Rows missing po/sku/uid are silently
// skipped. One completion event fires for the whole batch, timestamped
// at the last successfully applied row.
func (e *Engine) BulkUpsert(ctx context.Context, rows []map[string]any) (BulkResult, error) {
	var (
		res    BulkResult
		lastTS time.Time
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		for _, raw := range rows {
			fields := NormalizeRow(raw)
			if validateKeyFields(fields) != nil {
				res.Skipped++
				continue
			}
			rec, err := e.upsertOne(ctx, s, fields)
			if err != nil {
				return err
			}
			res.Applied++
			lastTS = parseCompletedAt(rec.CompletedAt, e.cal.Now())
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	if res.Applied > 0 {
		e.bus.Publish(lastTS)
	}
	return res, nil
}

func (e *Engine) upsertOne(ctx context.Context, s Store, fields map[string]string) (Record, error) {
	incoming := e.buildIncoming(fields)

	existing, err := s.FindByUnitKey(ctx, incoming.PONumber, incoming.SKUCode, incoming.UID)
	if err != nil {
		return Record{}, err
	}

	out := incoming
	if existing != nil {
		out = MergeRecords(*existing, incoming)
	}
	if err := s.SaveRecord(ctx, out); err != nil {
		return Record{}, err
	}
	return out, nil
}

// buildIncoming shapes a validated field map into a record. Completion
// is derived from the predicate; an incoming "complete" status is also
// honored so imports of historical rows keep their state.
func (e *Engine) buildIncoming(fields map[string]string) Record {
	rec := Record{
		ID:        fields["id"],
		DateLocal: fields["date_local"],
		MobileBin: fields["mobile_bin"],
		SSCCLabel: fields["sscc_label"],
		PONumber:  fields["po_number"],
		SKUCode:   fields["sku_code"],
		UID:       fields["uid"],
		Status:    StatusDraft,
		SyncState: SyncSynced,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DateLocal == "" {
		rec.DateLocal = e.cal.Today()
	}
	if fields["status"] == string(StatusComplete) || IsComplete(rec) {
		rec.Status = StatusComplete
		rec.CompletedAt = parseCompletedAt(fields["completed_at"], e.cal.Now()).Format(time.RFC3339)
	}
	return rec
}

func validateKeyFields(fields map[string]string) error {
	var missing []string
	for _, f := range []string{"po_number", "sku_code", "uid"} {
		if strings.TrimSpace(fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

func parseCompletedAt(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return ts
}

// =============================================================================
// QUERY & DELETE
// =============================================================================

// Query returns records matching the filter, most recently completed
// first with never-completed records last.
func (e *Engine) Query(ctx context.Context, f QueryFilter) ([]Record, error) {
	return e.store.QueryRecords(ctx, f)
}

// GetRecord returns one record by surrogate id.
func (e *Engine) GetRecord(ctx context.Context, id string) (Record, error) {
	rec, err := e.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// DeleteUnit removes every record matching (sku_code, uid) and returns
// the count. Deleting a non-existent pair returns 0, not an error.
func (e *Engine) DeleteUnit(ctx context.Context, sku, uid string) (int64, error) {
	return e.store.DeleteByUnit(ctx, sku, uid)
}

// DeleteUnits removes a batch of (sku_code, uid) pairs atomically.
func (e *Engine) DeleteUnits(ctx context.Context, keys []UnitKey) (int64, error) {
	var total int64
	err := e.store.WithTx(ctx, func(s Store) error {
		for _, k := range keys {
			n, err := s.DeleteByUnit(ctx, k.SKUCode, k.UID)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteRecordByID removes one record by surrogate id.
func (e *Engine) DeleteRecordByID(ctx context.Context, id string) error {
	return e.store.DeleteRecord(ctx, id)
}

// =============================================================================
// WEEKLY PLAN
// =============================================================================

// GetWeek returns the plan for a week; an empty list when none exists.
func (e *Engine) GetWeek(ctx context.Context, weekStart string) ([]PlanItem, error) {
	return e.store.GetWeek(ctx, weekStart)
}

// PutWeek normalizes the incoming rows and replaces the entire stored
// set for the week. Returns the normalized set actually stored.
func (e *Engine) PutWeek(ctx context.Context, weekStart string, rows []PlanRowInput) ([]PlanItem, error) {
	items := NormalizePlanRows(weekStart, rows)
	if err := e.store.ReplaceWeek(ctx, weekStart, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ZeroWeek replaces a week's plan with the empty set.
func (e *Engine) ZeroWeek(ctx context.Context, weekStart string) error {
	_, err := e.PutWeek(ctx, weekStart, nil)
	return err
}

// ListWeeks returns known plan weeks, most recent first.
func (e *Engine) ListWeeks(ctx context.Context, limit int) ([]WeekInfo, error) {
	if limit <= 0 {
		limit = 52
	}
	return e.store.ListWeeks(ctx, limit)
}

// =============================================================================
// BINS & METRICS
// =============================================================================

// PutBins upserts bin weights; rows without a bin id are dropped.
func (e *Engine) PutBins(ctx context.Context, bins []Bin) error {
	kept := make([]Bin, 0, len(bins))
	for _, b := range bins {
		b.MobileBin = strings.TrimSpace(b.MobileBin)
		if b.MobileBin == "" {
			continue
		}
		kept = append(kept, b)
	}
	return e.store.SaveBins(ctx, kept)
}

// Bins returns all known bin weights.
func (e *Engine) Bins(ctx context.Context) ([]Bin, error) {
	return e.store.ListBins(ctx)
}

// Metrics recomputes the analytics bundle for a week from the current
// contents of the plan, record and bin stores. Pure recomputation on
// every call; nothing is cached.
func (e *Engine) Metrics(ctx context.Context, weekStart string) (Metrics, error) {
	plan, err := e.store.GetWeek(ctx, weekStart)
	if err != nil {
		return Metrics{}, err
	}
	records, err := e.store.QueryRecords(ctx, QueryFilter{
		DateFrom: weekStart,
		DateTo:   WeekEnd(weekStart),
	})
	if err != nil {
		return Metrics{}, err
	}
	bins, err := e.store.ListBins(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(weekStart, plan, records, bins), nil
}
