// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pinpoint/uid-ops/reconcile"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements reconcile.TxStore with plain maps. WithTx snapshots
// the maps and restores them on error, giving the same all-or-nothing
// semantics as the SQLite store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]reconcile.Record
	plans   map[string]weekPlan
	bins    map[string]reconcile.Bin
}

type weekPlan struct {
	items     []reconcile.PlanItem
	updatedAt string
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]reconcile.Record),
		plans:   make(map[string]weekPlan),
		bins:    make(map[string]reconcile.Bin),
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) GetRecord(_ context.Context, id string) (*reconcile.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecordLocked(id), nil
}

func (m *Memory) getRecordLocked(id string) *reconcile.Record {
	if rec, ok := m.records[id]; ok {
		copied := rec
		return &copied
	}
	return nil
}

func (m *Memory) FindByUnitKey(_ context.Context, po, sku, uid string) (*reconcile.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByUnitKeyLocked(po, sku, uid), nil
}

func (m *Memory) findByUnitKeyLocked(po, sku, uid string) *reconcile.Record {
	// Deterministic winner when duplicates slipped in: lowest id.
	var found *reconcile.Record
	for _, rec := range m.records {
		if rec.PONumber == po && rec.SKUCode == sku && rec.UID == uid {
			if found == nil || rec.ID < found.ID {
				copied := rec
				found = &copied
			}
		}
	}
	return found
}

func (m *Memory) SaveRecord(_ context.Context, rec reconcile.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) DeleteByUnit(_ context.Context, sku, uid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteByUnitLocked(sku, uid), nil
}

func (m *Memory) deleteByUnitLocked(sku, uid string) int64 {
	var n int64
	for id, rec := range m.records {
		if rec.SKUCode == sku && rec.UID == uid {
			delete(m.records, id)
			n++
		}
	}
	return n
}

func (m *Memory) QueryRecords(_ context.Context, f reconcile.QueryFilter) ([]reconcile.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryRecordsLocked(f), nil
}

func (m *Memory) queryRecordsLocked(f reconcile.QueryFilter) []reconcile.Record {
	var out []reconcile.Record
	for _, rec := range m.records {
		if f.DateFrom != "" && rec.DateLocal < f.DateFrom {
			continue
		}
		if f.DateTo != "" && rec.DateLocal > f.DateTo {
			continue
		}
		if f.Status != "" && string(rec.Status) != f.Status {
			continue
		}
		out = append(out, rec)
	}

	// completed_at descending, never-completed last, id as stable tiebreak
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.CompletedAt == "") != (b.CompletedAt == "") {
			return a.CompletedAt != ""
		}
		if a.CompletedAt != b.CompletedAt {
			return a.CompletedAt > b.CompletedAt
		}
		return a.ID < b.ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) GetWeek(_ context.Context, weekStart string) ([]reconcile.PlanItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wp, ok := m.plans[weekStart]
	if !ok {
		return []reconcile.PlanItem{}, nil
	}
	items := make([]reconcile.PlanItem, len(wp.items))
	copy(items, wp.items)
	return items, nil
}

func (m *Memory) ReplaceWeek(_ context.Context, weekStart string, items []reconcile.PlanItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceWeekLocked(weekStart, items)
	return nil
}

func (m *Memory) replaceWeekLocked(weekStart string, items []reconcile.PlanItem) {
	stored := make([]reconcile.PlanItem, len(items))
	copy(stored, items)
	m.plans[weekStart] = weekPlan{
		items:     stored,
		updatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func (m *Memory) ListWeeks(_ context.Context, limit int) ([]reconcile.WeekInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	weeks := make([]reconcile.WeekInfo, 0, len(m.plans))
	for ws, wp := range m.plans {
		weeks = append(weeks, reconcile.WeekInfo{WeekStart: ws, UpdatedAt: wp.updatedAt})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekStart > weeks[j].WeekStart })
	if limit > 0 && len(weeks) > limit {
		weeks = weeks[:limit]
	}
	return weeks, nil
}

// =============================================================================
// BINS
// =============================================================================

func (m *Memory) SaveBins(_ context.Context, bins []reconcile.Bin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bins {
		m.bins[b.MobileBin] = b
	}
	return nil
}

func (m *Memory) ListBins(_ context.Context) ([]reconcile.Bin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bins := make([]reconcile.Bin, 0, len(m.bins))
	for _, b := range m.bins {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].MobileBin < bins[j].MobileBin })
	return bins, nil
}

// =============================================================================
// TRANSACTIONS - snapshot/restore
// =============================================================================

// WithTx runs fn against an unlocked view while holding the write lock.
// On error, the pre-transaction snapshot is restored.
func (m *Memory) WithTx(_ context.Context, fn func(reconcile.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapRecords := make(map[string]reconcile.Record, len(m.records))
	for k, v := range m.records {
		snapRecords[k] = v
	}
	snapPlans := make(map[string]weekPlan, len(m.plans))
	for k, v := range m.plans {
		snapPlans[k] = v
	}
	snapBins := make(map[string]reconcile.Bin, len(m.bins))
	for k, v := range m.bins {
		snapBins[k] = v
	}

	if err := fn(&memView{m}); err != nil {
		m.records = snapRecords
		m.plans = snapPlans
		m.bins = snapBins
		return err
	}
	return nil
}

// memView exposes the unlocked method variants inside WithTx.
type memView struct {
	m *Memory
}

func (v *memView) GetRecord(_ context.Context, id string) (*reconcile.Record, error) {
	return v.m.getRecordLocked(id), nil
}

func (v *memView) FindByUnitKey(_ context.Context, po, sku, uid string) (*reconcile.Record, error) {
	return v.m.findByUnitKeyLocked(po, sku, uid), nil
}

func (v *memView) SaveRecord(_ context.Context, rec reconcile.Record) error {
	v.m.records[rec.ID] = rec
	return nil
}

func (v *memView) DeleteRecord(_ context.Context, id string) error {
	delete(v.m.records, id)
	return nil
}

func (v *memView) DeleteByUnit(_ context.Context, sku, uid string) (int64, error) {
	return v.m.deleteByUnitLocked(sku, uid), nil
}

func (v *memView) QueryRecords(_ context.Context, f reconcile.QueryFilter) ([]reconcile.Record, error) {
	return v.m.queryRecordsLocked(f), nil
}

func (v *memView) GetWeek(_ context.Context, weekStart string) ([]reconcile.PlanItem, error) {
	wp, ok := v.m.plans[weekStart]
	if !ok {
		return []reconcile.PlanItem{}, nil
	}
	items := make([]reconcile.PlanItem, len(wp.items))
	copy(items, wp.items)
	return items, nil
}

func (v *memView) ReplaceWeek(_ context.Context, weekStart string, items []reconcile.PlanItem) error {
	v.m.replaceWeekLocked(weekStart, items)
	return nil
}

func (v *memView) ListWeeks(_ context.Context, limit int) ([]reconcile.WeekInfo, error) {
	weeks := make([]reconcile.WeekInfo, 0, len(v.m.plans))
	for ws, wp := range v.m.plans {
		weeks = append(weeks, reconcile.WeekInfo{WeekStart: ws, UpdatedAt: wp.updatedAt})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekStart > weeks[j].WeekStart })
	if limit > 0 && len(weeks) > limit {
		weeks = weeks[:limit]
	}
	return weeks, nil
}

func (v *memView) SaveBins(_ context.Context, bins []reconcile.Bin) error {
	for _, b := range bins {
		v.m.bins[b.MobileBin] = b
	}
	return nil
}

func (v *memView) ListBins(_ context.Context) ([]reconcile.Bin, error) {
	bins := make([]reconcile.Bin, 0, len(v.m.bins))
	for _, b := range v.m.bins {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].MobileBin < bins[j].MobileBin })
	return bins, nil
}
