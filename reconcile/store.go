/*
store.go - Persistence interface for records, plans and bins

PURPOSE:
  Defines the interface between the reconciliation engine and the
  database. Different implementations can use SQLite or in-memory
  storage; the engine only sees these contracts.

KEY INTERFACES:
  Store:   Row-level reads and writes for all three tables
  TxStore: Store plus atomic multi-row execution (bulk upsert, batched
           deletes, whole-week plan replace)

MERGE LIVES IN THE ENGINE:
  SaveRecord is a full-row write. Upsert merge decisions are made by
  MergeRecords before the row reaches the store, so the storage layer
  stays a dumb row mover.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - reconcile/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: The only consumer of these interfaces
*/
package reconcile

import "context"

// Store handles persistence of records, weekly plans and bin weights.
type Store interface {
	// GetRecord returns a record by surrogate id, or nil when absent.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// FindByUnitKey returns the record owning a natural key, or nil.
	FindByUnitKey(ctx context.Context, po, sku, uid string) (*Record, error)

	// SaveRecord inserts or fully replaces a record row.
	SaveRecord(ctx context.Context, rec Record) error

	// DeleteRecord removes a record by id. Missing ids are not an error.
	DeleteRecord(ctx context.Context, id string) error

	// DeleteByUnit removes all records matching (sku_code, uid) and
	// returns the count. Zero matches is a valid outcome, not an error.
	DeleteByUnit(ctx context.Context, sku, uid string) (int64, error)

	// QueryRecords returns matching records ordered by completed_at
	// descending with NULLs last; the ordering is stable for paging.
	QueryRecords(ctx context.Context, f QueryFilter) ([]Record, error)

	// GetWeek returns the plan line-items for a week; empty when absent.
	GetWeek(ctx context.Context, weekStart string) ([]PlanItem, error)

	// ReplaceWeek atomically replaces the entire stored set for a week.
	ReplaceWeek(ctx context.Context, weekStart string, items []PlanItem) error

	// ListWeeks returns known weeks, most recent first, capped at limit.
	ListWeeks(ctx context.Context, limit int) ([]WeekInfo, error)

	// SaveBins upserts bin weights keyed by mobile_bin.
	SaveBins(ctx context.Context, bins []Bin) error

	// ListBins returns all known bin weights.
	ListBins(ctx context.Context) ([]Bin, error)
}

// TxStore adds atomic multi-row execution. The function receives a Store
// view scoped to one transaction; returning an error rolls everything
// back so partial application is impossible.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
