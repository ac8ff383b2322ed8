/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements reconcile.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  records: One row per scanned unit; (po_number, sku_code, uid) is the
           dedup boundary, enforced by a partial unique index that only
           applies once all three fields are populated.
  plans:   One JSON payload per Monday-anchored week. Whole-week replace,
           never line-item merge.
  bins:    Mobile-bin weights for heavy-bin risk scoring.

ORDERING CONTRACT:
  Record queries order by completed_at DESC with NULLs last and a stable
  id tiebreak. Export and paging depend on this staying stable.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole transaction and hands callers an unlocked view, so multi-row
  mutations (bulk upsert, plan replace, batched deletes) are atomic and
  never re-enter the mutex.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/uid_ops.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - reconcile/store.go: Interface definitions
  - reconcile/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pinpoint/uid-ops/reconcile"
)

// Store implements reconcile.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every statement
// helper works identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from fragmenting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Scan records: one row per physical unit
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		date_local TEXT NOT NULL,
		mobile_bin TEXT NOT NULL DEFAULT '',
		sscc_label TEXT NOT NULL DEFAULT '',
		po_number TEXT NOT NULL DEFAULT '',
		sku_code TEXT NOT NULL DEFAULT '',
		uid TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		completed_at TEXT,
		sync_state TEXT NOT NULL DEFAULT 'unknown'
	);

	CREATE INDEX IF NOT EXISTS idx_records_date ON records(date_local);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	CREATE INDEX IF NOT EXISTS idx_records_po ON records(po_number);
	CREATE INDEX IF NOT EXISTS idx_records_sku ON records(sku_code);
	CREATE INDEX IF NOT EXISTS idx_records_completed ON records(completed_at DESC);

	-- CRITICAL: one live record per (po, sku, uid) triple. Partial so
	-- half-filled drafts never collide with each other.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_unit
		ON records(po_number, sku_code, uid)
		WHERE po_number <> '' AND sku_code <> '' AND uid <> '';

	-- Weekly plans: whole-week JSON payload, replaced wholesale
	CREATE TABLE IF NOT EXISTS plans (
		week_start TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Bin weights
	CREATE TABLE IF NOT EXISTS bins (
		mobile_bin TEXT PRIMARY KEY,
		weight_kg TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORDS
// =============================================================================

const recordColumns = `id, date_local, mobile_bin, sscc_label, po_number, sku_code, uid, status, completed_at, sync_state`

// GetRecord returns a record by id, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, id)
}

func getRecord(ctx context.Context, q querier, id string) (*reconcile.Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	return scanRecordRow(row)
}

// FindByUnitKey returns the record owning a (po, sku, uid) triple, or nil.
func (s *Store) FindByUnitKey(ctx context.Context, po, sku, uid string) (*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByUnitKey(ctx, s.db, po, sku, uid)
}

func findByUnitKey(ctx context.Context, q querier, po, sku, uid string) (*reconcile.Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE po_number = ? AND sku_code = ? AND uid = ? ORDER BY id LIMIT 1",
		po, sku, uid)
	return scanRecordRow(row)
}

// SaveRecord inserts or fully replaces a record row.
func (s *Store) SaveRecord(ctx context.Context, rec reconcile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRecord(ctx, s.db, rec)
}

func saveRecord(ctx context.Context, q querier, rec reconcile.Record) error {
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date_local = excluded.date_local,
			mobile_bin = excluded.mobile_bin,
			sscc_label = excluded.sscc_label,
			po_number = excluded.po_number,
			sku_code = excluded.sku_code,
			uid = excluded.uid,
			status = excluded.status,
			completed_at = excluded.completed_at,
			sync_state = excluded.sync_state
	`

	_, err := q.ExecContext(ctx, query,
		rec.ID, rec.DateLocal, rec.MobileBin, rec.SSCCLabel,
		rec.PONumber, rec.SKUCode, rec.UID,
		string(rec.Status), nullString(rec.CompletedAt), string(rec.SyncState),
	)
	if err != nil {
		return fmt.Errorf("%w: save record %s: %v", reconcile.ErrStorage, rec.ID, err)
	}
	return nil
}

// DeleteRecord removes one record by id. Unknown ids are a no-op.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRecord(ctx, s.db, id)
}

func deleteRecord(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete record %s: %v", reconcile.ErrStorage, id, err)
	}
	return nil
}

// DeleteByUnit removes all records matching (sku_code, uid) and returns
// how many were removed.
func (s *Store) DeleteByUnit(ctx context.Context, sku, uid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteByUnit(ctx, s.db, sku, uid)
}

func deleteByUnit(ctx context.Context, q querier, sku, uid string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"DELETE FROM records WHERE sku_code = ? AND uid = ?", sku, uid)
	if err != nil {
		return 0, fmt.Errorf("%w: delete unit (%s, %s): %v", reconcile.ErrStorage, sku, uid, err)
	}
	return res.RowsAffected()
}

// QueryRecords returns matching records ordered most recently completed
// first, never-completed records last.
func (s *Store) QueryRecords(ctx context.Context, f reconcile.QueryFilter) ([]reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, f)
}

func queryRecords(ctx context.Context, q querier, f reconcile.QueryFilter) ([]reconcile.Record, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE 1=1"
	var args []any

	if f.DateFrom != "" {
		query += " AND date_local >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += " AND date_local <= ?"
		args = append(args, f.DateTo)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}

	query += " ORDER BY completed_at IS NULL, completed_at DESC, id"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", reconcile.ErrStorage, err)
	}
	defer rows.Close()

	var records []reconcile.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (reconcile.Record, error) {
	var (
		rec               reconcile.Record
		status, syncState string
		completedAt       sql.NullString
	)
	err := rows.Scan(
		&rec.ID, &rec.DateLocal, &rec.MobileBin, &rec.SSCCLabel,
		&rec.PONumber, &rec.SKUCode, &rec.UID,
		&status, &completedAt, &syncState,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Status = reconcile.Status(status)
	rec.SyncState = reconcile.SyncState(syncState)
	rec.CompletedAt = completedAt.String
	return rec, nil
}

func scanRecordRow(row *sql.Row) (*reconcile.Record, error) {
	var (
		rec               reconcile.Record
		status, syncState string
		completedAt       sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.DateLocal, &rec.MobileBin, &rec.SSCCLabel,
		&rec.PONumber, &rec.SKUCode, &rec.UID,
		&status, &completedAt, &syncState,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Status = reconcile.Status(status)
	rec.SyncState = reconcile.SyncState(syncState)
	rec.CompletedAt = completedAt.String
	return &rec, nil
}

// =============================================================================
// WEEKLY PLANS
// =============================================================================

// GetWeek returns the plan line-items for a week; empty when absent.
func (s *Store) GetWeek(ctx context.Context, weekStart string) ([]reconcile.PlanItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWeek(ctx, s.db, weekStart)
}

func getWeek(ctx context.Context, q querier, weekStart string) ([]reconcile.PlanItem, error) {
	var data string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM plans WHERE week_start = ?", weekStart).Scan(&data)
	if err == sql.ErrNoRows {
		return []reconcile.PlanItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get week %s: %v", reconcile.ErrStorage, weekStart, err)
	}

	var items []reconcile.PlanItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan %s: %w", weekStart, err)
	}
	return items, nil
}

// ReplaceWeek atomically replaces the entire stored set for a week.
func (s *Store) ReplaceWeek(ctx context.Context, weekStart string, items []reconcile.PlanItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceWeek(ctx, s.db, weekStart, items)
}

func replaceWeek(ctx context.Context, q querier, weekStart string, items []reconcile.PlanItem) error {
	if items == nil {
		items = []reconcile.PlanItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", weekStart, err)
	}

	query := `
		INSERT INTO plans (week_start, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(week_start) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		weekStart, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: replace week %s: %v", reconcile.ErrStorage, weekStart, err)
	}
	return nil
}

// ListWeeks returns known plan weeks, most recent first.
func (s *Store) ListWeeks(ctx context.Context, limit int) ([]reconcile.WeekInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listWeeks(ctx, s.db, limit)
}

func listWeeks(ctx context.Context, q querier, limit int) ([]reconcile.WeekInfo, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT week_start, updated_at FROM plans ORDER BY week_start DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list weeks: %v", reconcile.ErrStorage, err)
	}
	defer rows.Close()

	var weeks []reconcile.WeekInfo
	for rows.Next() {
		var w reconcile.WeekInfo
		if err := rows.Scan(&w.WeekStart, &w.UpdatedAt); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// =============================================================================
// BINS
// =============================================================================

// SaveBins upserts bin weights keyed by mobile_bin.
func (s *Store) SaveBins(ctx context.Context, bins []reconcile.Bin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBins(ctx, s.db, bins)
}

func saveBins(ctx context.Context, q querier, bins []reconcile.Bin) error {
	query := `
		INSERT INTO bins (mobile_bin, weight_kg)
		VALUES (?, ?)
		ON CONFLICT(mobile_bin) DO UPDATE SET
			weight_kg = excluded.weight_kg
	`
	for _, b := range bins {
		if _, err := q.ExecContext(ctx, query, b.MobileBin, b.WeightKG.String()); err != nil {
			return fmt.Errorf("%w: save bin %s: %v", reconcile.ErrStorage, b.MobileBin, err)
		}
	}
	return nil
}

// ListBins returns all known bin weights.
func (s *Store) ListBins(ctx context.Context) ([]reconcile.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBins(ctx, s.db)
}

func listBins(ctx context.Context, q querier) ([]reconcile.Bin, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT mobile_bin, weight_kg FROM bins ORDER BY mobile_bin")
	if err != nil {
		return nil, fmt.Errorf("%w: list bins: %v", reconcile.ErrStorage, err)
	}
	defer rows.Close()

	var bins []reconcile.Bin
	for rows.Next() {
		var b reconcile.Bin
		var weight string
		if err := rows.Scan(&b.MobileBin, &weight); err != nil {
			return nil, err
		}
		w, err := decimal.NewFromString(weight)
		if err != nil {
			w = decimal.Zero
		}
		b.WeightKG = w
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction. The view
// passed to fn runs its statements on the transaction without touching
// the store mutex, which WithTx already holds.
func (s *Store) WithTx(ctx context.Context, fn func(reconcile.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", reconcile.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", reconcile.ErrStorage, err)
	}
	return nil
}

// txStore is the transactional view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetRecord(ctx context.Context, id string) (*reconcile.Record, error) {
	return getRecord(ctx, t.tx, id)
}

func (t *txStore) FindByUnitKey(ctx context.Context, po, sku, uid string) (*reconcile.Record, error) {
	return findByUnitKey(ctx, t.tx, po, sku, uid)
}

func (t *txStore) SaveRecord(ctx context.Context, rec reconcile.Record) error {
	return saveRecord(ctx, t.tx, rec)
}

func (t *txStore) DeleteRecord(ctx context.Context, id string) error {
	return deleteRecord(ctx, t.tx, id)
}

func (t *txStore) DeleteByUnit(ctx context.Context, sku, uid string) (int64, error) {
	return deleteByUnit(ctx, t.tx, sku, uid)
}

func (t *txStore) QueryRecords(ctx context.Context, f reconcile.QueryFilter) ([]reconcile.Record, error) {
	return queryRecords(ctx, t.tx, f)
}

func (t *txStore) GetWeek(ctx context.Context, weekStart string) ([]reconcile.PlanItem, error) {
	return getWeek(ctx, t.tx, weekStart)
}

func (t *txStore) ReplaceWeek(ctx context.Context, weekStart string, items []reconcile.PlanItem) error {
	return replaceWeek(ctx, t.tx, weekStart, items)
}

func (t *txStore) ListWeeks(ctx context.Context, limit int) ([]reconcile.WeekInfo, error) {
	return listWeeks(ctx, t.tx, limit)
}

func (t *txStore) SaveBins(ctx context.Context, bins []reconcile.Bin) error {
	return saveBins(ctx, t.tx, bins)
}

func (t *txStore) ListBins(ctx context.Context) ([]reconcile.Bin, error) {
	return listBins(ctx, t.tx)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
