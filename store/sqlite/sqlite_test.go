package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpoint/uid-ops/reconcile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id, date, po, sku, uid, completedAt string) reconcile.Record {
	status := reconcile.StatusDraft
	if completedAt != "" {
		status = reconcile.StatusComplete
	}
	return reconcile.Record{
		ID: id, DateLocal: date, MobileBin: "B1",
		PONumber: po, SKUCode: sku, UID: uid,
		Status: status, CompletedAt: completedAt, SyncState: reconcile.SyncSynced,
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("r1", "2025-03-03", "PO-1", "S1", "U1", "2025-03-03T10:00:00Z")
	rec.SSCCLabel = "SSCC-1"
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	missing, err := s.GetRecord(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveRecordFullRowReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("r1", "2025-03-03", "PO-1", "S1", "U1", "")
	require.NoError(t, s.SaveRecord(ctx, rec))

	rec.MobileBin = "B2"
	rec.Status = reconcile.StatusComplete
	rec.CompletedAt = "2025-03-03T11:00:00Z"
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "B2", got.MobileBin)
	assert.Equal(t, reconcile.StatusComplete, got.Status)
	assert.Equal(t, "2025-03-03T11:00:00Z", got.CompletedAt)
}

func TestFindByUnitKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecord(ctx, testRecord("r1", "2025-03-03", "PO-1", "S1", "U1", "")))

	got, err := s.FindByUnitKey(ctx, "PO-1", "S1", "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.ID)

	none, err := s.FindByUnitKey(ctx, "PO-1", "S1", "U2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUniqueIndexIgnoresPartialKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two drafts with empty uid must coexist; the partial unique index
	// only kicks in once all three key fields are populated.
	a := testRecord("r1", "2025-03-03", "PO-1", "S1", "", "")
	b := testRecord("r2", "2025-03-03", "PO-1", "S1", "", "")
	require.NoError(t, s.SaveRecord(ctx, a))
	require.NoError(t, s.SaveRecord(ctx, b))

	// A second row with a fully populated duplicate key is refused.
	require.NoError(t, s.SaveRecord(ctx, testRecord("r3", "2025-03-03", "PO-1", "S1", "U1", "")))
	err := s.SaveRecord(ctx, testRecord("r4", "2025-03-03", "PO-1", "S1", "U1", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrStorage))
}

func TestQueryRecordsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("c", "2025-03-03", "PO-1", "S1", "U3", "")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("a", "2025-03-03", "PO-1", "S1", "U1", "2025-03-03T10:00:00Z")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("b", "2025-03-03", "PO-1", "S1", "U2", "2025-03-03T12:00:00Z")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("d", "2025-03-03", "PO-1", "S1", "U4", "")))

	got, err := s.QueryRecords(ctx, reconcile.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Most recent completion first, never-completed last, id tiebreak.
	ids := []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
}

func TestQueryRecordsFiltersAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecord(ctx, testRecord("a", "2025-03-03", "PO-1", "S1", "U1", "2025-03-03T10:00:00Z")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("b", "2025-03-05", "PO-1", "S1", "U2", "")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("c", "2025-03-12", "PO-1", "S1", "U3", "")))

	got, err := s.QueryRecords(ctx, reconcile.QueryFilter{DateFrom: "2025-03-03", DateTo: "2025-03-09"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.QueryRecords(ctx, reconcile.QueryFilter{Status: "complete"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = s.QueryRecords(ctx, reconcile.QueryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestDeleteByUnitSpansPOs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecord(ctx, testRecord("a", "2025-03-03", "PO-1", "S1", "U1", "")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("b", "2025-03-03", "PO-2", "S1", "U1", "")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("c", "2025-03-03", "PO-1", "S1", "U2", "")))

	n, err := s.DeleteByUnit(ctx, "S1", "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteByUnit(ctx, "S1", "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPlanReplaceAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []reconcile.PlanItem{{
		PONumber: "PO-1", SKUCode: "S1",
		StartDate: "2025-03-03", DueDate: "2025-03-06",
		TargetQty: decimal.NewFromInt(40),
	}}
	require.NoError(t, s.ReplaceWeek(ctx, "2025-03-03", items))

	got, err := s.GetWeek(ctx, "2025-03-03")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PO-1", got[0].PONumber)
	assert.True(t, got[0].TargetQty.Equal(decimal.NewFromInt(40)))

	// Replace wholesale, including down to empty.
	require.NoError(t, s.ReplaceWeek(ctx, "2025-03-03", nil))
	got, err = s.GetWeek(ctx, "2025-03-03")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.ReplaceWeek(ctx, "2025-02-24", items))
	weeks, err := s.ListWeeks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, weeks, 2)
	assert.Equal(t, "2025-03-03", weeks[0].WeekStart, "most recent first")
	assert.NotEmpty(t, weeks[0].UpdatedAt)

	// Missing week reads as empty, not an error.
	got, err = s.GetWeek(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBinsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBins(ctx, []reconcile.Bin{
		{MobileBin: "B2", WeightKG: decimal.NewFromFloat(14.5)},
		{MobileBin: "B1", WeightKG: decimal.NewFromInt(5)},
	}))
	require.NoError(t, s.SaveBins(ctx, []reconcile.Bin{
		{MobileBin: "B1", WeightKG: decimal.NewFromInt(9)},
	}))

	bins, err := s.ListBins(ctx)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, "B1", bins[0].MobileBin)
	assert.True(t, bins[0].WeightKG.Equal(decimal.NewFromInt(9)))
	assert.True(t, bins[1].WeightKG.Equal(decimal.NewFromFloat(14.5)))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecord(ctx, testRecord("keep", "2025-03-03", "PO-1", "S1", "U1", "")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx reconcile.Store) error {
		if err := tx.SaveRecord(ctx, testRecord("new", "2025-03-03", "PO-2", "S2", "U2", "")); err != nil {
			return err
		}
		if err := tx.DeleteRecord(ctx, "keep"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetRecord(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, got, "insert must roll back")

	got, err = s.GetRecord(ctx, "keep")
	require.NoError(t, err)
	assert.NotNil(t, got, "delete must roll back")
}

func TestWithTxReadsOwnWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx reconcile.Store) error {
		if err := tx.SaveRecord(ctx, testRecord("r1", "2025-03-03", "PO-1", "S1", "U1", "")); err != nil {
			return err
		}
		found, err := tx.FindByUnitKey(ctx, "PO-1", "S1", "U1")
		if err != nil {
			return err
		}
		if found == nil {
			return errors.New("uncommitted write invisible inside transaction")
		}
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
