package reconcile

import "testing"

func TestIsComplete(t *testing.T) {
	base := Record{
		DateLocal: "2025-03-03", MobileBin: "B1",
		PONumber: "PO-1", SKUCode: "S1", UID: "U1",
	}
	if !IsComplete(base) {
		t.Error("record with key fields and bin should be complete")
	}

	// SSCC is optional.
	withSSCC := base
	withSSCC.SSCCLabel = "SSCC-1"
	if !IsComplete(withSSCC) {
		t.Error("sscc must not affect completeness")
	}

	for _, clear := range []func(*Record){
		func(r *Record) { r.PONumber = "" },
		func(r *Record) { r.SKUCode = " " },
		func(r *Record) { r.UID = "" },
		func(r *Record) { r.MobileBin = "\t" },
	} {
		r := base
		clear(&r)
		if IsComplete(r) {
			t.Errorf("record %+v should be incomplete", r)
		}
	}
}

func TestMergeRecordsKeepsExistingIdentity(t *testing.T) {
	existing := Record{
		ID: "r1", DateLocal: "2025-03-03", MobileBin: "B1",
		PONumber: "PO-1", SKUCode: "S1", UID: "U1",
		Status: StatusComplete, CompletedAt: "2025-03-03T10:00:00Z",
		SyncState: SyncPending,
	}
	incoming := Record{
		ID: "other", SSCCLabel: "SSCC-9", MobileBin: "  ",
		Status: StatusDraft, CompletedAt: "2025-03-04T09:00:00Z",
	}

	out := MergeRecords(existing, incoming)
	if out.ID != "r1" {
		t.Errorf("merge must keep the stored id, got %s", out.ID)
	}
	if out.MobileBin != "B1" {
		t.Error("blank incoming value erased a stored field")
	}
	if out.SSCCLabel != "SSCC-9" {
		t.Error("non-blank incoming value should overwrite")
	}
	if out.Status != StatusComplete {
		t.Error("status regressed from complete")
	}
	if out.CompletedAt != "2025-03-03T10:00:00Z" {
		t.Error("completed_at must be adopted at most once")
	}
	if out.SyncState != SyncSynced {
		t.Error("merged records are synced")
	}
}

func TestMergeRecordsAdoptsFirstCompletion(t *testing.T) {
	existing := Record{ID: "r1", Status: StatusDraft}
	incoming := Record{Status: StatusComplete, CompletedAt: "2025-03-04T09:00:00Z"}

	out := MergeRecords(existing, incoming)
	if out.Status != StatusComplete {
		t.Error("incoming complete status should escalate")
	}
	if out.CompletedAt != "2025-03-04T09:00:00Z" {
		t.Errorf("completed_at = %s", out.CompletedAt)
	}
}
