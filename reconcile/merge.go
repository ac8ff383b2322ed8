/*
merge.go - Completeness predicate and upsert merge rules

PURPOSE:
  The two pure decisions at the heart of reconciliation, kept separate
  from storage so they are unit-testable on their own:

  IsComplete:   when does a record count as fully scanned?
  MergeRecords: how do an existing row and an incoming upsert row combine?

COMPLETENESS POLICY:
  A record is complete when po_number, sku_code, uid and mobile_bin are
  all non-blank. SSCC labels are optional. date_local always carries a
  value (shells are stamped with today's business date) so it is not part
  of the predicate. This is the single policy for the whole system.

MERGE INVARIANTS:
  - Status only escalates; a complete record never regresses to draft
  - completed_at is adopted at most once, then immutable
  - Blank incoming values never erase stored values
*/
package reconcile

import "strings"

// IsComplete is the completeness predicate over a record snapshot.
// It is idempotent: re-evaluating an already-complete record simply
// reports true again.
func IsComplete(r Record) bool {
	return r.HasUnitKey() && strings.TrimSpace(r.MobileBin) != ""
}

// MergeRecords combines an existing stored record with an incoming upsert
// row sharing the same natural key. The result keeps the existing
// surrogate id and becomes synced.
func MergeRecords(existing, incoming Record) Record {
	out := existing

	if v := strings.TrimSpace(incoming.DateLocal); v != "" {
		out.DateLocal = v
	}
	if v := strings.TrimSpace(incoming.MobileBin); v != "" {
		out.MobileBin = v
	}
	if v := strings.TrimSpace(incoming.SSCCLabel); v != "" {
		out.SSCCLabel = v
	}

	if incoming.Status == StatusComplete {
		out.Status = StatusComplete
	}
	if out.CompletedAt == "" {
		out.CompletedAt = incoming.CompletedAt
	}
	out.SyncState = SyncSynced
	return out
}
