package ledger

import "sort"

// Merge folds a freshly fetched batch into the existing ledger using the
// replace-tail strategy: every pending row and every row dated on or after
// the batch's earliest date is dropped, then the whole batch is appended.
// Upstream state for the in-flight window is unreliable until transactions
// settle, so replacing the tail wholesale avoids diffing remote mutations of
// rows fetched earlier. The result is sorted date descending with parent id
// ascending as the tiebreak, which keeps split groups contiguous and makes
// repeated runs over identical input byte-for-byte identical.
//
// An empty batch returns existing unchanged: no batch, no truncation.
func Merge(existing, batch []TransactionRow) []TransactionRow {
	if len(batch) == 0 {
		return existing
	}

	cutoff := batch[0].Date
	for i := 1; i < len(batch); i++ {
		if batch[i].Date.Before(cutoff) {
			cutoff = batch[i].Date
		}
	}

	merged := make([]TransactionRow, 0, len(existing)+len(batch))
	for i := range existing {
		if existing[i].State == StatePending {
			continue
		}
		if !existing[i].Date.Before(cutoff) {
			continue
		}
		merged = append(merged, existing[i])
	}
	merged = append(merged, batch...)

	SortRows(merged)
	return merged
}

// MergeReplace discards the existing ledger entirely and keeps only the batch.
func MergeReplace(batch []TransactionRow) []TransactionRow {
	return Merge(nil, batch)
}

// SortRows applies the canonical ledger ordering: date descending, parent id
// ascending. The sort is stable so equal rows keep their relative order.
func SortRows(rows []TransactionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].ParentID < rows[j].ParentID
	})
}
