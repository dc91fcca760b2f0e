package ledger

// GroupSplits indexes split rows by parent id. Non-split rows are ignored.
func GroupSplits(rows []TransactionRow) map[string][]*TransactionRow {
	groups := make(map[string][]*TransactionRow)
	for i := range rows {
		if rows[i].ParentID != "" {
			groups[rows[i].ParentID] = append(groups[rows[i].ParentID], &rows[i])
		}
	}
	return groups
}

// SplitGroupIndexes returns the indexes of every row in the split group with
// the given parent id, in ledger order.
func SplitGroupIndexes(rows []TransactionRow, parentID string) []int {
	var out []int
	for i := range rows {
		if rows[i].ParentID == parentID {
			out = append(out, i)
		}
	}
	return out
}

// Ungroup collapses a single-row split group back to a plain transaction by
// stripping the parent link and split state. Groups with more than one row
// are returned unchanged.
func Ungroup(group []*TransactionRow) []*TransactionRow {
	if len(group) == 1 {
		group[0].ParentID = ""
		if group[0].State == StateSplit {
			group[0].State = StateNormal
		}
	}
	return group
}

// FindRow returns the index of the first row matching pred, or -1.
func FindRow(rows []TransactionRow, pred func(*TransactionRow) bool) int {
	for i := range rows {
		if pred(&rows[i]) {
			return i
		}
	}
	return -1
}

// FindRowByID locates a row by its upstream transaction id.
func FindRowByID(rows []TransactionRow, id string) int {
	return FindRow(rows, func(r *TransactionRow) bool { return r.ID == id })
}

// FindRows returns the indexes of every row matching pred, in ledger order.
func FindRows(rows []TransactionRow, pred func(*TransactionRow) bool) []int {
	var out []int
	for i := range rows {
		if pred(&rows[i]) {
			out = append(out, i)
		}
	}
	return out
}
