package ledger

import (
	"context"
	"fmt"
	"strings"
)

// EditType is one pending-edit marker.
type EditType string

const (
	EditNew    EditType = "N"
	EditEdit   EditType = "E"
	EditSplit  EditType = "S"
	EditDelete EditType = "D"
)

// EditStatus is a row's accumulated set of pending-edit markers, e.g. "SE"
// for a row that was split and then edited. The zero value means clean.
type EditStatus string

// Has reports whether the status contains the given marker.
func (s EditStatus) Has(t EditType) bool { return strings.Contains(string(s), string(t)) }

// Mark combines the status with a new edit type. 'N' is sticky: a new row
// stays new no matter what else happens to it until its upload clears the
// status entirely. When 'S' and 'E' combine, 'S' always sorts first.
func (s EditStatus) Mark(t EditType) EditStatus {
	switch {
	case s == "":
		return EditStatus(t)
	case s == EditStatus(EditNew):
		return s
	case s.Has(t):
		return s
	case t == EditSplit:
		return EditStatus(EditSplit) + s
	case t == EditEdit:
		return s + EditStatus(EditEdit)
	default:
		return EditStatus(t)
	}
}

// Clear removes one marker from the status.
func (s EditStatus) Clear(t EditType) EditStatus {
	return EditStatus(strings.ReplaceAll(string(s), string(t), ""))
}

// Column names an editable field of a transaction row.
type Column int

const (
	ColDate Column = iota
	ColAccount
	ColMerchant
	ColAmount
	ColCategory
	ColTags
	ColClearRecon
	ColMemo
	ColState
	ColID
)

// EditableColumns is the set of columns a plain edit may touch. Everything
// else is either upstream identity or sync-internal state.
var EditableColumns = map[Column]bool{
	ColDate:       true,
	ColMerchant:   true,
	ColAmount:     true,
	ColCategory:   true,
	ColTags:       true,
	ColClearRecon: true,
	ColMemo:       true,
}

// CheckEditAllowed enforces the edit contract before any field changes:
// the E -> N downgrade is forbidden, pending rows are immutable (upstream
// has a bug where editing a pending row's category wedges it permanently
// pending), and a plain edit may only touch editable columns. A returned
// error blocks the single edit and nothing else.
func CheckEditAllowed(row *TransactionRow, cols []Column, editType EditType) error {
	if row.EditStatus.Has(EditEdit) && editType == EditNew {
		return fmt.Errorf("%w: edit status cannot change from %q to %q", ErrInvalidStateTransition, row.EditStatus, editType)
	}
	if row.State == StatePending {
		return fmt.Errorf("%w: row %q is pending", ErrRowNotEditable, row.ID)
	}
	if editType == EditEdit {
		for _, c := range cols {
			if !EditableColumns[c] {
				return fmt.Errorf("%w: column %d is not editable", ErrRowNotEditable, c)
			}
		}
	}
	return nil
}

// Validator validates field-level edits against the category and tag lookup
// tables and, on success, stamps the row's edit status.
type Validator struct {
	Categories *NameLookup
	Tags       *NameLookup
	Sentinels  ClearedTags
}

// ValidateEdit checks the touched columns of an edited row. Category names
// must resolve through the category table (the canonical display casing is
// written back on success); tag and marker changes must resolve every token
// through the tag table. The first invalid token aborts the whole edit and
// no partial validation result is committed to the row. On success the
// row's edit status is marked with editType.
func (v *Validator) ValidateEdit(ctx context.Context, row *TransactionRow, cols []Column, editType EditType) error {
	if err := CheckEditAllowed(row, cols, editType); err != nil {
		return err
	}

	tagsValidated := false
	for _, col := range cols {
		switch col {
		case ColCategory:
			info, ok, err := v.Categories.Resolve(ctx, row.Category)
			if err != nil {
				return fmt.Errorf("category table: %w", err)
			}
			if !ok {
				if hint := v.Categories.Suggest(ctx, row.Category); hint != "" {
					return fmt.Errorf("%w: %q (did you mean %q?)", ErrInvalidCategory, row.Category, hint)
				}
				return fmt.Errorf("%w: %q", ErrInvalidCategory, row.Category)
			}
			row.Category = info.DisplayName
			row.CategoryID = info.ID

		case ColTags, ColClearRecon:
			if tagsValidated {
				continue
			}
			if col == ColClearRecon && !v.Sentinels.Configured() {
				return fmt.Errorf("%w: cannot mark rows cleared or reconciled", ErrReconcileNotConfigured)
			}
			if err := v.validateTags(ctx, row); err != nil {
				return err
			}
			tagsValidated = true
		}
	}

	row.EditStatus = row.EditStatus.Mark(editType)
	return nil
}

// ComposeTagList rebuilds the full upstream tag set from the visible tag
// list plus the clear/recon marker. 'R' implies cleared, so a reconciled row
// carries both sentinel tags.
func ComposeTagList(tags string, mark Mark, sentinels ClearedTags) []string {
	var out []string
	if mark.Reconciled() {
		out = append(out, sentinels.Reconciled, sentinels.Cleared)
	} else if mark.Cleared() {
		out = append(out, sentinels.Cleared)
	}
	return append(out, SplitTagList(tags)...)
}

// validateTags resolves every tag token. Results are staged and only applied
// to the row once the whole list validated.
func (v *Validator) validateTags(ctx context.Context, row *TransactionRow) error {
	tokens := ComposeTagList(row.Tags, row.ClearRecon, v.Sentinels)

	var names, ids []string
	var cleared, reconciled bool
	for _, tok := range tokens {
		info, ok, err := v.Tags.Resolve(ctx, tok)
		if err != nil {
			return fmt.Errorf("tag table: %w", err)
		}
		if !ok {
			if hint := v.Tags.Suggest(ctx, tok); hint != "" {
				return fmt.Errorf("%w: %q (did you mean %q?)", ErrInvalidTag, tok, hint)
			}
			return fmt.Errorf("%w: %q", ErrInvalidTag, tok)
		}
		switch info.DisplayName {
		case v.Sentinels.Cleared:
			cleared = true
		case v.Sentinels.Reconciled:
			reconciled = true
		default:
			names = append(names, info.DisplayName)
		}
		ids = append(ids, info.ID)
	}

	row.Tags = strings.Join(names, TagDelim)
	row.TagIDs = strings.Join(ids, TagDelim)
	switch {
	case reconciled:
		row.ClearRecon = MarkReconciled
	case cleared:
		row.ClearRecon = MarkCleared
	default:
		row.ClearRecon = MarkNone
	}
	return nil
}
