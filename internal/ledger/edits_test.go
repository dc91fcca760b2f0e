package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func staticLookup(entries ...NameInfo) *NameLookup {
	return NewNameLookup(func(context.Context) ([]NameInfo, error) {
		return entries, nil
	})
}

func testValidator() *Validator {
	return &Validator{
		Categories: staticLookup(
			NameInfo{ID: "cat-1", DisplayName: "Groceries"},
			NameInfo{ID: "cat-2", DisplayName: "Restaurants"},
		),
		Tags: staticLookup(
			NameInfo{ID: "tag-c", DisplayName: "Cleared"},
			NameInfo{ID: "tag-r", DisplayName: "Reconciled"},
			NameInfo{ID: "tag-v", DisplayName: "Vacation"},
		),
		Sentinels: testSentinels,
	}
}

func TestEditStatusMark(t *testing.T) {
	t.Parallel()

	require.Equal(t, EditStatus("E"), EditStatus("").Mark(EditEdit))
	require.Equal(t, EditStatus("S"), EditStatus("").Mark(EditSplit))

	// split-then-edit and edit-then-split both land on "SE"
	require.Equal(t, EditStatus("SE"), EditStatus("S").Mark(EditEdit))
	require.Equal(t, EditStatus("SE"), EditStatus("E").Mark(EditSplit))

	// new rows stay new regardless of further edits
	require.Equal(t, EditStatus("N"), EditStatus("N").Mark(EditEdit))
	require.Equal(t, EditStatus("N"), EditStatus("N").Mark(EditSplit))

	// marking is idempotent
	require.Equal(t, EditStatus("SE"), EditStatus("SE").Mark(EditEdit))
	require.Equal(t, EditStatus("SE"), EditStatus("SE").Mark(EditSplit))
}

func TestEditStatusClear(t *testing.T) {
	t.Parallel()

	require.Equal(t, EditStatus("E"), EditStatus("SE").Clear(EditSplit))
	require.Equal(t, EditStatus("S"), EditStatus("SE").Clear(EditEdit))
	require.Equal(t, EditStatus(""), EditStatus("N").Clear(EditNew))
}

func TestCheckEditAllowed(t *testing.T) {
	t.Parallel()

	edited := &TransactionRow{ID: "t1", EditStatus: "E"}
	err := CheckEditAllowed(edited, nil, EditNew)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	pending := &TransactionRow{ID: "t2", State: StatePending}
	err = CheckEditAllowed(pending, []Column{ColMemo}, EditEdit)
	require.ErrorIs(t, err, ErrRowNotEditable)

	plain := &TransactionRow{ID: "t3"}
	err = CheckEditAllowed(plain, []Column{ColID}, EditEdit)
	require.ErrorIs(t, err, ErrRowNotEditable)

	require.NoError(t, CheckEditAllowed(plain, []Column{ColMerchant, ColAmount}, EditEdit))
}

func TestValidateEditCategoryCanonicalCasing(t *testing.T) {
	t.Parallel()

	v := testValidator()
	row := &TransactionRow{ID: "t1", Category: "gRoCeRiEs"}

	require.NoError(t, v.ValidateEdit(context.Background(), row, []Column{ColCategory}, EditEdit))
	require.Equal(t, "Groceries", row.Category)
	require.Equal(t, "cat-1", row.CategoryID)
	require.Equal(t, EditStatus("E"), row.EditStatus)
}

func TestValidateEditInvalidCategoryLeavesRowUnmarked(t *testing.T) {
	t.Parallel()

	v := testValidator()
	row := &TransactionRow{ID: "t1", Category: "Grocerys"}

	err := v.ValidateEdit(context.Background(), row, []Column{ColCategory}, EditEdit)
	require.ErrorIs(t, err, ErrInvalidCategory)
	require.Contains(t, err.Error(), "Groceries") // suggestion hint
	require.Equal(t, EditStatus(""), row.EditStatus)
}

func TestValidateEditTags(t *testing.T) {
	t.Parallel()

	v := testValidator()
	row := &TransactionRow{ID: "t1", Tags: "vacation", ClearRecon: MarkCleared}

	require.NoError(t, v.ValidateEdit(context.Background(), row, []Column{ColTags}, EditEdit))
	require.Equal(t, "Vacation", row.Tags)
	require.Equal(t, "tag-c, tag-v", row.TagIDs)
	require.Equal(t, MarkCleared, row.ClearRecon)
}

func TestValidateEditInvalidTagAbortsWholeList(t *testing.T) {
	t.Parallel()

	v := testValidator()
	row := &TransactionRow{ID: "t1", Tags: "Vacation, Vacatio"}

	err := v.ValidateEdit(context.Background(), row, []Column{ColTags}, EditEdit)
	require.ErrorIs(t, err, ErrInvalidTag)
	// nothing applied, not even the valid first token
	require.Equal(t, "Vacation, Vacatio", row.Tags)
	require.Empty(t, row.TagIDs)
	require.Equal(t, EditStatus(""), row.EditStatus)
}

func TestValidateEditReconMarkRequiresSentinels(t *testing.T) {
	t.Parallel()

	v := testValidator()
	v.Sentinels = ClearedTags{}
	row := &TransactionRow{ID: "t1", ClearRecon: MarkReconciled}

	err := v.ValidateEdit(context.Background(), row, []Column{ColClearRecon}, EditEdit)
	require.ErrorIs(t, err, ErrReconcileNotConfigured)
}

func TestValidateEditReconciledMark(t *testing.T) {
	t.Parallel()

	v := testValidator()
	row := &TransactionRow{ID: "t1", ClearRecon: Mark("r")}

	require.NoError(t, v.ValidateEdit(context.Background(), row, []Column{ColClearRecon}, EditEdit))
	require.Equal(t, MarkReconciled, row.ClearRecon)
	require.Equal(t, "tag-r, tag-c", row.TagIDs)
}

func TestComposeTagList(t *testing.T) {
	t.Parallel()

	// 'R' implies cleared: both sentinels, reconciled first
	require.Equal(t, []string{"Reconciled", "Cleared", "Vacation"},
		ComposeTagList("Vacation", MarkReconciled, testSentinels))
	require.Equal(t, []string{"Cleared"},
		ComposeTagList("", MarkCleared, testSentinels))
	require.Equal(t, []string{"Vacation"},
		ComposeTagList("Vacation", MarkNone, testSentinels))
}
