package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
	"github.com/b3devs/MojitoLib2/internal/mint"
)

// UploadService pushes pending local edits back upstream. Failures are
// isolated per row: one bad row never aborts the batch, and a failed row
// keeps its edit markers so the next save retries it.
type UploadService struct {
	Client   mint.Client
	Ledger   *repository.LedgerRepo
	Accounts *repository.AccountRepo
	// Sentinels is needed to re-parse split children fetched after an update.
	Sentinels ledger.ClearedTags
	// Now stamps re-fetched rows; defaults to time.Now.
	Now func() time.Time
}

// FailedUpdate identifies one row whose upload failed.
type FailedUpdate struct {
	TxnID    string
	Merchant string
	Err      error
}

// SaveResult is the per-row accounting of one save pass.
type SaveResult struct {
	Saved  int
	Failed []FailedUpdate
}

// Success reports whether every flagged row uploaded.
func (r SaveResult) Success() bool { return len(r.Failed) == 0 }

func (s *UploadService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// BuildUpdatePayload maps a row's editable fields onto the upstream update
// schema. includeTypeAndDate is set for payloads that stand alone (creates
// and whole-transaction updates) but not for split children. Creation
// payloads additionally resolve the account name to an upstream id and spell
// out the defaults the API requires.
func (s *UploadService) BuildUpdatePayload(ctx context.Context, row *ledger.TransactionRow, editType ledger.EditType, includeTypeAndDate bool) (*mint.UpdatePayload, error) {
	if editType == ledger.EditDelete {
		return nil, fmt.Errorf("transaction delete is not supported upstream")
	}

	memo := row.Memo
	if row.PropsJSON != "" {
		memo = ledger.AppendProps(memo, row.PropsJSON)
	}

	p := &mint.UpdatePayload{
		Description: row.Merchant,
		Category:    &mint.Category{ID: row.CategoryID},
		Notes:       memo,
		Amount:      strconv.FormatFloat(row.Amount, 'f', 2, 64),
	}
	if includeTypeAndDate {
		p.Type = "CashAndCreditTransaction"
		p.Date = row.Date.Format(time.DateOnly)
	}

	if editType == ledger.EditNew {
		acct, err := s.Accounts.GetByName(ctx, row.Account)
		if err != nil {
			return nil, fmt.Errorf("resolve account %q: %w", row.Account, err)
		}
		if acct == nil {
			return nil, fmt.Errorf("%w: %q", ledger.ErrUnknownAccount, row.Account)
		}
		isExpense := row.Amount <= 0
		no := false
		p.AccountID = acct.ID
		p.IsExpense = &isExpense
		p.IsPending = &no
		p.IsDuplicate = &no
		p.IsLinkedToRule = &no
		p.ShouldPullFromAtmWithdrawals = &no
		p.ManualTransactionType = "PENDING"
	}

	if ids := ledger.SplitTagList(row.TagIDs); len(ids) > 0 {
		td := &mint.TagData{}
		for _, id := range ids {
			td.Tags = append(td.Tags, mint.Tag{ID: id})
		}
		p.TagData = td
	}
	return p, nil
}

// BuildSplitUpdatePayload builds one update for a whole split group. A group
// reduced to a single row deletes the split (empty children list) and
// reverts to a plain transaction; a larger group uploads the summed amount
// with one child payload per row.
func (s *UploadService) BuildSplitUpdatePayload(ctx context.Context, group []*ledger.TransactionRow) (*mint.UpdatePayload, error) {
	switch len(group) {
	case 0:
		return nil, fmt.Errorf("empty split group")
	case 1:
		p, err := s.BuildUpdatePayload(ctx, group[0], ledger.EditEdit, false)
		if err != nil {
			return nil, err
		}
		p.SplitData = &mint.SplitUpdate{Children: []*mint.UpdatePayload{}}
		return p, nil
	}

	var total float64
	children := make([]*mint.UpdatePayload, 0, len(group))
	for _, row := range group {
		total += row.Amount
		c, err := s.BuildUpdatePayload(ctx, row, ledger.EditEdit, false)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return &mint.UpdatePayload{
		Type:      "CashAndCreditTransaction",
		Amount:    strconv.FormatFloat(ledger.RoundCents(total), 'f', 2, 64),
		SplitData: &mint.SplitUpdate{Children: children},
	}, nil
}

// Save walks every row flagged with a pending edit for the given mint
// account, submits the corresponding upstream update, and applies the
// response back to the ledger. Split groups are processed once per group.
// Edit markers clear only when a row has no outstanding edit types left.
func (s *UploadService) Save(ctx context.Context, mintAccount string) (SaveResult, error) {
	var res SaveResult
	mintAccount = strings.ToLower(mintAccount)

	rows, err := s.Ledger.Rows(ctx)
	if err != nil {
		return res, err
	}

	for i := 0; i < len(rows); i++ {
		row := &rows[i]
		if row.EditStatus == "" || strings.ToLower(row.MintAccount) != mintAccount {
			continue
		}

		if row.EditStatus.Has(ledger.EditSplit) {
			if err := s.saveSplitGroup(ctx, rows, row.ParentID, &res); err != nil {
				res.Failed = append(res.Failed, FailedUpdate{TxnID: row.ID, Merchant: row.Merchant, Err: err})
				// Drop the S marker attempt for this pass; leave markers intact.
				continue
			}
			// The row may still carry an E marker; look at it again.
			i--
			continue
		}

		if err := s.saveSingle(ctx, row); err != nil {
			res.Failed = append(res.Failed, FailedUpdate{TxnID: row.ID, Merchant: row.Merchant, Err: err})
			continue
		}
		row.EditStatus = ""
		res.Saved++
	}

	if err := s.Ledger.ReplaceAll(ctx, rows); err != nil {
		return res, fmt.Errorf("persist ledger: %w", err)
	}
	return res, nil
}

// saveSingle uploads one non-split row (new or edited).
func (s *UploadService) saveSingle(ctx context.Context, row *ledger.TransactionRow) error {
	editType := ledger.EditEdit
	isCreate := row.EditStatus == ledger.EditStatus(ledger.EditNew)
	if isCreate {
		editType = ledger.EditNew
	} else if row.EditStatus == ledger.EditStatus(ledger.EditDelete) {
		editType = ledger.EditDelete
	}

	payload, err := s.BuildUpdatePayload(ctx, row, editType, isCreate)
	if err != nil {
		return err
	}
	result, err := s.Client.SubmitTransactionUpdate(ctx, row.ID, payload, isCreate)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("upstream rejected update for %q", row.ID)
	}
	return nil
}

// saveSplitGroup uploads a whole split group, then re-fetches the canonical
// child list from upstream and reconciles local rows to the returned ids.
// Children are matched on the (amount, category id, memo) tuple: upstream
// reassigns child ids on every split update, so the tuple is the only stable
// identity. Each local row must match exactly one fetched child.
func (s *UploadService) saveSplitGroup(ctx context.Context, rows []ledger.TransactionRow, parentID string, res *SaveResult) error {
	idxs := ledger.SplitGroupIndexes(rows, parentID)
	if len(idxs) == 0 {
		return fmt.Errorf("%w: split group %q has no rows", ledger.ErrSplitReconciliation, parentID)
	}
	group := make([]*ledger.TransactionRow, len(idxs))
	for i, idx := range idxs {
		group[i] = &rows[idx]
	}

	payload, err := s.BuildSplitUpdatePayload(ctx, group)
	if err != nil {
		return err
	}
	result, err := s.Client.SubmitTransactionUpdate(ctx, parentID, payload, false)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("upstream rejected split update for %q", parentID)
	}

	fetched, err := s.Client.FetchTransactionsByID(ctx, parentID)
	if err != nil {
		return fmt.Errorf("fetch split children: %w", err)
	}
	parsed, err := ledger.ParseRawRecords(fetched, s.now(), group[0].MintAccount, s.Sentinels)
	if err != nil {
		return err
	}
	remote := parsed.Rows

	if len(group) == 1 {
		// Split deleted: the group reverts to a plain transaction carrying
		// the surviving upstream id.
		if len(remote) != 1 {
			return fmt.Errorf("%w: expected one transaction after split delete, got %d", ledger.ErrSplitReconciliation, len(remote))
		}
		row := group[0]
		row.ID = remote[0].ID
		row.ParentID = ""
		if row.State == ledger.StateSplit {
			row.State = ledger.StateNormal
		}
		s.clearSplitMarker(row, res)
		return nil
	}

	if len(remote) != len(group) {
		return fmt.Errorf("%w: %d local rows, %d upstream children", ledger.ErrSplitReconciliation, len(group), len(remote))
	}
	for _, row := range group {
		match := -1
		for j := range remote {
			if ledger.CentsEqual(remote[j].Amount, row.Amount) &&
				remote[j].CategoryID == row.CategoryID &&
				remote[j].Memo == row.Memo {
				if match >= 0 {
					return fmt.Errorf("%w: ambiguous match for split row (amount %.2f)", ledger.ErrSplitReconciliation, row.Amount)
				}
				match = j
			}
		}
		if match < 0 {
			return fmt.Errorf("%w: no upstream child matches split row (amount %.2f)", ledger.ErrSplitReconciliation, row.Amount)
		}
		row.ID = remote[match].ID
		s.clearSplitMarker(row, res)
	}
	return nil
}

// clearSplitMarker removes 'S' from a row's status and counts the row as
// saved when nothing else is outstanding.
func (s *UploadService) clearSplitMarker(row *ledger.TransactionRow, res *SaveResult) {
	row.EditStatus = row.EditStatus.Clear(ledger.EditSplit)
	if row.EditStatus == "" {
		res.Saved++
	}
}
