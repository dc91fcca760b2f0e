package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
)

// ErrAmountsDiffer is returned by Finish while the marked sum does not hit
// the target; the session stays in progress.
var ErrAmountsDiffer = errors.New("reconcile amounts do not match target")

// ErrNothingToReconcile means the snapshot for the chosen account came up
// empty.
var ErrNothingToReconcile = errors.New("no transactions to reconcile")

// ReconRecordAmount is the fixed amount of the synthetic reconcile record
// appended on commit. It is an audit marker in history, not a real
// transaction, so the amount is a deliberate sentinel rather than a balance.
const ReconRecordAmount = -0.01

// ReconRow is one line of a reconciliation working set. TxnID is the ledger
// row's transaction id, or the shared parent id for a split-group row whose
// amount is the sum of its children.
type ReconRow struct {
	Date     time.Time
	Merchant string
	Amount   float64
	// Mark is blank, 'r' (proposed) or 'R' (confirmed). The distinction is
	// cosmetic: both count as marked everywhere.
	Mark     string
	PrevMark ledger.Mark
	Split    bool
	TxnID    string
}

// Marked reports whether the row is proposed or confirmed reconciled.
func (r *ReconRow) Marked() bool { return strings.EqualFold(r.Mark, "r") }

// Session is one in-progress reconciliation: a snapshot of unreconciled
// ledger rows for a single account, plus the target the marked rows must
// sum to.
type Session struct {
	Account      string
	AccountType  string
	MintAccount  string
	EndDate      time.Time
	PrevBalance  float64
	NewBalance   float64
	TargetAmount float64
	Rows         []ReconRow
}

// StartParams are the inputs to Start.
type StartParams struct {
	Account     string
	AccountType string
	MintAccount string
	EndDate     time.Time
	PrevBalance float64
	NewBalance  float64
}

// ReconcileService drives the bank-style reconciliation workflow. There is
// exactly one session slot, shared across accounts: starting a second
// session requires explicitly cancelling the first.
type ReconcileService struct {
	Ledger    *repository.LedgerRepo
	Accounts  *repository.AccountRepo
	Validator *ledger.Validator
	Sentinels ledger.ClearedTags

	session *Session
}

// InProgress reports whether a session occupies the slot.
func (s *ReconcileService) InProgress() bool { return s.session != nil }

// Session returns the in-progress session, nil when idle.
func (s *ReconcileService) Session() *Session { return s.session }

// Start snapshots the eligible ledger rows for the chosen account and opens
// a session. Eligible means: matching account (and mint account when given),
// not already reconciled, not pending. Split children sharing a parent
// collapse into one synthetic row whose amount is their sum.
func (s *ReconcileService) Start(ctx context.Context, p StartParams) (*Session, error) {
	if !s.Sentinels.Configured() {
		return nil, ledger.ErrReconcileNotConfigured
	}
	if s.session != nil {
		return nil, fmt.Errorf("%w: account %q (cancel it first)", ledger.ErrReconcileInProgress, s.session.Account)
	}

	rows, err := s.Ledger.Rows(ctx)
	if err != nil {
		return nil, err
	}

	var reconRows []ReconRow
	splitRows := make(map[string]int) // parent id -> index into reconRows
	for i := range rows {
		r := &rows[i]
		if r.Account != p.Account {
			continue
		}
		if p.MintAccount != "" && r.MintAccount != p.MintAccount {
			continue
		}
		if r.ClearRecon.Reconciled() || r.State == ledger.StatePending {
			continue
		}

		rr := ReconRow{
			Date:     r.Date,
			Merchant: r.Merchant,
			Amount:   r.Amount,
			PrevMark: r.ClearRecon,
			Split:    r.IsSplit(),
			TxnID:    r.ID,
		}
		if r.IsSplit() {
			if j, ok := splitRows[r.ParentID]; ok {
				reconRows[j].Amount += r.Amount
				continue
			}
			rr.TxnID = r.ParentID
			splitRows[r.ParentID] = len(reconRows)
		}
		reconRows = append(reconRows, rr)
	}
	if len(reconRows) == 0 {
		return nil, fmt.Errorf("%w: account %q", ErrNothingToReconcile, p.Account)
	}

	sort.SliceStable(reconRows, func(i, j int) bool {
		return reconRows[i].Date.After(reconRows[j].Date)
	})

	s.session = &Session{
		Account:      p.Account,
		AccountType:  p.AccountType,
		MintAccount:  p.MintAccount,
		EndDate:      p.EndDate,
		PrevBalance:  p.PrevBalance,
		NewBalance:   p.NewBalance,
		TargetAmount: ledger.RoundCents(p.NewBalance - p.PrevBalance),
		Rows:         reconRows,
	}
	return s.session, nil
}

// MarkRow sets the mark on one session row.
func (s *ReconcileService) MarkRow(i int, mark string) error {
	if s.session == nil {
		return fmt.Errorf("no reconcile in progress")
	}
	if i < 0 || i >= len(s.session.Rows) {
		return fmt.Errorf("recon row %d out of range", i)
	}
	switch mark {
	case "", "r", "R":
		s.session.Rows[i].Mark = mark
		return nil
	}
	return fmt.Errorf("invalid reconcile mark %q", mark)
}

// AutoMark proposes every session row dated on or before cutoff as
// reconciled and returns how many rows it marked.
func (s *ReconcileService) AutoMark(cutoff time.Time) int {
	if s.session == nil {
		return 0
	}
	n := 0
	for i := range s.session.Rows {
		if !s.session.Rows[i].Date.After(cutoff) {
			s.session.Rows[i].Mark = "r"
			n++
		}
	}
	return n
}

// MarkedSum is the cent-rounded sum of all marked rows.
func (s *ReconcileService) MarkedSum() float64 {
	if s.session == nil {
		return 0
	}
	var sum float64
	for i := range s.session.Rows {
		if s.session.Rows[i].Marked() {
			sum += s.session.Rows[i].Amount
		}
	}
	return ledger.RoundCents(sum)
}

// AmountsMatch compares the marked sum against the target by cent-rounded
// absolute value, never by direct float equality.
func (s *ReconcileService) AmountsMatch() bool {
	if s.session == nil {
		return false
	}
	return ledger.CentsEqual(s.MarkedSum(), s.session.TargetAmount)
}

// Cancel discards the session entirely. The ledger is untouched.
func (s *ReconcileService) Cancel() {
	s.session = nil
}

// Finish commits the session: every marked row's ledger counterpart is
// stamped 'R' through full edit validation (split synthetic rows stamp each
// child by parent id), a synthetic reconcile record is appended so the
// reconcile shows up in history, and the slot clears. A marked row whose
// ledger row is gone aborts the commit with ErrTransactionNotFound; rows
// stamped before the failure stay stamped (no rollback) and the session
// remains in progress.
func (s *ReconcileService) Finish(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("no reconcile in progress")
	}
	if !s.AmountsMatch() {
		return fmt.Errorf("%w: marked %.2f, target %.2f", ErrAmountsDiffer, s.MarkedSum(), s.session.TargetAmount)
	}

	rows, err := s.Ledger.Rows(ctx)
	if err != nil {
		return err
	}

	stamp := func(idx int) error {
		rows[idx].ClearRecon = ledger.MarkReconciled
		return s.Validator.ValidateEdit(ctx, &rows[idx], []ledger.Column{ledger.ColClearRecon}, ledger.EditEdit)
	}

	for i := range s.session.Rows {
		rr := &s.session.Rows[i]
		if !rr.Marked() {
			continue
		}
		if rr.Split {
			idxs := ledger.SplitGroupIndexes(rows, rr.TxnID)
			if len(idxs) == 0 {
				s.persistPartial(ctx, rows)
				return fmt.Errorf("%w: split children of %q (%s, %.2f)", ledger.ErrTransactionNotFound, rr.TxnID, rr.Merchant, rr.Amount)
			}
			for _, idx := range idxs {
				if err := stamp(idx); err != nil {
					s.persistPartial(ctx, rows)
					return fmt.Errorf("stamp split child of %q: %w", rr.TxnID, err)
				}
			}
			continue
		}
		idx := ledger.FindRowByID(rows, rr.TxnID)
		if idx < 0 {
			s.persistPartial(ctx, rows)
			return fmt.Errorf("%w: %q (%s, %.2f)", ledger.ErrTransactionNotFound, rr.TxnID, rr.Merchant, rr.Amount)
		}
		if err := stamp(idx); err != nil {
			s.persistPartial(ctx, rows)
			return fmt.Errorf("stamp %q: %w", rr.TxnID, err)
		}
	}

	rows = append(rows, s.reconRecord())

	// Group reconcile records with their account in history: account
	// ascending, then date descending.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Account != rows[j].Account {
			return rows[i].Account < rows[j].Account
		}
		return rows[i].Date.After(rows[j].Date)
	})

	if err := s.Ledger.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}

	if acct, err := s.Accounts.GetByName(ctx, s.session.Account); err == nil && acct != nil {
		_ = s.Accounts.SetLastRecon(ctx, acct.ID, s.session.NewBalance, s.session.EndDate)
	}

	s.session = nil
	return nil
}

// persistPartial writes back whatever stamping already happened before a
// commit failure. The original workflow applied each stamp immediately with
// no rollback; keeping the partial result visible (rather than silently
// discarding it) preserves that documented behavior.
func (s *ReconcileService) persistPartial(ctx context.Context, rows []ledger.TransactionRow) {
	_ = s.Ledger.ReplaceAll(ctx, rows)
}

// reconRecord builds the synthetic audit row appended on commit. The new
// balance travels in the memo's structured side-channel; the amount is the
// fixed sentinel, never the balance itself.
func (s *ReconcileService) reconRecord() ledger.TransactionRow {
	sess := s.session
	props := ledger.Props{Balance: ledger.RoundCents(sess.NewBalance)}
	propsJSON := ledger.MarshalProps(props)
	return ledger.TransactionRow{
		// provisional id; the upload swaps in the upstream one
		ID:          uuid.NewString(),
		Date:        sess.EndDate,
		EditStatus:  ledger.EditStatus(ledger.EditNew),
		Account:     sess.Account,
		MintAccount: sess.MintAccount,
		Merchant:    fmt.Sprintf("Reconcile: %s", sess.Account),
		Amount:      ReconRecordAmount,
		OrigAmount:  ReconRecordAmount,
		Category:    "Financial",
		Memo:        fmt.Sprintf("Reconciled. New balance: %.2f", sess.NewBalance),
		PropsJSON:   propsJSON,
		Props:       &props,
		ClearRecon:  ledger.MarkReconciled,
		YearMonth:   sess.EndDate.Year()*100 + int(sess.EndDate.Month()),
		ImportDate:  sess.EndDate,
	}
}
