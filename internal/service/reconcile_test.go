package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
)

func reconFixture(t *testing.T, ctx context.Context) (*ReconcileService, testRepos) {
	t.Helper()
	repos := newTestRepos(t)
	seedTaxonomy(t, ctx, repos)
	svc := &ReconcileService{
		Ledger:    repos.Ledger,
		Accounts:  repos.Accounts,
		Validator: testValidator(repos),
		Sentinels: testSentinels,
	}
	return svc, repos
}

func startParams(prev, newBal float64) StartParams {
	return StartParams{
		Account:     "Checking",
		AccountType: "BankAccount",
		EndDate:     day("2026-07-31"),
		PrevBalance: prev,
		NewBalance:  newBal,
	}
}

func day(d string) time.Time {
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReconcileStartFiltersSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	already := ledgerRow("done", "2026-07-01", -1, "")
	already.ClearRecon = ledger.MarkReconciled
	pending := ledgerRow("pend", "2026-07-02", -2, "")
	pending.State = ledger.StatePending
	other := ledgerRow("other", "2026-07-03", -3, "")
	other.Account = "Savings"
	eligible := ledgerRow("t1", "2026-07-04", -4, "")

	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{already, pending, other, eligible}))

	sess, err := svc.Start(ctx, startParams(100, 96))
	require.NoError(t, err)
	require.Len(t, sess.Rows, 1)
	require.Equal(t, "t1", sess.Rows[0].TxnID)
	require.Equal(t, -4.0, sess.TargetAmount)
}

func TestReconcileStartCollapsesSplitGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	c1 := ledgerRow("c1", "2026-07-10", -60, "")
	c1.ParentID = "parent-1"
	c1.State = ledger.StateSplit
	c2 := ledgerRow("c2", "2026-07-10", -40, "")
	c2.ParentID = "parent-1"
	c2.State = ledger.StateSplit
	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{c1, c2}))

	sess, err := svc.Start(ctx, startParams(0, -100))
	require.NoError(t, err)
	require.Len(t, sess.Rows, 1)
	require.True(t, sess.Rows[0].Split)
	require.Equal(t, "parent-1", sess.Rows[0].TxnID)
	require.Equal(t, -100.0, sess.Rows[0].Amount)
}

func TestReconcileSingleSessionSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{ledgerRow("t1", "2026-07-01", -1, "")}))

	_, err := svc.Start(ctx, startParams(1, 0))
	require.NoError(t, err)
	_, err = svc.Start(ctx, startParams(1, 0))
	require.ErrorIs(t, err, ledger.ErrReconcileInProgress)

	svc.Cancel()
	require.False(t, svc.InProgress())
	_, err = svc.Start(ctx, startParams(1, 0))
	require.NoError(t, err)
}

func TestReconcileRequiresSentinels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := reconFixture(t, ctx)
	svc.Sentinels = ledger.ClearedTags{}

	_, err := svc.Start(ctx, startParams(1, 0))
	require.ErrorIs(t, err, ledger.ErrReconcileNotConfigured)
}

func TestReconcileAmountsMatchByRoundedCents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	a := ledgerRow("a", "2026-07-01", -20.12, "")
	b := ledgerRow("b", "2026-07-02", -22.245, "")
	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{a, b}))

	sess, err := svc.Start(ctx, startParams(100, 57.63))
	require.NoError(t, err)
	require.Equal(t, -42.37, sess.TargetAmount)

	require.False(t, svc.AmountsMatch())
	require.Equal(t, 2, svc.AutoMark(day("2026-07-31")))
	// -20.12 + -22.245 rounds to -42.37 against a target of -42.37
	require.True(t, svc.AmountsMatch())

	// unmarking one row breaks the match
	require.NoError(t, svc.MarkRow(0, ""))
	require.False(t, svc.AmountsMatch())
	require.NoError(t, svc.MarkRow(0, "R"))
	require.True(t, svc.AmountsMatch())
}

func TestReconcileFinish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	require.NoError(t, repos.Accounts.Upsert(ctx, repository.Account{ID: "acct-1", Name: "Checking", AccountType: "BankAccount"}))

	a := ledgerRow("a", "2026-07-01", -25, "")
	b := ledgerRow("b", "2026-07-02", -25, "")
	unmarked := ledgerRow("c", "2026-08-05", -99, "")
	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{unmarked, b, a}))

	_, err := svc.Start(ctx, startParams(100, 50))
	require.NoError(t, err)

	require.Error(t, svc.Finish(ctx)) // nothing marked yet
	require.ErrorIs(t, svc.Finish(ctx), ErrAmountsDiffer)

	svc.AutoMark(day("2026-07-31"))
	require.NoError(t, svc.Finish(ctx))
	require.False(t, svc.InProgress())

	rows, err := repos.Ledger.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.GreaterOrEqual(t, ledger.FindRowByID(rows, "a"), 0)
	require.Equal(t, ledger.MarkReconciled, rows[ledger.FindRowByID(rows, "a")].ClearRecon)
	require.Equal(t, ledger.MarkReconciled, rows[ledger.FindRowByID(rows, "b")].ClearRecon)
	require.Equal(t, ledger.MarkNone, rows[ledger.FindRowByID(rows, "c")].ClearRecon)

	// the reconcile record lands with the sentinel amount and the balance in
	// its side-channel
	i := ledger.FindRow(rows, func(r *ledger.TransactionRow) bool { return r.Merchant == "Reconcile: Checking" })
	require.GreaterOrEqual(t, i, 0)
	rec := rows[i]
	require.Equal(t, ReconRecordAmount, rec.Amount)
	require.Equal(t, "Financial", rec.Category)
	require.Equal(t, ledger.MarkReconciled, rec.ClearRecon)
	require.Equal(t, ledger.EditStatus("N"), rec.EditStatus)
	require.NotNil(t, rec.Props)
	require.Equal(t, 50.0, rec.Props.Balance)
	require.Equal(t, "2026-07-31", rec.Date.UTC().Format(time.DateOnly))

	// last-recon bookkeeping
	acct, err := repos.Accounts.GetByName(ctx, "Checking")
	require.NoError(t, err)
	require.NotNil(t, acct)
	require.NotNil(t, acct.LastReconBalance)
	require.Equal(t, 50.0, *acct.LastReconBalance)
}

func TestReconcileFinishMissingRowKeepsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repos := reconFixture(t, ctx)

	a := ledgerRow("a", "2026-07-02", -30, "")
	gone := ledgerRow("gone", "2026-07-01", -20, "")
	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{gone, a}))

	_, err := svc.Start(ctx, startParams(100, 50))
	require.NoError(t, err)
	svc.AutoMark(day("2026-07-31"))

	// the row disappears between start and finish
	require.NoError(t, repos.Ledger.ReplaceAll(ctx, []ledger.TransactionRow{a}))

	err = svc.Finish(ctx)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	require.True(t, svc.InProgress())

	// the stamp applied before the failure is persisted, not rolled back
	rows, err := repos.Ledger.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, ledger.MarkReconciled, rows[0].ClearRecon)
}

func TestReconcileNothingEligible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := reconFixture(t, ctx)

	_, err := svc.Start(ctx, startParams(1, 0))
	require.ErrorIs(t, err, ErrNothingToReconcile)
}
