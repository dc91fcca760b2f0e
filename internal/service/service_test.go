package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b3devs/MojitoLib2/internal/database"
	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
	"github.com/b3devs/MojitoLib2/internal/mint"
)

var testSentinels = ledger.ClearedTags{Cleared: "Cleared", Reconciled: "Reconciled"}

type testRepos struct {
	Ledger   *repository.LedgerRepo
	Accounts *repository.AccountRepo
	Cats     *repository.CategoryRepo
	Tags     *repository.TagRepo
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return testRepos{
		Ledger:   repository.NewLedgerRepo(db),
		Accounts: repository.NewAccountRepo(db),
		Cats:     repository.NewCategoryRepo(db),
		Tags:     repository.NewTagRepo(db),
	}
}

func testValidator(repos testRepos) *ledger.Validator {
	return &ledger.Validator{
		Categories: ledger.NewNameLookup(func(ctx context.Context) ([]ledger.NameInfo, error) {
			cats, err := repos.Cats.List(ctx)
			if err != nil {
				return nil, err
			}
			var infos []ledger.NameInfo
			for _, c := range cats {
				infos = append(infos, ledger.NameInfo{ID: c.ID, DisplayName: c.Name})
			}
			return infos, nil
		}),
		Tags: ledger.NewNameLookup(func(ctx context.Context) ([]ledger.NameInfo, error) {
			tags, err := repos.Tags.List(ctx)
			if err != nil {
				return nil, err
			}
			var infos []ledger.NameInfo
			for _, t := range tags {
				infos = append(infos, ledger.NameInfo{ID: t.ID, DisplayName: t.Name})
			}
			return infos, nil
		}),
		Sentinels: testSentinels,
	}
}

func seedTaxonomy(t *testing.T, ctx context.Context, repos testRepos) {
	t.Helper()
	require.NoError(t, repos.Cats.ReplaceAll(ctx, []repository.Category{
		{ID: "cat-1", Name: "Groceries"},
		{ID: "cat-2", Name: "Restaurants"},
		{ID: "cat-3", Name: "Financial"},
	}))
	require.NoError(t, repos.Tags.ReplaceAll(ctx, []repository.Tag{
		{ID: "tag-c", Name: "Cleared"},
		{ID: "tag-r", Name: "Reconciled"},
		{ID: "tag-v", Name: "Vacation"},
	}))
}

// fakeClient is an in-memory mint.Client. Pages feed FetchTransactionPage in
// order; ByID feeds FetchTransactionsByID; every submitted update is recorded.
type fakeClient struct {
	Pages [][]mint.RawRecord
	ByID  map[string][]mint.RawRecord

	Updates []submittedUpdate
	// FailFor makes SubmitTransactionUpdate fail for these transaction ids.
	FailFor map[string]bool
}

type submittedUpdate struct {
	TxnID    string
	Payload  *mint.UpdatePayload
	IsCreate bool
}

func (f *fakeClient) FetchTransactionPage(ctx context.Context, offset, limit int, start, end time.Time) ([]mint.RawRecord, error) {
	page := offset / limit
	if page >= len(f.Pages) {
		return nil, nil
	}
	return f.Pages[page], nil
}

func (f *fakeClient) SubmitTransactionUpdate(ctx context.Context, txnID string, payload *mint.UpdatePayload, isCreate bool) (mint.UpdateResult, error) {
	if f.FailFor[txnID] {
		return mint.UpdateResult{}, fmt.Errorf("simulated failure for %s", txnID)
	}
	f.Updates = append(f.Updates, submittedUpdate{TxnID: txnID, Payload: payload, IsCreate: isCreate})
	return mint.UpdateResult{Success: true}, nil
}

func (f *fakeClient) FetchTransactionsByID(ctx context.Context, id string) ([]mint.RawRecord, error) {
	return f.ByID[id], nil
}

func (f *fakeClient) FetchCategories(ctx context.Context) ([]mint.Category, error) {
	return []mint.Category{{ID: "cat-1", Name: "Groceries"}}, nil
}

func (f *fakeClient) FetchTags(ctx context.Context) ([]mint.Tag, error) {
	return []mint.Tag{{ID: "tag-v", Name: "Vacation"}}, nil
}

func (f *fakeClient) FetchAccounts(ctx context.Context) ([]mint.Account, error) {
	return []mint.Account{{ID: "acct-1", Name: "Checking", Type: "BankAccount"}}, nil
}
