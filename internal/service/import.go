package service

import (
	"context"
	"fmt"
	"time"

	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
	"github.com/b3devs/MojitoLib2/internal/mint"
)

// wedgedPendingWindow guards the import start date against pending rows that
// never settle upstream. A pending transaction more than this much older
// than the newest row is assumed stuck and ignored when choosing where to
// resume fetching.
const wedgedPendingWindow = 30 * 24 * time.Hour

// ImportResult summarizes one sync run.
type ImportResult struct {
	Start    time.Time
	End      time.Time
	Fetched  int
	Imported int
	Skipped  int
	Pages    int
}

// ImportService fetches transaction batches and merges them into the local
// ledger. Each run replaces the tail of the ledger from the batch's earliest
// date forward, so re-running over the same window is idempotent.
type ImportService struct {
	Client    mint.Client
	Ledger    *repository.LedgerRepo
	Accounts  *repository.AccountRepo
	Cats      *repository.CategoryRepo
	Tags      *repository.TagRepo
	Sentinels ledger.ClearedTags

	LookbackDays int
	PageSize     int
	// Replace discards this login's existing rows instead of merging.
	Replace bool
	Now     func() time.Time

	// Progress, when set, is called after each fetched page.
	Progress func(page, fetched int)
}

func (s *ImportService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DetermineRange picks the fetch window for a sync run against one upstream
// login. The end is the last day of the current month. The start resumes
// from the earliest still-plausible pending transaction, backed off by the
// lookback fudge so settled rows near the boundary get re-fetched; with no
// ledger yet it reaches back to the start of the year.
func (s *ImportService) DetermineRange(ctx context.Context, mintAccount string) (start, end time.Time, err error) {
	nowT := s.now()
	end = time.Date(nowT.Year(), nowT.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	rows, err := s.Ledger.Rows(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	var newest, earliestPending time.Time
	seen := false
	for i := range rows {
		r := &rows[i]
		if mintAccount != "" && r.MintAccount != mintAccount {
			continue
		}
		seen = true
		if r.Date.After(newest) {
			newest = r.Date
		}
	}
	if !seen {
		start = time.Date(nowT.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, end, nil
	}

	wedgedCutoff := newest.Add(-wedgedPendingWindow)
	for i := range rows {
		r := &rows[i]
		if mintAccount != "" && r.MintAccount != mintAccount {
			continue
		}
		if r.State != ledger.StatePending || r.Date.Before(wedgedCutoff) {
			continue
		}
		if earliestPending.IsZero() || r.Date.Before(earliestPending) {
			earliestPending = r.Date
		}
	}

	anchor := newest
	if !earliestPending.IsZero() {
		anchor = earliestPending
	}
	start = anchor.AddDate(0, 0, -s.LookbackDays)
	return start, end, nil
}

// Run performs one full sync for the given upstream login: fetch pages until
// an empty one, parse, merge into the ledger and persist. Rows belonging to
// other logins are carried through untouched.
func (s *ImportService) Run(ctx context.Context, mintAccount string) (ImportResult, error) {
	start, end, err := s.DetermineRange(ctx, mintAccount)
	if err != nil {
		return ImportResult{}, err
	}
	return s.RunRange(ctx, mintAccount, start, end)
}

// RunRange is Run with an explicit fetch window.
func (s *ImportService) RunRange(ctx context.Context, mintAccount string, start, end time.Time) (ImportResult, error) {
	res := ImportResult{Start: start, End: end}
	importDate := s.now()

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	var batch []ledger.TransactionRow
	for offset := 0; ; offset += pageSize {
		records, err := s.Client.FetchTransactionPage(ctx, offset, pageSize, start, end)
		if err != nil {
			return res, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if len(records) == 0 {
			break
		}
		res.Pages++
		res.Fetched += len(records)

		parsed, err := ledger.ParseRawRecords(records, importDate, mintAccount, s.Sentinels)
		if err != nil {
			return res, fmt.Errorf("parse page at offset %d: %w", offset, err)
		}
		res.Skipped += parsed.Skipped()
		batch = append(batch, parsed.Rows...)

		if s.Progress != nil {
			s.Progress(res.Pages, res.Fetched)
		}
	}
	res.Imported = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	existing, err := s.Ledger.Rows(ctx)
	if err != nil {
		return res, err
	}

	// Only this login's rows participate in the replace-tail merge; other
	// logins keep their rows verbatim.
	var mine, others []ledger.TransactionRow
	for i := range existing {
		if mintAccount != "" && existing[i].MintAccount != mintAccount {
			others = append(others, existing[i])
			continue
		}
		mine = append(mine, existing[i])
	}

	var merged []ledger.TransactionRow
	if s.Replace {
		merged = ledger.MergeReplace(batch)
	} else {
		merged = ledger.Merge(mine, batch)
	}
	merged = append(merged, others...)
	ledger.SortRows(merged)

	if err := s.Ledger.ReplaceAll(ctx, merged); err != nil {
		return res, fmt.Errorf("persist ledger: %w", err)
	}
	return res, nil
}

// RefreshLookups fetches the upstream category, tag and account tables and
// replaces the local copies.
func (s *ImportService) RefreshLookups(ctx context.Context) error {
	cats, err := s.Client.FetchCategories(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	repoCats := make([]repository.Category, 0, len(cats))
	for _, c := range cats {
		repoCats = append(repoCats, repository.Category{ID: c.ID, Name: c.Name})
	}
	if err := s.Cats.ReplaceAll(ctx, repoCats); err != nil {
		return err
	}

	tags, err := s.Client.FetchTags(ctx)
	if err != nil {
		return fmt.Errorf("fetch tags: %w", err)
	}
	repoTags := make([]repository.Tag, 0, len(tags))
	for _, t := range tags {
		repoTags = append(repoTags, repository.Tag{ID: t.ID, Name: t.Name})
	}
	if err := s.Tags.ReplaceAll(ctx, repoTags); err != nil {
		return err
	}

	accounts, err := s.Client.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	for _, a := range accounts {
		if err := s.Accounts.Upsert(ctx, repository.Account{ID: a.ID, Name: a.Name, AccountType: a.Type}); err != nil {
			return fmt.Errorf("upsert account %q: %w", a.Name, err)
		}
	}
	return nil
}
