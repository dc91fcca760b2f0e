package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/b3devs/MojitoLib2/internal/config"
	"github.com/b3devs/MojitoLib2/internal/database"
	"github.com/b3devs/MojitoLib2/internal/database/repository"
	"github.com/b3devs/MojitoLib2/internal/ledger"
	"github.com/b3devs/MojitoLib2/internal/mint"
	"github.com/b3devs/MojitoLib2/internal/service"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mojito <command> [flags]

commands:
  sync        fetch transactions and merge them into the local ledger
  add         record a manual transaction (uploaded on the next save)
  edit        edit one ledger row's fields
  save        upload pending local edits
  reconcile   reconcile an account against a statement balance
  accounts    list known accounts`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// repositories
	ledgerRepo := repository.NewLedgerRepo(db)
	acctRepo := repository.NewAccountRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	tagRepo := repository.NewTagRepo(db)

	client := mint.NewHTTPClient(cfg.Mint.BaseURL, sessionHeaders)

	sentinels := ledger.ClearedTags{
		Cleared:    cfg.Reconcile.ClearedTag,
		Reconciled: cfg.Reconcile.ReconciledTag,
	}

	validator := &ledger.Validator{
		Categories: ledger.NewNameLookup(func(ctx context.Context) ([]ledger.NameInfo, error) {
			cats, err := catRepo.List(ctx)
			if err != nil {
				return nil, err
			}
			infos := make([]ledger.NameInfo, 0, len(cats))
			for _, c := range cats {
				infos = append(infos, ledger.NameInfo{ID: c.ID, DisplayName: c.Name})
			}
			return infos, nil
		}),
		Tags: ledger.NewNameLookup(func(ctx context.Context) ([]ledger.NameInfo, error) {
			tags, err := tagRepo.List(ctx)
			if err != nil {
				return nil, err
			}
			infos := make([]ledger.NameInfo, 0, len(tags))
			for _, t := range tags {
				infos = append(infos, ledger.NameInfo{ID: t.ID, DisplayName: t.Name})
			}
			return infos, nil
		}),
		Sentinels: sentinels,
	}

	importer := &service.ImportService{
		Client:       client,
		Ledger:       ledgerRepo,
		Accounts:     acctRepo,
		Cats:         catRepo,
		Tags:         tagRepo,
		Sentinels:    sentinels,
		LookbackDays: cfg.Import.LookbackDays,
		PageSize:     cfg.Import.PageSize,
	}
	uploader := &service.UploadService{
		Client:    client,
		Ledger:    ledgerRepo,
		Accounts:  acctRepo,
		Sentinels: sentinels,
	}
	reconciler := &service.ReconcileService{
		Ledger:    ledgerRepo,
		Accounts:  acctRepo,
		Validator: validator,
		Sentinels: sentinels,
	}

	switch os.Args[1] {
	case "sync":
		err = runSync(ctx, importer, cfg, os.Args[2:])
	case "add":
		err = runAdd(ctx, ledgerRepo, validator, cfg, os.Args[2:])
	case "edit":
		err = runEdit(ctx, ledgerRepo, validator, os.Args[2:])
	case "save":
		err = runSave(ctx, uploader, cfg, os.Args[2:])
	case "reconcile":
		err = runReconcile(ctx, reconciler, acctRepo, os.Args[2:])
	case "accounts":
		err = runAccounts(ctx, acctRepo, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// sessionHeaders pulls the API session out of the environment. Session
// acquisition (login flow, cookie capture) is left to the operator.
func sessionHeaders() (map[string]string, error) {
	cookie := os.Getenv("MOJITO_COOKIE")
	apiKey := os.Getenv("MOJITO_API_KEY")
	if cookie == "" || apiKey == "" {
		return nil, fmt.Errorf("MOJITO_COOKIE and MOJITO_API_KEY must be set")
	}
	return map[string]string{
		"Cookie":        cookie,
		"Authorization": apiKey,
	}, nil
}

func runSync(ctx context.Context, importer *service.ImportService, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	login := fs.String("login", cfg.Mint.Login, "upstream login to sync")
	from := fs.String("from", "", "override fetch window start (YYYY-MM-DD)")
	to := fs.String("to", "", "override fetch window end (YYYY-MM-DD)")
	skipLookups := fs.Bool("skip-lookups", false, "skip refreshing category/tag/account tables")
	replace := fs.Bool("replace", false, "discard this login's existing rows instead of merging")
	_ = fs.Parse(args)
	importer.Replace = *replace

	if !*skipLookups {
		if err := importer.RefreshLookups(ctx); err != nil {
			return err
		}
	}

	importer.Progress = func(page, fetched int) {
		fmt.Printf("  page %d: %d transactions so far\n", page, fetched)
	}

	var res service.ImportResult
	var err error
	if *from != "" || *to != "" {
		if *from == "" || *to == "" {
			return fmt.Errorf("-from and -to must be given together")
		}
		start, end, perr := parseRange(*from, *to)
		if perr != nil {
			return perr
		}
		res, err = importer.RunRange(ctx, *login, start, end)
	} else {
		res, err = importer.Run(ctx, *login)
	}
	if err != nil {
		return err
	}

	color.Green("synced %s .. %s: %d imported, %d skipped (%d pages)",
		res.Start.Format(time.DateOnly), res.End.Format(time.DateOnly),
		res.Imported, res.Skipped, res.Pages)
	return nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -to: %w", err)
	}
	return start, end, nil
}

func runAdd(ctx context.Context, ledgerRepo *repository.LedgerRepo, validator *ledger.Validator, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	account := fs.String("account", "", "account name (required)")
	dateStr := fs.String("date", time.Now().Format(time.DateOnly), "transaction date (YYYY-MM-DD)")
	merchant := fs.String("merchant", "", "merchant description (required)")
	amount := fs.Float64("amount", 0, "signed amount, negative for expenses (required)")
	category := fs.String("category", "", "category name (required)")
	memo := fs.String("memo", "", "memo text")
	_ = fs.Parse(args)

	if *account == "" || *merchant == "" || *category == "" || *amount == 0 {
		return fmt.Errorf("-account, -merchant, -category and -amount are required")
	}
	date, err := time.Parse(time.DateOnly, *dateStr)
	if err != nil {
		return fmt.Errorf("parse -date: %w", err)
	}

	row := ledger.TransactionRow{
		// provisional id; the upload swaps in the upstream one
		ID:          uuid.NewString(),
		Date:        date,
		EditStatus:  ledger.EditStatus(ledger.EditNew),
		Account:     *account,
		MintAccount: cfg.Mint.Login,
		Merchant:    *merchant,
		Amount:      *amount,
		OrigAmount:  *amount,
		Category:    *category,
		Memo:        *memo,
		YearMonth:   date.Year()*100 + int(date.Month()),
		ImportDate:  time.Now(),
	}
	if err := validator.ValidateEdit(ctx, &row, []ledger.Column{ledger.ColCategory}, ledger.EditNew); err != nil {
		return err
	}

	rows, err := ledgerRepo.Rows(ctx)
	if err != nil {
		return err
	}
	rows = append(rows, row)
	ledger.SortRows(rows)
	if err := ledgerRepo.ReplaceAll(ctx, rows); err != nil {
		return err
	}
	color.Green("added %s %.2f on %s (run save to upload)", *merchant, *amount, date.Format(time.DateOnly))
	return nil
}

func runEdit(ctx context.Context, ledgerRepo *repository.LedgerRepo, validator *ledger.Validator, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	id := fs.String("id", "", "transaction id to edit (required)")
	merchant := fs.String("merchant", "", "new merchant description")
	amount := fs.Float64("amount", 0, "new signed amount")
	category := fs.String("category", "", "new category name")
	tags := fs.String("tags", "", "new comma-separated tag list")
	mark := fs.String("mark", "", "new cleared/reconciled marker: '', c or R")
	memo := fs.String("memo", "", "new memo text")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	rows, err := ledgerRepo.Rows(ctx)
	if err != nil {
		return err
	}
	pos := ledger.FindRowByID(rows, *id)
	if pos < 0 {
		return fmt.Errorf("%w: %q", ledger.ErrTransactionNotFound, *id)
	}
	row := &rows[pos]

	var cols []ledger.Column
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "merchant":
			row.Merchant = *merchant
			cols = append(cols, ledger.ColMerchant)
		case "amount":
			row.Amount = *amount
			cols = append(cols, ledger.ColAmount)
		case "category":
			row.Category = *category
			cols = append(cols, ledger.ColCategory)
		case "tags":
			row.Tags = *tags
			cols = append(cols, ledger.ColTags)
		case "mark":
			row.ClearRecon = ledger.Mark(*mark)
			cols = append(cols, ledger.ColClearRecon)
		case "memo":
			row.Memo = *memo
			cols = append(cols, ledger.ColMemo)
		}
	})
	if len(cols) == 0 {
		return fmt.Errorf("nothing to change")
	}

	if err := validator.ValidateEdit(ctx, row, cols, ledger.EditEdit); err != nil {
		return err
	}
	if err := ledgerRepo.UpdateRow(ctx, pos, *row); err != nil {
		return err
	}
	color.Green("edited %s (%s); run save to upload", row.Merchant, row.ID)
	return nil
}

func runSave(ctx context.Context, uploader *service.UploadService, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	login := fs.String("login", cfg.Mint.Login, "upstream login whose edits to upload")
	_ = fs.Parse(args)

	res, err := uploader.Save(ctx, *login)
	if err != nil {
		return err
	}
	if res.Success() {
		color.Green("saved %d change(s)", res.Saved)
		return nil
	}
	color.Yellow("saved %d change(s), %d failed:", res.Saved, len(res.Failed))
	for _, f := range res.Failed {
		fmt.Printf("  %s (%s): %v\n", f.Merchant, f.TxnID, f.Err)
	}
	return fmt.Errorf("%d update(s) failed; they remain flagged for retry", len(res.Failed))
}

func runReconcile(ctx context.Context, reconciler *service.ReconcileService, acctRepo *repository.AccountRepo, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	account := fs.String("account", "", "account name to reconcile (required)")
	mintAccount := fs.String("login", "", "restrict to rows from this upstream login")
	endStr := fs.String("end", "", "statement end date (YYYY-MM-DD, default today)")
	newBal := fs.Float64("balance", 0, "statement ending balance (required)")
	prevBal := fs.Float64("prev", 0, "previous reconciled balance (default: last recorded)")
	_ = fs.Parse(args)

	if *account == "" {
		return fmt.Errorf("-account is required")
	}

	end := time.Now()
	if *endStr != "" {
		var err error
		end, err = time.Parse(time.DateOnly, *endStr)
		if err != nil {
			return fmt.Errorf("parse -end: %w", err)
		}
	}

	prev := *prevBal
	acctType := ""
	if acct, err := acctRepo.GetByName(ctx, *account); err == nil && acct != nil {
		acctType = acct.AccountType
		if prev == 0 && acct.LastReconBalance != nil {
			prev = *acct.LastReconBalance
		}
	}

	sess, err := reconciler.Start(ctx, service.StartParams{
		Account:     *account,
		AccountType: acctType,
		MintAccount: *mintAccount,
		EndDate:     end,
		PrevBalance: prev,
		NewBalance:  *newBal,
	})
	if err != nil {
		return err
	}

	marked := reconciler.AutoMark(end)
	fmt.Printf("%s: %d transaction(s), %d marked through %s\n",
		sess.Account, len(sess.Rows), marked, end.Format(time.DateOnly))
	fmt.Printf("  previous balance %.2f, new balance %.2f, target %.2f\n",
		sess.PrevBalance, sess.NewBalance, sess.TargetAmount)

	if !reconciler.AmountsMatch() {
		sum := reconciler.MarkedSum()
		diff := ledger.RoundCents(sess.TargetAmount - sum)
		reconciler.Cancel()
		return fmt.Errorf("amounts do not match: marked %.2f, off by %.2f; nothing was changed",
			sum, diff)
	}

	if err := reconciler.Finish(ctx); err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			color.Yellow("partial reconcile persisted; re-run after the next sync")
		}
		return err
	}
	color.Green("reconciled %s through %s at %.2f", *account, end.Format(time.DateOnly), *newBal)
	return nil
}

func runAccounts(ctx context.Context, acctRepo *repository.AccountRepo, args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	_ = fs.Parse(args)

	accounts, err := acctRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("no accounts known; run sync first")
		return nil
	}
	for _, a := range accounts {
		line := fmt.Sprintf("%-30s %-12s", a.Name, a.AccountType)
		if a.LastReconBalance != nil && a.LastReconDate != nil {
			line += fmt.Sprintf("  last reconciled %.2f on %s",
				*a.LastReconBalance, a.LastReconDate.Format(time.DateOnly))
		}
		fmt.Println(line)
	}
	return nil
}
