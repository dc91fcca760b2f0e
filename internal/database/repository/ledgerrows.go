package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/b3devs/MojitoLib2/internal/ledger"
)

// LedgerRepo persists the transaction ledger as an ordered, positionally
// addressed table: position 0 is the top row and the merge engine's sort
// order is whatever order the rows were last saved in.
type LedgerRepo struct {
	db *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `txn_id, parent_id, date, edit_status, account, mint_account,
 merchant, orig_merchant, amount, orig_amount, category, category_id,
 tags, tag_ids, clear_recon, memo, props_json, state, year_month, import_date`

// Rows returns the full ledger snapshot in position order. Services load
// this once per operation, work in memory, and write the result back.
func (r *LedgerRepo) Rows(ctx context.Context) ([]ledger.TransactionRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_rows ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.TransactionRow
	for rows.Next() {
		t, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of ledger rows.
func (r *LedgerRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_rows`).Scan(&n)
	return n, err
}

// ReplaceAll swaps the entire ledger for the given rows, assigning positions
// from slice order. One transaction so a partial write never survives.
func (r *LedgerRepo) ReplaceAll(ctx context.Context, rows []ledger.TransactionRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO ledger_rows(position, `+ledgerColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(i, &rows[i])...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// UpdateRow overwrites the row at the given position.
func (r *LedgerRepo) UpdateRow(ctx context.Context, pos int, row ledger.TransactionRow) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE ledger_rows SET
	 txn_id=?, parent_id=?, date=?, edit_status=?, account=?, mint_account=?,
	 merchant=?, orig_merchant=?, amount=?, orig_amount=?, category=?, category_id=?,
	 tags=?, tag_ids=?, clear_recon=?, memo=?, props_json=?, state=?, year_month=?, import_date=?
	WHERE position = ?`, append(rowArgs(pos, &row)[1:], pos)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("no ledger row at position %d", pos)
	}
	return err
}

// InsertRow inserts at the given position, shifting later rows down.
func (r *LedgerRepo) InsertRow(ctx context.Context, pos int, row ledger.TransactionRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// Shift in two steps: sqlite enforces the primary key per-row, so move
	// the tail out of the way first.
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_rows SET position = -(position + 1) WHERE position >= ?`, pos); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_rows SET position = -position WHERE position < 0`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO ledger_rows(position, `+ledgerColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowArgs(pos, &row)...); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRow removes the row at the given position, shifting later rows up.
func (r *LedgerRepo) DeleteRow(ctx context.Context, pos int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE position = ?`, pos)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no ledger row at position %d", pos)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_rows SET position = -(position - 1) WHERE position > ?`, pos); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_rows SET position = -position WHERE position < 0`); err != nil {
		return err
	}
	return tx.Commit()
}

func rowArgs(pos int, t *ledger.TransactionRow) []any {
	return []any{
		pos, t.ID, t.ParentID, t.Date, string(t.EditStatus), t.Account, t.MintAccount,
		t.Merchant, t.OrigMerchant, t.Amount, t.OrigAmount, t.Category, t.CategoryID,
		t.Tags, t.TagIDs, string(t.ClearRecon), t.Memo, t.PropsJSON, string(t.State),
		t.YearMonth, t.ImportDate,
	}
}

func scanRow(rows *sql.Rows) (ledger.TransactionRow, error) {
	var t ledger.TransactionRow
	var editStatus, clearRecon, state string
	var date, importDate time.Time
	if err := rows.Scan(&t.ID, &t.ParentID, &date, &editStatus, &t.Account, &t.MintAccount,
		&t.Merchant, &t.OrigMerchant, &t.Amount, &t.OrigAmount, &t.Category, &t.CategoryID,
		&t.Tags, &t.TagIDs, &clearRecon, &t.Memo, &t.PropsJSON, &state, &t.YearMonth, &importDate); err != nil {
		return ledger.TransactionRow{}, err
	}
	t.Date = date
	t.ImportDate = importDate
	t.EditStatus = ledger.EditStatus(editStatus)
	t.ClearRecon = ledger.Mark(clearRecon)
	t.State = ledger.RowState(state)
	t.Props = ledger.ParsePropsJSON(t.PropsJSON)
	return t, nil
}
