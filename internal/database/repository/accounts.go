package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// AccountRepo handles the account name -> upstream id map.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, name, account_type, mint_account, created_at, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 account_type=excluded.account_type,
	 mint_account=excluded.mint_account,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.Name, a.AccountType, a.MintAccount)
	return err
}

// GetByName resolves an account by its display name, case-insensitively.
// Returns nil when not found.
func (r *AccountRepo) GetByName(ctx context.Context, name string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, name, account_type, mint_account, last_recon_balance, last_recon_date, created_at, updated_at
	FROM accounts WHERE LOWER(name) = ?`, strings.ToLower(name))
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.AccountType, &a.MintAccount,
		&a.LastReconBalance, &a.LastReconDate, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, account_type, mint_account, last_recon_balance, last_recon_date, created_at, updated_at
	FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.AccountType, &a.MintAccount,
			&a.LastReconBalance, &a.LastReconDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetLastRecon records the balance and date of a finished reconcile.
func (r *AccountRepo) SetLastRecon(ctx context.Context, id string, balance float64, date time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET last_recon_balance = ?, last_recon_date = ?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`, balance, date, id)
	return err
}
