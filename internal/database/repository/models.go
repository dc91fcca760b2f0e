package repository

import "time"

// Account maps a financial-institution account name to its upstream id.
// LastReconBalance and LastReconDate remember the previous reconcile so the
// next session can offer them as the starting balance.
type Account struct {
	ID               string
	Name             string
	AccountType      string
	MintAccount      string
	LastReconBalance *float64
	LastReconDate    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Category is one cached upstream category.
type Category struct {
	ID   string
	Name string
}

// Tag is one cached upstream tag.
type Tag struct {
	ID   string
	Name string
}
