// Package mint models the upstream personal-finance API: the raw transaction
// schema and the thin HTTP client that fetches and updates it. Everything
// semantic about merging and reconciling lives in internal/ledger and
// internal/service; this package is plumbing.
package mint

// Category is an upstream category reference.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Tag is an upstream tag reference.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TagData wraps the tag list on a transaction.
type TagData struct {
	Tags []Tag `json:"tags"`
}

// AccountRef names the financial-institution account a transaction belongs to.
type AccountRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// FIData carries the description as reported by the financial institution,
// before upstream's merchant cleanup.
type FIData struct {
	Description string `json:"description,omitempty"`
}

// SplitData divides a transaction into children. UsePercentages is always
// expected to be false; percentage splits are rejected during parsing.
type SplitData struct {
	UsePercentages bool        `json:"usePercentages"`
	Children       []RawRecord `json:"children,omitempty"`
}

// Account is one upstream account, used to resolve ledger account names to
// ids for transaction creation and to drive reconciliation.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// RawRecord is one transaction as fetched. Split children reuse the same
// shape (id, description, category, amount, tagData, notes). Amount is a
// pointer so a missing value is distinguishable from zero.
type RawRecord struct {
	Type                  string      `json:"type,omitempty"`
	ID                    string      `json:"id,omitempty"`
	ParentID              string      `json:"parentId,omitempty"`
	Date                  string      `json:"date,omitempty"`
	Description           string      `json:"description,omitempty"`
	Amount                *float64    `json:"amount,omitempty"`
	Category              *Category   `json:"category,omitempty"`
	TagData               *TagData    `json:"tagData,omitempty"`
	Notes                 string      `json:"notes,omitempty"`
	IsPending             bool        `json:"isPending,omitempty"`
	IsDuplicate           bool        `json:"isDuplicate,omitempty"`
	ManualTransactionType string      `json:"manualTransactionType,omitempty"`
	AccountRef            *AccountRef `json:"accountRef,omitempty"`
	FIData                *FIData     `json:"fiData,omitempty"`
	SplitData             *SplitData  `json:"splitData,omitempty"`
}

// UpdatePayload is the transaction update/create schema. Fields beyond the
// common four are only populated for creation payloads, where the API wants
// them all spelled out explicitly (hence the pointers: a creation sends
// literal false/null, an edit omits the field entirely).
type UpdatePayload struct {
	Type        string       `json:"type,omitempty"`
	Date        string       `json:"date,omitempty"`
	Description string       `json:"description,omitempty"`
	Category    *Category    `json:"category,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Amount      string       `json:"amount,omitempty"`
	TagData     *TagData     `json:"tagData,omitempty"`
	SplitData   *SplitUpdate `json:"splitData,omitempty"`

	AccountID                    string  `json:"accountId,omitempty"`
	ParentID                     *string `json:"parentId,omitempty"`
	ID                           *string `json:"id,omitempty"`
	IsExpense                    *bool   `json:"isExpense,omitempty"`
	IsPending                    *bool   `json:"isPending,omitempty"`
	IsDuplicate                  *bool   `json:"isDuplicate,omitempty"`
	CheckNumber                  *string `json:"checkNumber,omitempty"`
	IsLinkedToRule               *bool   `json:"isLinkedToRule,omitempty"`
	ShouldPullFromAtmWithdrawals *bool   `json:"shouldPullFromAtmWithdrawals,omitempty"`
	ManualTransactionType        string  `json:"manualTransactionType,omitempty"`
}

// SplitUpdate is the split portion of an update payload. An empty non-nil
// Children slice deletes the split and reverts to a plain transaction, so it
// must serialize as [] rather than be omitted.
type SplitUpdate struct {
	Children []*UpdatePayload `json:"children"`
}

// UpdateResult reports the outcome of one submitted update.
type UpdateResult struct {
	Success      bool
	ResponseBody []byte
}
