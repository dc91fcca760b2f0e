package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/b3devs/MojitoLib2/internal/mint"
)

// TagDelim joins tag names and tag ids in their list columns.
const TagDelim = ", "

// RowState is the settlement state of a ledger row.
type RowState string

const (
	StateNormal  RowState = ""
	StatePending RowState = "P"
	StateSplit   RowState = "S"
)

// Mark is the tri-state cleared/reconciled marker.
type Mark string

const (
	MarkNone       Mark = ""
	MarkCleared    Mark = "c"
	MarkReconciled Mark = "R"
)

// Reconciled reports whether the marker is 'R', case-insensitively: the
// marker column is user-typed.
func (m Mark) Reconciled() bool { return strings.EqualFold(string(m), "R") }

// Cleared is anything non-empty that is not 'R'.
func (m Mark) Cleared() bool { return m != MarkNone && !m.Reconciled() }

// TransactionRow is one ledger entry. Amounts are signed dollars, negative
// for expenses. OrigAmount snapshots the amount at last sync so user edits
// can be detected; OrigMerchant keeps the FI-reported description.
type TransactionRow struct {
	ID          string
	ParentID    string // non-empty = split child of that transaction
	Date        time.Time
	EditStatus  EditStatus
	Account     string
	MintAccount string
	Merchant    string
	OrigMerchant string
	Amount      float64
	OrigAmount  float64
	Category    string
	CategoryID  string
	Tags        string // TagDelim-joined names, cleared/reconciled sentinels excluded
	TagIDs      string // TagDelim-joined ids, sentinels included
	ClearRecon  Mark
	Memo        string
	PropsJSON   string // raw side-channel JSON, empty if none
	Props       *Props // parsed side-channel, nil if absent or unparseable
	State       RowState
	YearMonth   int // yyyymm derived from Date
	ImportDate  time.Time
}

// IsSplit reports whether the row belongs to a split group.
func (r *TransactionRow) IsSplit() bool { return r.ParentID != "" }

// RoundCents rounds a dollar amount to the nearest cent.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// CentsEqual compares two dollar amounts by cent-rounded absolute value,
// the same comparison the reconcile balance check uses.
func CentsEqual(a, b float64) bool {
	return math.Round(math.Abs(a*100)) == math.Round(math.Abs(b*100))
}

// ClearedTags names the two sentinel tags that encode the cleared and
// reconciled markers upstream. Both empty means the feature is disabled.
type ClearedTags struct {
	Cleared    string
	Reconciled string
}

// Configured reports whether both sentinel tags are set.
func (t ClearedTags) Configured() bool { return t.Cleared != "" && t.Reconciled != "" }

// ParseResult carries the rows produced from one raw batch plus counts of
// records that were skipped rather than emitted.
type ParseResult struct {
	Rows             []TransactionRow
	SkippedOtherType int
	SkippedInvalid   int
	SkippedDuplicate int
}

// Skipped is the total number of records not emitted.
func (p ParseResult) Skipped() int {
	return p.SkippedOtherType + p.SkippedInvalid + p.SkippedDuplicate
}

const txnTypeCashAndCredit = "CashAndCreditTransaction"

// ParseRawRecords converts freshly fetched raw records into ledger rows.
// Records that are not cash/credit transactions, lack a date or id, have no
// numeric amount, or are flagged as upstream duplicates are counted and
// skipped. A record carrying split children emits one row per child; splits
// divided by percentage are a hard fault.
func ParseRawRecords(records []mint.RawRecord, importDate time.Time, mintAccount string, tags ClearedTags) (ParseResult, error) {
	var res ParseResult
	for i := range records {
		rec := &records[i]
		if rec.Type != txnTypeCashAndCredit {
			res.SkippedOtherType++
			continue
		}
		if rec.Date == "" || rec.ID == "" || rec.Amount == nil {
			res.SkippedInvalid++
			continue
		}
		if rec.IsDuplicate {
			res.SkippedDuplicate++
			continue
		}
		if rec.SplitData != nil && len(rec.SplitData.Children) > 0 {
			if rec.SplitData.UsePercentages {
				return res, fmt.Errorf("%w: split %q uses percentages", ErrDataIntegrity, rec.ID)
			}
			for j := range rec.SplitData.Children {
				row, err := rowFromRecord(rec, &rec.SplitData.Children[j], rec.ID, importDate, mintAccount, tags)
				if err != nil {
					return res, err
				}
				res.Rows = append(res.Rows, row)
			}
			continue
		}
		row, err := rowFromRecord(rec, nil, rec.ParentID, importDate, mintAccount, tags)
		if err != nil {
			return res, err
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// rowFromRecord builds one ledger row from a record, or from one split child
// of it when child is non-nil (the parent still supplies date and account).
func rowFromRecord(rec, child *mint.RawRecord, parentID string, importDate time.Time, mintAccount string, tags ClearedTags) (TransactionRow, error) {
	if child == nil {
		child = rec
	}
	date, err := time.Parse(time.DateOnly, rec.Date)
	if err != nil {
		// Upstream also sends full timestamps for manually entered rows.
		date, err = time.Parse(time.RFC3339, rec.Date)
		if err != nil {
			return TransactionRow{}, fmt.Errorf("%w: transaction %q date %q", ErrDataIntegrity, rec.ID, rec.Date)
		}
		date = date.UTC().Truncate(24 * time.Hour)
	}

	var amount float64
	if child.Amount != nil {
		amount = *child.Amount
	}

	var cleared, reconciled bool
	var tagNames, tagIDs []string
	if child.TagData != nil {
		for _, t := range child.TagData.Tags {
			switch t.Name {
			case tags.Cleared:
				cleared = true
			case tags.Reconciled:
				reconciled = true
			default:
				tagNames = append(tagNames, t.Name)
			}
			tagIDs = append(tagIDs, t.ID)
		}
	}

	memo, props, propsJSON := ExtractProps(child.Notes)

	state := StateNormal
	pendingUpstream := rec.IsPending || rec.ManualTransactionType == "PENDING"
	if pendingUpstream && (props == nil || props.Pending != "ignore") {
		state = StatePending
	} else if parentID != "" {
		state = StateSplit
	}

	account := "Unknown"
	if rec.AccountRef != nil && rec.AccountRef.Name != "" {
		account = rec.AccountRef.Name
	}
	var origMerchant string
	if rec.FIData != nil {
		origMerchant = rec.FIData.Description
	}
	var category, categoryID string
	if child.Category != nil {
		category = child.Category.Name
		categoryID = child.Category.ID
	}

	mark := MarkNone
	if reconciled {
		mark = MarkReconciled
	} else if cleared {
		mark = MarkCleared
	}

	return TransactionRow{
		ID:           child.ID,
		ParentID:     parentID,
		Date:         date,
		Account:      account,
		MintAccount:  mintAccount,
		Merchant:     child.Description,
		OrigMerchant: origMerchant,
		Amount:       amount,
		OrigAmount:   amount,
		Category:     category,
		CategoryID:   categoryID,
		Tags:         strings.Join(tagNames, TagDelim),
		TagIDs:       strings.Join(tagIDs, TagDelim),
		ClearRecon:   mark,
		Memo:         memo,
		PropsJSON:    propsJSON,
		Props:        props,
		State:        state,
		YearMonth:    date.Year()*100 + int(date.Month()),
		ImportDate:   importDate,
	}, nil
}

// SplitTagList splits a tag list on commas into trimmed, non-empty tokens.
// It accepts both TagDelim-joined lists and hand-typed "a,b" input.
func SplitTagList(list string) []string {
	var out []string
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
