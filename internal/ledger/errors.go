package ledger

import "errors"

// Error kinds surfaced by the merge/edit/reconcile core. Callers classify
// with errors.Is; everything else is an unexpected fault.
var (
	// ErrDataIntegrity flags upstream data in a shape we refuse to guess at,
	// e.g. a split transaction divided by percentages instead of fixed amounts.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrInvalidCategory and ErrInvalidTag are user-input failures. They block
	// the single offending edit and nothing else.
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidTag      = errors.New("invalid tag")

	// ErrInvalidStateTransition is the E -> N edit status downgrade, which the
	// edit contract forbids.
	ErrInvalidStateTransition = errors.New("invalid edit status transition")

	// ErrRowNotEditable covers pending rows and out-of-bounds columns.
	ErrRowNotEditable = errors.New("row not editable")

	// ErrUnknownAccount means a ledger account name could not be resolved to
	// an upstream account id when building a creation payload.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrSplitReconciliation means the post-update split children returned by
	// upstream could not be matched one-to-one against the local split rows.
	ErrSplitReconciliation = errors.New("split reconciliation failed")

	// ErrTransactionNotFound aborts a reconcile commit when a marked session
	// row no longer has a ledger row behind it.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrReconcileNotConfigured: reconciliation needs both the cleared and
	// reconciled tag names configured before it can run.
	ErrReconcileNotConfigured = errors.New("clear/reconcile tags not configured")

	// ErrReconcileInProgress: a session slot is already occupied and must be
	// cancelled explicitly before starting another.
	ErrReconcileInProgress = errors.New("reconcile already in progress")
)
