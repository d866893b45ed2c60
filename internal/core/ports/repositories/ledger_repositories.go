package repositories

import (
	"context"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// LedgerTx exposes the primitive ledger store operations available inside a
// serializing transaction. Row locks acquired through it are held until the
// transaction commits or rolls back, so check-then-act sequences built on it
// are safe under concurrent callers.
type LedgerTx interface {
	// InsertAccount adds a new ledger account.
	// Returns apperrors.ErrDuplicate on ID reuse.
	InsertAccount(ctx context.Context, account domain.LedgerAccount) error

	// GetAccount reads an account without locking it.
	GetAccount(ctx context.Context, accountID string) (*domain.LedgerAccount, error)

	// FindAssetAccountID returns the ID of the asset's settlement account,
	// the debit/credit counterparty for deposits and withdrawals.
	FindAssetAccountID(ctx context.Context, assetCode string) (string, error)

	// GetAccountsForUpdate locks the given account rows in deterministic ID
	// order and returns them. Returns apperrors.ErrNotFound if any is missing.
	GetAccountsForUpdate(ctx context.Context, accountIDs []string) (map[string]domain.LedgerAccount, error)

	// GetPostedBalance reads the posted balance of a locked account. Only an
	// asset settlement account may go negative (money entering the system).
	GetPostedBalance(ctx context.Context, accountID string) (int64, error)

	// SumPendingDebits totals the unexpired pending withdrawal reservations
	// against an account as of now.
	SumPendingDebits(ctx context.Context, accountID string, now time.Time) (uint64, error)

	// AdjustPostedBalance moves an account's posted balance by delta.
	AdjustPostedBalance(ctx context.Context, accountID string, delta int64) error

	// InsertTransfer records a transfer. Returns apperrors.ErrDuplicate when
	// the transfer ID has already been used, regardless of kind or outcome.
	InsertTransfer(ctx context.Context, transfer domain.Transfer) error

	// GetTransferForUpdate locks and returns a transfer row.
	// Returns apperrors.ErrNotFound if absent.
	GetTransferForUpdate(ctx context.Context, transferID string) (*domain.Transfer, error)

	// UpdateTransferState resolves a transfer to posted or voided.
	UpdateTransferState(ctx context.Context, transferID string, state domain.TransferState, now time.Time) error

	// ListExpiredPendingForUpdate locks and returns up to limit expired
	// pending withdrawals, skipping rows locked by other reapers.
	ListExpiredPendingForUpdate(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error)
}

// LedgerRepository is the durable account/transfer store.
type LedgerRepository interface {
	// WithinTransaction runs fn inside a single serializing transaction,
	// committing if fn returns nil and rolling back otherwise.
	WithinTransaction(ctx context.Context, fn func(tx LedgerTx) error) error

	FindAccountByID(ctx context.Context, accountID string) (*domain.LedgerAccount, error)

	// GetBalance returns the posted/pending/available view of an account
	// without locking it.
	GetBalance(ctx context.Context, accountID string, now time.Time) (*domain.Balance, error)
}
