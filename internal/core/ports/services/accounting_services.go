package services

import (
	"context"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// AccountingSvcFacade implements the ledger transfer protocol: exact,
// idempotent movement of money between accounts, safe under concurrent
// callers. Expected business failures are returned as domain.TransferError
// values.
type AccountingSvcFacade interface {
	// CreateAccount creates a top-level ledger account (asset, peer or
	// payment pointer kinds).
	CreateAccount(ctx context.Context, asset domain.Asset, kind domain.AccountKind) (*domain.LedgerAccount, error)

	// CreateSubAccount creates a payment sub-account backed by the parent.
	CreateSubAccount(ctx context.Context, parentAccountID string) (*domain.LedgerAccount, error)

	// CreateDeposit is a single-phase credit of amount into the account.
	CreateDeposit(ctx context.Context, transferID, accountID string, amount uint64) error

	// CreateWithdrawal reserves amount out of the account's available balance
	// as a pending transfer expiring after timeout.
	CreateWithdrawal(ctx context.Context, transferID, accountID string, amount uint64, timeout time.Duration) error

	// PostWithdrawal commits a pending withdrawal: the reserved amount leaves
	// the posted balance. Idempotent; a second post reports AlreadyPosted.
	PostWithdrawal(ctx context.Context, transferID string) error

	// VoidWithdrawal releases a pending withdrawal's reservation without
	// moving posted balance. Mutually exclusive with PostWithdrawal.
	VoidWithdrawal(ctx context.Context, transferID string) error

	GetBalance(ctx context.Context, accountID string) (*domain.Balance, error)

	// ExtendCredit atomically moves amount from the sub-account's parent into
	// the sub-account (reservation for a payment attempt).
	ExtendCredit(ctx context.Context, subAccountID string, amount uint64) error

	// RevokeCredit is the inverse of ExtendCredit.
	RevokeCredit(ctx context.Context, subAccountID string, amount uint64) error

	// ReapExpiredWithdrawals voids up to limit expired pending withdrawals
	// and returns how many were voided.
	ReapExpiredWithdrawals(ctx context.Context, limit int) (int, error)
}
