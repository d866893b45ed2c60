package domain

import "time"

// TransferKind classifies ledger transfers.
type TransferKind string

const (
	// TransferKindDeposit is a single-phase credit into an account.
	TransferKindDeposit TransferKind = "DEPOSIT"
	// TransferKindWithdrawal is a two-phase debit: reserved while pending,
	// settled on post, released on void.
	TransferKindWithdrawal TransferKind = "WITHDRAWAL"
	// TransferKindTransfer is a single-phase account-to-account movement,
	// used for credit extension between a parent account and a payment
	// sub-account.
	TransferKindTransfer TransferKind = "TRANSFER"
)

// TransferState is the resolution state of a transfer.
type TransferState string

const (
	TransferStatePosted  TransferState = "POSTED"
	TransferStatePending TransferState = "PENDING"
	TransferStateVoided  TransferState = "VOIDED"
)

// Transfer is a double-entry movement of money between two ledger accounts.
// The ID is a client-supplied idempotency key: a second transfer with the same
// ID is rejected, never merged or duplicated.
type Transfer struct {
	TransferID      string        `json:"transferID"`
	DebitAccountID  string        `json:"debitAccountID"`
	CreditAccountID string        `json:"creditAccountID"`
	Amount          uint64        `json:"amount"`
	Kind            TransferKind  `json:"kind"`
	State           TransferState `json:"state"`
	// ExpiresAt is set for pending withdrawals. Past expiry the reservation
	// no longer counts against available balance and must be reaped.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	AuditFields
}

// Expired reports whether a pending withdrawal's reservation has lapsed.
func (t Transfer) Expired(now time.Time) bool {
	return t.State == TransferStatePending && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// TransferError enumerates the expected business failures of the ledger
// transfer protocol. They are returned as values, never panics, so every
// caller handles every case.
type TransferError string

const (
	TransferErrInvalidID           TransferError = "InvalidId"
	TransferErrUnknownAccount      TransferError = "UnknownAccount"
	TransferErrUnknownTransfer     TransferError = "UnknownTransfer"
	TransferErrTransferExists      TransferError = "TransferExists"
	TransferErrAmountZero          TransferError = "AmountZero"
	TransferErrInsufficientBalance TransferError = "InsufficientBalance"
	TransferErrAlreadyPosted       TransferError = "AlreadyPosted"
	TransferErrAlreadyVoided       TransferError = "AlreadyVoided"
)

func (e TransferError) Error() string {
	return string(e)
}

// Message returns the human-readable description used in API responses.
func (e TransferError) Message() string {
	switch e {
	case TransferErrInvalidID:
		return "Invalid id"
	case TransferErrUnknownAccount:
		return "Unknown account"
	case TransferErrUnknownTransfer:
		return "Unknown transfer"
	case TransferErrTransferExists:
		return "Transfer exists"
	case TransferErrAmountZero:
		return "Amount is zero"
	case TransferErrInsufficientBalance:
		return "Insufficient balance"
	case TransferErrAlreadyPosted:
		return "Withdrawal already posted"
	case TransferErrAlreadyVoided:
		return "Withdrawal already voided"
	default:
		return string(e)
	}
}

// HTTPStatus maps the error to the liquidity API status-code convention:
// 400 invalid input, 403 insufficient balance, 404 unknown, 409 conflict.
func (e TransferError) HTTPStatus() int {
	switch e {
	case TransferErrInvalidID, TransferErrAmountZero:
		return 400
	case TransferErrInsufficientBalance:
		return 403
	case TransferErrUnknownAccount, TransferErrUnknownTransfer:
		return 404
	case TransferErrTransferExists, TransferErrAlreadyPosted, TransferErrAlreadyVoided:
		return 409
	default:
		return 500
	}
}
