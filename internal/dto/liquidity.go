package dto

import (
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// CreateLedgerAccountRequest defines the data needed to create a top-level
// ledger account.
type CreateLedgerAccountRequest struct {
	AssetCode  string `json:"assetCode" binding:"required"`
	AssetScale uint8  `json:"assetScale"`
	Kind       string `json:"kind" binding:"required,oneof=ASSET PEER PAYMENT_POINTER"`
}

// CreateSubAccountRequest creates a payment sub-account under a parent.
type CreateSubAccountRequest struct {
	ParentAccountID string `json:"parentAccountID" binding:"required"`
}

// LedgerAccountResponse mirrors domain.LedgerAccount.
type LedgerAccountResponse struct {
	AccountID       string `json:"accountID"`
	AssetCode       string `json:"assetCode"`
	AssetScale      uint8  `json:"assetScale"`
	Kind            string `json:"kind"`
	ParentAccountID string `json:"parentAccountID,omitempty"`
}

// ToLedgerAccountResponse converts a domain account to its DTO.
func ToLedgerAccountResponse(account *domain.LedgerAccount) LedgerAccountResponse {
	return LedgerAccountResponse{
		AccountID:       account.AccountID,
		AssetCode:       account.Asset.Code,
		AssetScale:      account.Asset.Scale,
		Kind:            string(account.Kind),
		ParentAccountID: account.ParentAccountID,
	}
}

// BalanceResponse reports an account's ledger position.
type BalanceResponse struct {
	AccountID     string `json:"accountID"`
	Posted        uint64 `json:"posted"`
	PendingDebits uint64 `json:"pendingDebits"`
	Available     uint64 `json:"available"`
}

// DepositRequest is a single-phase credit. ID is the caller's idempotency key.
type DepositRequest struct {
	ID        string `json:"id" binding:"required"`
	AccountID string `json:"accountID" binding:"required"`
	Amount    uint64 `json:"amount" binding:"required"`
}

// WithdrawalRequest reserves funds as a pending two-phase withdrawal.
type WithdrawalRequest struct {
	ID             string `json:"id" binding:"required"`
	AccountID      string `json:"accountID" binding:"required"`
	Amount         uint64 `json:"amount" binding:"required"`
	TimeoutSeconds uint64 `json:"timeoutSeconds"`
}

// TransferResultResponse is the liquidity API envelope. Success maps to HTTP
// 200; failures carry the stable error code plus a human-readable message.
type TransferResultResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TransferSuccess is the envelope for a completed transfer operation.
func TransferSuccess() TransferResultResponse {
	return TransferResultResponse{Success: true}
}

// ToTransferFailure converts a typed transfer error to its envelope.
func ToTransferFailure(te domain.TransferError) TransferResultResponse {
	return TransferResultResponse{
		Success: false,
		Code:    string(te),
		Message: te.Message(),
		Error:   string(te),
	}
}
