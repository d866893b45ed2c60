package domain

// AccountKind distinguishes the ledger parties money moves between.
type AccountKind string

const (
	// AccountKindAsset is the top-level settlement account for an asset.
	AccountKindAsset AccountKind = "ASSET"
	// AccountKindPeer holds liquidity for a network peer.
	AccountKindPeer AccountKind = "PEER"
	// AccountKindPaymentPointer backs a payment pointer's receiving balance.
	AccountKindPaymentPointer AccountKind = "PAYMENT_POINTER"
	// AccountKindPayment is a per-payment sub-account through which reserved
	// funds flow; always has a parent account.
	AccountKindPayment AccountKind = "PAYMENT"
)

// LedgerAccount represents a party in the double-entry ledger.
// The parent relation is a lookup only; a payment sub-account's credits are
// ultimately backed by its parent account.
type LedgerAccount struct {
	AccountID       string      `json:"accountID"`
	Asset           Asset       `json:"asset"`
	Kind            AccountKind `json:"kind"`
	ParentAccountID string      `json:"parentAccountID,omitempty"`
	AuditFields
}

// Balance is a point-in-time view of an account's ledger position.
// Available = Posted - PendingDebits (unexpired reservations only).
type Balance struct {
	Posted        uint64 `json:"posted"`
	PendingDebits uint64 `json:"pendingDebits"`
	Available     uint64 `json:"available"`
}
