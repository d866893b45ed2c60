package models

import "time"

// AuditFields holds standard audit columns shared by all tables.
type AuditFields struct {
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// Account mirrors the ledger_accounts table.
type Account struct {
	AccountID       string
	AssetCode       string
	AssetScale      int16
	Kind            string
	ParentAccountID *string
	PostedBalance   int64
	AuditFields
}

// Transfer mirrors the ledger_transfers table. The primary key is the
// client-supplied idempotency key.
type Transfer struct {
	TransferID      string
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Kind            string
	State           string
	ExpiresAt       *time.Time
	AuditFields
}
