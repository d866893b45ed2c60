package repositories

import (
	"context"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// PaymentTx exposes payment row operations inside a transaction holding the
// payment's row lock. All lifecycle work for one payment is serialized through
// this lock.
type PaymentTx interface {
	// ClaimPending locks and returns one runnable payment, skipping rows
	// already locked by other workers. Runnable means a processable state, or
	// Ready with auto-approve set or the quote's activation deadline passed.
	// Returns apperrors.ErrNotFound when no row is claimable.
	ClaimPending(ctx context.Context, now time.Time) (*domain.OutgoingPayment, error)

	// GetPaymentForUpdate locks and returns a payment row.
	GetPaymentForUpdate(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error)

	// UpdatePayment persists the payment's mutable fields (state, quote,
	// outcome, error, attempts).
	UpdatePayment(ctx context.Context, payment domain.OutgoingPayment) error
}

// PaymentRepository is the durable OutgoingPayment store.
type PaymentRepository interface {
	WithinTransaction(ctx context.Context, fn func(tx PaymentTx) error) error

	InsertPayment(ctx context.Context, payment domain.OutgoingPayment) error

	FindPaymentByID(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error)
}
