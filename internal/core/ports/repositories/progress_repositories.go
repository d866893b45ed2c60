package repositories

import (
	"context"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// ProgressRepository stores per-payment send/delivery progress. Writes run in
// their own transaction, decoupled from the owning payment's row lock.
type ProgressRepository interface {
	InsertProgress(ctx context.Context, progress domain.PaymentProgress) error

	FindProgressByID(ctx context.Context, paymentID string) (*domain.PaymentProgress, error)

	// IncreaseProgress applies a monotonic max update: neither stored amount
	// ever decreases, even if called with smaller values.
	IncreaseProgress(ctx context.Context, paymentID string, amountSent, amountDelivered uint64) error
}
