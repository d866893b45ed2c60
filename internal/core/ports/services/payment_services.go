package services

import (
	"context"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// CreatePaymentOptions is the immutable intent a payment is created from,
// plus the parent account the payment's sub-account will be backed by.
type CreatePaymentOptions struct {
	SuperAccountID string
	PaymentPointer string
	InvoiceURL     string
	AmountToSend   *uint64
	AutoApprove    bool
}

// PaymentSvcFacade drives outgoing payments: creation, the explicit operator
// actions, and worker processing. Operator actions validate the current state
// under the payment's row lock and fail with a state-conflict error naming the
// actual state when the precondition does not hold.
type PaymentSvcFacade interface {
	Create(ctx context.Context, options CreatePaymentOptions) (*domain.OutgoingPayment, error)

	Get(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error)

	// Activate moves a Ready payment to Activated.
	Activate(ctx context.Context, paymentID string) error

	// Cancel moves a Ready payment to Cancelling with error CancelledByAPI.
	Cancel(ctx context.Context, paymentID string) error

	// Requote moves a Cancelled payment back to Inactive, clearing its quote
	// and error.
	Requote(ctx context.Context, paymentID string) error

	// ProcessNext claims and processes at most one runnable payment,
	// returning its ID, or apperrors.ErrNotFound when none is claimable.
	ProcessNext(ctx context.Context) (string, error)
}

// ProgressSvcFacade tracks incremental sent/delivered amounts per payment.
type ProgressSvcFacade interface {
	Create(ctx context.Context, paymentID string) (*domain.PaymentProgress, error)

	Get(ctx context.Context, paymentID string) (*domain.PaymentProgress, error)

	// Increase applies a monotonic max update to both amounts.
	Increase(ctx context.Context, paymentID string, amountSent, amountDelivered uint64) error
}
