package domain

import (
	"errors"
	"time"
)

// PaymentState is the lifecycle state of an outgoing payment.
type PaymentState string

const (
	// PaymentStateInactive payments are awaiting a quote.
	PaymentStateInactive PaymentState = "INACTIVE"
	// PaymentStateReady payments hold a quote and wait for approval, or
	// auto-approve, until the quote's activation deadline.
	PaymentStateReady PaymentState = "READY"
	// PaymentStateActivated payments reserve maxSourceAmount before sending.
	PaymentStateActivated PaymentState = "ACTIVATED"
	// PaymentStateSending payments are streaming money to the destination.
	PaymentStateSending PaymentState = "SENDING"
	// PaymentStateCancelling payments release remaining reserved funds, then
	// move to Cancelled.
	PaymentStateCancelling PaymentState = "CANCELLING"
	PaymentStateCancelled  PaymentState = "CANCELLED"
	PaymentStateCompleted  PaymentState = "COMPLETED"
)

// PaymentTargetType says whether the quoted amount fixes the source amount or
// the delivered amount.
type PaymentTargetType string

const (
	PaymentTargetFixedSend     PaymentTargetType = "fixed-send"
	PaymentTargetFixedDelivery PaymentTargetType = "fixed-delivery"
)

// PaymentIntent is the immutable request a payment was created from. Exactly
// one of PaymentPointer (fixed-send, with AmountToSend) or InvoiceURL
// (fixed-delivery) is set.
type PaymentIntent struct {
	PaymentPointer string  `json:"paymentPointer,omitempty"`
	InvoiceURL     string  `json:"invoiceUrl,omitempty"`
	AmountToSend   *uint64 `json:"amountToSend,omitempty"`
	AutoApprove    bool    `json:"autoApprove"`
}

// PaymentQuote holds the negotiated bounds under which a payment is authorized
// to execute. Set once during quoting; expires at ActivationDeadline.
type PaymentQuote struct {
	Timestamp                time.Time         `json:"timestamp"`
	ActivationDeadline       time.Time         `json:"activationDeadline"`
	TargetType               PaymentTargetType `json:"targetType"`
	MinDeliveryAmount        uint64            `json:"minDeliveryAmount"`
	MaxSourceAmount          uint64            `json:"maxSourceAmount"`
	MaxPacketAmount          uint64            `json:"maxPacketAmount"`
	MinExchangeRate          Ratio             `json:"minExchangeRate"`
	LowExchangeRateEstimate  Ratio             `json:"lowExchangeRateEstimate"`
	HighExchangeRateEstimate Ratio             `json:"highExchangeRateEstimate"`
}

// Expired reports whether the quote can no longer be activated.
func (q PaymentQuote) Expired(now time.Time) bool {
	return q.ActivationDeadline.Before(now)
}

// PaymentOutcome is the cumulative result of a completed or partially failed
// payment.
type PaymentOutcome struct {
	AmountSent      uint64 `json:"amountSent"`
	AmountDelivered uint64 `json:"amountDelivered"`
}

// PaymentSourceAccount is the payment's sub-account in the ledger.
type PaymentSourceAccount struct {
	ID    string `json:"id"`
	Asset Asset  `json:"asset"`
}

// PaymentDestinationAccount describes the resolved receiving party.
type PaymentDestinationAccount struct {
	Asset          Asset  `json:"asset"`
	URL            string `json:"url,omitempty"`
	PaymentPointer string `json:"paymentPointer,omitempty"`
}

// OutgoingPayment is the durable record driven by the lifecycle engine.
// Attempts counts same-state retries and resets to zero on every transition.
// Error is only meaningful in Cancelling/Cancelled.
type OutgoingPayment struct {
	PaymentID          string                    `json:"paymentID"`
	State              PaymentState              `json:"state"`
	Intent             PaymentIntent             `json:"intent"`
	Quote              *PaymentQuote             `json:"quote,omitempty"`
	Outcome            *PaymentOutcome           `json:"outcome,omitempty"`
	Error              string                    `json:"error,omitempty"`
	Attempts           int                       `json:"attempts"`
	SourceAccount      PaymentSourceAccount      `json:"sourceAccount"`
	DestinationAccount PaymentDestinationAccount `json:"destinationAccount"`
	AuditFields
}

// PaymentError identifies why a lifecycle step failed. The set covers both
// lifecycle-level failures and the execution layer's error codes.
type PaymentError string

const (
	// Lifecycle errors.
	PaymentErrQuoteExpired        PaymentError = "QuoteExpired"
	PaymentErrPricesUnavailable   PaymentError = "PricesUnavailable"
	PaymentErrCancelledByAPI      PaymentError = "CancelledByAPI"
	PaymentErrInsufficientBalance PaymentError = "InsufficientBalance"
	PaymentErrAccountServiceError PaymentError = "AccountServiceError"
	PaymentErrMissingQuote        PaymentError = "MissingQuote"
	PaymentErrInvalidRatio        PaymentError = "InvalidRatio"

	// Execution-layer errors surfaced by the payment executor.
	PaymentErrQueryFailed              PaymentError = "QueryFailed"
	PaymentErrConnectorError           PaymentError = "ConnectorError"
	PaymentErrEstablishmentFailed      PaymentError = "EstablishmentFailed"
	PaymentErrInsufficientExchangeRate PaymentError = "InsufficientExchangeRate"
	PaymentErrRateProbeFailed          PaymentError = "RateProbeFailed"
	PaymentErrIdleTimeout              PaymentError = "IdleTimeout"
	PaymentErrClosedByReceiver         PaymentError = "ClosedByReceiver"
)

func (e PaymentError) Error() string {
	return string(e)
}

var retryablePaymentErrors = map[PaymentError]bool{
	PaymentErrPricesUnavailable:        true,
	PaymentErrQueryFailed:              true,
	PaymentErrConnectorError:           true,
	PaymentErrEstablishmentFailed:      true,
	PaymentErrInsufficientExchangeRate: true,
	PaymentErrRateProbeFailed:          true,
	PaymentErrIdleTimeout:              true,
	PaymentErrClosedByReceiver:         true,
}

// CanRetryError reports whether a failed lifecycle attempt may be retried.
// Generic errors are transient faults (network, database) and always
// retryable; typed payment errors are retryable only if enumerated above.
func CanRetryError(err error) bool {
	var pe PaymentError
	if errors.As(err, &pe) {
		return retryablePaymentErrors[pe]
	}
	return true
}
