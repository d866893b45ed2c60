package models

import "time"

// OutgoingPayment mirrors the outgoing_payments table. The nested intent,
// quote, outcome and account groups of the domain model flatten to prefixed
// columns; the mapping is defined once in utils/mapping, not at query time.
type OutgoingPayment struct {
	PaymentID string
	State     string
	Error     *string
	Attempts  int

	IntentPaymentPointer *string
	IntentInvoiceURL     *string
	IntentAmountToSend   *int64
	IntentAutoApprove    bool

	QuoteTimestamp           *time.Time
	QuoteActivationDeadline  *time.Time
	QuoteTargetType          *string
	QuoteMinDeliveryAmount   *int64
	QuoteMaxSourceAmount     *int64
	QuoteMaxPacketAmount     *int64
	QuoteMinExchangeRateNum  *int64
	QuoteMinExchangeRateDen  *int64
	QuoteLowExchangeRateNum  *int64
	QuoteLowExchangeRateDen  *int64
	QuoteHighExchangeRateNum *int64
	QuoteHighExchangeRateDen *int64

	OutcomeAmountSent      *int64
	OutcomeAmountDelivered *int64

	SourceAccountID    string
	SourceAssetCode    string
	SourceAssetScale   int16
	DestAssetCode      string
	DestAssetScale     int16
	DestAccountURL     *string
	DestPaymentPointer *string

	AuditFields
}

// PaymentProgress mirrors the payment_progress table; the primary key is the
// owning payment's ID.
type PaymentProgress struct {
	PaymentID       string
	AmountSent      int64
	AmountDelivered int64
	AuditFields
}
