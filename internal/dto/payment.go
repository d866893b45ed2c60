package dto

import (
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
)

// CreatePaymentRequest defines the data needed to create an outgoing payment.
// Exactly one of PaymentPointer (with AmountToSend) or InvoiceURL is set.
type CreatePaymentRequest struct {
	SuperAccountID string  `json:"superAccountID" binding:"required"`
	PaymentPointer string  `json:"paymentPointer"`
	InvoiceURL     string  `json:"invoiceUrl"`
	AmountToSend   *uint64 `json:"amountToSend"`
	AutoApprove    bool    `json:"autoApprove"`
}

// PaymentResponse mirrors domain.OutgoingPayment. The intent, quote and
// outcome groups reuse the domain types, which already carry JSON tags.
type PaymentResponse struct {
	PaymentID          string                           `json:"paymentID"`
	State              string                           `json:"state"`
	Error              string                           `json:"error,omitempty"`
	Attempts           int                              `json:"attempts"`
	Intent             domain.PaymentIntent             `json:"intent"`
	Quote              *domain.PaymentQuote             `json:"quote,omitempty"`
	Outcome            *domain.PaymentOutcome           `json:"outcome,omitempty"`
	SourceAccount      domain.PaymentSourceAccount      `json:"sourceAccount"`
	DestinationAccount domain.PaymentDestinationAccount `json:"destinationAccount"`
	CreatedAt          time.Time                        `json:"createdAt"`
	LastUpdatedAt      time.Time                        `json:"lastUpdatedAt"`
}

// ToPaymentResponse converts a domain payment to its DTO.
func ToPaymentResponse(p *domain.OutgoingPayment) PaymentResponse {
	return PaymentResponse{
		PaymentID:          p.PaymentID,
		State:              string(p.State),
		Error:              p.Error,
		Attempts:           p.Attempts,
		Intent:             p.Intent,
		Quote:              p.Quote,
		Outcome:            p.Outcome,
		SourceAccount:      p.SourceAccount,
		DestinationAccount: p.DestinationAccount,
		CreatedAt:          p.CreatedAt,
		LastUpdatedAt:      p.LastUpdatedAt,
	}
}

// ProgressResponse reports cumulative sent/delivered amounts for a payment.
type ProgressResponse struct {
	PaymentID       string    `json:"paymentID"`
	AmountSent      uint64    `json:"amountSent"`
	AmountDelivered uint64    `json:"amountDelivered"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
}

// ToProgressResponse converts domain progress to its DTO.
func ToProgressResponse(p *domain.PaymentProgress) ProgressResponse {
	return ProgressResponse{
		PaymentID:       p.PaymentID,
		AmountSent:      p.AmountSent,
		AmountDelivered: p.AmountDelivered,
		LastUpdatedAt:   p.LastUpdatedAt,
	}
}
