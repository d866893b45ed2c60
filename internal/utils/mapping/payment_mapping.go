package mapping

import (
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	"github.com/ilpaylabs/ilpay_backend/internal/models"
)

// ToModelPayment flattens a domain payment into its row representation.
func ToModelPayment(d domain.OutgoingPayment) models.OutgoingPayment {
	m := models.OutgoingPayment{
		PaymentID:         d.PaymentID,
		State:             string(d.State),
		Error:             optString(d.Error),
		Attempts:          d.Attempts,
		IntentAutoApprove: d.Intent.AutoApprove,

		SourceAccountID:    d.SourceAccount.ID,
		SourceAssetCode:    d.SourceAccount.Asset.Code,
		SourceAssetScale:   int16(d.SourceAccount.Asset.Scale),
		DestAssetCode:      d.DestinationAccount.Asset.Code,
		DestAssetScale:     int16(d.DestinationAccount.Asset.Scale),
		DestAccountURL:     optString(d.DestinationAccount.URL),
		DestPaymentPointer: optString(d.DestinationAccount.PaymentPointer),

		AuditFields: models.AuditFields{
			CreatedAt:     d.CreatedAt,
			LastUpdatedAt: d.LastUpdatedAt,
		},
	}

	m.IntentPaymentPointer = optString(d.Intent.PaymentPointer)
	m.IntentInvoiceURL = optString(d.Intent.InvoiceURL)
	if d.Intent.AmountToSend != nil {
		m.IntentAmountToSend = int64Ptr(int64(*d.Intent.AmountToSend))
	}

	if q := d.Quote; q != nil {
		m.QuoteTimestamp = timePtr(q.Timestamp)
		m.QuoteActivationDeadline = timePtr(q.ActivationDeadline)
		targetType := string(q.TargetType)
		m.QuoteTargetType = &targetType
		m.QuoteMinDeliveryAmount = int64Ptr(int64(q.MinDeliveryAmount))
		m.QuoteMaxSourceAmount = int64Ptr(int64(q.MaxSourceAmount))
		m.QuoteMaxPacketAmount = int64Ptr(int64(q.MaxPacketAmount))
		m.QuoteMinExchangeRateNum = int64Ptr(int64(q.MinExchangeRate.Numerator))
		m.QuoteMinExchangeRateDen = int64Ptr(int64(q.MinExchangeRate.Denominator))
		m.QuoteLowExchangeRateNum = int64Ptr(int64(q.LowExchangeRateEstimate.Numerator))
		m.QuoteLowExchangeRateDen = int64Ptr(int64(q.LowExchangeRateEstimate.Denominator))
		m.QuoteHighExchangeRateNum = int64Ptr(int64(q.HighExchangeRateEstimate.Numerator))
		m.QuoteHighExchangeRateDen = int64Ptr(int64(q.HighExchangeRateEstimate.Denominator))
	}

	if o := d.Outcome; o != nil {
		m.OutcomeAmountSent = int64Ptr(int64(o.AmountSent))
		m.OutcomeAmountDelivered = int64Ptr(int64(o.AmountDelivered))
	}

	return m
}

// ToDomainPayment regroups a flat payment row into the domain model.
func ToDomainPayment(m models.OutgoingPayment) domain.OutgoingPayment {
	d := domain.OutgoingPayment{
		PaymentID: m.PaymentID,
		State:     domain.PaymentState(m.State),
		Error:     derefString(m.Error),
		Attempts:  m.Attempts,
		Intent: domain.PaymentIntent{
			PaymentPointer: derefString(m.IntentPaymentPointer),
			InvoiceURL:     derefString(m.IntentInvoiceURL),
			AutoApprove:    m.IntentAutoApprove,
		},
		SourceAccount: domain.PaymentSourceAccount{
			ID: m.SourceAccountID,
			Asset: domain.Asset{
				Code:  m.SourceAssetCode,
				Scale: uint8(m.SourceAssetScale),
			},
		},
		DestinationAccount: domain.PaymentDestinationAccount{
			Asset: domain.Asset{
				Code:  m.DestAssetCode,
				Scale: uint8(m.DestAssetScale),
			},
			URL:            derefString(m.DestAccountURL),
			PaymentPointer: derefString(m.DestPaymentPointer),
		},
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}

	if m.IntentAmountToSend != nil {
		amount := uint64(*m.IntentAmountToSend)
		d.Intent.AmountToSend = &amount
	}

	if m.QuoteTimestamp != nil {
		d.Quote = &domain.PaymentQuote{
			Timestamp:          *m.QuoteTimestamp,
			ActivationDeadline: derefTime(m.QuoteActivationDeadline),
			TargetType:         domain.PaymentTargetType(derefString(m.QuoteTargetType)),
			MinDeliveryAmount:  uint64(derefInt64(m.QuoteMinDeliveryAmount)),
			MaxSourceAmount:    uint64(derefInt64(m.QuoteMaxSourceAmount)),
			MaxPacketAmount:    uint64(derefInt64(m.QuoteMaxPacketAmount)),
			MinExchangeRate: domain.Ratio{
				Numerator:   uint64(derefInt64(m.QuoteMinExchangeRateNum)),
				Denominator: uint64(derefInt64(m.QuoteMinExchangeRateDen)),
			},
			LowExchangeRateEstimate: domain.Ratio{
				Numerator:   uint64(derefInt64(m.QuoteLowExchangeRateNum)),
				Denominator: uint64(derefInt64(m.QuoteLowExchangeRateDen)),
			},
			HighExchangeRateEstimate: domain.Ratio{
				Numerator:   uint64(derefInt64(m.QuoteHighExchangeRateNum)),
				Denominator: uint64(derefInt64(m.QuoteHighExchangeRateDen)),
			},
		}
	}

	if m.OutcomeAmountSent != nil {
		d.Outcome = &domain.PaymentOutcome{
			AmountSent:      uint64(derefInt64(m.OutcomeAmountSent)),
			AmountDelivered: uint64(derefInt64(m.OutcomeAmountDelivered)),
		}
	}

	return d
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func int64Ptr(v int64) *int64 {
	return &v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
