package services

import (
	"context"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// IlpPlugin is an opaque connection onto the payment network. It shuttles raw
// ILP packets; the packet codec itself lives behind the payment executor.
type IlpPlugin interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	SendData(ctx context.Context, data []byte) ([]byte, error)
	RegisterDataHandler(handler func(ctx context.Context, data []byte) ([]byte, error))
	DeregisterDataHandler()
}

// PluginFactory builds a plugin sourcing packets from the given ledger
// account. Each payment attempt owns its plugin exclusively and must
// disconnect it when the attempt ends.
type PluginFactory func(sourceAccountID string) IlpPlugin

// DestinationRef names a payment destination before resolution: a payment
// pointer for fixed-send payments or an invoice URL for fixed-delivery ones.
type DestinationRef struct {
	PaymentPointer string
	InvoiceURL     string
}

// Destination is a resolved receiving party.
type Destination struct {
	Asset              domain.Asset
	AccountURL         string
	PaymentPointer     string
	DestinationAddress string
}

// QuoteRequest parameterizes quote negotiation.
type QuoteRequest struct {
	SourceAsset  domain.Asset
	AmountToSend *uint64
	Slippage     decimal.Decimal
	Prices       map[string]decimal.Decimal
}

// Quote is the negotiated set of bounds a payment may execute under.
type Quote struct {
	TargetType               domain.PaymentTargetType
	MinDeliveryAmount        uint64
	MaxSourceAmount          uint64
	MaxPacketAmount          uint64
	MinExchangeRate          domain.Ratio
	LowExchangeRateEstimate  domain.Ratio
	HighExchangeRateEstimate domain.Ratio
}

// PayProgress is a partial-progress callback payload emitted while streaming.
type PayProgress struct {
	AmountSent      uint64
	AmountDelivered uint64
}

// PayReceipt is the result of a send attempt. AmountSent/AmountDelivered are
// valid even when Err is set: partially delivered money stays delivered.
type PayReceipt struct {
	AmountSent      uint64
	AmountDelivered uint64
	Err             error
}

// PaymentExecutor is the external quote/pay negotiation library, invoked over
// a caller-supplied plugin. Typed failures are domain.PaymentError values.
type PaymentExecutor interface {
	SetupPayment(ctx context.Context, plugin IlpPlugin, ref DestinationRef) (*Destination, error)

	StartQuote(ctx context.Context, plugin IlpPlugin, destination *Destination, req QuoteRequest) (*Quote, error)

	// Pay streams money under the quote's bounds, reporting partial progress
	// through progressFn.
	Pay(ctx context.Context, plugin IlpPlugin, destination *Destination, quote Quote, progressFn func(PayProgress)) (*PayReceipt, error)

	CloseConnection(ctx context.Context, plugin IlpPlugin, destination *Destination) error
}
