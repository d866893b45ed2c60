package payex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// Executor delegates quote negotiation and sending to an external payment
// execution daemon over HTTP. The daemon owns the STREAM protocol; this
// adapter only moves requests, progress events and receipts. Pay responses
// stream newline-delimited JSON progress events, terminated by a receipt
// event, so partial progress reaches the lifecycle while money is moving.
type Executor struct {
	baseURL string
	client  *http.Client
}

// NewExecutor creates an executor client against the daemon at baseURL.
func NewExecutor(baseURL string) *Executor {
	return &Executor{
		baseURL: baseURL,
		// No overall timeout: Pay legitimately streams for a long time.
		// Cancellation comes from the request context.
		client: &http.Client{},
	}
}

var _ portssvc.PaymentExecutor = (*Executor)(nil)

type destinationPayload struct {
	AssetCode          string `json:"assetCode"`
	AssetScale         uint8  `json:"assetScale"`
	AccountURL         string `json:"accountUrl"`
	PaymentPointer     string `json:"paymentPointer"`
	DestinationAddress string `json:"destinationAddress"`
}

type quotePayload struct {
	TargetType               string       `json:"targetType"`
	MinDeliveryAmount        uint64       `json:"minDeliveryAmount"`
	MaxSourceAmount          uint64       `json:"maxSourceAmount"`
	MaxPacketAmount          uint64       `json:"maxPacketAmount"`
	MinExchangeRate          domain.Ratio `json:"minExchangeRate"`
	LowExchangeRateEstimate  domain.Ratio `json:"lowExchangeRateEstimate"`
	HighExchangeRateEstimate domain.Ratio `json:"highExchangeRateEstimate"`
}

// errorPayload carries the daemon's typed failure codes. Codes matching a
// known payment error surface as that error so retry classification works.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var knownExecutorErrors = map[domain.PaymentError]bool{
	domain.PaymentErrQueryFailed:              true,
	domain.PaymentErrConnectorError:           true,
	domain.PaymentErrEstablishmentFailed:      true,
	domain.PaymentErrInsufficientExchangeRate: true,
	domain.PaymentErrRateProbeFailed:          true,
	domain.PaymentErrIdleTimeout:              true,
	domain.PaymentErrClosedByReceiver:         true,
	domain.PaymentErrInvalidRatio:             true,
}

func (e errorPayload) toError() error {
	if e.Code != "" {
		if pe := domain.PaymentError(e.Code); knownExecutorErrors[pe] {
			return pe
		}
	}
	if e.Message != "" {
		return fmt.Errorf("executor error %s: %s", e.Code, e.Message)
	}
	return fmt.Errorf("executor error %s", e.Code)
}

func (x *Executor) SetupPayment(ctx context.Context, plugin portssvc.IlpPlugin, ref portssvc.DestinationRef) (*portssvc.Destination, error) {
	if !plugin.IsConnected() {
		return nil, domain.PaymentErrEstablishmentFailed
	}
	var out destinationPayload
	if err := x.post(ctx, "/setup", map[string]any{
		"paymentPointer": ref.PaymentPointer,
		"invoiceUrl":     ref.InvoiceURL,
	}, &out); err != nil {
		return nil, err
	}
	return &portssvc.Destination{
		Asset:              domain.Asset{Code: out.AssetCode, Scale: out.AssetScale},
		AccountURL:         out.AccountURL,
		PaymentPointer:     out.PaymentPointer,
		DestinationAddress: out.DestinationAddress,
	}, nil
}

func (x *Executor) StartQuote(ctx context.Context, plugin portssvc.IlpPlugin, destination *portssvc.Destination, req portssvc.QuoteRequest) (*portssvc.Quote, error) {
	if !plugin.IsConnected() {
		return nil, domain.PaymentErrEstablishmentFailed
	}
	var out quotePayload
	if err := x.post(ctx, "/quote", map[string]any{
		"destinationAddress": destination.DestinationAddress,
		"sourceAssetCode":    req.SourceAsset.Code,
		"sourceAssetScale":   req.SourceAsset.Scale,
		"amountToSend":       req.AmountToSend,
		"slippage":           req.Slippage,
		"prices":             req.Prices,
	}, &out); err != nil {
		return nil, err
	}
	return &portssvc.Quote{
		TargetType:               domain.PaymentTargetType(out.TargetType),
		MinDeliveryAmount:        out.MinDeliveryAmount,
		MaxSourceAmount:          out.MaxSourceAmount,
		MaxPacketAmount:          out.MaxPacketAmount,
		MinExchangeRate:          out.MinExchangeRate,
		LowExchangeRateEstimate:  out.LowExchangeRateEstimate,
		HighExchangeRateEstimate: out.HighExchangeRateEstimate,
	}, nil
}

// Pay streams the send. Every progress line is forwarded to progressFn; the
// terminal line carries the receipt. A transport failure mid-stream returns
// the amounts seen so far in the receipt with the failure as its error.
func (x *Executor) Pay(ctx context.Context, plugin portssvc.IlpPlugin, destination *portssvc.Destination, quote portssvc.Quote, progressFn func(portssvc.PayProgress)) (*portssvc.PayReceipt, error) {
	if !plugin.IsConnected() {
		return nil, domain.PaymentErrEstablishmentFailed
	}
	body, err := json.Marshal(map[string]any{
		"destinationAddress": destination.DestinationAddress,
		"quote":              quote,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pay request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build pay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start pay stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ep errorPayload
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ep); decodeErr == nil && ep.Code != "" {
			return nil, ep.toError()
		}
		return nil, fmt.Errorf("executor returned status %d", resp.StatusCode)
	}

	type payEvent struct {
		AmountSent      uint64        `json:"amountSent"`
		AmountDelivered uint64        `json:"amountDelivered"`
		Final           bool          `json:"final"`
		Error           *errorPayload `json:"error,omitempty"`
	}

	receipt := &portssvc.PayReceipt{}
	decoder := json.NewDecoder(resp.Body)
	for {
		var event payEvent
		if err := decoder.Decode(&event); err != nil {
			receipt.Err = fmt.Errorf("pay stream ended unexpectedly: %w", err)
			return receipt, nil
		}
		receipt.AmountSent = event.AmountSent
		receipt.AmountDelivered = event.AmountDelivered
		if event.Final {
			if event.Error != nil {
				receipt.Err = event.Error.toError()
			}
			return receipt, nil
		}
		if progressFn != nil {
			progressFn(portssvc.PayProgress{
				AmountSent:      event.AmountSent,
				AmountDelivered: event.AmountDelivered,
			})
		}
	}
}

func (x *Executor) CloseConnection(ctx context.Context, plugin portssvc.IlpPlugin, destination *portssvc.Destination) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return x.post(ctx, "/close", map[string]any{
		"destinationAddress": destination.DestinationAddress,
	}, nil)
}

func (x *Executor) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode executor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call executor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ep errorPayload
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ep); decodeErr == nil && ep.Code != "" {
			return ep.toError()
		}
		return fmt.Errorf("executor returned status %d on %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode executor response: %w", err)
	}
	return nil
}
