package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

const (
	// defaultQuoteLifespan is how long a fresh quote stays activatable.
	defaultQuoteLifespan = 5 * time.Minute
	// defaultProgressInterval bounds how often streaming progress is persisted.
	defaultProgressInterval = 200 * time.Millisecond
)

// defaultSlippage is the tolerated exchange-rate slippage for quote
// negotiation, as a fraction of the external rate.
var defaultSlippage = decimal.NewFromFloat(0.01)

// PaymentServiceConfig carries the dependencies and tunables of the payment
// service. Zero-valued tunables fall back to defaults.
type PaymentServiceConfig struct {
	PaymentRepo      portsrepo.PaymentRepository
	Accounting       portssvc.AccountingSvcFacade
	Progress         portssvc.ProgressSvcFacade
	Rates            portssvc.RatesService
	Executor         portssvc.PaymentExecutor
	MakePlugin       portssvc.PluginFactory
	QuoteLifespan    time.Duration
	Slippage         decimal.Decimal
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

type paymentService struct {
	paymentRepo      portsrepo.PaymentRepository
	accountingSvc    portssvc.AccountingSvcFacade
	progressSvc      portssvc.ProgressSvcFacade
	ratesSvc         portssvc.RatesService
	executor         portssvc.PaymentExecutor
	makePlugin       portssvc.PluginFactory
	quoteLifespan    time.Duration
	slippage         decimal.Decimal
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewPaymentService creates the outgoing payment service.
func NewPaymentService(cfg PaymentServiceConfig) portssvc.PaymentSvcFacade {
	s := &paymentService{
		paymentRepo:      cfg.PaymentRepo,
		accountingSvc:    cfg.Accounting,
		progressSvc:      cfg.Progress,
		ratesSvc:         cfg.Rates,
		executor:         cfg.Executor,
		makePlugin:       cfg.MakePlugin,
		quoteLifespan:    cfg.QuoteLifespan,
		slippage:         cfg.Slippage,
		progressInterval: cfg.ProgressInterval,
		logger:           cfg.Logger,
	}
	if s.quoteLifespan <= 0 {
		s.quoteLifespan = defaultQuoteLifespan
	}
	if s.slippage.IsZero() {
		s.slippage = defaultSlippage
	}
	if s.progressInterval <= 0 {
		s.progressInterval = defaultProgressInterval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

var _ portssvc.PaymentSvcFacade = (*paymentService)(nil)

// Create resolves the destination, provisions the payment's ledger
// sub-account and persists the payment in the Inactive state. Quoting happens
// asynchronously on the worker.
func (s *paymentService) Create(ctx context.Context, options portssvc.CreatePaymentOptions) (*domain.OutgoingPayment, error) {
	if err := validateCreateOptions(options); err != nil {
		return nil, err
	}

	// The funding account must exist before a sub-account can hang off it.
	if _, err := s.accountingSvc.GetBalance(ctx, options.SuperAccountID); err != nil {
		return nil, fmt.Errorf("failed to look up funding account %s: %w", options.SuperAccountID, err)
	}

	var destination *portssvc.Destination
	err := s.withPlugin(ctx, options.SuperAccountID, func(plugin portssvc.IlpPlugin) error {
		resolved, setupErr := s.executor.SetupPayment(ctx, plugin, portssvc.DestinationRef{
			PaymentPointer: options.PaymentPointer,
			InvoiceURL:     options.InvoiceURL,
		})
		if setupErr != nil {
			return setupErr
		}
		s.closeConnection(ctx, plugin, resolved, s.logger)
		destination = resolved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment destination: %w", err)
	}

	subAccount, err := s.accountingSvc.CreateSubAccount(ctx, options.SuperAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment sub-account: %w", err)
	}

	now := time.Now().UTC()
	payment := domain.OutgoingPayment{
		PaymentID: uuid.NewString(),
		State:     domain.PaymentStateInactive,
		Intent: domain.PaymentIntent{
			PaymentPointer: options.PaymentPointer,
			InvoiceURL:     options.InvoiceURL,
			AmountToSend:   options.AmountToSend,
			AutoApprove:    options.AutoApprove,
		},
		SourceAccount: domain.PaymentSourceAccount{
			ID:    subAccount.AccountID,
			Asset: subAccount.Asset,
		},
		DestinationAccount: domain.PaymentDestinationAccount{
			Asset:          destination.Asset,
			URL:            destination.AccountURL,
			PaymentPointer: destination.PaymentPointer,
		},
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}
	if err := s.paymentRepo.InsertPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}

	s.logger.InfoContext(ctx, "Created outgoing payment",
		"payment_id", payment.PaymentID,
		"source_account_id", payment.SourceAccount.ID,
		"auto_approve", options.AutoApprove)
	return &payment, nil
}

func validateCreateOptions(options portssvc.CreatePaymentOptions) error {
	if options.SuperAccountID == "" {
		return fmt.Errorf("%w: superAccountId is required", apperrors.ErrValidation)
	}
	hasPointer := options.PaymentPointer != ""
	hasInvoice := options.InvoiceURL != ""
	if hasPointer == hasInvoice {
		return fmt.Errorf("%w: exactly one of paymentPointer and invoiceUrl must be provided", apperrors.ErrValidation)
	}
	if hasPointer {
		if options.AmountToSend == nil || *options.AmountToSend == 0 {
			return fmt.Errorf("%w: amountToSend must be a positive amount for payment pointer payments", apperrors.ErrValidation)
		}
	} else if options.AmountToSend != nil {
		return fmt.Errorf("%w: amountToSend is not allowed for invoice payments", apperrors.ErrValidation)
	}
	return nil
}

func (s *paymentService) Get(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error) {
	return s.paymentRepo.FindPaymentByID(ctx, paymentID)
}

// Activate approves a Ready payment so the worker picks it up for funding.
func (s *paymentService) Activate(ctx context.Context, paymentID string) error {
	return s.paymentRepo.WithinTransaction(ctx, func(tx portsrepo.PaymentTx) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.State != domain.PaymentStateReady {
			return fmt.Errorf("%w: cannot activate payment in state %s", apperrors.ErrConflict, payment.State)
		}
		return s.transition(ctx, tx, payment, domain.PaymentStateActivated)
	})
}

// Cancel rejects a Ready payment. The worker releases any reserved funds
// before the payment settles in Cancelled.
func (s *paymentService) Cancel(ctx context.Context, paymentID string) error {
	return s.paymentRepo.WithinTransaction(ctx, func(tx portsrepo.PaymentTx) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.State != domain.PaymentStateReady {
			return fmt.Errorf("%w: cannot cancel payment in state %s", apperrors.ErrConflict, payment.State)
		}
		payment.Error = string(domain.PaymentErrCancelledByAPI)
		return s.transition(ctx, tx, payment, domain.PaymentStateCancelling)
	})
}

// Requote sends a Cancelled payment back through quoting with a clean slate.
// Progress survives, so a partially sent payment resumes where it stopped.
func (s *paymentService) Requote(ctx context.Context, paymentID string) error {
	return s.paymentRepo.WithinTransaction(ctx, func(tx portsrepo.PaymentTx) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.State != domain.PaymentStateCancelled {
			return fmt.Errorf("%w: cannot requote payment in state %s", apperrors.ErrConflict, payment.State)
		}
		payment.Quote = nil
		return s.transition(ctx, tx, payment, domain.PaymentStateInactive)
	})
}

// transition moves the payment to state and persists it. Attempts restart at
// zero; the error field is kept only while the payment is being unwound.
func (s *paymentService) transition(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, state domain.PaymentState) error {
	payment.State = state
	payment.Attempts = 0
	if state != domain.PaymentStateCancelling && state != domain.PaymentStateCancelled {
		payment.Error = ""
	}
	payment.LastUpdatedAt = time.Now().UTC()
	if err := tx.UpdatePayment(ctx, *payment); err != nil {
		return fmt.Errorf("failed to persist payment %s transition to %s: %w", payment.PaymentID, state, err)
	}
	return nil
}

// withPlugin runs fn with a freshly connected plugin for the given source
// account, disconnecting it when fn returns.
func (s *paymentService) withPlugin(ctx context.Context, sourceAccountID string, fn func(plugin portssvc.IlpPlugin) error) error {
	plugin := s.makePlugin(sourceAccountID)
	if err := plugin.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect plugin for account %s: %w", sourceAccountID, err)
	}
	defer func() {
		if err := plugin.Disconnect(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to disconnect plugin", "source_account_id", sourceAccountID, "error", err)
		}
	}()
	return fn(plugin)
}

func (s *paymentService) closeConnection(ctx context.Context, plugin portssvc.IlpPlugin, destination *portssvc.Destination, logger *slog.Logger) {
	if err := s.executor.CloseConnection(ctx, plugin, destination); err != nil {
		logger.DebugContext(ctx, "Failed to close destination connection", "error", err)
	}
}
