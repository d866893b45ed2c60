package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// stateAttemptBudget caps same-state retries before a payment is given up and
// unwound. Ready waits on an external approval and Cancelling must eventually
// release reserved funds, so neither is bounded.
var stateAttemptBudget = map[domain.PaymentState]int{
	domain.PaymentStateInactive:   5,
	domain.PaymentStateReady:      math.MaxInt,
	domain.PaymentStateActivated:  5,
	domain.PaymentStateSending:    5,
	domain.PaymentStateCancelling: math.MaxInt,
}

// processPayment dispatches one claimed payment to its state handler. Handler
// failures are absorbed into the payment row (retry bookkeeping or a move to
// Cancelling) so the claiming transaction still commits; only a failure to
// persist that bookkeeping rolls the claim back.
func (s *paymentService) processPayment(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	var err error
	switch payment.State {
	case domain.PaymentStateInactive:
		err = s.handleQuoting(ctx, tx, payment, logger)
	case domain.PaymentStateReady:
		err = s.handleReady(ctx, tx, payment, logger)
	case domain.PaymentStateActivated:
		err = s.handleActivation(ctx, tx, payment, logger)
	case domain.PaymentStateSending:
		err = s.handleSending(ctx, tx, payment, logger)
	case domain.PaymentStateCancelling:
		err = s.handleCancelling(ctx, tx, payment, logger)
	default:
		logger.ErrorContext(ctx, "Claimed payment in unprocessable state")
		return nil
	}
	if err != nil {
		return s.handleFailure(ctx, tx, payment, logger, err)
	}
	return nil
}

// handleFailure applies the retry policy after a failed lifecycle step.
// Retryable failures within the state's attempt budget increment the attempt
// counter, which also pushes the next claim out by the backoff window.
// Everything else moves the payment to Cancelling with the failure recorded.
func (s *paymentService) handleFailure(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger, stepErr error) error {
	if payment.State == domain.PaymentStateCancelling {
		payment.Attempts++
		payment.LastUpdatedAt = time.Now().UTC()
		logger.WarnContext(ctx, "Failed to unwind payment, will retry",
			"error", stepErr, "attempts", payment.Attempts)
		return tx.UpdatePayment(ctx, *payment)
	}

	if domain.CanRetryError(stepErr) && payment.Attempts+1 < stateAttemptBudget[payment.State] {
		payment.Attempts++
		payment.LastUpdatedAt = time.Now().UTC()
		logger.WarnContext(ctx, "Payment lifecycle step failed, will retry",
			"error", stepErr, "attempts", payment.Attempts)
		return tx.UpdatePayment(ctx, *payment)
	}

	logger.WarnContext(ctx, "Payment lifecycle step failed, cancelling payment",
		"error", stepErr, "attempts", payment.Attempts)
	payment.Error = lifecycleErrorString(stepErr)
	return s.transition(ctx, tx, payment, domain.PaymentStateCancelling)
}

// lifecycleErrorString records typed payment errors by their stable code and
// everything else by its message.
func lifecycleErrorString(err error) string {
	var pe domain.PaymentError
	if errors.As(err, &pe) {
		return string(pe)
	}
	return err.Error()
}

// handleQuoting negotiates a quote with the destination and parks the payment
// in Ready until it is approved or the activation deadline lapses.
func (s *paymentService) handleQuoting(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	prices, err := s.ratesSvc.Prices(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to fetch external prices", "error", err)
		return domain.PaymentErrPricesUnavailable
	}

	var quote *portssvc.Quote
	err = s.withPlugin(ctx, payment.SourceAccount.ID, func(plugin portssvc.IlpPlugin) error {
		destination, setupErr := s.executor.SetupPayment(ctx, plugin, destinationRef(payment.Intent))
		if setupErr != nil {
			return setupErr
		}
		defer s.closeConnection(ctx, plugin, destination, logger)

		if destination.Asset != payment.DestinationAccount.Asset {
			// The receiving account's denomination changed after create; the
			// quoted amounts would no longer mean what the intent meant.
			return fmt.Errorf("destination asset changed from %s(%d) to %s(%d)",
				payment.DestinationAccount.Asset.Code, payment.DestinationAccount.Asset.Scale,
				destination.Asset.Code, destination.Asset.Scale)
		}

		quote, setupErr = s.executor.StartQuote(ctx, plugin, destination, portssvc.QuoteRequest{
			SourceAsset:  payment.SourceAccount.Asset,
			AmountToSend: payment.Intent.AmountToSend,
			Slippage:     s.slippage,
			Prices:       prices,
		})
		return setupErr
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	payment.Quote = &domain.PaymentQuote{
		Timestamp:                now,
		ActivationDeadline:       now.Add(s.quoteLifespan),
		TargetType:               quote.TargetType,
		MinDeliveryAmount:        quote.MinDeliveryAmount,
		MaxSourceAmount:          quote.MaxSourceAmount,
		MaxPacketAmount:          quote.MaxPacketAmount,
		MinExchangeRate:          quote.MinExchangeRate,
		LowExchangeRateEstimate:  quote.LowExchangeRateEstimate,
		HighExchangeRateEstimate: quote.HighExchangeRateEstimate,
	}
	logger.InfoContext(ctx, "Quoted payment",
		"target_type", string(quote.TargetType),
		"max_source_amount", quote.MaxSourceAmount,
		"min_delivery_amount", quote.MinDeliveryAmount)
	return s.transition(ctx, tx, payment, domain.PaymentStateReady)
}

// handleReady runs when a Ready payment becomes claimable: either it
// auto-approves or its activation deadline has passed.
func (s *paymentService) handleReady(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	if payment.Quote == nil {
		return domain.PaymentErrMissingQuote
	}
	if payment.Quote.Expired(time.Now().UTC()) {
		return domain.PaymentErrQuoteExpired
	}
	if payment.Intent.AutoApprove {
		logger.DebugContext(ctx, "Auto-approving payment")
		return s.transition(ctx, tx, payment, domain.PaymentStateActivated)
	}
	return fmt.Errorf("claimed ready payment that is neither auto-approve nor past its deadline")
}

// handleActivation reserves the quote's maximum source amount on the
// payment's sub-account so sending can never overdraw the funding account.
func (s *paymentService) handleActivation(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	if payment.Quote == nil {
		return domain.PaymentErrMissingQuote
	}
	if payment.Quote.Expired(time.Now().UTC()) {
		return domain.PaymentErrQuoteExpired
	}
	// A previous activation attempt may have left a partial reservation.
	if err := s.refundLeftover(ctx, payment, logger); err != nil {
		return err
	}
	if err := s.accountingSvc.ExtendCredit(ctx, payment.SourceAccount.ID, payment.Quote.MaxSourceAmount); err != nil {
		if errors.Is(err, domain.TransferErrInsufficientBalance) {
			return domain.PaymentErrInsufficientBalance
		}
		logger.WarnContext(ctx, "Failed to reserve funds for payment", "error", err)
		return domain.PaymentErrAccountServiceError
	}
	return s.transition(ctx, tx, payment, domain.PaymentStateSending)
}

// handleSending streams money to the destination under the quote's bounds.
// After a crash or retry the quote is narrowed by the amounts already sent
// and delivered, so resumed attempts can never exceed the original bounds.
func (s *paymentService) handleSending(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	if payment.Quote == nil {
		return domain.PaymentErrMissingQuote
	}

	progress, err := s.progressSvc.Get(ctx, payment.PaymentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		progress, err = s.progressSvc.Create(ctx, payment.PaymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment progress: %w", err)
	}

	if !payment.Quote.MinExchangeRate.IsPositive() ||
		!payment.Quote.LowExchangeRateEstimate.IsPositive() ||
		!payment.Quote.HighExchangeRateEstimate.IsPositive() {
		logger.ErrorContext(ctx, "Quote holds a non-positive exchange rate",
			"min_exchange_rate", payment.Quote.MinExchangeRate.String(),
			"low_estimate", payment.Quote.LowExchangeRateEstimate.String(),
			"high_estimate", payment.Quote.HighExchangeRateEstimate.String())
		return domain.PaymentErrInvalidRatio
	}

	baseSent := progress.AmountSent
	baseDelivered := progress.AmountDelivered
	quote := portssvc.Quote{
		TargetType:               payment.Quote.TargetType,
		MinDeliveryAmount:        saturatingSub(payment.Quote.MinDeliveryAmount, baseDelivered),
		MaxSourceAmount:          saturatingSub(payment.Quote.MaxSourceAmount, baseSent),
		MaxPacketAmount:          payment.Quote.MaxPacketAmount,
		MinExchangeRate:          payment.Quote.MinExchangeRate,
		LowExchangeRateEstimate:  payment.Quote.LowExchangeRateEstimate,
		HighExchangeRateEstimate: payment.Quote.HighExchangeRateEstimate,
	}

	// A previous attempt may already have satisfied the payment.
	alreadySatisfied := (quote.TargetType == domain.PaymentTargetFixedSend && quote.MaxSourceAmount == 0) ||
		(quote.TargetType == domain.PaymentTargetFixedDelivery && quote.MinDeliveryAmount == 0)
	if alreadySatisfied {
		logger.InfoContext(ctx, "Payment already satisfied by earlier attempt",
			"amount_sent", baseSent, "amount_delivered", baseDelivered)
		return s.complete(ctx, tx, payment, logger, baseSent, baseDelivered)
	}

	var receipt *portssvc.PayReceipt
	err = s.withPlugin(ctx, payment.SourceAccount.ID, func(plugin portssvc.IlpPlugin) error {
		destination, setupErr := s.executor.SetupPayment(ctx, plugin, destinationRef(payment.Intent))
		if setupErr != nil {
			return setupErr
		}
		defer s.closeConnection(ctx, plugin, destination, logger)

		flusher := newProgressFlusher(s.progressInterval, func(p portssvc.PayProgress) {
			if flushErr := s.progressSvc.Increase(ctx, payment.PaymentID, baseSent+p.AmountSent, baseDelivered+p.AmountDelivered); flushErr != nil {
				logger.WarnContext(ctx, "Failed to persist streaming progress", "error", flushErr)
			}
		})
		defer flusher.Close()

		var payErr error
		receipt, payErr = s.executor.Pay(ctx, plugin, destination, quote, flusher.Record)
		return payErr
	})
	if err != nil {
		return err
	}

	// Money that moved stays recorded even when the attempt failed.
	totalSent := baseSent + receipt.AmountSent
	totalDelivered := baseDelivered + receipt.AmountDelivered
	if receipt.AmountSent > 0 || receipt.AmountDelivered > 0 {
		if err := s.progressSvc.Increase(ctx, payment.PaymentID, totalSent, totalDelivered); err != nil {
			return fmt.Errorf("failed to persist final progress: %w", err)
		}
	}
	if receipt.Err != nil {
		return receipt.Err
	}

	return s.complete(ctx, tx, payment, logger, totalSent, totalDelivered)
}

// complete refunds the unspent reservation and settles the payment in
// Completed with its cumulative outcome.
func (s *paymentService) complete(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger, amountSent, amountDelivered uint64) error {
	if err := s.refundLeftover(ctx, payment, logger); err != nil {
		return err
	}
	payment.Outcome = &domain.PaymentOutcome{
		AmountSent:      amountSent,
		AmountDelivered: amountDelivered,
	}
	logger.InfoContext(ctx, "Completed payment",
		"amount_sent", amountSent, "amount_delivered", amountDelivered)
	return s.transition(ctx, tx, payment, domain.PaymentStateCompleted)
}

// handleCancelling releases whatever is still reserved on the sub-account and
// settles the payment in Cancelled, keeping the recorded failure.
func (s *paymentService) handleCancelling(ctx context.Context, tx portsrepo.PaymentTx, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	if err := s.refundLeftover(ctx, payment, logger); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Cancelled payment", "payment_error", payment.Error)
	return s.transition(ctx, tx, payment, domain.PaymentStateCancelled)
}

// refundLeftover returns the sub-account's remaining posted balance to the
// funding account. A zero balance is the common case and a no-op.
func (s *paymentService) refundLeftover(ctx context.Context, payment *domain.OutgoingPayment, logger *slog.Logger) error {
	balance, err := s.accountingSvc.GetBalance(ctx, payment.SourceAccount.ID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to read sub-account balance", "error", err)
		return domain.PaymentErrAccountServiceError
	}
	if balance.Posted == 0 {
		return nil
	}
	if err := s.accountingSvc.RevokeCredit(ctx, payment.SourceAccount.ID, balance.Posted); err != nil {
		logger.WarnContext(ctx, "Failed to refund leftover balance",
			"amount", balance.Posted, "error", err)
		return domain.PaymentErrAccountServiceError
	}
	logger.DebugContext(ctx, "Refunded leftover balance", "amount", balance.Posted)
	return nil
}

func destinationRef(intent domain.PaymentIntent) portssvc.DestinationRef {
	return portssvc.DestinationRef{
		PaymentPointer: intent.PaymentPointer,
		InvoiceURL:     intent.InvoiceURL,
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
