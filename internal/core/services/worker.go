package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/platform/metrics"
)

// ProcessNext claims one runnable payment under its row lock, runs the state
// handler for the state it was claimed in, and commits the resulting row
// update. Concurrent workers never process the same payment: the claim skips
// locked rows.
func (s *paymentService) ProcessNext(ctx context.Context) (string, error) {
	var paymentID string
	err := s.paymentRepo.WithinTransaction(ctx, func(tx portsrepo.PaymentTx) error {
		payment, err := tx.ClaimPending(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		paymentID = payment.PaymentID
		logger := s.logger.With(
			"payment_id", payment.PaymentID,
			"state", string(payment.State),
			"attempts", payment.Attempts)
		return s.processPayment(ctx, tx, payment, logger)
	})
	if err != nil {
		return "", err
	}
	return paymentID, nil
}

// WorkerPool runs a fixed set of pollers over PaymentSvcFacade.ProcessNext.
// Each poller drains runnable payments back to back and sleeps a jittered
// interval once the queue is empty, so restarting the process never thunders
// onto the claim query.
type WorkerPool struct {
	payments portssvc.PaymentSvcFacade
	workers  int
	interval time.Duration
	metrics  *metrics.WorkerMetrics
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool of workers polling payments every interval.
func NewWorkerPool(payments portssvc.PaymentSvcFacade, workers int, interval time.Duration, m *metrics.WorkerMetrics, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		payments: payments,
		workers:  workers,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Start launches the pollers. They run until ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.logger.InfoContext(ctx, "Started payment workers",
		"workers", p.workers, "poll_interval", p.interval.String())
}

// Wait blocks until every poller has stopped.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	logger := p.logger.With("worker_id", id)
	for {
		if ctx.Err() != nil {
			return
		}

		paymentID, err := p.payments.ProcessNext(ctx)
		switch {
		case err == nil:
			p.metrics.PaymentsProcessed.Inc()
			logger.DebugContext(ctx, "Processed payment", "payment_id", paymentID)
			// Keep draining while there is work.
			continue
		case errors.Is(err, apperrors.ErrNotFound):
			p.metrics.IdlePolls.Inc()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		default:
			p.metrics.PollErrors.Inc()
			logger.WarnContext(ctx, "Payment poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval + rand.N(p.interval/2+1)):
		}
	}
}

// ReaperLoop periodically voids expired pending withdrawals so lapsed
// reservations stop shadowing available balance. Runs until ctx is cancelled.
func ReaperLoop(ctx context.Context, accounting portssvc.AccountingSvcFacade, interval time.Duration, batchSize int, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize < 1 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := accounting.ReapExpiredWithdrawals(ctx, batchSize)
			if err != nil {
				logger.WarnContext(ctx, "Failed to reap expired withdrawals", "error", err)
				continue
			}
			if reaped > 0 {
				logger.InfoContext(ctx, "Voided expired withdrawals", "count", reaped)
			}
		}
	}
}
