package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// progressService records incremental sent/delivered amounts per payment.
// Updates run in their own transaction so frequent partial-progress writes do
// not serialize behind the payment row; the payment's row lock already keeps
// two lifecycle attempts from running concurrently.
type progressService struct {
	progressRepo portsrepo.ProgressRepository
}

// NewProgressService creates the progress tracker.
func NewProgressService(progressRepo portsrepo.ProgressRepository) portssvc.ProgressSvcFacade {
	return &progressService{progressRepo: progressRepo}
}

var _ portssvc.ProgressSvcFacade = (*progressService)(nil)

func (s *progressService) Create(ctx context.Context, paymentID string) (*domain.PaymentProgress, error) {
	now := time.Now().UTC()
	progress := domain.PaymentProgress{
		PaymentID: paymentID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}
	if err := s.progressRepo.InsertProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("failed to create progress for payment %s: %w", paymentID, err)
	}
	return &progress, nil
}

func (s *progressService) Get(ctx context.Context, paymentID string) (*domain.PaymentProgress, error) {
	return s.progressRepo.FindProgressByID(ctx, paymentID)
}

// Increase never decreases either amount, even when called with smaller
// values. Out-of-order or duplicate progress callbacks are therefore harmless.
func (s *progressService) Increase(ctx context.Context, paymentID string, amountSent, amountDelivered uint64) error {
	if err := s.progressRepo.IncreaseProgress(ctx, paymentID, amountSent, amountDelivered); err != nil {
		return fmt.Errorf("failed to increase progress for payment %s: %w", paymentID, err)
	}
	return nil
}
