package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	"github.com/ilpaylabs/ilpay_backend/internal/models"
	"github.com/ilpaylabs/ilpay_backend/internal/utils/mapping"
)

type PgxProgressRepository struct {
	BaseRepository
}

// newPgxProgressRepository creates the payment progress store.
func newPgxProgressRepository(pool *pgxpool.Pool) portsrepo.ProgressRepository {
	return &PgxProgressRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ProgressRepository = (*PgxProgressRepository)(nil)

func (r *PgxProgressRepository) InsertProgress(ctx context.Context, progress domain.PaymentProgress) error {
	query := `
		INSERT INTO payment_progress (payment_id, amount_sent, amount_delivered, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.Pool.Exec(ctx, query,
		progress.PaymentID, int64(progress.AmountSent), int64(progress.AmountDelivered),
		progress.CreatedAt, progress.LastUpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("progress for payment %s: %w", progress.PaymentID, apperrors.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert progress for payment %s: %w", progress.PaymentID, err)
	}
	return nil
}

func (r *PgxProgressRepository) FindProgressByID(ctx context.Context, paymentID string) (*domain.PaymentProgress, error) {
	query := `SELECT payment_id, amount_sent, amount_delivered, created_at, last_updated_at FROM payment_progress WHERE payment_id = $1`
	var m models.PaymentProgress
	err := r.Pool.QueryRow(ctx, query, paymentID).Scan(
		&m.PaymentID, &m.AmountSent, &m.AmountDelivered, &m.CreatedAt, &m.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for payment %s: %w", paymentID, err)
	}
	progress := mapping.ToDomainProgress(m)
	return &progress, nil
}

// IncreaseProgress applies a monotonic max to both amounts. GREATEST makes
// duplicate and out-of-order updates idempotent at the SQL level, so no read
// or lock is needed first.
func (r *PgxProgressRepository) IncreaseProgress(ctx context.Context, paymentID string, amountSent, amountDelivered uint64) error {
	query := `
		UPDATE payment_progress SET
			amount_sent = GREATEST(amount_sent, $2),
			amount_delivered = GREATEST(amount_delivered, $3),
			last_updated_at = $4
		WHERE payment_id = $1`
	tag, err := r.Pool.Exec(ctx, query, paymentID, int64(amountSent), int64(amountDelivered), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increase progress for payment %s: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
