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

const paymentColumns = `
	payment_id, state, error, attempts,
	intent_payment_pointer, intent_invoice_url, intent_amount_to_send, intent_auto_approve,
	quote_timestamp, quote_activation_deadline, quote_target_type,
	quote_min_delivery_amount, quote_max_source_amount, quote_max_packet_amount,
	quote_min_exchange_rate_num, quote_min_exchange_rate_den,
	quote_low_exchange_rate_num, quote_low_exchange_rate_den,
	quote_high_exchange_rate_num, quote_high_exchange_rate_den,
	outcome_amount_sent, outcome_amount_delivered,
	source_account_id, source_asset_code, source_asset_scale,
	dest_asset_code, dest_asset_scale, dest_account_url, dest_payment_pointer,
	created_at, last_updated_at`

type PgxPaymentRepository struct {
	BaseRepository
}

// newPgxPaymentRepository creates the outgoing payment store.
func newPgxPaymentRepository(pool *pgxpool.Pool) portsrepo.PaymentRepository {
	return &PgxPaymentRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PaymentRepository = (*PgxPaymentRepository)(nil)

func (r *PgxPaymentRepository) WithinTransaction(ctx context.Context, fn func(tx portsrepo.PaymentTx) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if err := fn(&pgxPaymentTx{tx: tx}); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

func (r *PgxPaymentRepository) InsertPayment(ctx context.Context, payment domain.OutgoingPayment) error {
	m := mapping.ToModelPayment(payment)
	query := `
		INSERT INTO outgoing_payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`
	_, err := r.Pool.Exec(ctx, query,
		m.PaymentID, m.State, m.Error, m.Attempts,
		m.IntentPaymentPointer, m.IntentInvoiceURL, m.IntentAmountToSend, m.IntentAutoApprove,
		m.QuoteTimestamp, m.QuoteActivationDeadline, m.QuoteTargetType,
		m.QuoteMinDeliveryAmount, m.QuoteMaxSourceAmount, m.QuoteMaxPacketAmount,
		m.QuoteMinExchangeRateNum, m.QuoteMinExchangeRateDen,
		m.QuoteLowExchangeRateNum, m.QuoteLowExchangeRateDen,
		m.QuoteHighExchangeRateNum, m.QuoteHighExchangeRateDen,
		m.OutcomeAmountSent, m.OutcomeAmountDelivered,
		m.SourceAccountID, m.SourceAssetCode, m.SourceAssetScale,
		m.DestAssetCode, m.DestAssetScale, m.DestAccountURL, m.DestPaymentPointer,
		m.CreatedAt, m.LastUpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment %s: %w", payment.PaymentID, apperrors.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", payment.PaymentID, err)
	}
	return nil
}

func (r *PgxPaymentRepository) FindPaymentByID(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM outgoing_payments WHERE payment_id = $1`
	return scanPayment(r.Pool.QueryRow(ctx, query, paymentID))
}

type pgxPaymentTx struct {
	tx pgx.Tx
}

var _ portsrepo.PaymentTx = (*pgxPaymentTx)(nil)

// ClaimPending picks one runnable payment and locks its row, skipping rows
// held by other workers. Runnable means a worker-driven state, or Ready once
// it auto-approves or its activation deadline has lapsed. The attempts gate
// spaces out retries exponentially, capped at a minute.
func (t *pgxPaymentTx) ClaimPending(ctx context.Context, now time.Time) (*domain.OutgoingPayment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM outgoing_payments
		WHERE (
		    state IN ('INACTIVE', 'ACTIVATED', 'SENDING', 'CANCELLING')
		    OR (state = 'READY' AND (intent_auto_approve OR quote_activation_deadline <= $1))
		)
		AND (attempts = 0 OR last_updated_at + make_interval(secs => LEAST(60, power(2, attempts))) <= $1)
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
	return scanPayment(t.tx.QueryRow(ctx, query, now))
}

func (t *pgxPaymentTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (*domain.OutgoingPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM outgoing_payments WHERE payment_id = $1 FOR UPDATE`
	return scanPayment(t.tx.QueryRow(ctx, query, paymentID))
}

func (t *pgxPaymentTx) UpdatePayment(ctx context.Context, payment domain.OutgoingPayment) error {
	m := mapping.ToModelPayment(payment)
	query := `
		UPDATE outgoing_payments SET
			state = $2, error = $3, attempts = $4,
			quote_timestamp = $5, quote_activation_deadline = $6, quote_target_type = $7,
			quote_min_delivery_amount = $8, quote_max_source_amount = $9, quote_max_packet_amount = $10,
			quote_min_exchange_rate_num = $11, quote_min_exchange_rate_den = $12,
			quote_low_exchange_rate_num = $13, quote_low_exchange_rate_den = $14,
			quote_high_exchange_rate_num = $15, quote_high_exchange_rate_den = $16,
			outcome_amount_sent = $17, outcome_amount_delivered = $18,
			last_updated_at = $19
		WHERE payment_id = $1`
	tag, err := t.tx.Exec(ctx, query,
		m.PaymentID, m.State, m.Error, m.Attempts,
		m.QuoteTimestamp, m.QuoteActivationDeadline, m.QuoteTargetType,
		m.QuoteMinDeliveryAmount, m.QuoteMaxSourceAmount, m.QuoteMaxPacketAmount,
		m.QuoteMinExchangeRateNum, m.QuoteMinExchangeRateDen,
		m.QuoteLowExchangeRateNum, m.QuoteLowExchangeRateDen,
		m.QuoteHighExchangeRateNum, m.QuoteHighExchangeRateDen,
		m.OutcomeAmountSent, m.OutcomeAmountDelivered,
		m.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.PaymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.OutgoingPayment, error) {
	var m models.OutgoingPayment
	err := row.Scan(
		&m.PaymentID, &m.State, &m.Error, &m.Attempts,
		&m.IntentPaymentPointer, &m.IntentInvoiceURL, &m.IntentAmountToSend, &m.IntentAutoApprove,
		&m.QuoteTimestamp, &m.QuoteActivationDeadline, &m.QuoteTargetType,
		&m.QuoteMinDeliveryAmount, &m.QuoteMaxSourceAmount, &m.QuoteMaxPacketAmount,
		&m.QuoteMinExchangeRateNum, &m.QuoteMinExchangeRateDen,
		&m.QuoteLowExchangeRateNum, &m.QuoteLowExchangeRateDen,
		&m.QuoteHighExchangeRateNum, &m.QuoteHighExchangeRateDen,
		&m.OutcomeAmountSent, &m.OutcomeAmountDelivered,
		&m.SourceAccountID, &m.SourceAssetCode, &m.SourceAssetScale,
		&m.DestAssetCode, &m.DestAssetScale, &m.DestAccountURL, &m.DestPaymentPointer,
		&m.CreatedAt, &m.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	payment := mapping.ToDomainPayment(m)
	return &payment, nil
}
