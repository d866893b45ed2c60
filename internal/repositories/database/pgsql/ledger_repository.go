package pgsql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	"github.com/ilpaylabs/ilpay_backend/internal/models"
	"github.com/ilpaylabs/ilpay_backend/internal/utils/mapping"
)

const accountColumns = `account_id, asset_code, asset_scale, kind, parent_account_id, posted_balance, created_at, last_updated_at`

const transferColumns = `transfer_id, debit_account_id, credit_account_id, amount, kind, state, expires_at, created_at, last_updated_at`

type PgxLedgerRepository struct {
	BaseRepository
}

// newPgxLedgerRepository creates the account/transfer store.
func newPgxLedgerRepository(pool *pgxpool.Pool) portsrepo.LedgerRepository {
	return &PgxLedgerRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

// WithinTransaction runs fn inside one database transaction. Row locks taken
// by fn are held until commit, which is what makes the transfer protocol's
// check-then-act sequences safe.
func (r *PgxLedgerRepository) WithinTransaction(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if err := fn(&pgxLedgerTx{tx: tx}); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

func (r *PgxLedgerRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.LedgerAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE account_id = $1`
	return scanAccount(r.Pool.QueryRow(ctx, query, accountID))
}

// GetBalance reads the posted balance together with the sum of unexpired
// pending reservations in one statement, so the view is consistent without a
// lock. Negative posted balances (asset settlement accounts) clamp to zero:
// callers of this view only reason about spendable money.
func (r *PgxLedgerRepository) GetBalance(ctx context.Context, accountID string, now time.Time) (*domain.Balance, error) {
	query := `
		SELECT a.posted_balance,
		       COALESCE((
		           SELECT SUM(t.amount) FROM ledger_transfers t
		           WHERE t.debit_account_id = a.account_id
		             AND t.kind = 'WITHDRAWAL'
		             AND t.state = 'PENDING'
		             AND t.expires_at > $2
		       ), 0)
		FROM ledger_accounts a
		WHERE a.account_id = $1`

	var posted, pending int64
	err := r.Pool.QueryRow(ctx, query, accountID, now).Scan(&posted, &pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of account %s: %w", accountID, err)
	}
	return buildBalance(posted, pending), nil
}

func buildBalance(posted, pending int64) *domain.Balance {
	balance := &domain.Balance{}
	if posted > 0 {
		balance.Posted = uint64(posted)
	}
	if pending > 0 {
		balance.PendingDebits = uint64(pending)
	}
	if balance.Posted > balance.PendingDebits {
		balance.Available = balance.Posted - balance.PendingDebits
	}
	return balance
}

type pgxLedgerTx struct {
	tx pgx.Tx
}

var _ portsrepo.LedgerTx = (*pgxLedgerTx)(nil)

func (t *pgxLedgerTx) InsertAccount(ctx context.Context, account domain.LedgerAccount) error {
	m := mapping.ToModelAccount(account)
	query := `
		INSERT INTO ledger_accounts (account_id, asset_code, asset_scale, kind, parent_account_id, posted_balance, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`
	_, err := t.tx.Exec(ctx, query,
		m.AccountID, m.AssetCode, m.AssetScale, m.Kind, m.ParentAccountID,
		m.CreatedAt, m.LastUpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", account.AccountID, apperrors.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert account %s: %w", account.AccountID, err)
	}
	return nil
}

func (t *pgxLedgerTx) GetAccount(ctx context.Context, accountID string) (*domain.LedgerAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE account_id = $1`
	return scanAccount(t.tx.QueryRow(ctx, query, accountID))
}

func (t *pgxLedgerTx) FindAssetAccountID(ctx context.Context, assetCode string) (string, error) {
	query := `SELECT account_id FROM ledger_accounts WHERE asset_code = $1 AND kind = 'ASSET'`
	var accountID string
	err := t.tx.QueryRow(ctx, query, assetCode).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find settlement account for asset %s: %w", assetCode, err)
	}
	return accountID, nil
}

// GetAccountsForUpdate locks the requested account rows. Rows are locked in
// ascending ID order so two transfers touching the same accounts can never
// deadlock on each other.
func (t *pgxLedgerTx) GetAccountsForUpdate(ctx context.Context, accountIDs []string) (map[string]domain.LedgerAccount, error) {
	ids := make([]string, 0, len(accountIDs))
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	query := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE account_id = ANY($1) ORDER BY account_id FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]domain.LedgerAccount, len(ids))
	for rows.Next() {
		var m models.Account
		if err := rows.Scan(
			&m.AccountID, &m.AssetCode, &m.AssetScale, &m.Kind, &m.ParentAccountID,
			&m.PostedBalance, &m.CreatedAt, &m.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan locked account: %w", err)
		}
		accounts[m.AccountID] = mapping.ToDomainAccount(m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	if len(accounts) != len(ids) {
		return nil, apperrors.ErrNotFound
	}
	return accounts, nil
}

func (t *pgxLedgerTx) GetPostedBalance(ctx context.Context, accountID string) (int64, error) {
	var posted int64
	err := t.tx.QueryRow(ctx, `SELECT posted_balance FROM ledger_accounts WHERE account_id = $1`, accountID).Scan(&posted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read posted balance of account %s: %w", accountID, err)
	}
	return posted, nil
}

func (t *pgxLedgerTx) SumPendingDebits(ctx context.Context, accountID string, now time.Time) (uint64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_transfers
		WHERE debit_account_id = $1 AND kind = 'WITHDRAWAL' AND state = 'PENDING' AND expires_at > $2`
	var pending int64
	if err := t.tx.QueryRow(ctx, query, accountID, now).Scan(&pending); err != nil {
		return 0, fmt.Errorf("failed to sum pending debits of account %s: %w", accountID, err)
	}
	if pending < 0 {
		return 0, nil
	}
	return uint64(pending), nil
}

func (t *pgxLedgerTx) AdjustPostedBalance(ctx context.Context, accountID string, delta int64) error {
	query := `UPDATE ledger_accounts SET posted_balance = posted_balance + $2, last_updated_at = $3 WHERE account_id = $1`
	tag, err := t.tx.Exec(ctx, query, accountID, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to adjust balance of account %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (t *pgxLedgerTx) InsertTransfer(ctx context.Context, transfer domain.Transfer) error {
	m := mapping.ToModelTransfer(transfer)
	query := `
		INSERT INTO ledger_transfers (transfer_id, debit_account_id, credit_account_id, amount, kind, state, expires_at, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := t.tx.Exec(ctx, query,
		m.TransferID, m.DebitAccountID, m.CreditAccountID, m.Amount,
		m.Kind, m.State, m.ExpiresAt, m.CreatedAt, m.LastUpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("transfer %s: %w", transfer.TransferID, apperrors.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transfer %s: %w", transfer.TransferID, err)
	}
	return nil
}

func (t *pgxLedgerTx) GetTransferForUpdate(ctx context.Context, transferID string) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM ledger_transfers WHERE transfer_id = $1 FOR UPDATE`
	return scanTransfer(t.tx.QueryRow(ctx, query, transferID))
}

func (t *pgxLedgerTx) UpdateTransferState(ctx context.Context, transferID string, state domain.TransferState, now time.Time) error {
	query := `UPDATE ledger_transfers SET state = $2, last_updated_at = $3 WHERE transfer_id = $1`
	tag, err := t.tx.Exec(ctx, query, transferID, string(state), now)
	if err != nil {
		return fmt.Errorf("failed to update transfer %s: %w", transferID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (t *pgxLedgerTx) ListExpiredPendingForUpdate(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + ` FROM ledger_transfers
		WHERE kind = 'WITHDRAWAL' AND state = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`
	rows, err := t.tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired withdrawals: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		var m models.Transfer
		if err := rows.Scan(
			&m.TransferID, &m.DebitAccountID, &m.CreditAccountID, &m.Amount,
			&m.Kind, &m.State, &m.ExpiresAt, &m.CreatedAt, &m.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expired withdrawal: %w", err)
		}
		transfers = append(transfers, mapping.ToDomainTransfer(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list expired withdrawals: %w", err)
	}
	return transfers, nil
}

func scanAccount(row pgx.Row) (*domain.LedgerAccount, error) {
	var m models.Account
	err := row.Scan(
		&m.AccountID, &m.AssetCode, &m.AssetScale, &m.Kind, &m.ParentAccountID,
		&m.PostedBalance, &m.CreatedAt, &m.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	account := mapping.ToDomainAccount(m)
	return &account, nil
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var m models.Transfer
	err := row.Scan(
		&m.TransferID, &m.DebitAccountID, &m.CreditAccountID, &m.Amount,
		&m.Kind, &m.State, &m.ExpiresAt, &m.CreatedAt, &m.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}
	transfer := mapping.ToDomainTransfer(m)
	return &transfer, nil
}
