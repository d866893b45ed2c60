package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// accountingService implements the ledger transfer protocol over the ledger
// store. Every mutating operation runs inside one serializing transaction that
// locks the affected account rows (and the transfer row for post/void) for the
// whole check-then-act sequence.
type accountingService struct {
	ledgerRepo portsrepo.LedgerRepository
	logger     *slog.Logger
}

// NewAccountingService creates the accounting service.
func NewAccountingService(ledgerRepo portsrepo.LedgerRepository, logger *slog.Logger) portssvc.AccountingSvcFacade {
	return &accountingService{
		ledgerRepo: ledgerRepo,
		logger:     logger.With(slog.String("service", "accounting")),
	}
}

var _ portssvc.AccountingSvcFacade = (*accountingService)(nil)

func (s *accountingService) CreateAccount(ctx context.Context, asset domain.Asset, kind domain.AccountKind) (*domain.LedgerAccount, error) {
	if asset.Code == "" {
		return nil, fmt.Errorf("%w: asset code is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	account := domain.LedgerAccount{
		AccountID: uuid.NewString(),
		Asset:     asset,
		Kind:      kind,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}

	err := s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s account: %w", kind, err)
	}
	return &account, nil
}

func (s *accountingService) CreateSubAccount(ctx context.Context, parentAccountID string) (*domain.LedgerAccount, error) {
	parent, err := s.ledgerRepo.FindAccountByID(ctx, parentAccountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.TransferErrUnknownAccount
		}
		return nil, fmt.Errorf("failed to find parent account %s: %w", parentAccountID, err)
	}

	now := time.Now().UTC()
	account := domain.LedgerAccount{
		AccountID:       uuid.NewString(),
		Asset:           parent.Asset,
		Kind:            domain.AccountKindPayment,
		ParentAccountID: parent.AccountID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}

	err = s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-account of %s: %w", parentAccountID, err)
	}
	return &account, nil
}

// CreateDeposit credits the account in a single phase. The debit counterparty
// is the asset's settlement account, which alone may carry a negative posted
// balance: a deposit is money entering the closed transfer graph.
func (s *accountingService) CreateDeposit(ctx context.Context, transferID, accountID string, amount uint64) error {
	if err := validateTransferID(transferID); err != nil {
		return err
	}
	if amount == 0 {
		return domain.TransferErrAmountZero
	}

	now := time.Now().UTC()
	return s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		account, settlementID, err := resolveWithSettlement(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if _, err := tx.GetAccountsForUpdate(ctx, []string{account.AccountID, settlementID}); err != nil {
			return fmt.Errorf("failed to lock accounts for deposit %s: %w", transferID, err)
		}

		transfer := domain.Transfer{
			TransferID:      transferID,
			DebitAccountID:  settlementID,
			CreditAccountID: account.AccountID,
			Amount:          amount,
			Kind:            domain.TransferKindDeposit,
			State:           domain.TransferStatePosted,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				LastUpdatedAt: now,
			},
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				return domain.TransferErrTransferExists
			}
			return fmt.Errorf("failed to insert deposit %s: %w", transferID, err)
		}

		if err := tx.AdjustPostedBalance(ctx, settlementID, -int64(amount)); err != nil {
			return fmt.Errorf("failed to debit settlement account: %w", err)
		}
		if err := tx.AdjustPostedBalance(ctx, account.AccountID, int64(amount)); err != nil {
			return fmt.Errorf("failed to credit account %s: %w", accountID, err)
		}
		return nil
	})
}

// CreateWithdrawal reserves amount out of the account's available balance as a
// pending transfer. The amount stays in the posted balance until the transfer
// is posted, but no longer counts as available.
func (s *accountingService) CreateWithdrawal(ctx context.Context, transferID, accountID string, amount uint64, timeout time.Duration) error {
	if err := validateTransferID(transferID); err != nil {
		return err
	}
	if amount == 0 {
		return domain.TransferErrAmountZero
	}

	now := time.Now().UTC()
	return s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		account, settlementID, err := resolveWithSettlement(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if _, err := tx.GetAccountsForUpdate(ctx, []string{account.AccountID, settlementID}); err != nil {
			return fmt.Errorf("failed to lock accounts for withdrawal %s: %w", transferID, err)
		}

		available, err := availableBalance(ctx, tx, account.AccountID, now)
		if err != nil {
			return err
		}
		if available < amount {
			return domain.TransferErrInsufficientBalance
		}

		expiresAt := now.Add(timeout)
		transfer := domain.Transfer{
			TransferID:      transferID,
			DebitAccountID:  account.AccountID,
			CreditAccountID: settlementID,
			Amount:          amount,
			Kind:            domain.TransferKindWithdrawal,
			State:           domain.TransferStatePending,
			ExpiresAt:       &expiresAt,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				LastUpdatedAt: now,
			},
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				return domain.TransferErrTransferExists
			}
			return fmt.Errorf("failed to insert withdrawal %s: %w", transferID, err)
		}
		return nil
	})
}

// PostWithdrawal commits a pending withdrawal: the reserved amount leaves the
// debit account's posted balance. An expired reservation is no longer
// spendable and reports UnknownTransfer.
func (s *accountingService) PostWithdrawal(ctx context.Context, transferID string) error {
	if err := validateTransferID(transferID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		transfer, err := lockPendingWithdrawal(ctx, tx, transferID)
		if err != nil {
			return err
		}
		if transfer.Expired(now) {
			return domain.TransferErrUnknownTransfer
		}

		if _, err := tx.GetAccountsForUpdate(ctx, []string{transfer.DebitAccountID, transfer.CreditAccountID}); err != nil {
			return fmt.Errorf("failed to lock accounts for post of %s: %w", transferID, err)
		}
		if err := tx.AdjustPostedBalance(ctx, transfer.DebitAccountID, -int64(transfer.Amount)); err != nil {
			return fmt.Errorf("failed to debit account %s: %w", transfer.DebitAccountID, err)
		}
		if err := tx.AdjustPostedBalance(ctx, transfer.CreditAccountID, int64(transfer.Amount)); err != nil {
			return fmt.Errorf("failed to credit account %s: %w", transfer.CreditAccountID, err)
		}
		return tx.UpdateTransferState(ctx, transferID, domain.TransferStatePosted, now)
	})
}

// VoidWithdrawal releases a pending withdrawal's reservation. Voiding an
// expired reservation succeeds; this is what the reaper does.
func (s *accountingService) VoidWithdrawal(ctx context.Context, transferID string) error {
	if err := validateTransferID(transferID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		if _, err := lockPendingWithdrawal(ctx, tx, transferID); err != nil {
			return err
		}
		return tx.UpdateTransferState(ctx, transferID, domain.TransferStateVoided, now)
	})
}

func (s *accountingService) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	balance, err := s.ledgerRepo.GetBalance(ctx, accountID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.TransferErrUnknownAccount
		}
		return nil, fmt.Errorf("failed to get balance of %s: %w", accountID, err)
	}
	return balance, nil
}

// ExtendCredit moves amount from the sub-account's parent into the
// sub-account: a withdrawal from the parent and a deposit to the sub performed
// as one atomic posted transfer.
func (s *accountingService) ExtendCredit(ctx context.Context, subAccountID string, amount uint64) error {
	return s.creditTransfer(ctx, subAccountID, amount, false)
}

// RevokeCredit is the inverse of ExtendCredit: it returns amount from the
// sub-account to its parent.
func (s *accountingService) RevokeCredit(ctx context.Context, subAccountID string, amount uint64) error {
	return s.creditTransfer(ctx, subAccountID, amount, true)
}

func (s *accountingService) creditTransfer(ctx context.Context, subAccountID string, amount uint64, revoke bool) error {
	if amount == 0 {
		return domain.TransferErrAmountZero
	}

	now := time.Now().UTC()
	return s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		sub, err := tx.GetAccount(ctx, subAccountID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return domain.TransferErrUnknownAccount
			}
			return fmt.Errorf("failed to find sub-account %s: %w", subAccountID, err)
		}
		if sub.ParentAccountID == "" {
			return domain.TransferErrUnknownAccount
		}

		debitID, creditID := sub.ParentAccountID, sub.AccountID
		if revoke {
			debitID, creditID = sub.AccountID, sub.ParentAccountID
		}

		if _, err := tx.GetAccountsForUpdate(ctx, []string{debitID, creditID}); err != nil {
			return fmt.Errorf("failed to lock accounts for credit transfer: %w", err)
		}
		available, err := availableBalance(ctx, tx, debitID, now)
		if err != nil {
			return err
		}
		if available < amount {
			return domain.TransferErrInsufficientBalance
		}

		transfer := domain.Transfer{
			TransferID:      uuid.NewString(),
			DebitAccountID:  debitID,
			CreditAccountID: creditID,
			Amount:          amount,
			Kind:            domain.TransferKindTransfer,
			State:           domain.TransferStatePosted,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				LastUpdatedAt: now,
			},
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			return fmt.Errorf("failed to insert credit transfer: %w", err)
		}
		if err := tx.AdjustPostedBalance(ctx, debitID, -int64(amount)); err != nil {
			return fmt.Errorf("failed to debit account %s: %w", debitID, err)
		}
		if err := tx.AdjustPostedBalance(ctx, creditID, int64(amount)); err != nil {
			return fmt.Errorf("failed to credit account %s: %w", creditID, err)
		}
		return nil
	})
}

// ReapExpiredWithdrawals voids expired pending withdrawals, releasing their
// reservations. The expiry is already ignored for availability purposes;
// reaping resolves the transfer row itself.
func (s *accountingService) ReapExpiredWithdrawals(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()
	reaped := 0
	err := s.ledgerRepo.WithinTransaction(ctx, func(tx portsrepo.LedgerTx) error {
		expired, err := tx.ListExpiredPendingForUpdate(ctx, now, limit)
		if err != nil {
			return fmt.Errorf("failed to list expired withdrawals: %w", err)
		}
		for _, transfer := range expired {
			if err := tx.UpdateTransferState(ctx, transfer.TransferID, domain.TransferStateVoided, now); err != nil {
				return fmt.Errorf("failed to void expired withdrawal %s: %w", transfer.TransferID, err)
			}
			reaped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		s.logger.Info("Voided expired withdrawal reservations", slog.Int("count", reaped))
	}
	return reaped, nil
}

// validateTransferID distinguishes malformed ids from unknown ones.
func validateTransferID(transferID string) error {
	if _, err := uuid.Parse(transferID); err != nil {
		return domain.TransferErrInvalidID
	}
	return nil
}

func resolveWithSettlement(ctx context.Context, tx portsrepo.LedgerTx, accountID string) (*domain.LedgerAccount, string, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", domain.TransferErrUnknownAccount
		}
		return nil, "", fmt.Errorf("failed to find account %s: %w", accountID, err)
	}
	settlementID, err := tx.FindAssetAccountID(ctx, account.Asset.Code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", domain.TransferErrUnknownAccount
		}
		return nil, "", fmt.Errorf("failed to find settlement account for %s: %w", account.Asset.Code, err)
	}
	return account, settlementID, nil
}

func availableBalance(ctx context.Context, tx portsrepo.LedgerTx, accountID string, now time.Time) (uint64, error) {
	posted, err := tx.GetPostedBalance(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to read posted balance of %s: %w", accountID, err)
	}
	pending, err := tx.SumPendingDebits(ctx, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pending debits of %s: %w", accountID, err)
	}
	if posted < 0 || uint64(posted) < pending {
		return 0, nil
	}
	return uint64(posted) - pending, nil
}

// lockPendingWithdrawal locks a withdrawal's transfer row and verifies it is
// still pending, mapping resolution states to the protocol errors.
func lockPendingWithdrawal(ctx context.Context, tx portsrepo.LedgerTx, transferID string) (*domain.Transfer, error) {
	transfer, err := tx.GetTransferForUpdate(ctx, transferID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.TransferErrUnknownTransfer
		}
		return nil, fmt.Errorf("failed to lock transfer %s: %w", transferID, err)
	}
	if transfer.Kind != domain.TransferKindWithdrawal {
		return nil, domain.TransferErrUnknownTransfer
	}
	switch transfer.State {
	case domain.TransferStatePosted:
		return nil, domain.TransferErrAlreadyPosted
	case domain.TransferStateVoided:
		return nil, domain.TransferErrAlreadyVoided
	}
	return transfer, nil
}
