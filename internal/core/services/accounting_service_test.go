package services_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/core/services"
)

// --- In-memory LedgerRepository fake ---

// fakeLedgerStore implements both portsrepo.LedgerRepository and
// portsrepo.LedgerTx over plain maps. WithinTransaction snapshots the maps and
// restores them when fn fails, matching the rollback contract.
type fakeLedgerStore struct {
	accounts  map[string]domain.LedgerAccount
	balances  map[string]int64
	transfers map[string]domain.Transfer
}

var _ portsrepo.LedgerRepository = (*fakeLedgerStore)(nil)
var _ portsrepo.LedgerTx = (*fakeLedgerStore)(nil)

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		accounts:  make(map[string]domain.LedgerAccount),
		balances:  make(map[string]int64),
		transfers: make(map[string]domain.Transfer),
	}
}

func (s *fakeLedgerStore) snapshot() *fakeLedgerStore {
	clone := newFakeLedgerStore()
	for k, v := range s.accounts {
		clone.accounts[k] = v
	}
	for k, v := range s.balances {
		clone.balances[k] = v
	}
	for k, v := range s.transfers {
		clone.transfers[k] = v
	}
	return clone
}

func (s *fakeLedgerStore) WithinTransaction(ctx context.Context, fn func(tx portsrepo.LedgerTx) error) error {
	saved := s.snapshot()
	if err := fn(s); err != nil {
		s.accounts = saved.accounts
		s.balances = saved.balances
		s.transfers = saved.transfers
		return err
	}
	return nil
}

func (s *fakeLedgerStore) FindAccountByID(ctx context.Context, accountID string) (*domain.LedgerAccount, error) {
	return s.GetAccount(ctx, accountID)
}

func (s *fakeLedgerStore) GetBalance(ctx context.Context, accountID string, now time.Time) (*domain.Balance, error) {
	if _, ok := s.accounts[accountID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	pending, _ := s.SumPendingDebits(ctx, accountID, now)
	balance := &domain.Balance{PendingDebits: pending}
	if posted := s.balances[accountID]; posted > 0 {
		balance.Posted = uint64(posted)
	}
	if balance.Posted > pending {
		balance.Available = balance.Posted - pending
	}
	return balance, nil
}

func (s *fakeLedgerStore) InsertAccount(ctx context.Context, account domain.LedgerAccount) error {
	if _, ok := s.accounts[account.AccountID]; ok {
		return apperrors.ErrDuplicate
	}
	if account.Kind == domain.AccountKindAsset {
		for _, existing := range s.accounts {
			if existing.Kind == domain.AccountKindAsset && existing.Asset.Code == account.Asset.Code {
				return apperrors.ErrDuplicate
			}
		}
	}
	s.accounts[account.AccountID] = account
	s.balances[account.AccountID] = 0
	return nil
}

func (s *fakeLedgerStore) GetAccount(ctx context.Context, accountID string) (*domain.LedgerAccount, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &account, nil
}

func (s *fakeLedgerStore) FindAssetAccountID(ctx context.Context, assetCode string) (string, error) {
	for id, account := range s.accounts {
		if account.Kind == domain.AccountKindAsset && account.Asset.Code == assetCode {
			return id, nil
		}
	}
	return "", apperrors.ErrNotFound
}

func (s *fakeLedgerStore) GetAccountsForUpdate(ctx context.Context, accountIDs []string) (map[string]domain.LedgerAccount, error) {
	result := make(map[string]domain.LedgerAccount, len(accountIDs))
	for _, id := range accountIDs {
		account, ok := s.accounts[id]
		if !ok {
			return nil, apperrors.ErrNotFound
		}
		result[id] = account
	}
	return result, nil
}

func (s *fakeLedgerStore) GetPostedBalance(ctx context.Context, accountID string) (int64, error) {
	if _, ok := s.accounts[accountID]; !ok {
		return 0, apperrors.ErrNotFound
	}
	return s.balances[accountID], nil
}

func (s *fakeLedgerStore) SumPendingDebits(ctx context.Context, accountID string, now time.Time) (uint64, error) {
	var sum uint64
	for _, transfer := range s.transfers {
		if transfer.Kind == domain.TransferKindWithdrawal &&
			transfer.State == domain.TransferStatePending &&
			transfer.DebitAccountID == accountID &&
			transfer.ExpiresAt != nil && transfer.ExpiresAt.After(now) {
			sum += transfer.Amount
		}
	}
	return sum, nil
}

func (s *fakeLedgerStore) AdjustPostedBalance(ctx context.Context, accountID string, delta int64) error {
	if _, ok := s.accounts[accountID]; !ok {
		return apperrors.ErrNotFound
	}
	s.balances[accountID] += delta
	return nil
}

func (s *fakeLedgerStore) InsertTransfer(ctx context.Context, transfer domain.Transfer) error {
	if _, ok := s.transfers[transfer.TransferID]; ok {
		return apperrors.ErrDuplicate
	}
	s.transfers[transfer.TransferID] = transfer
	return nil
}

func (s *fakeLedgerStore) GetTransferForUpdate(ctx context.Context, transferID string) (*domain.Transfer, error) {
	transfer, ok := s.transfers[transferID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &transfer, nil
}

func (s *fakeLedgerStore) UpdateTransferState(ctx context.Context, transferID string, state domain.TransferState, now time.Time) error {
	transfer, ok := s.transfers[transferID]
	if !ok {
		return apperrors.ErrNotFound
	}
	transfer.State = state
	transfer.LastUpdatedAt = now
	s.transfers[transferID] = transfer
	return nil
}

func (s *fakeLedgerStore) ListExpiredPendingForUpdate(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error) {
	var expired []domain.Transfer
	for _, transfer := range s.transfers {
		if transfer.Kind == domain.TransferKindWithdrawal && transfer.Expired(now) {
			expired = append(expired, transfer)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].TransferID < expired[j].TransferID })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// --- Suite ---

type AccountingServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	store      *fakeLedgerStore
	service    portssvc.AccountingSvcFacade
	settlement *domain.LedgerAccount
	wallet     *domain.LedgerAccount
}

func (s *AccountingServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newFakeLedgerStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = services.NewAccountingService(s.store, logger)

	asset := domain.Asset{Code: "USD", Scale: 2}
	var err error
	s.settlement, err = s.service.CreateAccount(s.ctx, asset, domain.AccountKindAsset)
	s.Require().NoError(err)
	s.wallet, err = s.service.CreateAccount(s.ctx, asset, domain.AccountKindPaymentPointer)
	s.Require().NoError(err)
}

func (s *AccountingServiceTestSuite) deposit(accountID string, amount uint64) string {
	transferID := uuid.NewString()
	s.Require().NoError(s.service.CreateDeposit(s.ctx, transferID, accountID, amount))
	return transferID
}

func (s *AccountingServiceTestSuite) balance(accountID string) *domain.Balance {
	balance, err := s.service.GetBalance(s.ctx, accountID)
	s.Require().NoError(err)
	return balance
}

func (s *AccountingServiceTestSuite) TestCreateAccountRequiresAssetCode() {
	_, err := s.service.CreateAccount(s.ctx, domain.Asset{}, domain.AccountKindPeer)
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *AccountingServiceTestSuite) TestCreateSubAccountInheritsParentAsset() {
	sub, err := s.service.CreateSubAccount(s.ctx, s.wallet.AccountID)
	s.Require().NoError(err)
	s.Equal(s.wallet.Asset, sub.Asset)
	s.Equal(domain.AccountKindPayment, sub.Kind)
	s.Equal(s.wallet.AccountID, sub.ParentAccountID)
}

func (s *AccountingServiceTestSuite) TestCreateSubAccountUnknownParent() {
	_, err := s.service.CreateSubAccount(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.TransferErrUnknownAccount)
}

func (s *AccountingServiceTestSuite) TestDepositCreditsAccount() {
	s.deposit(s.wallet.AccountID, 1000)

	balance := s.balance(s.wallet.AccountID)
	s.Equal(uint64(1000), balance.Posted)
	s.Equal(uint64(0), balance.PendingDebits)
	s.Equal(uint64(1000), balance.Available)

	// The settlement counterparty absorbs the debit and goes negative.
	s.Equal(int64(-1000), s.store.balances[s.settlement.AccountID])
	s.Equal(uint64(0), s.balance(s.settlement.AccountID).Posted)
}

func (s *AccountingServiceTestSuite) TestDepositIsIdempotent() {
	transferID := s.deposit(s.wallet.AccountID, 1000)

	err := s.service.CreateDeposit(s.ctx, transferID, s.wallet.AccountID, 1000)
	s.ErrorIs(err, domain.TransferErrTransferExists)
	s.Equal(uint64(1000), s.balance(s.wallet.AccountID).Posted)
}

func (s *AccountingServiceTestSuite) TestDepositRejectsBadInput() {
	s.ErrorIs(s.service.CreateDeposit(s.ctx, "not-a-uuid", s.wallet.AccountID, 10), domain.TransferErrInvalidID)
	s.ErrorIs(s.service.CreateDeposit(s.ctx, uuid.NewString(), s.wallet.AccountID, 0), domain.TransferErrAmountZero)
	s.ErrorIs(s.service.CreateDeposit(s.ctx, uuid.NewString(), uuid.NewString(), 10), domain.TransferErrUnknownAccount)
}

func (s *AccountingServiceTestSuite) TestWithdrawalReservesAvailableBalance() {
	s.deposit(s.wallet.AccountID, 1000)

	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, uuid.NewString(), s.wallet.AccountID, 400, time.Minute))

	balance := s.balance(s.wallet.AccountID)
	s.Equal(uint64(1000), balance.Posted)
	s.Equal(uint64(400), balance.PendingDebits)
	s.Equal(uint64(600), balance.Available)

	// The reservation counts against further withdrawals.
	err := s.service.CreateWithdrawal(s.ctx, uuid.NewString(), s.wallet.AccountID, 700, time.Minute)
	s.ErrorIs(err, domain.TransferErrInsufficientBalance)

	s.NoError(s.service.CreateWithdrawal(s.ctx, uuid.NewString(), s.wallet.AccountID, 600, time.Minute))
	s.Equal(uint64(0), s.balance(s.wallet.AccountID).Available)
}

func (s *AccountingServiceTestSuite) TestWithdrawalRejectsReusedTransferID() {
	depositID := s.deposit(s.wallet.AccountID, 1000)
	err := s.service.CreateWithdrawal(s.ctx, depositID, s.wallet.AccountID, 100, time.Minute)
	s.ErrorIs(err, domain.TransferErrTransferExists)
}

func (s *AccountingServiceTestSuite) TestPostWithdrawalSettlesReservation() {
	s.deposit(s.wallet.AccountID, 1000)
	transferID := uuid.NewString()
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, transferID, s.wallet.AccountID, 400, time.Minute))

	s.Require().NoError(s.service.PostWithdrawal(s.ctx, transferID))

	balance := s.balance(s.wallet.AccountID)
	s.Equal(uint64(600), balance.Posted)
	s.Equal(uint64(0), balance.PendingDebits)
	s.Equal(uint64(600), balance.Available)
	s.Equal(int64(-600), s.store.balances[s.settlement.AccountID])

	// Post and void are both rejected once the transfer is resolved.
	s.ErrorIs(s.service.PostWithdrawal(s.ctx, transferID), domain.TransferErrAlreadyPosted)
	s.ErrorIs(s.service.VoidWithdrawal(s.ctx, transferID), domain.TransferErrAlreadyPosted)
}

func (s *AccountingServiceTestSuite) TestVoidWithdrawalReleasesReservation() {
	s.deposit(s.wallet.AccountID, 1000)
	transferID := uuid.NewString()
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, transferID, s.wallet.AccountID, 400, time.Minute))

	s.Require().NoError(s.service.VoidWithdrawal(s.ctx, transferID))

	balance := s.balance(s.wallet.AccountID)
	s.Equal(uint64(1000), balance.Posted)
	s.Equal(uint64(1000), balance.Available)

	s.ErrorIs(s.service.PostWithdrawal(s.ctx, transferID), domain.TransferErrAlreadyVoided)
	s.ErrorIs(s.service.VoidWithdrawal(s.ctx, transferID), domain.TransferErrAlreadyVoided)
}

func (s *AccountingServiceTestSuite) TestPostWithdrawalUnknownTransfer() {
	s.ErrorIs(s.service.PostWithdrawal(s.ctx, uuid.NewString()), domain.TransferErrUnknownTransfer)

	// A deposit's transfer ID is not a withdrawal.
	depositID := s.deposit(s.wallet.AccountID, 100)
	s.ErrorIs(s.service.PostWithdrawal(s.ctx, depositID), domain.TransferErrUnknownTransfer)
}

func (s *AccountingServiceTestSuite) TestExpiredWithdrawalIsUnpostable() {
	s.deposit(s.wallet.AccountID, 1000)
	transferID := uuid.NewString()
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, transferID, s.wallet.AccountID, 400, time.Nanosecond))
	time.Sleep(time.Millisecond)

	// The lapsed reservation no longer shadows available balance.
	s.Equal(uint64(1000), s.balance(s.wallet.AccountID).Available)

	s.ErrorIs(s.service.PostWithdrawal(s.ctx, transferID), domain.TransferErrUnknownTransfer)

	// Voiding after expiry still succeeds; it is how the reaper resolves rows.
	s.NoError(s.service.VoidWithdrawal(s.ctx, transferID))
}

func (s *AccountingServiceTestSuite) TestReapExpiredWithdrawals() {
	s.deposit(s.wallet.AccountID, 1000)
	expired1, expired2 := uuid.NewString(), uuid.NewString()
	live := uuid.NewString()
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, expired1, s.wallet.AccountID, 100, time.Nanosecond))
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, expired2, s.wallet.AccountID, 100, time.Nanosecond))
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, live, s.wallet.AccountID, 100, time.Hour))
	time.Sleep(time.Millisecond)

	reaped, err := s.service.ReapExpiredWithdrawals(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(2, reaped)
	s.Equal(domain.TransferStateVoided, s.store.transfers[expired1].State)
	s.Equal(domain.TransferStateVoided, s.store.transfers[expired2].State)
	s.Equal(domain.TransferStatePending, s.store.transfers[live].State)

	reaped, err = s.service.ReapExpiredWithdrawals(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, reaped)
}

func (s *AccountingServiceTestSuite) TestExtendAndRevokeCredit() {
	sub, err := s.service.CreateSubAccount(s.ctx, s.wallet.AccountID)
	s.Require().NoError(err)
	s.deposit(s.wallet.AccountID, 1000)

	s.Require().NoError(s.service.ExtendCredit(s.ctx, sub.AccountID, 300))
	s.Equal(uint64(300), s.balance(sub.AccountID).Posted)
	s.Equal(uint64(700), s.balance(s.wallet.AccountID).Posted)

	s.Require().NoError(s.service.RevokeCredit(s.ctx, sub.AccountID, 100))
	s.Equal(uint64(200), s.balance(sub.AccountID).Posted)
	s.Equal(uint64(800), s.balance(s.wallet.AccountID).Posted)

	s.ErrorIs(s.service.ExtendCredit(s.ctx, sub.AccountID, 5000), domain.TransferErrInsufficientBalance)
	s.ErrorIs(s.service.ExtendCredit(s.ctx, sub.AccountID, 0), domain.TransferErrAmountZero)
	// Top-level accounts have no parent to draw credit from.
	s.ErrorIs(s.service.ExtendCredit(s.ctx, s.wallet.AccountID, 10), domain.TransferErrUnknownAccount)
}

func (s *AccountingServiceTestSuite) TestGetBalanceUnknownAccount() {
	_, err := s.service.GetBalance(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.TransferErrUnknownAccount)
}

// Every transfer is double-entry, so posted balances always sum to zero across
// the whole ledger, settlement account included.
func (s *AccountingServiceTestSuite) TestPostedBalancesSumToZero() {
	sub, err := s.service.CreateSubAccount(s.ctx, s.wallet.AccountID)
	s.Require().NoError(err)

	s.deposit(s.wallet.AccountID, 1000)
	s.deposit(s.wallet.AccountID, 250)
	s.Require().NoError(s.service.ExtendCredit(s.ctx, sub.AccountID, 400))

	transferID := uuid.NewString()
	s.Require().NoError(s.service.CreateWithdrawal(s.ctx, transferID, s.wallet.AccountID, 300, time.Minute))
	s.Require().NoError(s.service.PostWithdrawal(s.ctx, transferID))
	s.Require().NoError(s.service.RevokeCredit(s.ctx, sub.AccountID, 400))

	var total int64
	for _, posted := range s.store.balances {
		total += posted
	}
	s.Equal(int64(0), total)
}

func TestAccountingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AccountingServiceTestSuite))
}
