package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/dto"
	"github.com/ilpaylabs/ilpay_backend/internal/handlers"
	"github.com/ilpaylabs/ilpay_backend/internal/platform/config"
)

// --- Mock AccountingService ---

type MockAccountingService struct {
	mock.Mock
}

var _ portssvc.AccountingSvcFacade = (*MockAccountingService)(nil)

func (m *MockAccountingService) CreateAccount(ctx context.Context, asset domain.Asset, kind domain.AccountKind) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, asset, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}

func (m *MockAccountingService) CreateSubAccount(ctx context.Context, parentAccountID string) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, parentAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}

func (m *MockAccountingService) CreateDeposit(ctx context.Context, transferID, accountID string, amount uint64) error {
	args := m.Called(ctx, transferID, accountID, amount)
	return args.Error(0)
}

func (m *MockAccountingService) CreateWithdrawal(ctx context.Context, transferID, accountID string, amount uint64, timeout time.Duration) error {
	args := m.Called(ctx, transferID, accountID, amount, timeout)
	return args.Error(0)
}

func (m *MockAccountingService) PostWithdrawal(ctx context.Context, transferID string) error {
	args := m.Called(ctx, transferID)
	return args.Error(0)
}

func (m *MockAccountingService) VoidWithdrawal(ctx context.Context, transferID string) error {
	args := m.Called(ctx, transferID)
	return args.Error(0)
}

func (m *MockAccountingService) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Balance), args.Error(1)
}

func (m *MockAccountingService) ExtendCredit(ctx context.Context, subAccountID string, amount uint64) error {
	args := m.Called(ctx, subAccountID, amount)
	return args.Error(0)
}

func (m *MockAccountingService) RevokeCredit(ctx context.Context, subAccountID string, amount uint64) error {
	args := m.Called(ctx, subAccountID, amount)
	return args.Error(0)
}

func (m *MockAccountingService) ReapExpiredWithdrawals(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

// setupTestRouter builds a router over the given services, without the
// middleware stack.
func setupTestRouter(container *portssvc.ServiceContainer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers.RegisterRoutes(r, &config.Config{}, container, nil)
	return r
}

// --- Suite ---

type LiquidityHandlerTestSuite struct {
	suite.Suite
	accounting *MockAccountingService
	router     *gin.Engine
}

func (s *LiquidityHandlerTestSuite) SetupTest() {
	s.accounting = new(MockAccountingService)
	s.router = setupTestRouter(&portssvc.ServiceContainer{Accounting: s.accounting})
}

func (s *LiquidityHandlerTestSuite) performJSON(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *LiquidityHandlerTestSuite) decodeTransferResult(w *httptest.ResponseRecorder) dto.TransferResultResponse {
	var result dto.TransferResultResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func (s *LiquidityHandlerTestSuite) TestCreateAccount() {
	account := &domain.LedgerAccount{
		AccountID: uuid.NewString(),
		Asset:     domain.Asset{Code: "USD", Scale: 2},
		Kind:      domain.AccountKindAsset,
	}
	s.accounting.On("CreateAccount", mock.Anything, domain.Asset{Code: "USD", Scale: 2}, domain.AccountKindAsset).
		Return(account, nil).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/accounts", dto.CreateLedgerAccountRequest{
		AssetCode:  "USD",
		AssetScale: 2,
		Kind:       "ASSET",
	})

	s.Equal(http.StatusCreated, w.Code)
	var resp dto.LedgerAccountResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(account.AccountID, resp.AccountID)
	s.Equal("USD", resp.AssetCode)
	s.accounting.AssertExpectations(s.T())
}

func (s *LiquidityHandlerTestSuite) TestCreateAccountRejectsUnknownKind() {
	w := s.performJSON(http.MethodPost, "/api/v1/accounts", gin.H{
		"assetCode": "USD",
		"kind":      "SETTLEMENT",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.accounting.AssertNotCalled(s.T(), "CreateAccount")
}

func (s *LiquidityHandlerTestSuite) TestCreateSubAccountUnknownParent() {
	parentID := uuid.NewString()
	s.accounting.On("CreateSubAccount", mock.Anything, parentID).
		Return(nil, domain.TransferErrUnknownAccount).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/accounts/sub-accounts", dto.CreateSubAccountRequest{
		ParentAccountID: parentID,
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *LiquidityHandlerTestSuite) TestGetBalance() {
	accountID := uuid.NewString()
	s.accounting.On("GetBalance", mock.Anything, accountID).
		Return(&domain.Balance{Posted: 1000, PendingDebits: 400, Available: 600}, nil).Once()

	w := s.performJSON(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/balance", accountID), nil)

	s.Equal(http.StatusOK, w.Code)
	var resp dto.BalanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(uint64(1000), resp.Posted)
	s.Equal(uint64(400), resp.PendingDebits)
	s.Equal(uint64(600), resp.Available)
}

func (s *LiquidityHandlerTestSuite) TestGetBalanceUnknownAccount() {
	accountID := uuid.NewString()
	s.accounting.On("GetBalance", mock.Anything, accountID).
		Return(nil, domain.TransferErrUnknownAccount).Once()

	w := s.performJSON(http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/balance", accountID), nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *LiquidityHandlerTestSuite) TestCreateDeposit() {
	transferID, accountID := uuid.NewString(), uuid.NewString()
	s.accounting.On("CreateDeposit", mock.Anything, transferID, accountID, uint64(1000)).
		Return(nil).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/liquidity/deposits", dto.DepositRequest{
		ID:        transferID,
		AccountID: accountID,
		Amount:    1000,
	})

	s.Equal(http.StatusOK, w.Code)
	s.True(s.decodeTransferResult(w).Success)
	s.accounting.AssertExpectations(s.T())
}

func (s *LiquidityHandlerTestSuite) TestCreateDepositDuplicate() {
	transferID, accountID := uuid.NewString(), uuid.NewString()
	s.accounting.On("CreateDeposit", mock.Anything, transferID, accountID, uint64(1000)).
		Return(domain.TransferErrTransferExists).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/liquidity/deposits", dto.DepositRequest{
		ID:        transferID,
		AccountID: accountID,
		Amount:    1000,
	})

	s.Equal(http.StatusConflict, w.Code)
	result := s.decodeTransferResult(w)
	s.False(result.Success)
	s.Equal("TransferExists", result.Code)
}

func (s *LiquidityHandlerTestSuite) TestCreateWithdrawalInsufficientBalance() {
	transferID, accountID := uuid.NewString(), uuid.NewString()
	s.accounting.On("CreateWithdrawal", mock.Anything, transferID, accountID, uint64(5000), time.Minute).
		Return(domain.TransferErrInsufficientBalance).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/liquidity/withdrawals", dto.WithdrawalRequest{
		ID:        transferID,
		AccountID: accountID,
		Amount:    5000,
	})

	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("InsufficientBalance", s.decodeTransferResult(w).Code)
}

func (s *LiquidityHandlerTestSuite) TestCreateWithdrawalCustomTimeout() {
	transferID, accountID := uuid.NewString(), uuid.NewString()
	s.accounting.On("CreateWithdrawal", mock.Anything, transferID, accountID, uint64(100), 30*time.Second).
		Return(nil).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/liquidity/withdrawals", dto.WithdrawalRequest{
		ID:             transferID,
		AccountID:      accountID,
		Amount:         100,
		TimeoutSeconds: 30,
	})

	s.Equal(http.StatusOK, w.Code)
	s.accounting.AssertExpectations(s.T())
}

func (s *LiquidityHandlerTestSuite) TestPostWithdrawalAlreadyPosted() {
	transferID := uuid.NewString()
	s.accounting.On("PostWithdrawal", mock.Anything, transferID).
		Return(domain.TransferErrAlreadyPosted).Once()

	w := s.performJSON(http.MethodPost, fmt.Sprintf("/api/v1/liquidity/withdrawals/%s/post", transferID), nil)

	s.Equal(http.StatusConflict, w.Code)
	s.Equal("AlreadyPosted", s.decodeTransferResult(w).Code)
}

func (s *LiquidityHandlerTestSuite) TestVoidWithdrawal() {
	transferID := uuid.NewString()
	s.accounting.On("VoidWithdrawal", mock.Anything, transferID).Return(nil).Once()

	w := s.performJSON(http.MethodPost, fmt.Sprintf("/api/v1/liquidity/withdrawals/%s/void", transferID), nil)

	s.Equal(http.StatusOK, w.Code)
	s.True(s.decodeTransferResult(w).Success)
}

func (s *LiquidityHandlerTestSuite) TestVoidWithdrawalUnknownTransfer() {
	transferID := uuid.NewString()
	s.accounting.On("VoidWithdrawal", mock.Anything, transferID).
		Return(domain.TransferErrUnknownTransfer).Once()

	w := s.performJSON(http.MethodPost, fmt.Sprintf("/api/v1/liquidity/withdrawals/%s/void", transferID), nil)

	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("UnknownTransfer", s.decodeTransferResult(w).Code)
}

func (s *LiquidityHandlerTestSuite) TestTransferInternalError() {
	transferID, accountID := uuid.NewString(), uuid.NewString()
	s.accounting.On("CreateDeposit", mock.Anything, transferID, accountID, uint64(10)).
		Return(fmt.Errorf("connection refused")).Once()

	w := s.performJSON(http.MethodPost, "/api/v1/liquidity/deposits", dto.DepositRequest{
		ID:        transferID,
		AccountID: accountID,
		Amount:    10,
	})

	s.Equal(http.StatusInternalServerError, w.Code)
	s.False(s.decodeTransferResult(w).Success)
}

func TestLiquidityHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(LiquidityHandlerTestSuite))
}
