package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/dto"
	"github.com/ilpaylabs/ilpay_backend/internal/middleware"
)

const defaultWithdrawalTimeout = time.Minute

// liquidityHandler handles HTTP requests for ledger accounts and transfers.
type liquidityHandler struct {
	accountingService portssvc.AccountingSvcFacade
}

func newLiquidityHandler(accountingService portssvc.AccountingSvcFacade) *liquidityHandler {
	return &liquidityHandler{accountingService: accountingService}
}

// registerLiquidityRoutes registers the account and transfer routes.
func registerLiquidityRoutes(rg *gin.RouterGroup, accountingService portssvc.AccountingSvcFacade) {
	h := newLiquidityHandler(accountingService)

	accounts := rg.Group("/accounts")
	{
		accounts.POST("", h.createAccount)
		accounts.POST("/sub-accounts", h.createSubAccount)
		accounts.GET("/:id/balance", h.getBalance)
	}

	liquidity := rg.Group("/liquidity")
	{
		liquidity.POST("/deposits", h.createDeposit)
		liquidity.POST("/withdrawals", h.createWithdrawal)
		liquidity.POST("/withdrawals/:id/post", h.postWithdrawal)
		liquidity.POST("/withdrawals/:id/void", h.voidWithdrawal)
	}
}

func (h *liquidityHandler) createAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateLedgerAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for createAccount", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	account, err := h.accountingService.CreateAccount(c.Request.Context(),
		domain.Asset{Code: req.AssetCode, Scale: req.AssetScale},
		domain.AccountKind(req.Kind))
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrDuplicate) {
			logger.Warn("Rejected account creation", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to create account", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	logger.Info("Account created", slog.String("account_id", account.AccountID))
	c.JSON(http.StatusCreated, dto.ToLedgerAccountResponse(account))
}

func (h *liquidityHandler) createSubAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateSubAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for createSubAccount", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	account, err := h.accountingService.CreateSubAccount(c.Request.Context(), req.ParentAccountID)
	if err != nil {
		if errors.Is(err, domain.TransferErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Parent account not found"})
			return
		}
		logger.Error("Failed to create sub-account", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sub-account"})
		return
	}

	logger.Info("Sub-account created",
		slog.String("account_id", account.AccountID),
		slog.String("parent_account_id", req.ParentAccountID))
	c.JSON(http.StatusCreated, dto.ToLedgerAccountResponse(account))
}

func (h *liquidityHandler) getBalance(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	accountID := c.Param("id")

	balance, err := h.accountingService.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.TransferErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		logger.Error("Failed to read balance", slog.String("account_id", accountID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read balance"})
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{
		AccountID:     accountID,
		Posted:        balance.Posted,
		PendingDebits: balance.PendingDebits,
		Available:     balance.Available,
	})
}

func (h *liquidityHandler) createDeposit(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for createDeposit", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	err := h.accountingService.CreateDeposit(c.Request.Context(), req.ID, req.AccountID, req.Amount)
	h.respondTransfer(c, logger, err)
}

func (h *liquidityHandler) createWithdrawal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for createWithdrawal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	timeout := defaultWithdrawalTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	err := h.accountingService.CreateWithdrawal(c.Request.Context(), req.ID, req.AccountID, req.Amount, timeout)
	h.respondTransfer(c, logger, err)
}

func (h *liquidityHandler) postWithdrawal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	err := h.accountingService.PostWithdrawal(c.Request.Context(), c.Param("id"))
	h.respondTransfer(c, logger, err)
}

func (h *liquidityHandler) voidWithdrawal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	err := h.accountingService.VoidWithdrawal(c.Request.Context(), c.Param("id"))
	h.respondTransfer(c, logger, err)
}

// respondTransfer writes the liquidity envelope: 200 on success, the typed
// error's status and code on an expected failure, 500 otherwise.
func (h *liquidityHandler) respondTransfer(c *gin.Context, logger *slog.Logger, err error) {
	if err == nil {
		c.JSON(http.StatusOK, dto.TransferSuccess())
		return
	}

	var te domain.TransferError
	if errors.As(err, &te) {
		logger.Warn("Transfer rejected", slog.String("code", string(te)))
		c.JSON(te.HTTPStatus(), dto.ToTransferFailure(te))
		return
	}

	logger.Error("Transfer failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, dto.TransferResultResponse{
		Success: false,
		Message: "Internal server error",
	})
}
