package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/dto"
	"github.com/ilpaylabs/ilpay_backend/internal/middleware"
)

// paymentHandler handles HTTP requests for outgoing payments.
type paymentHandler struct {
	paymentService  portssvc.PaymentSvcFacade
	progressService portssvc.ProgressSvcFacade
}

func newPaymentHandler(paymentService portssvc.PaymentSvcFacade, progressService portssvc.ProgressSvcFacade) *paymentHandler {
	return &paymentHandler{
		paymentService:  paymentService,
		progressService: progressService,
	}
}

// registerPaymentRoutes registers the outgoing payment routes.
func registerPaymentRoutes(rg *gin.RouterGroup, paymentService portssvc.PaymentSvcFacade, progressService portssvc.ProgressSvcFacade) {
	h := newPaymentHandler(paymentService, progressService)

	payments := rg.Group("/payments")
	{
		payments.POST("", h.createPayment)
		payments.GET("/:id", h.getPayment)
		payments.GET("/:id/progress", h.getProgress)
		payments.POST("/:id/activate", h.activatePayment)
		payments.POST("/:id/cancel", h.cancelPayment)
		payments.POST("/:id/requote", h.requotePayment)
	}
}

func (h *paymentHandler) createPayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for createPayment", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	payment, err := h.paymentService.Create(c.Request.Context(), portssvc.CreatePaymentOptions{
		SuperAccountID: req.SuperAccountID,
		PaymentPointer: req.PaymentPointer,
		InvoiceURL:     req.InvoiceURL,
		AmountToSend:   req.AmountToSend,
		AutoApprove:    req.AutoApprove,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			logger.Warn("Rejected payment creation", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, domain.TransferErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Funding account not found"})
			return
		}
		logger.Error("Failed to create payment", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	logger.Info("Payment created", slog.String("payment_id", payment.PaymentID))
	c.JSON(http.StatusCreated, dto.ToPaymentResponse(payment))
}

func (h *paymentHandler) getPayment(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	paymentID := c.Param("id")

	payment, err := h.paymentService.Get(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		logger.Error("Failed to get payment", slog.String("payment_id", paymentID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get payment"})
		return
	}

	c.JSON(http.StatusOK, dto.ToPaymentResponse(payment))
}

func (h *paymentHandler) getProgress(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	paymentID := c.Param("id")

	progress, err := h.progressService.Get(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Progress not found"})
			return
		}
		logger.Error("Failed to get progress", slog.String("payment_id", paymentID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get progress"})
		return
	}

	c.JSON(http.StatusOK, dto.ToProgressResponse(progress))
}

func (h *paymentHandler) activatePayment(c *gin.Context) {
	h.operatorAction(c, "activate", h.paymentService.Activate)
}

func (h *paymentHandler) cancelPayment(c *gin.Context) {
	h.operatorAction(c, "cancel", h.paymentService.Cancel)
}

func (h *paymentHandler) requotePayment(c *gin.Context) {
	h.operatorAction(c, "requote", h.paymentService.Requote)
}

// operatorAction runs one of the explicit payment state actions, translating
// missing rows to 404 and state preconditions to 409.
func (h *paymentHandler) operatorAction(c *gin.Context, name string, action func(ctx context.Context, paymentID string) error) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	paymentID := c.Param("id")

	if err := action(c.Request.Context(), paymentID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		if errors.Is(err, apperrors.ErrConflict) {
			logger.Warn("Rejected payment action",
				slog.String("action", name),
				slog.String("payment_id", paymentID),
				slog.String("error", err.Error()))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed payment action",
			slog.String("action", name),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + name + " payment"})
		return
	}

	logger.Info("Payment action applied",
		slog.String("action", name),
		slog.String("payment_id", paymentID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
