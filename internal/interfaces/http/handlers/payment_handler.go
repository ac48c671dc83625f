package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/application/services"
	"github.com/ruziba3vich/tax-filing-service/internal/interfaces/http/middleware"
)

// PaymentHandler handles the payment and filing steps.
type PaymentHandler struct {
	payments *services.PaymentService
	filings  *services.FilingService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(payments *services.PaymentService, filings *services.FilingService) *PaymentHandler {
	return &PaymentHandler{payments: payments, filings: filings}
}

// InitiatePayment starts a mobile-money charge. Confirmation is tracked in
// the background; poll PaymentStatus for the result.
// POST /api/v1/wizard/payment
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.payments.Initiate(c.Request.Context(), sc, req.MobileNumber)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// PaymentStatus reports the payment state.
// GET /api/v1/wizard/payment
func (h *PaymentHandler) PaymentStatus(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.payments.Status(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// FileReturn submits the return once payment is confirmed.
// POST /api/v1/wizard/filing
func (h *PaymentHandler) FileReturn(c *gin.Context) {
	var req dto.FileReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.filings.File(c.Request.Context(), sc, req.CredentialSecret)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// FilingStatus reports filing progress.
// GET /api/v1/wizard/filing
func (h *PaymentHandler) FilingStatus(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.filings.Status(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
