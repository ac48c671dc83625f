package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	"github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// handleError converts domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	var verrs *errors.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             "validation_failed",
			"error_description": "one or more fields are invalid",
			"errors":            verrs.Errors,
		})
		return
	}

	var formatErr *taxpayer.FormatError
	if errors.As(err, &formatErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             "invalid_tax_id",
			"error_description": formatErr.Error(),
		})
		return
	}

	var upstream *errors.UpstreamError
	hasUpstream := errors.As(err, &upstream) && upstream.Message != ""

	switch {
	case errors.Is(err, errors.ErrSessionContext):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "wizard token required",
		})
	case errors.Is(err, errors.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "session_not_found",
			"error_description": "session not found",
		})
	case errors.Is(err, errors.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{
			"error":             "session_expired",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrSessionTerminal):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "session_finalized",
			"error_description": "session is finalized and can no longer change",
		})
	case errors.Is(err, errors.ErrSessionNotActive),
		errors.Is(err, errors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "invalid_transition",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrOperationInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "operation_in_progress",
			"error_description": "another request for this session is still running",
		})
	case errors.Is(err, errors.ErrStepOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             "step_out_of_range",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrNoConflict),
		errors.Is(err, errors.ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrPaymentRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":             "payment_required",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrAlreadyPaid),
		errors.Is(err, errors.ErrPaymentInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "payment_state",
			"error_description": err.Error(),
		})
	case errors.Is(err, errors.ErrPaymentFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "payment_failed",
			"error_description": upstreamMessage(upstream, hasUpstream, err),
		})
	case errors.Is(err, errors.ErrFilingRejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":             "filing_rejected",
			"error_description": upstreamMessage(upstream, hasUpstream, err),
		})
	case errors.Is(err, errors.ErrLookupUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "lookup_unavailable",
			"error_description": "taxpayer lookup is unavailable, please retry",
		})
	case errors.Is(err, errors.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "upstream_unavailable",
			"error_description": "an external service is unavailable, please retry",
		})
	case errors.Is(err, errors.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":             "store_unavailable",
			"error_description": "session store is unavailable, please retry",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "internal server error",
		})
	}
}

func upstreamMessage(upstream *errors.UpstreamError, ok bool, err error) string {
	if ok {
		return upstream.Message
	}
	return err.Error()
}

// badRequest reports a malformed request body.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": err.Error(),
	})
}
