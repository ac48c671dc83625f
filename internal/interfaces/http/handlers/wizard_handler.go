package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/application/services"
	"github.com/ruziba3vich/tax-filing-service/internal/interfaces/http/middleware"
)

// WizardHandler handles the wizard session lifecycle endpoints.
type WizardHandler struct {
	sessions *services.SessionService
	wizard   *middleware.WizardMiddleware
}

// NewWizardHandler creates a new wizard handler.
func NewWizardHandler(sessions *services.SessionService, wizard *middleware.WizardMiddleware) *WizardHandler {
	return &WizardHandler{sessions: sessions, wizard: wizard}
}

// Begin opens the prospect session for the current mount.
// POST /api/v1/wizard/begin
func (h *WizardHandler) Begin(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.BeginProspect(c.Request.Context(), sc)
	h.respond(c, resp, err)
}

// Restore rebuilds the wizard after a reload.
// GET /api/v1/wizard/restore
func (h *WizardHandler) Restore(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.Restore(c.Request.Context(), sc)
	h.respond(c, resp, err)
}

// SubmitTaxID validates the tax id and activates the session.
// POST /api/v1/wizard/tax-id
func (h *WizardHandler) SubmitTaxID(c *gin.Context) {
	var req dto.SubmitTaxIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.SubmitTaxID(c.Request.Context(), sc, req.TaxID)
	h.respond(c, resp, err)
}

// CheckConflict reports whether a tax id would conflict without changing
// anything.
// GET /api/v1/wizard/conflict?tax_id=
func (h *WizardHandler) CheckConflict(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.CheckConflict(c.Request.Context(), sc, c.Query("tax_id"))
	h.respond(c, resp, err)
}

// ResolveConflict applies the proceed or cancel decision.
// POST /api/v1/wizard/conflict
func (h *WizardHandler) ResolveConflict(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.ResolveConflict(c.Request.Context(), sc, &req)
	h.respond(c, resp, err)
}

// Advance merges form data and moves to the next step.
// POST /api/v1/wizard/advance
func (h *WizardHandler) Advance(c *gin.Context) {
	var req dto.FormPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.AdvanceStep(c.Request.Context(), sc, req.FormData)
	h.respond(c, resp, err)
}

// SaveProgress merges form data without moving the step.
// PUT /api/v1/wizard/progress
func (h *WizardHandler) SaveProgress(c *gin.Context) {
	var req dto.FormPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.SaveProgress(c.Request.Context(), sc, req.FormData)
	h.respond(c, resp, err)
}

// Activity records a qualifying user interaction.
// POST /api/v1/wizard/activity
func (h *WizardHandler) Activity(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.Touch(c.Request.Context(), sc)
	h.respond(c, resp, err)
}

// Exit abandons the session.
// POST /api/v1/wizard/exit
func (h *WizardHandler) Exit(c *gin.Context) {
	sc, err := middleware.GetSessionContext(c)
	if err != nil {
		handleError(c, err)
		return
	}

	resp, err := h.sessions.Exit(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}

	h.wizard.Clear(c)
	c.JSON(http.StatusOK, resp)
}

// respond re-issues the context token for the session the caller holds from
// now on and writes the response.
func (h *WizardHandler) respond(c *gin.Context, resp *dto.WizardResponse, err error) {
	if err != nil {
		handleError(c, err)
		return
	}

	if err := h.wizard.Issue(c, resp.Context); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
