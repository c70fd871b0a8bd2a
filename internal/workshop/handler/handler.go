// Package handler exposes the workshop board, reception, and safety
// checklist over HTTP.
package handler

import (
	"net/http"

	"workshop_portal_backend/internal/workshop/board"
	"workshop_portal_backend/internal/workshop/checklist"
	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/matcher"
	"workshop_portal_backend/internal/workshop/reception"
	"workshop_portal_backend/internal/workshop/transport"
	"workshop_portal_backend/platform/httpkit"
	"workshop_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the workshop board.
type Handler struct {
	board     *board.Service
	matcher   *matcher.Matcher
	reception *reception.Service
	checklist *checklist.Service
	val       *validator.Validator
}

func New(b *board.Service, m *matcher.Matcher, r *reception.Service, ch *checklist.Service, val *validator.Validator) *Handler {
	return &Handler{board: b, matcher: m, reception: r, checklist: ch, val: val}
}

// RegisterRoutes registers the workshop routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/board", h.Board)
	rg.GET("/board/summary", h.Summary)

	rg.GET("/orders/:key", h.GetOrder)
	rg.POST("/orders/:key/advance", h.Advance)
	rg.POST("/orders/:key/revert", h.Revert)
	rg.POST("/orders/:key/ready", h.MarkReady)
	rg.POST("/orders/:key/finalize", h.Finalize)
	rg.POST("/orders/:key/change-orders", h.AddChangeOrder)

	rg.GET("/orders/:key/materials", h.Materials)

	rg.GET("/orders/:key/reception", h.GetReception)
	rg.PUT("/orders/:key/reception/draft", h.SaveReceptionDraft)
	rg.PATCH("/orders/:key/reception/lines", h.ReceiveLine)
	rg.POST("/orders/:key/reception", h.SubmitReception)

	rg.GET("/orders/:key/safety", h.GetSafety)
	rg.PATCH("/orders/:key/safety/items/:item", h.SetChecked)
	rg.POST("/orders/:key/safety/missing", h.FlagMissing)
	rg.DELETE("/orders/:key/safety/missing", h.ClearMissing)
	rg.POST("/orders/:key/safety", h.SubmitSafety)
}

// Board handles GET /api/v1/workshop/board
func (h *Handler) Board(c *gin.Context) {
	var query transport.BoardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.board.Board(c.Request.Context(), query.Filters())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Summary handles GET /api/v1/workshop/board/summary
func (h *Handler) Summary(c *gin.Context) {
	result, err := h.board.Summary(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetOrder handles GET /api/v1/workshop/orders/:key
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, order)
}

// Advance handles POST /api/v1/workshop/orders/:key/advance
func (h *Handler) Advance(c *gin.Context) {
	order, err := h.board.Advance(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, order)
}

// Revert handles POST /api/v1/workshop/orders/:key/revert
func (h *Handler) Revert(c *gin.Context) {
	order, err := h.board.Revert(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, order)
}

// MarkReady handles POST /api/v1/workshop/orders/:key/ready
func (h *Handler) MarkReady(c *gin.Context) {
	order, err := h.board.MarkReady(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, order)
}

// Finalize handles POST /api/v1/workshop/orders/:key/finalize
func (h *Handler) Finalize(c *gin.Context) {
	order, err := h.board.Finalize(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, order)
}

// AddChangeOrder handles POST /api/v1/workshop/orders/:key/change-orders
func (h *Handler) AddChangeOrder(c *gin.Context) {
	var req transport.ChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	change, err := h.board.AddChangeOrder(c.Request.Context(), c.Param("key"), req.Description)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, change)
}

// Materials handles GET /api/v1/workshop/orders/:key/materials
func (h *Handler) Materials(c *gin.Context) {
	var query transport.MaterialsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	result, err := h.matcher.Match(c.Request.Context(), order, query.Refresh)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetReception handles GET /api/v1/workshop/orders/:key/reception
func (h *Handler) GetReception(c *gin.Context) {
	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	result, err := h.reception.Load(c.Request.Context(), order)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SaveReceptionDraft handles PUT /api/v1/workshop/orders/:key/reception/draft
func (h *Handler) SaveReceptionDraft(c *gin.Context) {
	var req transport.ReceptionDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ledger, err := h.reception.SaveDraft(c.Request.Context(), ledgerFromRequest(c.Param("key"), req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ledger)
}

// ReceiveLine handles PATCH /api/v1/workshop/orders/:key/reception/lines
func (h *Handler) ReceiveLine(c *gin.Context) {
	var req transport.ReceiveLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	ledger, err := h.reception.ReceiveLine(c.Request.Context(), order, req.LineKey, req.Received)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ledger)
}

// SubmitReception handles POST /api/v1/workshop/orders/:key/reception
func (h *Handler) SubmitReception(c *gin.Context) {
	var req transport.ReceptionDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.reception.Submit(c.Request.Context(), ledgerFromRequest(c.Param("key"), req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetSafety handles GET /api/v1/workshop/orders/:key/safety
func (h *Handler) GetSafety(c *gin.Context) {
	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	record, err := h.checklist.Load(c.Request.Context(), order)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, record)
}

// SetChecked handles PATCH /api/v1/workshop/orders/:key/safety/items/:item
func (h *Handler) SetChecked(c *gin.Context) {
	var req transport.SetCheckedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	record, err := h.checklist.SetChecked(c.Request.Context(), order, c.Param("item"), *req.Checked)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, record)
}

// FlagMissing handles POST /api/v1/workshop/orders/:key/safety/missing
func (h *Handler) FlagMissing(c *gin.Context) {
	var req transport.FlagMissingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	record, err := h.checklist.FlagMissing(c.Request.Context(), order, req.Label)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, record)
}

// ClearMissing handles DELETE /api/v1/workshop/orders/:key/safety/missing?label=...
func (h *Handler) ClearMissing(c *gin.Context) {
	label := c.Query("label")
	if label == "" {
		httpkit.Error(c, http.StatusBadRequest, "query 'label' is required", nil)
		return
	}

	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	record, err := h.checklist.ClearMissing(c.Request.Context(), order, label)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, record)
}

// SubmitSafety handles POST /api/v1/workshop/orders/:key/safety
func (h *Handler) SubmitSafety(c *gin.Context) {
	order, err := h.board.Order(c.Request.Context(), c.Param("key"))
	if httpkit.HandleError(c, err) {
		return
	}
	result, err := h.checklist.Submit(c.Request.Context(), order)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func ledgerFromRequest(orderKey string, req transport.ReceptionDraftRequest) reception.Ledger {
	ledger := reception.Ledger{
		OrderKey: orderKey,
		Notes:    req.Notes,
		Issues:   req.Issues,
	}
	for _, line := range req.Materials {
		ledger.Materials = append(ledger.Materials, domain.MaterialLine{
			Code:             line.Code,
			Description:      line.Description,
			Unit:             line.Unit,
			QuantityRequired: line.QuantityRequired,
			QuantityReceived: line.QuantityReceived,
		})
	}
	return ledger
}
