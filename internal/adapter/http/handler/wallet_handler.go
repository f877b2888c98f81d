package handler

import (
	"lnurl-atm-gateway/internal/adapter/http/dto"
	"lnurl-atm-gateway/internal/adapter/http/middleware"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/apperror"
	"lnurl-atm-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles funding wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Create handles POST /api/v1/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	w, err := h.walletSvc.Create(c.Request.Context(), operatorID, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxResourceID, w.ID.String())
	response.Created(c, dto.NewWalletResponse(w))
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallets, err := h.walletSvc.List(c.Request.Context(), operatorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		items = append(items, dto.NewWalletResponse(&wallets[i]))
	}
	response.OK(c, items)
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	operatorID, walletID, ok := walletParams(c)
	if !ok {
		return
	}

	w, err := h.walletSvc.Get(c.Request.Context(), operatorID, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// Topup handles POST /api/v1/wallets/:id/topup.
func (h *WalletHandler) Topup(c *gin.Context) {
	operatorID, walletID, ok := walletParams(c)
	if !ok {
		return
	}

	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	w, err := h.walletSvc.Topup(c.Request.Context(), operatorID, walletID, req.AmountMsat)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

func walletParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrWalletNotFound())
		return uuid.Nil, uuid.Nil, false
	}
	return operatorID, id, true
}
