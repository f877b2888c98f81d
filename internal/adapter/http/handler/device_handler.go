package handler

import (
	"strings"

	"lnurl-atm-gateway/internal/adapter/http/dto"
	"lnurl-atm-gateway/internal/adapter/http/middleware"
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/apperror"
	"lnurl-atm-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceHandler handles operator device management.
type DeviceHandler struct {
	deviceSvc ports.DeviceService
	publicURL string
}

// NewDeviceHandler creates a new DeviceHandler. publicURL is written into
// exported device configs; when empty it is derived from the request.
func NewDeviceHandler(deviceSvc ports.DeviceService, publicURL string) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc, publicURL: strings.TrimRight(publicURL, "/")}
}

// Create handles POST /api/v1/devices.
func (h *DeviceHandler) Create(c *gin.Context) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	creds, err := h.deviceSvc.Create(c.Request.Context(), ports.CreateDeviceRequest{
		OperatorID:           operatorID,
		WalletID:             uuid.MustParse(req.WalletID),
		Name:                 req.Name,
		FiatCurrency:         req.FiatCurrency,
		ExchangeRateProvider: req.ExchangeRateProvider,
		Fee:                  req.Fee,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, creds.Device.ID.String())
	response.Created(c, dto.DeviceCredentialsResponse{
		DeviceResponse: dto.NewDeviceResponse(creds.Device),
		APIKeySecret:   creds.APIKeySecret,
	})
}

// List handles GET /api/v1/devices?wallet_id= or ?all_wallets=true.
func (h *DeviceHandler) List(c *gin.Context) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var walletID *uuid.UUID
	if raw := c.Query("wallet_id"); raw != "" && c.Query("all_wallets") != "true" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("wallet_id must be a UUID"))
			return
		}
		walletID = &id
	}

	devices, err := h.deviceSvc.List(c.Request.Context(), operatorID, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		items = append(items, dto.NewDeviceResponse(&devices[i]))
	}
	response.OK(c, items)
}

// Get handles GET /api/v1/devices/:id.
func (h *DeviceHandler) Get(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	device, err := h.deviceSvc.Get(c.Request.Context(), operatorID, deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewDeviceResponse(device))
}

// GetByAPIKey handles GET /api/v1/devices/by-key/:api_key_id.
func (h *DeviceHandler) GetByAPIKey(c *gin.Context) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	device, err := h.deviceSvc.GetByAPIKeyID(c.Request.Context(), operatorID, c.Param("api_key_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewDeviceResponse(device))
}

// Update handles PUT /api/v1/devices/:id.
func (h *DeviceHandler) Update(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	var req dto.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	device, err := h.deviceSvc.Update(c.Request.Context(), operatorID, deviceID, req.Patch())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewDeviceResponse(device))
}

// RotateKey handles POST /api/v1/devices/:id/rotate-key.
func (h *DeviceHandler) RotateKey(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	creds, err := h.deviceSvc.RotateKey(c.Request.Context(), operatorID, deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.DeviceCredentialsResponse{
		DeviceResponse: dto.NewDeviceResponse(creds.Device),
		APIKeySecret:   creds.APIKeySecret,
	})
}

// Delete handles DELETE /api/v1/devices/:id.
func (h *DeviceHandler) Delete(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	if err := h.deviceSvc.Delete(c.Request.Context(), operatorID, deviceID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportConfig handles GET /api/v1/devices/:id/config.
func (h *DeviceHandler) ExportConfig(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	cfg, err := h.deviceSvc.ExportConfig(c.Request.Context(), operatorID, deviceID, h.callbackURL(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="config.txt"`)
	response.Text(c, cfg)
}

// ListWithdrawals handles GET /api/v1/devices/:id/withdrawals.
func (h *DeviceHandler) ListWithdrawals(c *gin.Context) {
	operatorID, deviceID, ok := deviceParams(c)
	if !ok {
		return
	}

	records, err := h.deviceSvc.ListWithdrawals(c.Request.Context(), operatorID, deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WithdrawRecordResponse, 0, len(records))
	for i := range records {
		items = append(items, dto.NewWithdrawRecordResponse(&records[i]))
	}
	response.OK(c, items)
}

// callbackURL points devices at the compact withdraw path.
func (h *DeviceHandler) callbackURL(c *gin.Context) string {
	return baseURL(c, h.publicURL) + "/u"
}

// deviceParams resolves the operator and the :id path parameter, writing
// the error response itself when either is missing.
func deviceParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	operatorID, ok := middleware.OperatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrDeviceNotFound())
		return uuid.Nil, uuid.Nil, false
	}
	return operatorID, id, true
}
