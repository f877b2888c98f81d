package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"lnurl-atm-gateway/internal/core/domain"
	"lnurl-atm-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful operator write operations. Actions are mapped
// from the matched route, so it must run on the engine, not a group.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var operatorID *uuid.UUID
		if id, ok := OperatorID(c); ok {
			operatorID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			OperatorID:   operatorID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID(c),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func resourceID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	if v, ok := c.Get(CtxResourceID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CtxResourceID lets create handlers report the id of the new resource.
const CtxResourceID = "audit_resource_id"

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	route = strings.TrimPrefix(route, "/api/v1")
	switch {
	case route == "/devices" && method == http.MethodPost:
		return domain.AuditActionDeviceCreate, "device"
	case route == "/devices/:id" && method == http.MethodPut:
		return domain.AuditActionDeviceUpdate, "device"
	case route == "/devices/:id" && method == http.MethodDelete:
		return domain.AuditActionDeviceDelete, "device"
	case route == "/devices/:id/rotate-key" && method == http.MethodPost:
		return domain.AuditActionDeviceRotateKey, "device"
	case route == "/wallets" && method == http.MethodPost:
		return domain.AuditActionWalletCreate, "wallet"
	case route == "/wallets/:id/topup" && method == http.MethodPost:
		return domain.AuditActionWalletTopup, "wallet"
	}
	return "", ""
}
