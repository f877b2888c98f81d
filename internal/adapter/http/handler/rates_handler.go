package handler

import (
	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListRateProviders handles GET /api/v1/exchange-rates/providers.
func ListRateProviders(rates ports.RateConverter) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, gin.H{"providers": rates.Providers()})
	}
}
