package handler

import (
	"strings"

	"lnurl-atm-gateway/internal/core/ports"
	"lnurl-atm-gateway/pkg/response"

	"github.com/fiatjaf/go-lnurl"
	"github.com/gin-gonic/gin"
)

// WithdrawHandler serves the LNURL-withdraw callback hit by devices and
// wallet apps. Every answer is HTTP 200.
type WithdrawHandler struct {
	withdrawSvc ports.WithdrawService
	publicURL   string
}

// NewWithdrawHandler creates a WithdrawHandler. An empty publicURL derives
// the callback base from each request.
func NewWithdrawHandler(withdrawSvc ports.WithdrawService, publicURL string) *WithdrawHandler {
	return &WithdrawHandler{
		withdrawSvc: withdrawSvc,
		publicURL:   strings.TrimRight(publicURL, "/"),
	}
}

// Withdraw handles GET /withdraw and GET /u.
func (h *WithdrawHandler) Withdraw(c *gin.Context) {
	raw := c.Request.URL.Query()
	query := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	offer, err := h.withdrawSvc.Handle(c.Request.Context(), ports.WithdrawRequest{
		Query:       query,
		CallbackURL: h.callbackURL(c),
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.LNURLError(c, err)
		return
	}
	if offer == nil {
		response.LNURLOK(c)
		return
	}

	response.LNURLWithdraw(c, lnurl.LNURLWithdrawResponse{
		Tag:                offer.Tag,
		K1:                 offer.K1,
		Callback:           offer.Callback,
		MinWithdrawable:    offer.MinWithdrawable,
		MaxWithdrawable:    offer.MaxWithdrawable,
		DefaultDescription: offer.DefaultDescription,
	})
}

// callbackURL is the base URL plus the request path, without the query.
func (h *WithdrawHandler) callbackURL(c *gin.Context) string {
	return baseURL(c, h.publicURL) + c.Request.URL.Path
}

// baseURL returns publicURL, or the scheme and host the request came in on.
func baseURL(c *gin.Context, publicURL string) string {
	if publicURL != "" {
		return publicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	} else if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
