package response

import (
	"errors"
	"net/http"

	"lnurl-atm-gateway/pkg/apperror"

	"github.com/fiatjaf/go-lnurl"
	"github.com/gin-gonic/gin"
)

// LNURL responses are always HTTP 200; failures travel in the body.

// LNURLOK sends {"status":"OK"}.
func LNURLOK(c *gin.Context) {
	c.JSON(http.StatusOK, lnurl.OkResponse())
}

// LNURLWithdraw sends the withdrawRequest parameters.
func LNURLWithdraw(c *gin.Context, res lnurl.LNURLWithdrawResponse) {
	c.JSON(http.StatusOK, res)
}

// LNURLError sends {"status":"ERROR","reason":...}. Only AppError messages
// are exposed; anything else becomes a generic reason.
func LNURLError(c *gin.Context, err error) {
	reason := "Internal server error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		reason = appErr.Message
	}
	c.JSON(http.StatusOK, lnurl.ErrorResponse(reason))
}
