package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/perkforge/couponvault/internal/callerctx"
)

// CallerPrincipalHeader carries the identity the gateway authenticated.
const CallerPrincipalHeader = "X-Caller-Principal"

// CallerMiddleware propagates the caller principal into the request context.
// Requests without a principal still pass; ownership checks reject them later.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(CallerPrincipalHeader))
		if principal != "" {
			ctx := callerctx.WithPrincipal(c.Request.Context(), principal)
			c.Request = c.Request.WithContext(ctx)
			c.Set("caller_principal", principal)
		}
		c.Next()
	}
}
