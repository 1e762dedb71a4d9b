package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-dispatch/internal/pkg/apperrors"
)

// AllowedHosts rejects requests whose Host header is not in the allow list.
// An empty list or a "*" entry admits everything.
func AllowedHosts(hosts []string) gin.HandlerFunc {
	set := make(map[string]bool, len(hosts))
	any := len(hosts) == 0
	for _, h := range hosts {
		if h == "*" {
			any = true
		}
		set[h] = true
	}

	return func(c *gin.Context) {
		if any {
			c.Next()
			return
		}

		host := c.Request.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if !set[host] {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "VALIDATION",
					Message: "invalid host header",
				},
			})
			return
		}

		c.Next()
	}
}
