package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"drone-dispatch/internal/pkg/apperrors"
)

type idempotencyStore interface {
	Check(ctx context.Context, userID, key string) ([]byte, bool, error)
	Set(ctx context.Context, userID, key string, response []byte) error
}

// storedResponse is the cached envelope: a replayed order placement must
// return the original status, not a blanket 200.
type storedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// A customer double-submitting an order or a retried assignment call gets
// the first outcome back instead of a second mutation. Keys are scoped per
// authenticated user, so two customers may reuse the same key.
func Idempotency(store idempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		userID := c.GetString("sub")
		ctx := c.Request.Context()

		cached, found, err := store.Check(ctx, userID, key)
		if err != nil {
			// Fail open: a Redis outage must not block order placement.
			slog.ErrorContext(ctx, "idempotency check failed",
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}
		if found {
			var stored storedResponse
			if json.Unmarshal(cached, &stored) != nil || stored.Status == 0 {
				stored = storedResponse{Status: http.StatusOK, Body: cached}
			}
			c.Header("X-Idempotent-Replay", "true")
			c.Data(stored.Status, "application/json", stored.Body)
			c.Abort()
			return
		}

		rec := &responseRecorder{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		// Only settled outcomes are worth replaying; a 5xx or rate-limit
		// response should be retried for real.
		status := c.Writer.Status()
		if status >= 200 && status < 300 || status == http.StatusConflict {
			envelope, err := json.Marshal(storedResponse{Status: status, Body: rec.body.Bytes()})
			if err == nil {
				err = store.Set(ctx, userID, key, envelope)
			}
			if err != nil {
				slog.ErrorContext(ctx, "idempotency store failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RequireIdempotencyKey rejects mutations without an Idempotency-Key header.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.GetHeader("Idempotency-Key") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "VALIDATION",
					Message: "Idempotency-Key header is required",
				},
			})
			return
		}

		c.Next()
	}
}
