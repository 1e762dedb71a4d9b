package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func breakerRouter(threshold, cooldownSeconds int, healthy *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CircuitBreaker(threshold, cooldownSeconds))
	handler := func(c *gin.Context) {
		if *healthy {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		} else {
			c.Status(http.StatusInternalServerError)
		}
	}
	r.GET("/plan", handler)
	r.GET("/health", handler)
	return r
}

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	healthy := false
	r := breakerRouter(3, 60, &healthy)

	for i := 0; i < 3; i++ {
		if code := hit(r, "/plan"); code != http.StatusInternalServerError {
			t.Fatalf("failure %d should pass through, got %d", i+1, code)
		}
	}
	if code := hit(r, "/plan"); code != http.StatusServiceUnavailable {
		t.Fatalf("tripped route must reject callers, got %d", code)
	}
}

func TestCircuitBreaker_ProbeClosesAfterRecovery(t *testing.T) {
	healthy := false
	// Zero cooldown lets the probe through on the very next request.
	r := breakerRouter(2, 0, &healthy)

	hit(r, "/plan")
	hit(r, "/plan")

	healthy = true
	if code := hit(r, "/plan"); code != http.StatusOK {
		t.Fatalf("probe should reach the recovered handler, got %d", code)
	}
	if code := hit(r, "/plan"); code != http.StatusOK {
		t.Fatalf("breaker should close after a successful probe, got %d", code)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	healthy := false
	r := breakerRouter(3, 60, &healthy)

	hit(r, "/plan")
	hit(r, "/plan")
	healthy = true
	hit(r, "/plan")
	healthy = false
	hit(r, "/plan")
	hit(r, "/plan")
	healthy = true

	// Two failures, a success, two failures: never three in a row.
	if code := hit(r, "/plan"); code != http.StatusOK {
		t.Fatalf("non-consecutive failures must not trip the breaker, got %d", code)
	}
}

func TestCircuitBreaker_HealthIsExempt(t *testing.T) {
	healthy := false
	r := breakerRouter(1, 60, &healthy)

	for i := 0; i < 5; i++ {
		if code := hit(r, "/health"); code != http.StatusInternalServerError {
			t.Fatalf("health must bypass the breaker, got %d", code)
		}
	}
}

func TestCircuitBreaker_RoutesTripIndependently(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CircuitBreaker(1, 60))
	r.GET("/plan", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/telemetry", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	hit(r, "/plan")
	if code := hit(r, "/plan"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected the planner route to trip, got %d", code)
	}
	if code := hit(r, "/telemetry"); code != http.StatusOK {
		t.Fatalf("a tripped planner must not block telemetry, got %d", code)
	}
}
