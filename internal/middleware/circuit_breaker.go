package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// routeBreaker trips per route template, so a failing planner endpoint does
// not take telemetry ingest down with it.
type routeBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
}

func newRouteBreaker(threshold int, cooldown time.Duration) *routeBreaker {
	return &routeBreaker{
		state:     breakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (b *routeBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			// One probe request; everyone else keeps waiting.
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return false
	}
	return true
}

func (b *routeBreaker) observe(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if status < http.StatusInternalServerError {
		b.failures = 0
		b.state = breakerClosed
		return
	}
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

// CircuitBreaker opens a route after `threshold` consecutive 5xx responses
// and rejects callers for the cooldown. Health checks and the tracking
// websocket are exempt: ops must be able to see a sick instance, and a
// long-lived socket never reports a status worth counting.
func CircuitBreaker(threshold int, cooldownSeconds int) gin.HandlerFunc {
	breakers := &sync.Map{}
	cooldown := time.Duration(cooldownSeconds) * time.Second

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/health" || strings.HasPrefix(path, "/ws/") {
			c.Next()
			return
		}

		val, _ := breakers.LoadOrStore(path, newRouteBreaker(threshold, cooldown))
		b := val.(*routeBreaker)

		if !b.allow() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"code": "CIRCUIT_OPEN", "message": "service temporarily unavailable"},
			})
			return
		}

		c.Next()
		b.observe(c.Writer.Status())
	}
}
