package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type memIdempotencyStore struct {
	m map[string][]byte
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{m: make(map[string][]byte)}
}

func (s *memIdempotencyStore) Check(_ context.Context, userID, key string) ([]byte, bool, error) {
	v, ok := s.m[userID+":"+key]
	return v, ok, nil
}

func (s *memIdempotencyStore) Set(_ context.Context, userID, key string, response []byte) error {
	s.m[userID+":"+key] = response
	return nil
}

func idempotencyRouter(store idempotencyStore, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("sub", "customer-1") })
	r.Use(Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusCreated, gin.H{"order": *calls})
	})
	return r
}

func postOrder(r *gin.Engine, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysFirstOutcomeWithStatus(t *testing.T) {
	calls := 0
	r := idempotencyRouter(newMemIdempotencyStore(), &calls)

	first := postOrder(r, "place-42")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	second := postOrder(r, "place-42")
	if calls != 1 {
		t.Fatalf("handler ran %d times, the retry must not mutate again", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay must keep the original status, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("replay must be marked")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %s vs %s", second.Body.String(), first.Body.String())
	}
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	gin.SetMode(gin.TestMode)
	r := gin.New()
	user := "customer-a"
	r.Use(func(c *gin.Context) { c.Set("sub", user) })
	r.Use(Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"order": calls})
	})

	postOrder(r, "shared-key")
	user = "customer-b"
	postOrder(r, "shared-key")

	if calls != 2 {
		t.Fatalf("two customers with the same key are distinct requests, handler ran %d times", calls)
	}
}

func TestIdempotency_MissingKeyRunsEveryTime(t *testing.T) {
	calls := 0
	r := idempotencyRouter(newMemIdempotencyStore(), &calls)

	postOrder(r, "")
	postOrder(r, "")
	if calls != 2 {
		t.Fatalf("without a key every request executes, handler ran %d times", calls)
	}
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	store := newMemIdempotencyStore()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	calls := 0
	r.Use(func(c *gin.Context) { c.Set("sub", "customer-1") })
	r.Use(Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": calls})
	})

	if w := postOrder(r, "retry-1"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	// The failure was not stored, so the retry reaches the handler.
	if w := postOrder(r, "retry-1"); w.Code != http.StatusCreated {
		t.Fatalf("retry after a 5xx must run for real, got %d", w.Code)
	}
}

func TestRequireIdempotencyKey_RejectsBareMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireIdempotencyKey())
	r.POST("/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/orders", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := postOrder(r, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("mutation without a key must be rejected, got %d", w.Code)
	}
	if w := postOrder(r, "k1"); w.Code != http.StatusCreated {
		t.Fatalf("mutation with a key must pass, got %d", w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reads never need a key, got %d", w.Code)
	}
}
