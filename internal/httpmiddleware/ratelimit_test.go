package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenBucket_Allow(t *testing.T) {
	current := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 2, nil)
	l.now = func() time.Time { return current }

	if !l.allow("a") || !l.allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if l.allow("a") {
		t.Errorf("third request should be limited")
	}
	if !l.allow("b") {
		t.Errorf("other keys have their own bucket")
	}

	current = current.Add(30 * time.Second)
	if !l.allow("a") {
		t.Errorf("bucket should refill after 30s at 2/min")
	}
}

func TestTokenBucket_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1, SubjectOrIP(func(c *gin.Context) string { return c.GetHeader("X-Student") }))
	r := gin.New()
	r.Use(l.GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(student string) int {
		req, _ := http.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if student != "" {
			req.Header.Set("X-Student", student)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("CS001"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do("CS001"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := do("CS002"); code != http.StatusOK {
		t.Errorf("different subject from the same IP should pass, got %d", code)
	}
	if code := do(""); code != http.StatusOK {
		t.Errorf("anonymous request keyed by IP should pass once, got %d", code)
	}
}
