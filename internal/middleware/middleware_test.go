package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func request(router *gin.Engine, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestThrottle_PerClientBurst(t *testing.T) {
	throttle := NewThrottle(0.001, 2, testLogger())
	defer throttle.Stop()

	router := gin.New()
	router.Use(throttle.Middleware())
	router.POST("/register", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := request(router, http.MethodPost, "/register", "192.0.2.10:4000")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := request(router, http.MethodPost, "/register", "192.0.2.10:4000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too Many Requests")

	other := request(router, http.MethodPost, "/register", "192.0.2.11:4000")
	assert.Equal(t, http.StatusOK, other.Code, "another client has its own bucket")
}

func TestThrottle_EvictsIdleClients(t *testing.T) {
	throttle := NewThrottle(1, 1, testLogger())
	defer throttle.Stop()

	start := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	throttle.limiterFor("192.0.2.10", start)
	throttle.limiterFor("192.0.2.11", start.Add(9*time.Minute))

	throttle.evictIdle(start.Add(11 * time.Minute))

	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	assert.NotContains(t, throttle.clients, "192.0.2.10")
	assert.Contains(t, throttle.clients, "192.0.2.11")
}

func TestThrottle_StopIsIdempotent(t *testing.T) {
	throttle := NewThrottle(1, 1, testLogger())
	throttle.Stop()
	assert.NotPanics(t, throttle.Stop)
}

func TestCORS_PreflightAndHeaders(t *testing.T) {
	router := gin.New()
	router.Use(CORS(DefaultCORSConfig()))
	router.POST("/register", func(c *gin.Context) { c.Status(http.StatusCreated) })

	rec := request(router, http.MethodOptions, "/register", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")

	rec = request(router, http.MethodPost, "/register", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	router := gin.New()
	router.Use(CORS(CORSConfig{
		AllowOrigins: []string{"https://codigo.example.com"},
		AllowMethods: []string{"POST"},
		MaxAge:       600,
	}))
	router.POST("/register", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	req.Header.Set("Origin", "https://codigo.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://codigo.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodPost, "/register", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated", incoming: ""},
		{name: "propagated", incoming: "req-123", keep: true},
		{name: "too long", incoming: strings.Repeat("a", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			id := rec.Header().Get(requestIDHeader)
			assert.Equal(t, id, rec.Body.String())
			if tt.keep {
				assert.Equal(t, tt.incoming, id)
			} else {
				assert.Len(t, id, 36)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(testLogger()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := request(router, http.MethodGet, "/boom", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Internal Server Error"`)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(Security())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := request(router, http.MethodGet, "/", "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestTimeout_SetsDeadline(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(2 * time.Second))
	router.GET("/", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		if !ok || time.Until(deadline) > 2*time.Second {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := request(router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
