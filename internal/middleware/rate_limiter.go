package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

// Throttle is a per client IP token bucket in front of the intake routes.
// It only protects the process; the per-email registration limit lives in
// the service layer.
type Throttle struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger
	done    chan struct{}
	once    sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a throttle allowing rps requests per second per client
// with the given burst
func NewThrottle(rps float64, burst int, logger *logrus.Logger) *Throttle {
	t := &Throttle{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		metrics: metrics.NewMetrics(),
		logger:  logger,
		done:    make(chan struct{}),
	}

	go t.cleanup()

	return t
}

// Middleware returns a gin middleware handler
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		limiter := t.limiterFor(clientIP, time.Now())

		if !limiter.Allow() {
			t.metrics.RecordThrottle(false)
			t.logger.WithFields(logrus.Fields{
				"client_ip":  clientIP,
				"request_id": GetRequestID(c),
				"path":       c.Request.URL.Path,
			}).Warn("Request throttled")

			c.Header("Retry-After", t.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		t.metrics.RecordThrottle(true)
		c.Next()
	}
}

func (t *Throttle) limiterFor(clientIP string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	client, exists := t.clients[clientIP]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[clientIP] = client
	}
	client.lastSeen = now

	return client.limiter
}

func (t *Throttle) retryAfter() string {
	if t.rps <= 0 {
		return "60"
	}
	seconds := int(math.Ceil(1 / float64(t.rps)))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// cleanup periodically removes idle clients
func (t *Throttle) cleanup() {
	ticker := time.NewTicker(t.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.evictIdle(now)
		}
	}
}

func (t *Throttle) evictIdle(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ip, client := range t.clients {
		if now.Sub(client.lastSeen) > t.idleTTL {
			delete(t.clients, ip)
		}
	}
}

// Stop ends the cleanup goroutine
func (t *Throttle) Stop() {
	t.once.Do(func() { close(t.done) })
}
