package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	pools   map[string]Pinger
	logger  *logrus.Logger
	version string
}

// NewHealthHandler checks every named pool on each request
func NewHealthHandler(pools map[string]Pinger, logger *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		pools:   pools,
		logger:  logger,
		version: version,
	}
}

// Health performs a basic health check
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.pools))
	healthy := true
	for name, pool := range h.pools {
		if err := pool.PingContext(ctx); err != nil {
			h.logger.WithError(err).WithField("pool", name).Error("Database health check failed")
			checks[name] = "unavailable"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"database":  checks,
	})
}
