package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/repositories"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

// Decision is the outcome of a per-email rate limit check
type Decision struct {
	Allowed     bool
	Count       int
	Limit       int
	WindowStart time.Time
}

// RateLimiter caps successful registrations per email over a rolling window.
//
// The check and the later insert are not atomic: two concurrent submissions
// for the same email can both observe a count below the limit and both
// persist. The limit is therefore best effort.
type RateLimiter struct {
	view    repositories.PrivilegedRegistrationView
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewRateLimiter creates a limiter over the privileged view. Only that view
// guarantees an empty result means no prior registrations.
func NewRateLimiter(view repositories.PrivilegedRegistrationView, limit int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		view:    view,
		limit:   limit,
		window:  window,
		metrics: metrics.NewMetrics(),
		logger:  logger,
	}
}

// CheckAndReserve decides whether email may register at now. A store
// failure returns a RATE_LIMIT_CHECK_FAILED error and never an allow.
func (l *RateLimiter) CheckAndReserve(ctx context.Context, email string, now time.Time) (Decision, error) {
	windowStart := now.Add(-l.window)
	decision := Decision{Limit: l.limit, WindowStart: windowStart}

	count, err := l.view.CountByEmailSince(ctx, email, windowStart)
	if err != nil {
		l.logger.WithError(err).WithField("email", email).Error("Rate limit check failed")
		return decision, models.NewRateLimitCheckError(fmt.Errorf("count prior registrations: %w", err))
	}

	decision.Count = count
	decision.Allowed = count < l.limit
	l.metrics.RecordRateLimitDecision(decision.Allowed)

	if !decision.Allowed {
		l.logger.WithFields(logrus.Fields{
			"email": email,
			"count": count,
			"limit": l.limit,
		}).Warn("Registration rate limit exceeded")
	}

	return decision, nil
}

// Limit returns the maximum registrations per window
func (l *RateLimiter) Limit() int {
	return l.limit
}

// Window returns the rolling window length
func (l *RateLimiter) Window() time.Duration {
	return l.window
}
