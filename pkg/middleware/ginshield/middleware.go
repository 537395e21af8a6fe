// Package ginshield adapts a Shield limiter to gin.
package ginshield

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// DecisionKey is the gin context key holding the request's Decision.
const DecisionKey = "shield.decision"

// Middleware decides every request before the handler chain runs.
type Middleware struct {
	Limiter    limiter.Limiter
	KeyFunc    func(*gin.Context) string
	OnError    func(*gin.Context, error)
	OnExceeded func(*gin.Context, limiter.Decision)
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithKeyFunc sets how the rate limit key is derived. The default is the
// client IP.
func WithKeyFunc(fn func(*gin.Context) string) Option {
	return func(m *Middleware) { m.KeyFunc = fn }
}

// WithErrorHandler replaces the default error response.
func WithErrorHandler(fn func(*gin.Context, error)) Option {
	return func(m *Middleware) { m.OnError = fn }
}

// WithExceededHandler replaces the default 429 response.
func WithExceededHandler(fn func(*gin.Context, limiter.Decision)) Option {
	return func(m *Middleware) { m.OnExceeded = fn }
}

// New returns a gin handler that rate limits through l.
func New(l limiter.Limiter, opts ...Option) gin.HandlerFunc {
	m := &Middleware{
		Limiter:    l,
		KeyFunc:    DefaultKeyFunc,
		OnError:    DefaultErrorHandler,
		OnExceeded: DefaultExceededHandler,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m.Handle
}

// Handle runs one admission decision for c.
func (m *Middleware) Handle(c *gin.Context) {
	d, err := m.Limiter.Allow(c.Request.Context(), m.KeyFunc(c))
	if err != nil {
		m.OnError(c, err)
		return
	}

	c.Set(DecisionKey, d)
	c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Capacity, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

	if !d.Allowed {
		c.Header("Retry-After", strconv.FormatInt(d.RetryAfter(), 10))
		m.OnExceeded(c, d)
		return
	}
	c.Next()
}

// DefaultKeyFunc keys requests by client IP.
func DefaultKeyFunc(c *gin.Context) string {
	return c.ClientIP()
}

// DefaultErrorHandler aborts with a status derived from err.
func DefaultErrorHandler(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": err.Error()})
}

// DefaultExceededHandler aborts with 429 and the decision as the body.
func DefaultExceededHandler(c *gin.Context, d limiter.Decision) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":     "rate limit exceeded",
		"key":       d.Key,
		"algorithm": d.Algorithm.String(),
		"limit":     d.Capacity,
		"remaining": d.Remaining,
	})
}

// StatusFor maps limiter errors onto HTTP statuses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, policy.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
