package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimdaga/givethnotes/internal/config"
	"github.com/jimdaga/givethnotes/internal/provisioning"
)

const requestIDHeader = "X-Request-ID"

// inlineProvisionTimeout bounds the provisioning run a request may trigger.
const inlineProvisionTimeout = 30 * time.Second

// Provisioner is the part of the provisioning engine requests can trigger.
type Provisioner interface {
	Due(ctx context.Context) (bool, error)
	RunIfNeeded(ctx context.Context) (provisioning.Result, error)
}

// Enqueuer hands a provisioning run to the worker.
type Enqueuer interface {
	EnqueueProvision(ctx context.Context) error
}

// RequestLogger logs one line per request and tags it with a request id.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			logger.Error("Request", attrs...)
		case status >= 400:
			logger.Warn("Request", attrs...)
		default:
			logger.Info("Request", attrs...)
		}
	}
}

// ProvisionTrigger makes sure today's entries exist before a request is
// handled. In inline mode the request runs the job itself; in enqueue mode
// it only queues a task when the job has not run today. Failures are logged
// and never fail the request.
func ProvisionTrigger(mode string, p Provisioner, q Enqueuer, logger *slog.Logger) gin.HandlerFunc {
	switch {
	case mode == config.ProvisionInline && p != nil:
		return func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), inlineProvisionTimeout)
			defer cancel()

			if _, err := p.RunIfNeeded(ctx); err != nil {
				logger.Error("Daily job failed", "error", err)
			}
			c.Next()
		}
	case mode == config.ProvisionEnqueue && p != nil && q != nil:
		return func(c *gin.Context) {
			ctx := c.Request.Context()
			due, err := p.Due(ctx)
			if err != nil {
				logger.Warn("Could not read provisioning marker", "error", err)
			}
			if due {
				if err := q.EnqueueProvision(ctx); err != nil {
					logger.Error("Failed to enqueue provisioning", "error", err)
				}
			}
			c.Next()
		}
	default:
		return func(c *gin.Context) { c.Next() }
	}
}
