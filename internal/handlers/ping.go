package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/askbot/internal/healthcheck"
)

// HealthReporter produces the health report served on /health.
type HealthReporter interface {
	Run(ctx context.Context) healthcheck.Report
}

// PingHandler serves the keepalive endpoints.
type PingHandler struct {
	logger *slog.Logger
	banner string
	health HealthReporter
}

func NewPingHandler(log *slog.Logger, banner string, health HealthReporter) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger: log.With(slog.String("handler", "ping")),
		banner: banner,
		health: health,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/", h.Banner)
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/health", h.Health)
}

// Banner answers the plain-text liveness string hosting platforms poll.
func (h *PingHandler) Banner(c echo.Context) error {
	return c.String(http.StatusOK, h.banner)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Health runs every checker. Failing checks answer 503.
func (h *PingHandler) Health(c echo.Context) error {
	if h.health == nil {
		return c.JSON(http.StatusOK, healthcheck.Report{Status: healthcheck.StatusUnknown, Checks: []healthcheck.CheckResult{}})
	}
	report := h.health.Run(c.Request().Context())
	code := http.StatusOK
	if report.Status == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check failing", slog.Int("checks", len(report.Checks)))
	}
	return c.JSON(code, report)
}
