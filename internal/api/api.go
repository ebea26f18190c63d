// Package api is the optional operations HTTP surface: health, metrics, the
// latest run report and a token-protected manual trigger.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/convo-sync/internal/auth"
	"github.com/wuwenbin0122/convo-sync/internal/metrics"
	"github.com/wuwenbin0122/convo-sync/internal/pipeline"
	"github.com/wuwenbin0122/convo-sync/internal/runner"
)

// RunTrigger is the part of the runner the API drives.
type RunTrigger interface {
	RunOnce(ctx context.Context) (*pipeline.Report, error)
	Latest() *pipeline.Report
}

type Handler struct {
	authService *auth.Service
	runs        RunTrigger
	logger      *zap.Logger
}

// NewHandler wires the routes. authService may be nil, which disables the
// manual trigger.
func NewHandler(authService *auth.Service, runs RunTrigger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{authService: authService, runs: runs, logger: logger.Named("api")}
}

// NewRouter builds the complete operations router.
func NewRouter(authService *auth.Service, runs RunTrigger, logger *zap.Logger) *gin.Engine {
	handler := NewHandler(authService, runs, logger)

	router := gin.New()
	router.Use(handler.requestLogger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	runGroup := router.Group("/api/runs")
	runGroup.GET("/latest", h.handleLatest)
	runGroup.POST("", h.requireToken(), h.handleTrigger)
}

var (
	errNoRuns          = errors.New("no run has finished yet")
	errTriggerDisabled = errors.New("manual runs are disabled: OPS_JWT_SECRET is not set")
	errMissingToken    = errors.New("missing bearer token")
)

func (h *Handler) handleLatest(c *gin.Context) {
	rep := h.runs.Latest()
	if rep == nil {
		writeError(c, http.StatusNotFound, "no runs yet", errNoRuns)
		return
	}

	c.JSON(http.StatusOK, newReportResponse(rep))
}

func (h *Handler) handleTrigger(c *gin.Context) {
	// The run outlives a client that hangs up; process shutdown still
	// cancels it through the runner.
	ctx := context.WithoutCancel(c.Request.Context())

	rep, err := h.runs.RunOnce(ctx)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrRunInProgress):
			writeError(c, http.StatusConflict, "a run is already in progress", err)
		case errors.Is(err, runner.ErrStopped):
			writeError(c, http.StatusServiceUnavailable, "shutting down", err)
		default:
			h.logger.Error("manual run failed", zap.Error(err))
			writeError(c, http.StatusInternalServerError, "run failed", err)
		}
		return
	}

	h.logger.Info("manual run finished",
		zap.String("run_id", rep.RunID),
		zap.String("subject", c.GetString("subject")),
	)
	c.JSON(http.StatusOK, newReportResponse(rep))
}

func (h *Handler) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.authService == nil {
			writeError(c, http.StatusServiceUnavailable, "manual runs disabled", errTriggerDisabled)
			c.Abort()
			return
		}

		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			c.Abort()
			return
		}

		claims, err := h.authService.VerifyToken(token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "unauthorized", err)
			c.Abort()
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func newReportResponse(rep *pipeline.Report) gin.H {
	snap := rep.Snapshot()
	return gin.H{
		"runId":         snap.RunID,
		"status":        snap.Status(),
		"startedAt":     snap.StartedAt.Format(time.RFC3339),
		"finishedAt":    snap.FinishedAt.Format(time.RFC3339),
		"durationMs":    snap.Duration().Milliseconds(),
		"conversations": snap.Conversations,
		"messages":      snap.Messages,
		"senders":       snap.Senders,
		"fetchFailures": snap.FetchFailures,
		"failures":      snap.Failures,
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
