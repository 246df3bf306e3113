package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/config"
	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/service"
	"github.com/contentplane/index-reconciler/pkg/metrics"
	"github.com/contentplane/index-reconciler/usecase"
)

// Server exposes the reconciler over HTTP.
type Server struct {
	config       *config.Config
	orchestrator *usecase.AuditOrchestrator
	dispatcher   *service.RepairDispatcher
	fleet        *usecase.FleetRunner
	collector    *metrics.Collector
	logger       *zap.Logger

	engine *gin.Engine
	server *http.Server
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(
	cfg *config.Config,
	orchestrator *usecase.AuditOrchestrator,
	dispatcher *service.RepairDispatcher,
	fleet *usecase.FleetRunner,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Server {
	if cfg.Service.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:       cfg,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		fleet:        fleet,
		collector:    collector,
		logger:       logger,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      s.engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.config.Metrics.Enabled && s.collector != nil {
		s.engine.GET("/metrics", gin.WrapH(s.collector.Handler()))
	}

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/audit", s.handleAudit)
		v1.POST("/sync", s.handleSync)
		v1.POST("/fleet/audit", s.handleFleetAudit)
		v1.GET("/report/summary", s.handleSummary)
	}
}

// requestLogger logs each request and feeds the HTTP metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		elapsed := time.Since(started)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if s.collector != nil {
			s.collector.ObserveRequest(c.Request.Method, path, c.Writer.Status(), elapsed)
		}
		s.logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": s.config.Service.Name,
		"version": s.config.Service.Version,
	})
}

// handleAudit runs a scoped audit, optionally followed by a repair drive.
func (s *Server) handleAudit(c *gin.Context) {
	var req AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	run := s.orchestrator.Run
	if req.Repair {
		run = s.orchestrator.RunAndRepair
	}

	report, err := run(c.Request.Context(), req.Filter())
	if err != nil {
		// A repair failure after a finished audit still carries the report.
		if report != nil {
			resp := newAuditResponse(report)
			resp.RepairError = err.Error()
			c.JSON(repairStatus(err), resp)
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuditResponse(report))
}

// handleSync drives a repair for an explicit identifier set.
func (s *Server) handleSync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.dispatcher.Repair(c.Request.Context(), req.IDs); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "queued": len(req.IDs)})
}

// handleFleetAudit audits every tenant named in the request.
func (s *Server) handleFleetAudit(c *gin.Context) {
	var req FleetAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	tenants := make([]entity.TenantContext, 0, len(req.Tenants))
	for _, t := range req.Tenants {
		tenants = append(tenants, entity.TenantContext{TenantID: t.TenantID, Name: t.Name})
	}
	filter := (&AuditRequest{PostTypes: req.PostTypes, PostStatuses: req.PostStatuses}).Filter()

	summary, err := s.fleet.RunFleet(c.Request.Context(), tenants, filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleSummary serves the cross-store count comparison.
func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.orchestrator.Summary(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidAuditInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrSyncUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrStoreUnavailable), errors.Is(err, entity.ErrMalformedEnvelope):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		if de, ok := entity.AsDrainError(err); ok {
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: de.Message, Code: de.Code})
			return
		}
		s.logger.Error("Unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// repairStatus picks the status for a report-plus-repair-error response.
func repairStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, entity.ErrSyncUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
