package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskit/internal/service"
)

// Server provides HTTP handlers for the sprint planning backend.
type Server struct {
	engine *gin.Engine
	svc    *service.Service
	logger *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine: router,
		svc:    svc,
		logger: logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":id", s.handleGetProject)
			projects.DELETE(":id", s.handleDeleteProject)
			projects.POST(":id/finish", s.handleFinishProject)
			projects.GET(":id/board", s.handleBoard)
			projects.GET(":id/dashboard", s.handleDashboard)
			projects.GET(":id/stats", s.handleStats)
			projects.GET(":id/events", s.handleEvents)

			projects.POST(":id/tasks", s.handleCreateTask)
			projects.PUT(":id/tasks/:taskID", s.handleUpdateTask)
			projects.DELETE(":id/tasks/:taskID", s.handleDeleteTask)
			projects.POST(":id/moves", s.handleMoveTask)

			projects.GET(":id/sprints/preview", s.handlePreviewSprint)
			projects.POST(":id/sprints", s.handleStartSprint)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidArgs), errors.Is(err, service.ErrInvalidMove):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoUnstartedTasks),
		errors.Is(err, service.ErrOutstandingTasks),
		errors.Is(err, service.ErrProjectFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondService answers with the status matching a service error.
func (s *Server) respondService(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
