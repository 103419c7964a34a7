package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskit/internal/models"
	"taskit/internal/service"
	"taskit/internal/storage"
)

type projectRequest struct {
	Name  string        `json:"name" binding:"required"`
	Tasks []taskRequest `json:"tasks" binding:"required,min=1,dive"`
}

// handleListProjects returns active projects, finished ones (history) or all.
func (s *Server) handleListProjects(c *gin.Context) {
	var filter storage.Filter
	switch state := c.DefaultQuery("state", "all"); state {
	case "all":
		filter = storage.AllProjects
	case "active":
		filter = storage.ActiveProjects
	case "finished":
		filter = storage.FinishedProjects
	default:
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("unknown state filter %q", state))
		return
	}

	projects, err := s.svc.ListProjects(c.Request.Context(), filter)
	if err != nil {
		s.respondService(c, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleCreateProject creates a project together with its first tasks.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	inputs := make([]service.TaskInput, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		inputs = append(inputs, t.input())
	}

	project, err := s.svc.CreateProject(c.Request.Context(), req.Name, inputs)
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

// handleGetProject returns a project with its tasks and sprints.
func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleDeleteProject removes a project and everything it owns.
func (s *Server) handleDeleteProject(c *gin.Context) {
	if err := s.svc.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleFinishProject closes a project whose tasks are all finished.
func (s *Server) handleFinishProject(c *gin.Context) {
	project, err := s.svc.FinishProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleBoard returns the sprint, backlog and finished sections.
func (s *Server) handleBoard(c *gin.Context) {
	b, err := s.svc.Board(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": b})
}

// handleDashboard reports the progress of the current sprint.
func (s *Server) handleDashboard(c *gin.Context) {
	d, err := s.svc.Dashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"dashboard": d})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stats": stats})
}
