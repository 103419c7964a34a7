package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskit/internal/board"
	"taskit/internal/models"
	"taskit/internal/service"
)

type taskRequest struct {
	Title             string            `json:"title" binding:"required"`
	Details           string            `json:"details"`
	State             *models.TaskState `json:"state"`
	Priority          int               `json:"priority"`
	EstimatedDuration int               `json:"estimated_duration" binding:"required,gt=0"`
}

func (r taskRequest) input() service.TaskInput {
	in := service.TaskInput{
		Title:             r.Title,
		Details:           r.Details,
		Priority:          r.Priority,
		EstimatedDuration: r.EstimatedDuration,
	}
	if r.State != nil {
		in.State = *r.State
	}
	return in
}

type taskPatchRequest struct {
	Title             *string           `json:"title"`
	Details           *string           `json:"details"`
	State             *models.TaskState `json:"state"`
	Priority          *int              `json:"priority"`
	EstimatedDuration *int              `json:"estimated_duration"`
}

type moveRequest struct {
	From board.Location `json:"from"`
	To   board.Location `json:"to"`
}

// handleCreateTask adds a task to the end of the backlog.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.svc.AddTask(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleUpdateTask updates task fields such as state or duration.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.svc.UpdateTask(c.Request.Context(), c.Param("id"), c.Param("taskID"), service.TaskPatch{
		Title:             req.Title,
		Details:           req.Details,
		State:             req.State,
		Priority:          req.Priority,
		EstimatedDuration: req.EstimatedDuration,
	})
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task from the project and its sprints.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.svc.DeleteTask(c.Request.Context(), c.Param("id"), c.Param("taskID")); err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleMoveTask moves a task between the sprint, backlog and finished sections.
func (s *Server) handleMoveTask(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	b, err := s.svc.MoveTask(c.Request.Context(), c.Param("id"), req.From, req.To)
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": b})
}
