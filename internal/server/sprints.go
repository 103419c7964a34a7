package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type sprintRequest struct {
	MaxTime *int `json:"max_time" binding:"required,min=0"`
}

// handlePreviewSprint shows the tasks a sprint would take without committing it.
func (s *Server) handlePreviewSprint(c *gin.Context) {
	maxTime, err := strconv.Atoi(c.Query("max_time"))
	if err != nil || maxTime < 0 {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("max_time must be a non-negative number of minutes"))
		return
	}

	plan, err := s.svc.PreviewSprint(c.Request.Context(), c.Param("id"), maxTime)
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"plan": plan})
}

// handleStartSprint plans and commits the next sprint.
func (s *Server) handleStartSprint(c *gin.Context) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	plan, err := s.svc.StartSprint(c.Request.Context(), c.Param("id"), *req.MaxTime)
	if err != nil {
		s.respondService(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"plan": plan})
}
