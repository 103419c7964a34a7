package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskit/internal/events"
)

const streamBuffer = 32

// handleEvents streams committed changes of one project as server-sent events.
func (s *Server) handleEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.svc.GetProject(c.Request.Context(), id); err != nil {
		s.respondService(c, err)
		return
	}

	changes := make(chan events.Change, streamBuffer)
	sub := s.svc.Subscribe(events.ForProject(id), func(ch events.Change) {
		select {
		case changes <- ch:
		default:
			s.logger.Warn("dropping change for slow subscriber",
				slog.String("project", ch.ProjectID),
				slog.String("kind", string(ch.Kind)))
		}
	})
	defer sub.Cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case ch := <-changes:
			c.SSEvent(string(ch.Kind), ch)
			return true
		}
	})
}
