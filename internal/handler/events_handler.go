package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const keepAliveInterval = 25 * time.Second

type EventsHandler struct {
	logger *zap.Logger
}

func NewEventsHandler(logger *zap.Logger) *EventsHandler {
	return &EventsHandler{logger: logger}
}

// Advisories handles GET /advisories: returns and clears the inbox.
func (h *EventsHandler) Advisories(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"advisories": s.Inbox.Drain()})
}

// Stream handles GET /events as server-sent events. "change" events carry
// the collection that was rebuilt; "advisory" events carry advisories as
// they are raised. The stream ends when the client goes away or the session
// is closed.
func (h *EventsHandler) Stream(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	changes, stopChanges := s.Mirror.Changes()
	defer stopChanges()
	advisories, stopAdvisories := s.Inbox.Listen()
	defer stopAdvisories()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	h.logger.Debug("Event stream opened", zap.String("session_id", s.ID))
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ch, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("change", ch)
			// Deactivated: the session was closed.
			if s.Mirror.UserID() == "" {
				return false
			}
		case a, ok := <-advisories:
			if !ok {
				return false
			}
			c.SSEvent("advisory", a)
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
		}
		return true
	})
	h.logger.Debug("Event stream closed", zap.String("session_id", s.ID))
}
