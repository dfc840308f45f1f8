package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contentplanner/internal/advisory"
	"contentplanner/internal/model"
	"contentplanner/internal/session"
)

// Context keys set by the auth middleware.
const (
	SessionKey = "session"
	UserIDKey  = "user_id"
)

// currentSession reads the session put on the context by the auth
// middleware and answers 401 when it is missing.
func currentSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	s, ok := v.(*session.Session)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid session"})
		return nil, false
	}
	return s, true
}

// mutationResult is the body of every write endpoint. The write itself is
// reported through the advisory; the lists catch up when the mirror does.
type mutationResult struct {
	ID       string             `json:"id,omitempty"`
	Accepted bool               `json:"accepted"`
	Advisory *advisory.Advisory `json:"advisory,omitempty"`
}

// captureAdvisory runs fn with a request-scoped context and returns the first
// advisory raised through it. Advisories from other requests or from the
// subscriptions never show up here.
func captureAdvisory(ctx context.Context, fn func(ctx context.Context)) *advisory.Advisory {
	ctx, rec := advisory.WithRecorder(ctx)
	fn(ctx)
	return rec.First()
}

func validationBody(err error) gin.H {
	var fields model.ValidationErrors
	if errors.As(err, &fields) {
		return gin.H{"error": "validation failed", "details": fields}
	}
	return gin.H{"error": "validation failed", "details": err.Error()}
}
