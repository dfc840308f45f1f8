package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/model"
	"contentplanner/internal/session"
	"contentplanner/pkg/rbac"
)

type PostHandler struct {
	logger *zap.Logger
}

func NewPostHandler(logger *zap.Logger) *PostHandler {
	return &PostHandler{logger: logger}
}

// ListPosts handles GET /posts?platform=&status=&q=
func (h *PostHandler) ListPosts(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	f := session.PostFilter{
		Platform: model.Platform(c.Query("platform")),
		Status:   model.PostStatus(c.Query("status")),
		Query:    c.Query("q"),
	}
	if (f.Platform != "" && !f.Platform.Valid()) || (f.Status != "" && !f.Status.Valid()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform or status filter"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":  f.Apply(s.Mirror.Posts()),
		"synced": s.Mirror.Synced(),
	})
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	in, ok := h.bind(c, s.Identity().UID)
	if !ok {
		return
	}
	if err := in.Validate(true); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(err))
		return
	}

	var id string
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { id = s.Gateway.CreatePost(ctx, in) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: id != "", Advisory: adv})
}

func (h *PostHandler) UpdatePost(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	in, ok := h.bind(c, s.Identity().UID)
	if !ok {
		return
	}
	if err := in.Validate(false); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(err))
		return
	}

	id := c.Param("id")
	var accepted bool
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { accepted = s.Gateway.UpdatePost(ctx, id, in) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: accepted, Advisory: adv})
}

func (h *PostHandler) DeletePost(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	id := c.Param("id")
	var accepted bool
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { accepted = s.Gateway.DeletePost(ctx, id) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: accepted, Advisory: adv})
}

func (h *PostHandler) bind(c *gin.Context, uid string) (model.PostInput, bool) {
	var in model.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return in, false
	}
	if in.UserID != nil {
		if err := rbac.ValidateOwner(uid, *in.UserID); err != nil {
			h.logger.Warn("Post payload owner mismatch", zap.String("user_id", uid), zap.Error(err))
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return in, false
		}
	}
	return in, true
}
