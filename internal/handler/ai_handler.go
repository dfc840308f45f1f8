package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/ai"
	"contentplanner/internal/session"
)

type AIHandler struct {
	logger *zap.Logger
}

func NewAIHandler(logger *zap.Logger) *AIHandler {
	return &AIHandler{logger: logger}
}

// Prioritize handles POST /ai/prioritize. The reply carries the resulting
// suggestions and the advisory describing the outcome.
func (h *AIHandler) Prioritize(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	var suggestions any
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { suggestions = s.SuggestPriorities(ctx) })
	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
		"advisory":    adv,
	})
}

func (h *AIHandler) Suggestions(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": s.Suggestions()})
}

func (h *AIHandler) ApplySuggestion(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	taskID := c.Param("taskId")
	var (
		accepted bool
		err      error
	)
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { accepted, err = s.ApplySuggestion(ctx, taskID) })
	if errors.Is(err, session.ErrSuggestionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, mutationResult{ID: taskID, Accepted: accepted, Advisory: adv})
}

func (h *AIHandler) DismissSuggestion(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	if err := s.DismissSuggestion(c.Param("taskId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GeneratePost handles POST /ai/posts/generate. The draft is returned to the
// caller and not saved; saving goes through POST /posts.
func (h *AIHandler) GeneratePost(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	var req ai.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var (
		post string
		err  error
	)
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { post, err = s.GeneratePost(ctx, req) })
	if err != nil {
		c.JSON(http.StatusBadRequest, validationBody(err))
		return
	}

	body := gin.H{"advisory": adv}
	if post != "" {
		body["post"] = post
		body["platform"] = req.Platform
	}
	c.JSON(http.StatusOK, body)
}
