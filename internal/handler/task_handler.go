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

type TaskHandler struct {
	logger *zap.Logger
}

func NewTaskHandler(logger *zap.Logger) *TaskHandler {
	return &TaskHandler{logger: logger}
}

// ListTasks handles GET /tasks?status=&priority=&channel=&q=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	f := session.TaskFilter{
		Status:   model.Status(c.Query("status")),
		Priority: model.Priority(c.Query("priority")),
		Channel:  model.Platform(c.Query("channel")),
		Query:    c.Query("q"),
	}
	var errs model.ValidationErrors
	if f.Status != "" && !f.Status.Valid() {
		errs = append(errs, model.ValidationError{Field: "status", Message: "unknown status"})
	}
	if f.Priority != "" && !f.Priority.Valid() {
		errs = append(errs, model.ValidationError{Field: "priority", Message: "unknown priority"})
	}
	if f.Channel != "" && !f.Channel.Valid() {
		errs = append(errs, model.ValidationError{Field: "channel", Message: "unknown channel"})
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, validationBody(errs))
		return
	}

	tasks := f.Apply(s.Mirror.Tasks())
	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"synced": s.Mirror.Synced(),
	})
}

// CreateTask handles POST /tasks. Only title is required; status, priority
// and channel default to To Do, Medium and General.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	in, ok := h.bind(c, s.Identity().UID)
	if !ok {
		return
	}
	in = in.WithDefaults()
	if err := in.Validate(true); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(err))
		return
	}

	var id string
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { id = s.Gateway.CreateTask(ctx, in) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: id != "", Advisory: adv})
}

// UpdateTask handles PUT /tasks/:id with any subset of task fields.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
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
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { accepted = s.Gateway.UpdateTask(ctx, id, in) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: accepted, Advisory: adv})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	id := c.Param("id")
	var accepted bool
	adv := captureAdvisory(c.Request.Context(), func(ctx context.Context) { accepted = s.Gateway.DeleteTask(ctx, id) })
	c.JSON(http.StatusAccepted, mutationResult{ID: id, Accepted: accepted, Advisory: adv})
}

func (h *TaskHandler) bind(c *gin.Context, uid string) (model.TaskInput, bool) {
	var in model.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return in, false
	}
	if in.UserID != nil {
		if err := rbac.ValidateOwner(uid, *in.UserID); err != nil {
			h.logger.Warn("Task payload owner mismatch", zap.String("user_id", uid), zap.Error(err))
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return in, false
		}
	}
	return in, true
}
