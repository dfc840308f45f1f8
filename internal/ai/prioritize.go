package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"contentplanner/internal/model"
	"contentplanner/pkg/logger"
	"contentplanner/pkg/metrics"
)

// PrioritizedTask is one entry of the model's prioritization reply.
type PrioritizedTask struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

type prioritizeReply struct {
	PrioritizedTasks []PrioritizedTask `json:"prioritizedTasks"`
}

// Adapter runs the two AI flows against a Model.
type Adapter struct {
	model  Model
	logger *zap.Logger
}

func NewAdapter(m Model, logger *zap.Logger) *Adapter {
	return &Adapter{model: m, logger: logger}
}

// SuggestPriorities asks the model to rank tasks and correlates the reply
// back to task ids by exact title. Suggestions naming no known task are
// dropped. With no tasks the model is not called and ErrNoTasks is returned.
func (a *Adapter) SuggestPriorities(ctx context.Context, tasks []model.Task) ([]model.PrioritizedTaskSuggestion, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	items := make([]priorityItem, len(tasks))
	for i, t := range tasks {
		due := model.FarFutureDueDate
		if t.DueDate != nil {
			due = *t.DueDate
		}
		desc := ""
		if t.Description != nil {
			desc = *t.Description
		}
		items[i] = priorityItem{
			Title:       t.Title,
			Description: desc,
			DueDate:     isoDate(due),
			Impact:      string(t.Priority),
		}
	}

	var reply prioritizeReply
	start := time.Now()
	err := a.model.Invoke(ctx, buildPrioritizePrompt(items), &reply)
	a.observe(ctx, "prioritize", start, err)
	if err != nil {
		return nil, err
	}
	if reply.PrioritizedTasks == nil {
		return nil, fmt.Errorf("%w: prioritizedTasks missing", ErrMalformedOutput)
	}

	suggestions := Correlate(tasks, reply.PrioritizedTasks)
	if dropped := len(reply.PrioritizedTasks) - len(suggestions); dropped > 0 {
		logger.WithTrace(ctx, a.logger).Warn("Dropped prioritization suggestions",
			zap.Int("returned", len(reply.PrioritizedTasks)),
			zap.Int("dropped", dropped),
		)
	}
	return suggestions, nil
}

// Correlate matches suggestions to tasks by exact title. The first task with
// a given title wins, and each task gets at most one suggestion. Entries with
// an unknown title or an unrecognised priority are skipped.
func Correlate(tasks []model.Task, suggested []PrioritizedTask) []model.PrioritizedTaskSuggestion {
	byTitle := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byTitle[t.Title]; !dup {
			byTitle[t.Title] = t
		}
	}

	seen := make(map[string]bool)
	out := make([]model.PrioritizedTaskSuggestion, 0, len(suggested))
	for _, s := range suggested {
		task, ok := byTitle[s.Title]
		if !ok || seen[task.ID] {
			continue
		}
		p, ok := parsePriority(s.Priority)
		if !ok {
			continue
		}
		seen[task.ID] = true
		out = append(out, model.PrioritizedTaskSuggestion{
			TaskID:            task.ID,
			Title:             task.Title,
			CurrentPriority:   task.Priority,
			SuggestedPriority: p,
			Reason:            s.Reason,
		})
	}
	return out
}

func parsePriority(s string) (model.Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range model.Priorities {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}

func (a *Adapter) observe(ctx context.Context, flow string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		logger.WithTrace(ctx, a.logger).Error("AI flow failed",
			zap.String("flow", flow),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
	}
	metrics.RecordAICallLatency(flow, status, time.Since(start))
}
