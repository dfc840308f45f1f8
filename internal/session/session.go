// Package session holds the per-sign-in state of the planner: the identity,
// its live mirror, the mutation gateway, pending AI suggestions and the
// advisory inbox.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"contentplanner/internal/advisory"
	"contentplanner/internal/ai"
	"contentplanner/internal/gateway"
	"contentplanner/internal/identity"
	"contentplanner/internal/mirror"
	"contentplanner/internal/model"
	"contentplanner/pkg/docstore"
	"contentplanner/pkg/logger"
)

var ErrSuggestionNotFound = errors.New("no pending suggestion for task")

type Session struct {
	ID       string
	identity identity.Identity

	Mirror  *mirror.Mirror
	Gateway *gateway.Gateway
	Inbox   *advisory.Inbox

	ai     *ai.Adapter
	logger *zap.Logger

	mu          sync.Mutex
	suggestions []model.PrioritizedTaskSuggestion

	lastSeen atomic.Int64
	closed   atomic.Bool
}

func newSession(id string, who identity.Identity, store docstore.Store, adapter *ai.Adapter, logger *zap.Logger) *Session {
	l := logger.With(zap.String("session_id", id), zap.String("user_id", who.UID))
	inbox := advisory.NewInbox(l)
	m := mirror.New(store, inbox, l)

	s := &Session{
		ID:       id,
		identity: who,
		Mirror:   m,
		Inbox:    inbox,
		ai:       adapter,
		logger:   l,
	}
	s.Gateway = gateway.New(store, s.currentIdentity, m, inbox, l)
	return s
}

// Identity is the signed-in user of this session.
func (s *Session) Identity() identity.Identity { return s.identity }

// currentIdentity goes nil once the session is closed so late writes are
// rejected as unauthenticated.
func (s *Session) currentIdentity() *identity.Identity {
	if s.closed.Load() {
		return nil
	}
	id := s.identity
	return &id
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Mirror.Close()
	s.mu.Lock()
	s.suggestions = nil
	s.mu.Unlock()
}

// Suggestions returns a copy of the pending prioritization suggestions.
func (s *Session) Suggestions() []model.PrioritizedTaskSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PrioritizedTaskSuggestion, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// SuggestPriorities asks the model to rank the mirrored tasks and replaces
// the pending suggestions with the result. On failure the previous
// suggestions are kept and a failure advisory is raised.
func (s *Session) SuggestPriorities(ctx context.Context) []model.PrioritizedTaskSuggestion {
	tasks := s.Mirror.Tasks()
	got, err := s.ai.SuggestPriorities(ctx, tasks)
	switch {
	case errors.Is(err, ai.ErrNoTasks):
		advisory.Emit(ctx, s.Inbox, advisory.Info("No tasks", "Add some tasks before asking for priority suggestions."))
		return s.Suggestions()
	case err != nil:
		advisory.Emit(ctx, s.Inbox, advisory.Failure("AI Error", "Could not get task prioritization suggestions.", aiCode(err)))
		return s.Suggestions()
	}

	s.mu.Lock()
	s.suggestions = got
	s.mu.Unlock()

	logger.WithTrace(ctx, s.logger).Info("Prioritization suggested",
		zap.Int("tasks", len(tasks)),
		zap.Int("suggestions", len(got)),
	)
	advisory.Emit(ctx, s.Inbox, advisory.Success("Prioritization Suggested", "AI has suggested task priorities."))
	return s.Suggestions()
}

func (s *Session) suggestion(taskID string) (model.PrioritizedTaskSuggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sg := range s.suggestions {
		if sg.TaskID == taskID {
			return sg, true
		}
	}
	return model.PrioritizedTaskSuggestion{}, false
}

func (s *Session) removeSuggestion(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sg := range s.suggestions {
		if sg.TaskID == taskID {
			s.suggestions = append(s.suggestions[:i:i], s.suggestions[i+1:]...)
			return true
		}
	}
	return false
}

// ApplySuggestion writes the suggested priority to the task. The suggestion
// is removed only when the write was accepted, so a failed apply can be
// retried.
func (s *Session) ApplySuggestion(ctx context.Context, taskID string) (bool, error) {
	sg, ok := s.suggestion(taskID)
	if !ok {
		return false, ErrSuggestionNotFound
	}
	if !s.Gateway.UpdateTaskPriority(ctx, taskID, sg.SuggestedPriority) {
		return false, nil
	}
	s.removeSuggestion(taskID)
	return true, nil
}

// DismissSuggestion drops a suggestion without touching the task.
func (s *Session) DismissSuggestion(taskID string) error {
	if !s.removeSuggestion(taskID) {
		return ErrSuggestionNotFound
	}
	return nil
}

// GeneratePost drafts post text for req. Invalid input returns an error
// wrapping ai.ErrValidation; any other failure becomes an advisory and an
// empty result.
func (s *Session) GeneratePost(ctx context.Context, req ai.PostRequest) (string, error) {
	post, err := s.ai.GeneratePost(ctx, req)
	if errors.Is(err, ai.ErrValidation) {
		return "", err
	}
	if err != nil {
		advisory.Emit(ctx, s.Inbox, advisory.Failure("AI Error", "Could not generate social media post.", aiCode(err)))
		return "", nil
	}
	advisory.Emit(ctx, s.Inbox, advisory.Success("Post Generated", fmt.Sprintf("AI has generated a post for %s.", req.Platform)))
	return post, nil
}

func aiCode(err error) string {
	switch {
	case errors.Is(err, ai.ErrMalformedOutput):
		return "malformed-output"
	case errors.Is(err, ai.ErrUnavailable):
		return string(docstore.CodeUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline-exceeded"
	default:
		return string(docstore.CodeInternal)
	}
}
