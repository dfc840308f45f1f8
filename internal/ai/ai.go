// Package ai turns planner data into language-model prompts and maps the
// structured replies back onto tasks and posts.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks input rejected before the model was reached.
	ErrValidation = errors.New("ai: invalid input")
	// ErrMalformedOutput means the model answered but not in the expected shape.
	ErrMalformedOutput = errors.New("ai: malformed model output")
	// ErrUnavailable means the model endpoint could not be reached or refused.
	ErrUnavailable = errors.New("ai: model unavailable")
	ErrNoTasks     = errors.New("ai: no tasks to prioritize")
)

// Model runs one prompt and decodes the JSON reply into out.
type Model interface {
	Invoke(ctx context.Context, prompt string, out any) error
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string, out any) error

func (f ModelFunc) Invoke(ctx context.Context, prompt string, out any) error {
	return f(ctx, prompt, out)
}
