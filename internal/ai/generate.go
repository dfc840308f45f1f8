package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contentplanner/internal/model"
)

const (
	minTopicLen = 5
	minToneLen  = 3
)

type PostRequest struct {
	Platform model.Platform `json:"platform"`
	Topic    string         `json:"topic"`
	Tone     string         `json:"tone"`
}

func (r PostRequest) Validate() error {
	var errs model.ValidationErrors
	if !r.Platform.IsPostable() {
		errs = append(errs, model.ValidationError{Field: "platform", Message: "Platform must be X, LinkedIn or Instagram"})
	}
	if len([]rune(strings.TrimSpace(r.Topic))) < minTopicLen {
		errs = append(errs, model.ValidationError{Field: "topic", Message: "Topic must be at least 5 characters"})
	}
	if len([]rune(strings.TrimSpace(r.Tone))) < minToneLen {
		errs = append(errs, model.ValidationError{Field: "tone", Message: "Tone must be at least 3 characters"})
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, errs)
}

type postReply struct {
	Post string `json:"post"`
}

// GeneratePost drafts post text. The request is validated before the model
// is called; an empty post in the reply counts as malformed output.
func (a *Adapter) GeneratePost(ctx context.Context, req PostRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var reply postReply
	start := time.Now()
	err := a.model.Invoke(ctx, buildPostPrompt(string(req.Platform), strings.TrimSpace(req.Topic), strings.TrimSpace(req.Tone)), &reply)
	if err == nil && strings.TrimSpace(reply.Post) == "" {
		err = fmt.Errorf("%w: empty post", ErrMalformedOutput)
	}
	a.observe(ctx, "generate_post", start, err)
	if err != nil {
		return "", err
	}
	return reply.Post, nil
}
