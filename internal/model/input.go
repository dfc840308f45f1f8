package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"contentplanner/pkg/docstore"
)

// TaskInput is a partial task. A nil field is undefined and never written.
// Clear names optional fields to remove; decoding fills it from JSON nulls.
type TaskInput struct {
	UserID      *string   `json:"userId,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     *Date     `json:"dueDate,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	Channel     *Platform `json:"channel,omitempty"`
	Clear       []string  `json:"-"`
}

var clearableTaskFields = []string{"description", "dueDate", "assignee"}

func (in *TaskInput) UnmarshalJSON(b []byte) error {
	type plain TaskInput
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	nulls, err := nullFields(b, clearableTaskFields)
	if err != nil {
		return err
	}
	*in = TaskInput(p)
	in.Clear = nulls
	return nil
}

// WithDefaults fills the fields a quick-added task leaves out.
func (in TaskInput) WithDefaults() TaskInput {
	if in.Status == nil {
		s := StatusToDo
		in.Status = &s
	}
	if in.Priority == nil {
		p := PriorityMedium
		in.Priority = &p
	}
	if in.Channel == nil {
		c := PlatformGeneral
		in.Channel = &c
	}
	return in
}

func (in TaskInput) Validate(create bool) error {
	var errs ValidationErrors
	if create && in.Title == nil {
		errs = append(errs, ValidationError{Field: "title", Message: "Title is required"})
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "Title cannot be empty"})
	}
	if create && in.Status == nil {
		errs = append(errs, ValidationError{Field: "status", Message: "Status is required"})
	}
	if in.Status != nil && !in.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *in.Status)})
	}
	if create && in.Priority == nil {
		errs = append(errs, ValidationError{Field: "priority", Message: "Priority is required"})
	}
	if in.Priority != nil && !in.Priority.Valid() {
		errs = append(errs, ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", *in.Priority)})
	}
	if create && in.Channel == nil {
		errs = append(errs, ValidationError{Field: "channel", Message: "Channel is required"})
	}
	if in.Channel != nil && !in.Channel.Valid() {
		errs = append(errs, ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", *in.Channel)})
	}
	errs = append(errs, validateClear(in.Clear, clearableTaskFields)...)
	return errs.OrNil()
}

// Fields lists every field with its raw value, undefined ones included as nil
// pointers and cleared ones as docstore.DeleteField. Pass the result through
// StripUndefined before writing.
func (in TaskInput) Fields() map[string]any {
	return withCleared(in.Clear, map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"status":      in.Status,
		"priority":    in.Priority,
		"dueDate":     in.DueDate.TimePtr(),
		"assignee":    in.Assignee,
		"channel":     in.Channel,
	})
}

// PostInput is a partial post. A nil field is undefined and never written.
// Clear works as on TaskInput.
type PostInput struct {
	UserID        *string     `json:"userId,omitempty"`
	Platform      *Platform   `json:"platform,omitempty"`
	Content       *string     `json:"content,omitempty"`
	Status        *PostStatus `json:"status,omitempty"`
	ScheduledDate *Date       `json:"scheduledDate,omitempty"`
	ImageURL      *string     `json:"imageUrl,omitempty"`
	Notes         *string     `json:"notes,omitempty"`
	Clear         []string    `json:"-"`
}

var clearablePostFields = []string{"scheduledDate", "imageUrl", "notes"}

func (in *PostInput) UnmarshalJSON(b []byte) error {
	type plain PostInput
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	nulls, err := nullFields(b, clearablePostFields)
	if err != nil {
		return err
	}
	*in = PostInput(p)
	in.Clear = nulls
	return nil
}

func (in PostInput) Validate(create bool) error {
	var errs ValidationErrors
	if create && in.Platform == nil {
		errs = append(errs, ValidationError{Field: "platform", Message: "Platform is required"})
	}
	if in.Platform != nil && !in.Platform.IsPostable() {
		errs = append(errs, ValidationError{Field: "platform", Message: fmt.Sprintf("platform %q cannot be posted to", *in.Platform)})
	}
	if create && in.Content == nil {
		errs = append(errs, ValidationError{Field: "content", Message: "Content cannot be empty"})
	}
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		errs = append(errs, ValidationError{Field: "content", Message: "Content cannot be empty"})
	}
	if create && in.Status == nil {
		errs = append(errs, ValidationError{Field: "status", Message: "Status is required"})
	}
	if in.Status != nil && !in.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: fmt.Sprintf("unknown post status %q", *in.Status)})
	}
	if in.ImageURL != nil && *in.ImageURL != "" && !IsWebURL(*in.ImageURL) {
		errs = append(errs, ValidationError{Field: "imageUrl", Message: "Must be a valid URL"})
	}
	errs = append(errs, validateClear(in.Clear, clearablePostFields)...)
	return errs.OrNil()
}

func (in PostInput) Fields() map[string]any {
	return withCleared(in.Clear, map[string]any{
		"platform":      in.Platform,
		"content":       in.Content,
		"status":        in.Status,
		"scheduledDate": in.ScheduledDate.TimePtr(),
		"imageUrl":      in.ImageURL,
		"notes":         in.Notes,
	})
}

// nullFields returns the keys among candidates that are JSON null in b.
func nullFields(b []byte, candidates []string) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	var nulls []string
	for _, k := range candidates {
		if v, ok := raw[k]; ok && string(bytes.TrimSpace(v)) == "null" {
			nulls = append(nulls, k)
		}
	}
	return nulls, nil
}

func validateClear(cleared, allowed []string) ValidationErrors {
	var errs ValidationErrors
	for _, k := range cleared {
		if !slices.Contains(allowed, k) {
			errs = append(errs, ValidationError{Field: k, Message: "Field cannot be cleared"})
		}
	}
	return errs
}

// withCleared marks cleared fields for removal unless a value was also given.
func withCleared(cleared []string, fields map[string]any) map[string]any {
	for _, k := range cleared {
		if v, ok := fields[k]; ok && !isNilValue(v) {
			continue
		}
		fields[k] = docstore.DeleteField()
	}
	return fields
}

// IsWebURL accepts absolute http and https URLs with a host.
func IsWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Date accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (midnight UTC).
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

// TimePtr returns nil for a nil Date.
func (d *Date) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}
