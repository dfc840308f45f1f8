package model

import "time"

// Collection names under users/{uid}/.
const (
	CollectionTasks = "tasks"
	CollectionPosts = "posts"
)

type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Channel     Platform   `json:"channel"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type SocialMediaPost struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Platform      Platform   `json:"platform"`
	Content       string     `json:"content"`
	Status        PostStatus `json:"status"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	ImageURL      *string    `json:"imageUrl,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// PrioritizedTaskSuggestion is an AI proposal held in memory until the user
// applies or dismisses it.
type PrioritizedTaskSuggestion struct {
	TaskID            string   `json:"taskId"`
	Title             string   `json:"title"`
	CurrentPriority   Priority `json:"currentPriority"`
	SuggestedPriority Priority `json:"suggestedPriority"`
	Reason            string   `json:"reason"`
}
