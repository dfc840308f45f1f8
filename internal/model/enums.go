package model

type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusBlocked    Status = "Blocked"
)

var Statuses = []Status{StatusToDo, StatusInProgress, StatusDone, StatusBlocked}

func (s Status) Valid() bool { return contains(Statuses, s) }

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool { return contains(Priorities, p) }

type Platform string

const (
	PlatformX         Platform = "X"
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformInstagram Platform = "Instagram"
	// PlatformGeneral is a display fallback and task channel, never a post target.
	PlatformGeneral Platform = "General"
)

var Platforms = []Platform{PlatformX, PlatformLinkedIn, PlatformInstagram, PlatformGeneral}

func (p Platform) Valid() bool { return contains(Platforms, p) }

// IsPostable reports whether a post can target p.
func (p Platform) IsPostable() bool { return p.Valid() && p != PlatformGeneral }

type PostStatus string

const (
	PostStatusDraft         PostStatus = "Draft"
	PostStatusScheduled     PostStatus = "Scheduled"
	PostStatusPosted        PostStatus = "Posted"
	PostStatusNeedsApproval PostStatus = "Needs Approval"
)

var PostStatuses = []PostStatus{PostStatusDraft, PostStatusScheduled, PostStatusPosted, PostStatusNeedsApproval}

func (s PostStatus) Valid() bool { return contains(PostStatuses, s) }

func contains[T comparable](set []T, v T) bool {
	for _, item := range set {
		if item == v {
			return true
		}
	}
	return false
}
