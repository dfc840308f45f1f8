package session

import (
	"sort"
	"strings"
	"time"

	"contentplanner/internal/model"
)

// TaskFilter narrows a task list. Zero fields match everything; Query matches
// title or description, case-insensitively.
type TaskFilter struct {
	Status   model.Status
	Priority model.Priority
	Channel  model.Platform
	Query    string
}

func (f TaskFilter) Apply(tasks []model.Task) []model.Task {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.Channel != "" && t.Channel != f.Channel {
			continue
		}
		if q != "" && !containsFold(t.Title, q) && (t.Description == nil || !containsFold(*t.Description, q)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// PostFilter narrows a post list. Query matches content or notes.
type PostFilter struct {
	Platform model.Platform
	Status   model.PostStatus
	Query    string
}

func (f PostFilter) Apply(posts []model.SocialMediaPost) []model.SocialMediaPost {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]model.SocialMediaPost, 0, len(posts))
	for _, p := range posts {
		if f.Platform != "" && p.Platform != f.Platform {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if q != "" && !containsFold(p.Content, q) && (p.Notes == nil || !containsFold(*p.Notes, q)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

const upcomingLimit = 5

type Dashboard struct {
	TotalTasks    int                     `json:"totalTasks"`
	ToDo          int                     `json:"toDo"`
	InProgress    int                     `json:"inProgress"`
	Done          int                     `json:"done"`
	UpcomingTasks []model.Task            `json:"upcomingTasks"`
	UpcomingPosts []model.SocialMediaPost `json:"scheduledPosts"`
	GeneratedAt   time.Time               `json:"generatedAt"`
}

// BuildDashboard counts tasks by status and lists the next five open tasks
// and scheduled posts that are due at or after now.
func BuildDashboard(tasks []model.Task, posts []model.SocialMediaPost, now time.Time) Dashboard {
	d := Dashboard{
		TotalTasks:    len(tasks),
		UpcomingTasks: []model.Task{},
		UpcomingPosts: []model.SocialMediaPost{},
		GeneratedAt:   now,
	}
	for _, t := range tasks {
		switch t.Status {
		case model.StatusToDo:
			d.ToDo++
		case model.StatusInProgress:
			d.InProgress++
		case model.StatusDone:
			d.Done++
		}
		if t.Status != model.StatusDone && t.DueDate != nil && !t.DueDate.Before(now) {
			d.UpcomingTasks = append(d.UpcomingTasks, t)
		}
	}
	for _, p := range posts {
		if p.Status == model.PostStatusScheduled && p.ScheduledDate != nil && !p.ScheduledDate.Before(now) {
			d.UpcomingPosts = append(d.UpcomingPosts, p)
		}
	}

	sort.SliceStable(d.UpcomingTasks, func(i, j int) bool {
		return d.UpcomingTasks[i].DueDate.Before(*d.UpcomingTasks[j].DueDate)
	})
	sort.SliceStable(d.UpcomingPosts, func(i, j int) bool {
		return d.UpcomingPosts[i].ScheduledDate.Before(*d.UpcomingPosts[j].ScheduledDate)
	})
	if len(d.UpcomingTasks) > upcomingLimit {
		d.UpcomingTasks = d.UpcomingTasks[:upcomingLimit]
	}
	if len(d.UpcomingPosts) > upcomingLimit {
		d.UpcomingPosts = d.UpcomingPosts[:upcomingLimit]
	}
	return d
}

// CalendarDay is one day cell: what is due and what goes out.
type CalendarDay struct {
	Date  string                  `json:"date"`
	Tasks []model.Task            `json:"tasks"`
	Posts []model.SocialMediaPost `json:"posts"`
}

type CalendarMonth struct {
	Month string        `json:"month"`
	Days  []CalendarDay `json:"days"`
}

const dayLayout = "2006-01-02"

func sameDay(a time.Time, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// BuildCalendarDay lists tasks due and posts scheduled on day, compared in loc.
func BuildCalendarDay(tasks []model.Task, posts []model.SocialMediaPost, day time.Time, loc *time.Location) CalendarDay {
	cd := CalendarDay{
		Date:  day.In(loc).Format(dayLayout),
		Tasks: []model.Task{},
		Posts: []model.SocialMediaPost{},
	}
	for _, t := range tasks {
		if t.DueDate != nil && sameDay(*t.DueDate, day, loc) {
			cd.Tasks = append(cd.Tasks, t)
		}
	}
	for _, p := range posts {
		if p.ScheduledDate != nil && sameDay(*p.ScheduledDate, day, loc) {
			cd.Posts = append(cd.Posts, p)
		}
	}
	return cd
}

// BuildCalendarMonth returns one entry per day of the month that has at
// least one task or post, in date order.
func BuildCalendarMonth(tasks []model.Task, posts []model.SocialMediaPost, year int, month time.Month, loc *time.Location) CalendarMonth {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	cm := CalendarMonth{Month: first.Format("2006-01"), Days: []CalendarDay{}}
	for day := first; day.Month() == month; day = day.AddDate(0, 0, 1) {
		cd := BuildCalendarDay(tasks, posts, day, loc)
		if len(cd.Tasks) > 0 || len(cd.Posts) > 0 {
			cm.Days = append(cm.Days, cd)
		}
	}
	return cm
}
