package session

import (
	"testing"
	"time"

	"contentplanner/internal/model"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestTaskFilter(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Title: "Draft Q3 Plan", Status: model.StatusToDo, Priority: model.PriorityHigh, Channel: model.PlatformGeneral},
		{ID: "2", Title: "Reels", Description: ptr("Summer PLAN for instagram"), Status: model.StatusDone, Priority: model.PriorityLow, Channel: model.PlatformInstagram},
		{ID: "3", Title: "Newsletter", Status: model.StatusToDo, Priority: model.PriorityLow, Channel: model.PlatformLinkedIn},
	}
	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"empty filter", TaskFilter{}, []string{"1", "2", "3"}},
		{"status", TaskFilter{Status: model.StatusToDo}, []string{"1", "3"}},
		{"priority and channel", TaskFilter{Priority: model.PriorityLow, Channel: model.PlatformLinkedIn}, []string{"3"}},
		{"query matches title or description", TaskFilter{Query: "plan"}, []string{"1", "2"}},
		{"no match", TaskFilter{Query: "budget"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(tasks)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestPostFilter(t *testing.T) {
	posts := []model.SocialMediaPost{
		{ID: "1", Platform: model.PlatformX, Status: model.PostStatusDraft, Content: "Launch thread"},
		{ID: "2", Platform: model.PlatformX, Status: model.PostStatusScheduled, Content: "Teaser", Notes: ptr("launch week")},
		{ID: "3", Platform: model.PlatformLinkedIn, Status: model.PostStatusScheduled, Content: "Hiring"},
	}
	got := PostFilter{Platform: model.PlatformX, Query: "LAUNCH"}.Apply(posts)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	got = PostFilter{Status: model.PostStatusScheduled}.Apply(posts)
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("got %+v", got)
	}
}

func TestBuildDashboard(t *testing.T) {
	now := *at("2026-06-01T12:00:00Z")
	var tasks []model.Task
	for i, due := range []string{
		"2026-06-09T00:00:00Z", "2026-06-02T00:00:00Z", "2026-06-05T00:00:00Z",
		"2026-06-03T00:00:00Z", "2026-06-08T00:00:00Z", "2026-06-04T00:00:00Z",
	} {
		tasks = append(tasks, model.Task{ID: string(rune('a' + i)), Status: model.StatusToDo, DueDate: at(due)})
	}
	tasks = append(tasks,
		model.Task{ID: "done", Status: model.StatusDone, DueDate: at("2026-06-01T13:00:00Z")},
		model.Task{ID: "past", Status: model.StatusInProgress, DueDate: at("2026-05-01T00:00:00Z")},
		model.Task{ID: "nodate", Status: model.StatusInProgress},
	)
	posts := []model.SocialMediaPost{
		{ID: "p1", Status: model.PostStatusScheduled, ScheduledDate: at("2026-06-03T10:00:00Z")},
		{ID: "p2", Status: model.PostStatusDraft, ScheduledDate: at("2026-06-02T10:00:00Z")},
		{ID: "p3", Status: model.PostStatusScheduled, ScheduledDate: at("2026-06-02T10:00:00Z")},
		{ID: "p4", Status: model.PostStatusScheduled, ScheduledDate: at("2026-05-02T10:00:00Z")},
	}

	d := BuildDashboard(tasks, posts, now)
	if d.TotalTasks != 9 || d.ToDo != 6 || d.InProgress != 2 || d.Done != 1 {
		t.Errorf("counts = %+v", d)
	}
	wantTasks := []string{"b", "d", "f", "c", "e"}
	if len(d.UpcomingTasks) != len(wantTasks) {
		t.Fatalf("upcoming tasks = %+v", d.UpcomingTasks)
	}
	for i, id := range wantTasks {
		if d.UpcomingTasks[i].ID != id {
			t.Errorf("upcoming[%d] = %s, want %s", i, d.UpcomingTasks[i].ID, id)
		}
	}
	if len(d.UpcomingPosts) != 2 || d.UpcomingPosts[0].ID != "p3" || d.UpcomingPosts[1].ID != "p1" {
		t.Errorf("upcoming posts = %+v", d.UpcomingPosts)
	}
}

func TestCalendar(t *testing.T) {
	tasks := []model.Task{
		{ID: "t1", DueDate: at("2026-06-03T23:30:00Z")},
		{ID: "t2", DueDate: at("2026-07-01T00:00:00Z")},
		{ID: "t3"},
	}
	posts := []model.SocialMediaPost{
		{ID: "p1", ScheduledDate: at("2026-06-03T08:00:00Z")},
		{ID: "p2", ScheduledDate: at("2026-06-20T08:00:00Z")},
	}

	month := BuildCalendarMonth(tasks, posts, 2026, time.June, time.UTC)
	if month.Month != "2026-06" || len(month.Days) != 2 {
		t.Fatalf("month = %+v", month)
	}
	if month.Days[0].Date != "2026-06-03" || len(month.Days[0].Tasks) != 1 || len(month.Days[0].Posts) != 1 {
		t.Errorf("day 3 = %+v", month.Days[0])
	}
	if month.Days[1].Date != "2026-06-20" || len(month.Days[1].Posts) != 1 {
		t.Errorf("day 20 = %+v", month.Days[1])
	}

	// In UTC+2 the late task moves to the 4th.
	loc := time.FixedZone("UTC+2", 2*60*60)
	day := BuildCalendarDay(tasks, posts, time.Date(2026, 6, 4, 0, 0, 0, 0, loc), loc)
	if len(day.Tasks) != 1 || day.Tasks[0].ID != "t1" || len(day.Posts) != 0 {
		t.Errorf("day = %+v", day)
	}
}
