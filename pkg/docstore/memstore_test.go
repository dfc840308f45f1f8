package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

const tasksPath = "users/u1/tasks"

func TestMemStoreAddResolvesServerTimestamps(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.Add(ctx, tasksPath, map[string]any{
		"title":     "Write launch post",
		"createdAt": ServerTimestamp(),
		"updatedAt": ServerTimestamp(),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}

	doc, err := s.Get(ctx, tasksPath, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	created, ok := doc.Data["createdAt"].(Timestamp)
	if !ok {
		t.Fatalf("createdAt = %T, want Timestamp", doc.Data["createdAt"])
	}
	updated := doc.Data["updatedAt"].(Timestamp)
	if created != updated {
		t.Errorf("sentinels in one write resolved differently: %v vs %v", created, updated)
	}
}

func TestMemStoreUpdateMergesAndAdvancesTime(t *testing.T) {
	s := NewMemStore()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	id, _ := s.Add(ctx, tasksPath, map[string]any{
		"title":     "A",
		"status":    "To Do",
		"createdAt": ServerTimestamp(),
		"updatedAt": ServerTimestamp(),
	})
	if err := s.Update(ctx, tasksPath, id, map[string]any{
		"status":    "Done",
		"updatedAt": ServerTimestamp(),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := s.Get(ctx, tasksPath, id)
	if doc.Data["title"] != "A" || doc.Data["status"] != "Done" {
		t.Errorf("merge result = %v", doc.Data)
	}
	created := doc.Data["createdAt"].(Timestamp).Time()
	updated := doc.Data["updatedAt"].(Timestamp).Time()
	if !updated.After(created) {
		t.Errorf("updatedAt %v not after createdAt %v with a frozen clock", updated, created)
	}
}

func TestMemStoreUpdateDeletesFields(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, _ := s.Add(ctx, tasksPath, map[string]any{
		"title":   "A",
		"dueDate": time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC),
	})
	if err := s.Update(ctx, tasksPath, id, map[string]any{
		"dueDate": DeleteField(),
		"missing": DeleteField(),
		"title":   "B",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := s.Get(ctx, tasksPath, id)
	if _, ok := doc.Data["dueDate"]; ok {
		t.Errorf("dueDate survived: %v", doc.Data)
	}
	if _, ok := doc.Data["missing"]; ok {
		t.Errorf("delete of an absent key created it: %v", doc.Data)
	}
	if doc.Data["title"] != "B" {
		t.Errorf("title = %v", doc.Data["title"])
	}

	_, err := s.Add(ctx, tasksPath, map[string]any{"notes": DeleteField()})
	if CodeOf(err) != CodeInvalidArgument {
		t.Errorf("Add with DeleteField: %v", err)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Delete(ctx, tasksPath, "missing"); CodeOf(err) != CodeNotFound {
		t.Errorf("Delete missing: %v", err)
	}
	if err := s.Update(ctx, tasksPath, "missing", map[string]any{"a": 1}); !IsNotFound(err) {
		t.Errorf("Update missing: %v", err)
	}

	id, _ := s.Add(ctx, tasksPath, map[string]any{"title": "x"})
	if err := s.Delete(ctx, tasksPath, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, tasksPath, id); !IsNotFound(err) {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMemStoreRejectsUnsupportedValues(t *testing.T) {
	s := NewMemStore()
	var missing *string
	_, err := s.Add(context.Background(), tasksPath, map[string]any{"description": missing})
	if CodeOf(err) != CodeInvalidArgument {
		t.Errorf("expected invalid-argument, got %v", err)
	}
}

func TestMemStoreListNewestFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	first, _ := s.Add(ctx, tasksPath, map[string]any{"title": "first"})
	second, _ := s.Add(ctx, tasksPath, map[string]any{"title": "second"})

	docs, err := s.List(ctx, tasksPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != second || docs[1].ID != first {
		t.Errorf("order = %v", docs)
	}

	docs[0].Data["title"] = "mutated"
	again, _ := s.Get(ctx, tasksPath, second)
	if again.Data["title"] != "second" {
		t.Error("List leaked a reference to stored data")
	}
}

func TestMemStoreSubscribe(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	snapshots := make(chan []Document, 16)
	errs := make(chan error, 4)
	unsub, err := s.Subscribe(ctx, tasksPath,
		func(docs []Document) { snapshots <- docs },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if docs := waitSnapshot(t, snapshots); len(docs) != 0 {
		t.Fatalf("initial snapshot = %v", docs)
	}

	if _, err := s.Add(ctx, tasksPath, map[string]any{"title": "x"}); err != nil {
		t.Fatal(err)
	}
	if docs := waitSnapshot(t, snapshots); len(docs) != 1 {
		t.Fatalf("after add = %v", docs)
	}

	s.Interrupt(tasksPath, Errorf(CodeUnavailable, "connection reset"))
	select {
	case err := <-errs:
		if CodeOf(err) != CodeUnavailable {
			t.Errorf("error code = %v", CodeOf(err))
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}

	// Other collections do not wake this subscriber.
	_, _ = s.Add(ctx, "users/u1/posts", map[string]any{"content": "p"})
	select {
	case docs := <-snapshots:
		t.Errorf("unexpected delivery %v", docs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemStoreUnsubscribeStopsDeliveries(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	snapshots := make(chan []Document, 16)
	unsub, _ := s.Subscribe(ctx, tasksPath, func(docs []Document) { snapshots <- docs }, nil)
	waitSnapshot(t, snapshots)
	unsub()

	// Allow the subscriber goroutine to observe the cancellation.
	time.Sleep(20 * time.Millisecond)
	_, _ = s.Add(ctx, tasksPath, map[string]any{"title": "late"})
	select {
	case docs := <-snapshots:
		t.Errorf("delivery after unsubscribe: %v", docs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInvalidPath(t *testing.T) {
	s := NewMemStore()
	_, err := s.Add(context.Background(), "tasks", map[string]any{})
	var se *Error
	if !errors.As(err, &se) || se.Code != CodeInvalidArgument {
		t.Errorf("expected invalid-argument, got %v", err)
	}
}

func waitSnapshot(t *testing.T, ch <-chan []Document) []Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
