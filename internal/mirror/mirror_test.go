package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"contentplanner/internal/advisory"
	"contentplanner/internal/identity"
	"contentplanner/internal/model"
	"contentplanner/pkg/docstore"
)

type captureStore struct {
	docstore.Store

	mu      sync.Mutex
	onNext  map[string]func([]docstore.Document)
	onError map[string]func(error)
	unsubs  int
}

func newCaptureStore() *captureStore {
	return &captureStore{
		onNext:  map[string]func([]docstore.Document){},
		onError: map[string]func(error){},
	}
}

func (c *captureStore) Subscribe(_ context.Context, path string, onNext func([]docstore.Document), onError func(error)) (docstore.Unsubscribe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNext[path] = onNext
	c.onError[path] = onError
	return func() {
		c.mu.Lock()
		c.unsubs++
		c.mu.Unlock()
	}, nil
}

func (c *captureStore) deliver(path string, docs []docstore.Document) {
	c.mu.Lock()
	fn := c.onNext[path]
	c.mu.Unlock()
	fn(docs)
}

func (c *captureStore) fail(path string, err error) {
	c.mu.Lock()
	fn := c.onError[path]
	c.mu.Unlock()
	fn(err)
}

func taskDoc(id, title string) docstore.Document {
	return docstore.Document{ID: id, Data: map[string]any{"title": title, "userId": "u1"}}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMirrorAppliesDeliveries(t *testing.T) {
	store := newCaptureStore()
	inbox := advisory.NewInbox(zap.NewNop())
	m := New(store, inbox, zap.NewNop())
	defer m.Close()

	if err := m.Activate(context.Background(), identity.Identity{UID: "u1"}); err != nil {
		t.Fatal(err)
	}

	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t2", "second"), taskDoc("t1", "first")})
	eventually(t, func() bool { return len(m.Tasks()) == 2 })

	tasks := m.Tasks()
	if tasks[0].ID != "t2" || tasks[1].ID != "t1" {
		t.Errorf("order not preserved: %+v", tasks)
	}
	if title, ok := m.TaskTitle("t1"); !ok || title != "first" {
		t.Errorf("TaskTitle = %q %v", title, ok)
	}
	if m.Synced() {
		t.Error("synced before posts delivered")
	}

	store.deliver("users/u1/posts", []docstore.Document{{ID: "p1", Data: map[string]any{"platform": "X", "content": "hi"}}})
	eventually(t, m.Synced)
	if label, _ := m.PostLabel("p1"); label != "X" {
		t.Errorf("PostLabel = %q", label)
	}
}

func TestMirrorErrorKeepsSnapshot(t *testing.T) {
	store := newCaptureStore()
	inbox := advisory.NewInbox(zap.NewNop())
	m := New(store, inbox, zap.NewNop())
	defer m.Close()

	_ = m.Activate(context.Background(), identity.Identity{UID: "u1"})
	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t1", "keep me")})
	eventually(t, func() bool { return len(m.Tasks()) == 1 })

	store.fail("users/u1/tasks", docstore.Errorf(docstore.CodePermissionDenied, "Missing or insufficient permissions."))

	got := inbox.Drain()
	if len(got) != 1 || got[0].Kind != advisory.KindFailure || got[0].Code != "permission-denied" {
		t.Fatalf("advisories = %+v", got)
	}
	if len(m.Tasks()) != 1 {
		t.Error("snapshot cleared on transient error")
	}
}

func TestMirrorDropsDeliveriesAfterDeactivate(t *testing.T) {
	store := newCaptureStore()
	inbox := advisory.NewInbox(zap.NewNop())
	m := New(store, inbox, zap.NewNop())
	defer m.Close()

	_ = m.Activate(context.Background(), identity.Identity{UID: "u1"})
	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t1", "a")})
	eventually(t, func() bool { return len(m.Tasks()) == 1 })

	m.Deactivate()
	if len(m.Tasks()) != 0 || len(m.Posts()) != 0 {
		t.Fatal("lists not cleared")
	}
	store.mu.Lock()
	unsubs := store.unsubs
	store.mu.Unlock()
	if unsubs != 2 {
		t.Errorf("unsubscribed %d subscriptions, want 2", unsubs)
	}

	// A late delivery and a late error from the old subscription.
	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t9", "late")})
	store.fail("users/u1/tasks", docstore.Errorf(docstore.CodeUnavailable, "gone"))
	time.Sleep(50 * time.Millisecond)

	if len(m.Tasks()) != 0 {
		t.Errorf("stale delivery applied: %+v", m.Tasks())
	}
	if got := inbox.Drain(); len(got) != 0 {
		t.Errorf("stale error surfaced: %+v", got)
	}
}

func TestMirrorClosedCannotActivate(t *testing.T) {
	store := newCaptureStore()
	m := New(store, advisory.NewInbox(zap.NewNop()), zap.NewNop())
	m.Close()

	if err := m.Activate(context.Background(), identity.Identity{UID: "u1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Activate after Close = %v, want ErrClosed", err)
	}
	store.mu.Lock()
	subscribed := len(store.onNext)
	store.mu.Unlock()
	if subscribed != 0 || m.UserID() != "" {
		t.Errorf("closed mirror subscribed: %d subscriptions, uid %q", subscribed, m.UserID())
	}
}

func TestMirrorIdentitySwitch(t *testing.T) {
	store := newCaptureStore()
	m := New(store, advisory.NewInbox(zap.NewNop()), zap.NewNop())
	defer m.Close()

	_ = m.Activate(context.Background(), identity.Identity{UID: "u1"})
	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t1", "mine")})
	eventually(t, func() bool { return len(m.Tasks()) == 1 })

	_ = m.Activate(context.Background(), identity.Identity{UID: "u2"})
	if m.UserID() != "u2" || len(m.Tasks()) != 0 {
		t.Fatalf("switch did not reset: uid=%s tasks=%d", m.UserID(), len(m.Tasks()))
	}
	store.deliver("users/u1/tasks", []docstore.Document{taskDoc("t1", "mine")})
	time.Sleep(50 * time.Millisecond)
	if len(m.Tasks()) != 0 {
		t.Error("previous identity's delivery applied")
	}
}

func TestMirrorWithMemStore(t *testing.T) {
	store := docstore.NewMemStore()
	m := New(store, advisory.NewInbox(zap.NewNop()), zap.NewNop())
	defer m.Close()

	changes, stop := m.Changes()
	defer stop()

	ctx := context.Background()
	_ = m.Activate(ctx, identity.Identity{UID: "u1"})
	eventually(t, m.Synced)

	_, err := store.Add(ctx, docstore.CollectionPath("u1", model.CollectionTasks), map[string]any{
		"title":     "Plan launch",
		"userId":    "u1",
		"createdAt": docstore.ServerTimestamp(),
		"updatedAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(m.Tasks()) == 1 })
	if m.Tasks()[0].CreatedAt.IsZero() {
		t.Error("timestamp not converted")
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Error("no change notification")
	}
}
