package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"contentplanner/pkg/trace"
)

type fakeStore struct {
	pending  []*Event
	failed   []*Event
	sent     []int64
	attempts map[int64]int
	reset    []int64
	maxSeen  int
}

func newFakeStore(events ...*Event) *fakeStore {
	return &fakeStore{pending: events, attempts: map[int64]int{}}
}

func (f *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	for _, e := range append(f.pending, f.failed...) {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (f *fakeStore) GetFailedEvents(_ context.Context, _ int) ([]*Event, error) {
	return f.failed, nil
}

func (f *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) (bool, error) {
	f.attempts[id]++
	f.maxSeen = maxRetries
	return f.attempts[id] >= maxRetries, nil
}

func (f *fakeStore) ResetEvent(_ context.Context, id int64) error {
	f.reset = append(f.reset, id)
	return nil
}

type fakePublisher struct {
	fail      bool
	published []string
	traceIDs  []string
	dead      []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return nil
}

func (p *fakePublisher) PublishToDLQ(_ context.Context, routingKey string, _ []byte, _ string) error {
	p.dead = append(p.dead, routingKey)
	return nil
}

func TestDispatcherPublishesPending(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"trace_id": "abc"})
	store := newFakeStore(
		&Event{ID: 1, RoutingKey: "docs.u1.tasks", Payload: payload},
		&Event{ID: 2, RoutingKey: "docs.u1.posts", Payload: json.RawMessage(`{}`)},
	)
	pub := &fakePublisher{}

	d := NewDispatcher(store, pub, zap.NewNop())
	if n := d.ProcessPending(context.Background()); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
	if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 2 {
		t.Errorf("sent ids = %v", store.sent)
	}
	if pub.traceIDs[0] != "abc" {
		t.Errorf("trace id not propagated: %q", pub.traceIDs[0])
	}
}

func TestDispatcherParksDeadEvents(t *testing.T) {
	store := newFakeStore(&Event{ID: 7, RoutingKey: "docs.u1.tasks", Payload: json.RawMessage(`{}`)})
	pub := &fakePublisher{fail: true}

	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)
	d.ProcessPending(context.Background())
	if len(pub.dead) != 0 {
		t.Fatalf("parked after first failure")
	}
	d.ProcessPending(context.Background())
	if len(pub.dead) != 1 {
		t.Fatalf("dead = %v, want one parked event", pub.dead)
	}
	if store.maxSeen != 2 {
		t.Errorf("maxRetries = %d", store.maxSeen)
	}
}

func TestReplayRequeueFailed(t *testing.T) {
	store := newFakeStore()
	store.failed = []*Event{{ID: 3}, {ID: 4}}
	r := NewReplayService(store, &fakePublisher{}, zap.NewNop())

	n, err := r.RequeueFailed(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(store.reset) != 2 {
		t.Errorf("requeued %d, reset %v", n, store.reset)
	}
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	status, next := nextAttempt(1, 5, now)
	if status != StatusPending || next == nil || !next.Equal(now.Add(5*time.Second)) {
		t.Errorf("first retry = %s %v", status, next)
	}
	status, next = nextAttempt(5, 5, now)
	if status != StatusFailed || next != nil {
		t.Errorf("exhausted = %s %v", status, next)
	}
}
