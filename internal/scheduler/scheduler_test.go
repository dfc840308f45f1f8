package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(zap.NewNop())
	if err := s.Add("bad", "every now and then", func(context.Context) {}); err == nil {
		t.Fatal("expected an error for an invalid spec")
	}
	if err := s.Add("off", "", func(context.Context) {}); err != nil {
		t.Fatalf("empty spec: %v", err)
	}
}

func TestJobRuns(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	if err := s.Add("tick", "@every 1s", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}

type fakeReaper struct{ calls int }

func (f *fakeReaper) ReapIdle() int { f.calls++; return 0 }

type fakeRequeuer struct {
	n     int
	err   error
	limit int
}

func (f *fakeRequeuer) RequeueFailed(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func TestJobs(t *testing.T) {
	r := &fakeReaper{}
	SessionReaperJob(r)(context.Background())
	if r.calls != 1 {
		t.Errorf("reaper calls = %d", r.calls)
	}

	q := &fakeRequeuer{n: 3}
	OutboxRequeueJob(q, zap.NewNop())(context.Background())
	if q.limit != requeueBatch {
		t.Errorf("limit = %d", q.limit)
	}

	q = &fakeRequeuer{err: errors.New("db down")}
	OutboxRequeueJob(q, zap.NewNop())(context.Background())
}
