package advisory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type recorderKey struct{}

// Recorder collects the advisories raised on behalf of one request.
type Recorder struct {
	mu    sync.Mutex
	items []Advisory
}

// WithRecorder returns a context whose Emit calls are also kept by the
// returned Recorder.
func WithRecorder(ctx context.Context) (context.Context, *Recorder) {
	r := &Recorder{}
	return context.WithValue(ctx, recorderKey{}, r), r
}

// First returns the earliest recorded advisory, or nil.
func (r *Recorder) First() *Advisory {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	a := r.items[0]
	return &a
}

func (r *Recorder) All() []Advisory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Advisory, len(r.items))
	copy(out, r.items)
	return out
}

// Emit stamps a, hands it to the Recorder carried by ctx if any, then to sink.
func Emit(ctx context.Context, sink Sink, a Advisory) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	if r, ok := ctx.Value(recorderKey{}).(*Recorder); ok {
		r.mu.Lock()
		r.items = append(r.items, a)
		r.mu.Unlock()
	}
	sink.Notify(a)
}
