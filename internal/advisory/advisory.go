// Package advisory carries non-blocking user notifications. Every operation
// outcome the user should hear about, good or bad, ends up here.
package advisory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contentplanner/pkg/metrics"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindInfo    Kind = "info"
)

type Advisory struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Code        string    `json:"code,omitempty"`
	At          time.Time `json:"at"`
}

func Success(title, description string) Advisory {
	return Advisory{Kind: KindSuccess, Title: title, Description: description}
}

func Failure(title, description, code string) Advisory {
	return Advisory{Kind: KindFailure, Title: title, Description: description, Code: code}
}

func Info(title, description string) Advisory {
	return Advisory{Kind: KindInfo, Title: title, Description: description}
}

// Sink receives advisories.
type Sink interface {
	Notify(a Advisory)
}

const defaultCapacity = 100

// Inbox keeps the latest advisories of one session until drained and fans
// them out to live listeners.
type Inbox struct {
	mu        sync.Mutex
	items     []Advisory
	capacity  int
	listeners map[int]chan Advisory
	nextID    int
	logger    *zap.Logger
}

func NewInbox(logger *zap.Logger) *Inbox {
	return &Inbox{
		capacity:  defaultCapacity,
		listeners: make(map[int]chan Advisory),
		logger:    logger,
	}
}

// Notify stores a and pushes it to listeners. Slow listeners miss it rather
// than block the caller; the stored copy stays available to Drain.
func (i *Inbox) Notify(a Advisory) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("kind", string(a.Kind)),
		zap.String("title", a.Title),
	}
	if a.Code != "" {
		fields = append(fields, zap.String("code", a.Code))
	}
	if a.Kind == KindFailure {
		i.logger.Warn("Advisory raised", append(fields, zap.String("description", a.Description))...)
	} else {
		i.logger.Debug("Advisory raised", fields...)
	}
	metrics.IncrementAdvisory(string(a.Kind))

	i.mu.Lock()
	defer i.mu.Unlock()

	i.items = append(i.items, a)
	if len(i.items) > i.capacity {
		i.items = i.items[len(i.items)-i.capacity:]
	}
	for _, ch := range i.listeners {
		select {
		case ch <- a:
		default:
		}
	}
}

// Drain returns and forgets every stored advisory, oldest first.
func (i *Inbox) Drain() []Advisory {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	if out == nil {
		out = []Advisory{}
	}
	return out
}

// Pending returns a copy of the stored advisories without removing them.
func (i *Inbox) Pending() []Advisory {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Advisory, len(i.items))
	copy(out, i.items)
	return out
}

// Listen returns a channel of new advisories and a func that closes it.
func (i *Inbox) Listen() (<-chan Advisory, func()) {
	ch := make(chan Advisory, 16)

	i.mu.Lock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = ch
	i.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			i.mu.Lock()
			delete(i.listeners, id)
			i.mu.Unlock()
			close(ch)
		})
	}
}
