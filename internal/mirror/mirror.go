// Package mirror keeps a session's task and post lists in sync with the
// document store through live subscriptions.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"contentplanner/internal/advisory"
	"contentplanner/internal/identity"
	"contentplanner/internal/model"
	"contentplanner/pkg/docstore"
)

// CollectionChanged is one subscription delivery on its way to the consumer.
type CollectionChanged struct {
	Collection string
	Documents  []docstore.Document

	generation uint64
}

// Change tells listeners a collection was rebuilt.
type Change struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

var ErrClosed = errors.New("mirror: closed")

// Mirror is the only writer of its lists. Subscription callbacks never touch
// them directly; they post CollectionChanged to a single consumer goroutine.
type Mirror struct {
	store  docstore.Store
	sink   advisory.Sink
	logger *zap.Logger

	events chan CollectionChanged
	closed chan struct{}
	once   sync.Once

	mu         sync.RWMutex
	userID     string
	generation uint64
	unsubs     []docstore.Unsubscribe
	tasks      []model.Task
	posts      []model.SocialMediaPost
	synced     map[string]bool

	lmu       sync.Mutex
	listeners map[int]chan Change
	nextID    int
}

func New(store docstore.Store, sink advisory.Sink, logger *zap.Logger) *Mirror {
	m := &Mirror{
		store:     store,
		sink:      sink,
		logger:    logger,
		events:    make(chan CollectionChanged, 16),
		closed:    make(chan struct{}),
		synced:    make(map[string]bool),
		listeners: make(map[int]chan Change),
	}
	go m.consume()
	return m
}

// Activate subscribes to the identity's tasks and posts. Activating the same
// identity twice is a no-op; a different identity replaces the current one.
func (m *Mirror) Activate(ctx context.Context, id identity.Identity) error {
	if id.UID == "" {
		return fmt.Errorf("mirror: identity without uid")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	if m.userID == id.UID {
		return nil
	}
	if m.userID != "" {
		m.deactivateLocked()
	}

	m.generation++
	gen := m.generation
	m.userID = id.UID

	for _, coll := range []string{model.CollectionTasks, model.CollectionPosts} {
		unsub, err := m.subscribe(ctx, id.UID, coll, gen)
		if err != nil {
			m.deactivateLocked()
			return fmt.Errorf("mirror: subscribe %s: %w", coll, err)
		}
		m.unsubs = append(m.unsubs, unsub)
	}

	m.logger.Info("Mirror activated", zap.String("user_id", id.UID), zap.Uint64("generation", gen))
	return nil
}

func (m *Mirror) subscribe(ctx context.Context, uid, collection string, gen uint64) (docstore.Unsubscribe, error) {
	path := docstore.CollectionPath(uid, collection)

	onNext := func(docs []docstore.Document) {
		select {
		case m.events <- CollectionChanged{Collection: collection, Documents: docs, generation: gen}:
		case <-m.closed:
		}
	}
	onError := func(err error) {
		if !m.current(gen) {
			return
		}
		m.logger.Warn("Subscription error",
			zap.String("user_id", uid),
			zap.String("collection", collection),
			zap.Error(err),
		)
		m.sink.Notify(advisory.Failure(
			"Error loading "+collection,
			docstore.MessageOf(err),
			string(docstore.CodeOf(err)),
		))
	}

	return m.store.Subscribe(ctx, path, onNext, onError)
}

// Deactivate cancels both subscriptions and empties the lists. Deliveries
// that arrive afterwards are dropped.
func (m *Mirror) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userID == "" {
		return
	}
	m.deactivateLocked()
	m.notify(Change{Collection: model.CollectionTasks})
	m.notify(Change{Collection: model.CollectionPosts})
}

func (m *Mirror) deactivateLocked() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.logger.Info("Mirror deactivated", zap.String("user_id", m.userID))
	m.unsubs = nil
	m.generation++
	m.userID = ""
	m.tasks = nil
	m.posts = nil
	m.synced = make(map[string]bool)
}

// Close stops the consumer goroutine and deactivates. A closed mirror cannot
// be activated again.
func (m *Mirror) Close() {
	m.once.Do(func() { close(m.closed) })
	m.Deactivate()
}

func (m *Mirror) current(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation == gen && m.userID != ""
}

func (m *Mirror) consume() {
	for {
		select {
		case <-m.closed:
			return
		case ev := <-m.events:
			m.apply(ev)
		}
	}
}

func (m *Mirror) apply(ev CollectionChanged) {
	m.mu.Lock()
	if ev.generation != m.generation || m.userID == "" {
		m.mu.Unlock()
		m.logger.Debug("Dropped stale delivery", zap.String("collection", ev.Collection))
		return
	}

	var (
		count   int
		skipped []string
	)
	switch ev.Collection {
	case model.CollectionTasks:
		m.tasks, skipped = model.TasksFromDocuments(ev.Documents)
		count = len(m.tasks)
	case model.CollectionPosts:
		m.posts, skipped = model.PostsFromDocuments(ev.Documents)
		count = len(m.posts)
	default:
		m.mu.Unlock()
		return
	}
	m.synced[ev.Collection] = true
	m.mu.Unlock()

	if len(skipped) > 0 {
		m.logger.Warn("Skipped undecodable documents",
			zap.String("collection", ev.Collection),
			zap.Strings("ids", skipped),
		)
	}
	m.notify(Change{Collection: ev.Collection, Count: count})
}

// Tasks returns a copy of the task list, newest first.
func (m *Mirror) Tasks() []model.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Posts returns a copy of the post list, newest first.
func (m *Mirror) Posts() []model.SocialMediaPost {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SocialMediaPost, len(m.posts))
	copy(out, m.posts)
	return out
}

func (m *Mirror) Task(id string) (model.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// TaskTitle is the label used in task advisories.
func (m *Mirror) TaskTitle(id string) (string, bool) {
	t, ok := m.Task(id)
	return t.Title, ok
}

// PostLabel is the label used in post advisories: the post's platform.
func (m *Mirror) PostLabel(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.posts {
		if p.ID == id {
			return string(p.Platform), true
		}
	}
	return "", false
}

// UserID is the active identity's uid, or "".
func (m *Mirror) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Synced reports whether both collections have delivered at least once since
// the last Activate.
func (m *Mirror) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced[model.CollectionTasks] && m.synced[model.CollectionPosts]
}

// Changes streams list rebuilds until the returned stop func is called.
func (m *Mirror) Changes() (<-chan Change, func()) {
	ch := make(chan Change, 16)

	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = ch
	m.lmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.lmu.Lock()
			delete(m.listeners, id)
			m.lmu.Unlock()
			close(ch)
		})
	}
}

func (m *Mirror) notify(c Change) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	for _, ch := range m.listeners {
		select {
		case ch <- c:
		default:
		}
	}
}
