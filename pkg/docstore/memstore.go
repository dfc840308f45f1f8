package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps documents in process. It backs the "memory" store driver and
// tests. Commit times are strictly increasing.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]*memDoc
	subs        map[string]map[uint64]*memSub
	nextSub     uint64
	seq         uint64
	lastCommit  time.Time
	now         func() time.Time
}

type memDoc struct {
	data map[string]any
	seq  uint64
}

type memSub struct {
	notify chan struct{}
	errs   chan error
	cancel context.CancelFunc
}

func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]*memDoc),
		subs:        make(map[string]map[uint64]*memSub),
		now:         time.Now,
	}
}

// commitTime must be called with mu held.
func (m *MemStore) commitTime() time.Time {
	t := m.now().UTC().Truncate(time.Microsecond)
	if !t.After(m.lastCommit) {
		t = m.lastCommit.Add(time.Microsecond)
	}
	m.lastCommit = t
	return t
}

func (m *MemStore) Add(ctx context.Context, path string, data map[string]any) (string, error) {
	if _, _, err := SplitPath(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", wrap(CodeUnavailable, err, "add")
	}

	m.mu.Lock()
	prepared, err := prepareWrite(data, m.commitTime())
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	id := uuid.NewString()
	coll := m.collections[path]
	if coll == nil {
		coll = make(map[string]*memDoc)
		m.collections[path] = coll
	}
	m.seq++
	coll[id] = &memDoc{data: prepared, seq: m.seq}
	m.notifyLocked(path)
	m.mu.Unlock()

	return id, nil
}

func (m *MemStore) Update(ctx context.Context, path, id string, data map[string]any) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrap(CodeUnavailable, err, "update")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[path][id]
	if !ok {
		return Errorf(CodeNotFound, "no document to update: %s/%s", path, id)
	}
	set, deletes := splitDeletes(data)
	prepared, err := prepareWrite(set, m.commitTime())
	if err != nil {
		return err
	}
	for k, v := range prepared {
		doc.data[k] = v
	}
	for _, k := range deletes {
		delete(doc.data, k)
	}
	m.notifyLocked(path)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, path, id string) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrap(CodeUnavailable, err, "delete")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[path][id]; !ok {
		return Errorf(CodeNotFound, "no document to delete: %s/%s", path, id)
	}
	delete(m.collections[path], id)
	m.notifyLocked(path)
	return nil
}

func (m *MemStore) Get(_ context.Context, path, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[path][id]
	if !ok {
		return Document{}, Errorf(CodeNotFound, "document %s/%s not found", path, id)
	}
	return Document{ID: id, Data: copyValue(doc.data).(map[string]any)}, nil
}

func (m *MemStore) List(_ context.Context, path string) ([]Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(path), nil
}

func (m *MemStore) snapshotLocked(path string) []Document {
	coll := m.collections[path]
	type entry struct {
		id  string
		doc *memDoc
	}
	entries := make([]entry, 0, len(coll))
	for id, doc := range coll {
		entries = append(entries, entry{id, doc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].doc.seq > entries[j].doc.seq })

	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = Document{ID: e.id, Data: copyValue(e.doc.data).(map[string]any)}
	}
	return docs
}

func (m *MemStore) Subscribe(ctx context.Context, path string, onNext func([]Document), onError func(error)) (Unsubscribe, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSub{
		notify: make(chan struct{}, 1),
		errs:   make(chan error, 8),
		cancel: cancel,
	}
	sub.notify <- struct{}{}

	m.mu.Lock()
	m.nextSub++
	subID := m.nextSub
	if m.subs[path] == nil {
		m.subs[path] = make(map[uint64]*memSub)
	}
	m.subs[path][subID] = sub
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.subs[path], subID)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-sub.notify:
				m.mu.Lock()
				docs := m.snapshotLocked(path)
				m.mu.Unlock()
				if subCtx.Err() != nil {
					return
				}
				onNext(docs)
			case err := <-sub.errs:
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return Unsubscribe(cancel), nil
}

// Interrupt reports err to every live subscription on path, the way a
// dropped connection would. Documents are untouched.
func (m *MemStore) Interrupt(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs[path] {
		select {
		case sub.errs <- err:
		default:
		}
	}
}

// notifyLocked coalesces change signals; a subscriber reads the latest
// snapshot when it wakes.
func (m *MemStore) notifyLocked(path string) {
	for _, sub := range m.subs[path] {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}
