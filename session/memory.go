package session

import (
	"context"
	"sync"

	"github.com/pitabwire/util"
)

const watchBuffer = 64

// MemoryStore is an in-process Store. Every watcher sees every write, including its own agent's,
// until it falls a full buffer behind and is closed.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[chan Change]struct{}
	closed   bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   map[string]string{},
		watchers: map[chan Change]struct{}{},
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	m.values[key] = value
	m.mu.Unlock()

	m.broadcast(ctx, Change{Key: key, Value: value})
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	_, existed := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()

	if existed {
		m.broadcast(ctx, Change{Key: key, Deleted: true})
	}
	return nil
}

// broadcast hands change to every watcher. A watcher whose buffer is full is closed
// instead, so its owner knows to watch again and re-read.
func (m *MemoryStore) broadcast(ctx context.Context, change Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.watchers {
		select {
		case ch <- change:
		default:
			util.Log(ctx).WithField("key", change.Key).Warn("session watcher is not keeping up, closing it")
			delete(m.watchers, ch)
			close(ch)
		}
	}
}

func (m *MemoryStore) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, watchBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrStoreClosed
	}
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[ch]; ok {
			delete(m.watchers, ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Close ends every watch and rejects further use.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.watchers {
		delete(m.watchers, ch)
		close(ch)
	}
	return nil
}
