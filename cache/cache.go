package cache

import (
	"context"
	"sync"
	"time"
)

// RawCache is the low-level byte store the query layer keeps payloads in.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}

// Namespaced prefixes every key written through it so several owners can share one backend.
// Flush only removes keys written through this view, Close does not close the backend.
type Namespaced struct {
	raw    RawCache
	prefix string
	keys   sync.Map // map[string]struct{}
}

// NewNamespaced returns a view of raw whose keys are prefixed with namespace and ':'.
func NewNamespaced(raw RawCache, namespace string) *Namespaced {
	return &Namespaced{raw: raw, prefix: namespace + ":"}
}

func (n *Namespaced) key(k string) string {
	return n.prefix + k
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.raw.Get(ctx, n.key(key))
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := n.raw.Set(ctx, n.key(key), value, ttl); err != nil {
		return err
	}
	n.keys.Store(key, struct{}{})
	return nil
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	n.keys.Delete(key)
	return n.raw.Delete(ctx, n.key(key))
}

func (n *Namespaced) Exists(ctx context.Context, key string) (bool, error) {
	return n.raw.Exists(ctx, n.key(key))
}

func (n *Namespaced) Flush(ctx context.Context) error {
	var firstErr error
	n.keys.Range(func(k, _ any) bool {
		key, _ := k.(string)
		if err := n.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

func (n *Namespaced) Close() error {
	return nil
}
