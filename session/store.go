// Package session keeps the visitor's auth token in durable storage and tracks it as observable state.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrStoreClosed is returned by operations on a closed Store.
var ErrStoreClosed = errors.New("session store closed")

// Change describes one write observed on a Store.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store is durable key value storage shared by every agent of a visitor, local or remote.
// Writes are visible to Get before the matching Change is delivered to watchers.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Watch streams changes made by any writer until ctx is done. The channel may also
	// close early, for example when the reader falls behind or the connection drops;
	// changes can then have been missed and the caller should re-read.
	Watch(ctx context.Context) (<-chan Change, error)
	Close() error
}

// KeySeparator joins scope namespaces and keys.
const KeySeparator = "."

type scoped struct {
	Store
	prefix string
}

// Scope returns a view of store whose keys live under namespace. Close on the view is a no-op.
func Scope(store Store, namespace string) Store {
	return &scoped{Store: store, prefix: namespace + KeySeparator}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.Store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.Store.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.Store.Delete(ctx, s.prefix+key)
}

func (s *scoped) Watch(ctx context.Context) (<-chan Change, error) {
	upstream, err := s.Store.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Change, cap(upstream))
	go func() {
		defer close(out)
		for change := range upstream {
			key, ok := strings.CutPrefix(change.Key, s.prefix)
			if !ok {
				continue
			}
			change.Key = key
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *scoped) Close() error {
	return nil
}
