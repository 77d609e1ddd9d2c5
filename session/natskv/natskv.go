// Package natskv keeps session storage in a NATS JetStream key value bucket.
// The bucket watcher is the change feed, so every process attached to the bucket converges.
package natskv

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/cache/jetstream"
	"github.com/tjddyd55-crypto/global-audition/session"
)

const watchBuffer = 64

// Store is a session.Store over a JetStream KV bucket.
type Store struct {
	conn   *nats.Conn
	bucket nats.KeyValue
}

var _ session.Store = (*Store)(nil)

// New connects to the nats:// dsn and opens, or creates, the bucket named after namespace.
func New(dsn, namespace string) (*Store, error) {
	conn, err := nats.Connect(dsn)
	if err != nil {
		return nil, err
	}

	bucket, err := jetstream.OpenBucket(conn, &nats.KeyValueConfig{
		Bucket:      namespace + "-session",
		Description: "visitor session storage",
		History:     1,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Store{conn: conn, bucket: bucket}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	entry, err := s.bucket.Get(jetstream.EncodeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(entry.Value()), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	_, err := s.bucket.PutString(jetstream.EncodeKey(key), value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, found, err := s.Get(ctx, key); err != nil || !found {
		return err
	}
	return s.bucket.Delete(jetstream.EncodeKey(key))
}

// Watch follows every update made to the bucket after the call.
func (s *Store) Watch(ctx context.Context) (<-chan session.Change, error) {
	watcher, err := s.bucket.WatchAll(nats.UpdatesOnly(), nats.Context(ctx))
	if err != nil {
		return nil, err
	}

	out := make(chan session.Change, watchBuffer)
	go func() {
		defer close(out)
		defer func() {
			if stopErr := watcher.Stop(); stopErr != nil && !errors.Is(stopErr, nats.ErrBadSubscription) {
				util.Log(ctx).WithError(stopErr).Debug("could not stop session watcher")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				change, decodeErr := changeFromEntry(entry.Operation(), entry.Key(), entry.Value())
				if decodeErr != nil {
					util.Log(ctx).WithError(decodeErr).Warn("ignoring session change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func changeFromEntry(op nats.KeyValueOp, key string, value []byte) (session.Change, error) {
	decoded, err := jetstream.DecodeKey(key)
	if err != nil {
		return session.Change{}, err
	}
	if op == nats.KeyValuePut {
		return session.Change{Key: decoded, Value: string(value)}, nil
	}
	return session.Change{Key: decoded, Deleted: true}, nil
}

func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
