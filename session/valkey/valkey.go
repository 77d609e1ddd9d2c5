// Package valkey keeps session storage in Valkey and fans changes out over pub/sub,
// so agents served by different processes observe each other's sign in and sign out.
package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pitabwire/util"
	"github.com/valkey-io/valkey-go"

	"github.com/tjddyd55-crypto/global-audition/session"
)

const (
	connectionTimeout = 5 * time.Second
	watchBuffer       = 64
)

// Store is a session.Store over Valkey strings plus one pub/sub channel.
type Store struct {
	client  valkey.Client
	prefix  string
	channel string
}

var _ session.Store = (*Store)(nil)

// New connects to the redis:// or valkey:// dsn. Keys are written under namespace.
func New(dsn, namespace string) (*Store, error) {
	opts, err := valkey.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Do(ctx, client.B().Ping().Build()).Error(); pingErr != nil {
		client.Close()
		return nil, pingErr
	}

	return &Store{
		client:  client,
		prefix:  namespace + ":session:",
		channel: namespace + ":session:changes",
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.prefix+key).Value(value).Build()).Error(); err != nil {
		return err
	}
	return s.publish(ctx, session.Change{Key: key, Value: value})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	removed, err := s.client.Do(ctx, s.client.B().Del().Key(s.prefix+key).Build()).AsInt64()
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	return s.publish(ctx, session.Change{Key: key, Deleted: true})
}

func (s *Store) publish(ctx context.Context, change session.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Publish().Channel(s.channel).Message(string(payload)).Build()).Error()
}

// Watch subscribes to the change channel. Changes published before the subscription
// is established are not delivered. The channel closes when the subscription ends or
// the reader falls a full buffer behind.
func (s *Store) Watch(ctx context.Context) (<-chan session.Change, error) {
	out := make(chan session.Change, watchBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer cancel()

		var lagging atomic.Bool
		err := s.client.Receive(subCtx, s.client.B().Subscribe().Channel(s.channel).Build(),
			func(msg valkey.PubSubMessage) {
				if lagging.Load() {
					return
				}
				var change session.Change
				if err := json.Unmarshal([]byte(msg.Message), &change); err != nil {
					util.Log(ctx).WithError(err).Warn("ignoring malformed session change")
					return
				}
				select {
				case out <- change:
				default:
					util.Log(ctx).WithField("key", change.Key).Warn("session watcher is not keeping up, closing it")
					lagging.Store(true)
					cancel()
				}
			})
		if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			util.Log(ctx).WithError(err).Error("session change subscription ended")
		}
	}()

	return out, nil
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
