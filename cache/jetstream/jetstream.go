package jetstream

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tjddyd55-crypto/global-audition/cache"
)

// Cache is a RawCache over a NATS JetStream key value bucket.
// Entry lifetime is the bucket TTL, per key TTLs are ignored.
type Cache struct {
	conn   *nats.Conn
	bucket nats.KeyValue
}

// New connects to the nats:// DSN and opens, or creates, the bucket named by the Name option.
func New(opts ...cache.Option) (*Cache, error) {
	cacheOpts := cache.NewOptions(cache.Options{Name: "query", MaxAge: time.Hour}, opts...)

	conn, err := nats.Connect(cacheOpts.DSN)
	if err != nil {
		return nil, err
	}

	bucket, err := OpenBucket(conn, &nats.KeyValueConfig{
		Bucket: cacheOpts.Name,
		TTL:    cacheOpts.MaxAge,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Cache{conn: conn, bucket: bucket}, nil
}

// OpenBucket creates the bucket described by cfg or returns a handle to the existing one.
func OpenBucket(conn *nats.Conn, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.CreateKeyValue(cfg)
	if err != nil {
		var apiErr *nats.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode != nats.JSErrCodeStreamNameInUse {
			return nil, err
		}
		bucket, err = js.KeyValue(cfg.Bucket)
		if err != nil {
			return nil, err
		}
	}

	if _, err = bucket.Status(); err != nil {
		return nil, err
	}
	return bucket, nil
}

// EncodeKey maps arbitrary cache keys onto the KV key alphabet.
// Bytes outside [-_/.a-zA-Z0-9] become '=' followed by two hex digits.
func EncodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := range len(key) {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '/':
			b.WriteByte(c)
		case c == '.' && i > 0 && i < len(key)-1 && key[i-1] != '.':
			b.WriteByte(c)
		default:
			b.WriteByte('=')
			b.WriteString(hex.EncodeToString([]byte{c}))
		}
	}
	return b.String()
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) (string, error) {
	if !strings.Contains(key, "=") {
		return key, nil
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		if key[i] != '=' {
			b.WriteByte(key[i])
			continue
		}
		if i+2 >= len(key) {
			return "", fmt.Errorf("truncated escape in key %q", key)
		}
		raw, err := hex.DecodeString(key[i+1 : i+3])
		if err != nil {
			return "", fmt.Errorf("bad escape in key %q: %w", key, err)
		}
		b.Write(raw)
		i += 2
	}
	return b.String(), nil
}

// Get retrieves an item from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := c.bucket.Get(EncodeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores value under key.
func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.bucket.Put(EncodeKey(key), value)
	return err
}

// Delete removes an item from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	err := c.bucket.Delete(EncodeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Exists checks if a key exists in the cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// Flush deletes every key in the bucket.
func (c *Cache) Flush(_ context.Context) error {
	keys, err := c.bucket.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}

	for _, key := range keys {
		if err = c.bucket.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the NATS connection.
func (c *Cache) Close() error {
	c.conn.Close()
	return nil
}
