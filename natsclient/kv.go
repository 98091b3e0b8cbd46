package natsclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stormbridge/errors"
)

// Well-known KV errors
var (
	ErrKVKeyNotFound   = errors.New("kv: key not found")
	ErrKVValueTooLarge = errors.New("kv: value too large")
)

// encodedKeyPrefix marks keys that were base64-encoded by EncodeKey.
const encodedKeyPrefix = "b64."

// KVOptions configures KV operations behavior
type KVOptions struct {
	Timeout      time.Duration // per-operation timeout, 0 for none
	MaxValueSize int           // largest accepted value, 0 for no limit
}

// DefaultKVOptions returns the defaults used by NewKVStore
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1 << 20,
	}
}

// KVStore is a JetStream key-value bucket used as a byte cache. Keys may
// contain any characters; see EncodeKey.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore creates a KV store over bucket
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options}
}

// Bucket returns the bucket name
func (kv *KVStore) Bucket() string {
	return kv.bucket.Bucket()
}

// EncodeKey maps an arbitrary cache key onto the KV key alphabet
// ([-/_=.a-zA-Z0-9], no leading or trailing dot). Keys already in it are
// kept so they stay readable with the nats CLI.
func EncodeKey(key string) string {
	if validKVKey(key) && !strings.HasPrefix(key, encodedKeyPrefix) {
		return key
	}
	return encodedKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func validKVKey(key string) bool {
	if key == "" || key[0] == '.' || key[len(key)-1] == '.' {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '/', r == '_', r == '=', r == '.':
		default:
			return false
		}
	}
	return true
}

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get returns the value under key, or ErrKVKeyNotFound
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, EncodeKey(key))
	switch {
	case IsKVNotFoundError(err):
		return nil, ErrKVKeyNotFound
	case err != nil:
		return nil, errors.WrapTransient(err, "KVStore", "Get", fmt.Sprintf("get %s/%s", kv.Bucket(), key))
	}
	return entry.Value(), nil
}

// Put stores value under key, last writer wins, and returns the revision.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if limit := kv.options.MaxValueSize; limit > 0 && len(value) > limit {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes > %d", ErrKVValueTooLarge, len(value), limit),
			"KVStore", "Put", "put "+key)
	}

	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, EncodeKey(key), value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", fmt.Sprintf("put %s/%s", kv.Bucket(), key))
	}
	return rev, nil
}

// Delete removes key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	err := kv.bucket.Delete(ctx, EncodeKey(key))
	switch {
	case IsKVNotFoundError(err):
		return ErrKVKeyNotFound
	case err != nil:
		return errors.WrapTransient(err, "KVStore", "Delete", fmt.Sprintf("delete %s/%s", kv.Bucket(), key))
	}
	return nil
}

// IsKVNotFoundError checks if error indicates key not found
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVKeyNotFound) || errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}
