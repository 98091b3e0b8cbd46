package remotecache

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/stormbridge/errors"
)

const redisPingTimeout = 5 * time.Second

// redisCache stores entries under "<name>:<key>".
type redisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// openRedis connects a single client for one URL and a cluster client for
// several.
func openRedis(ctx context.Context, spec Spec, _ Deps) (ByteCache, io.Closer, error) {
	addrs := make([]string, 0, len(spec.URLs))
	for _, raw := range spec.URLs {
		addr, err := redisAddr(raw)
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Username: spec.Username,
		Password: spec.Password,
		DB:       spec.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.WrapTransient(err, "redisCache", "open", "ping")
	}

	return &redisCache{client: client, prefix: spec.Name + ":", ttl: spec.TTL()}, client, nil
}

// redisAddr accepts host:port or a redis:// URL.
func redisAddr(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.WrapInvalid(err, "redisCache", "open", "parse url")
	}
	if u.Host == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "redisCache", "open", "url has no host: "+raw)
	}
	return u.Host, nil
}

// Get implements cachebolt.RemoteCache.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put implements cachebolt.RemoteCache.
func (c *redisCache) Put(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}
