// Package cache provides an in-process, size-bounded LRU cache with an
// optional time-to-live per entry.
//
// It backs the "local" remote cache kind, which lets topologies run without
// an external cache server and gives tests a real cache to talk to.
//
//	c, err := cache.New[[]byte](cache.Config{MaxSize: 1000, TTL: time.Minute})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.Set("user-1", []byte(`{"name":"Ada"}`))
//	v, ok := c.Get("user-1")
//
// Statistics are always collected. Prometheus export is enabled with
// WithMetrics.
package cache
