// Package retry is used wherever stormbridge dials an external system that
// may not be up yet: the NATS connection at startup and spout reconnects.
//
// Errors wrapped with NonRetryable, or classified invalid or fatal by the
// errors package, end the loop immediately:
//
//	err := retry.Do(ctx, retry.Persistent(), func() error {
//	    return client.Connect(ctx)
//	})
//
//	conn, err := retry.DoWithResult(ctx, retry.Reconnect(time.Second, 10), dial)
package retry
