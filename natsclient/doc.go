// Package natsclient wraps a single NATS connection for the stormbridge
// runtime.
//
// The Client connects with a context-bounded dial, tracks connection status
// through the nats.go event handlers and drains on Close. On top of the
// connection it exposes the JetStream operations the runtime needs:
//
//   - EnsureStream and PublishToStream for tuple streams between components
//   - Consume for durable, explicitly acknowledged consumers; the handler
//     decides between Ack and Nak for each message
//   - CreateKeyValueBucket and KVStore for the natskv cache backend
//
// Basic use:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithClientName("stormbridge"))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// TestClient starts a NATS server in a container for integration tests.
package natsclient
