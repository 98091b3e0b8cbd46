package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const natsImage = "nats:2.11.7-alpine"

// TestClient is a connected Client backed by a throwaway NATS container.
type TestClient struct {
	Client *Client
	URL    string
}

type harness struct {
	jetstream bool
	buckets   []string
	streams   []jetstream.StreamConfig
}

// TestOption configures NewTestClient.
type TestOption func(*harness)

// WithJetStream starts the server with JetStream enabled.
func WithJetStream() TestOption {
	return func(h *harness) { h.jetstream = true }
}

// WithKVBuckets creates the named buckets once the client is connected.
func WithKVBuckets(buckets ...string) TestOption {
	return func(h *harness) {
		h.jetstream = true
		h.buckets = append(h.buckets, buckets...)
	}
}

// WithStreams creates the streams once the client is connected.
func WithStreams(streams ...jetstream.StreamConfig) TestOption {
	return func(h *harness) {
		h.jetstream = true
		h.streams = append(h.streams, streams...)
	}
}

// NewTestClient starts NATS in a container and connects a Client to it.
// The test is skipped when no container provider is available. Everything
// is torn down when t finishes.
func NewTestClient(t *testing.T, opts ...TestOption) *TestClient {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	var h harness
	for _, opt := range opts {
		opt(&h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	container, err := startNATS(ctx, h.jetstream)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := clientURL(ctx, container)
	if err != nil {
		t.Fatalf("nats url: %v", err)
	}

	client, err := NewClient(url, WithTimeout(5*time.Second), WithMaxReconnects(0))
	if err != nil {
		t.Fatalf("nats client: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect %s: %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	tc := &TestClient{Client: client, URL: url}
	for _, stream := range h.streams {
		if _, err := client.EnsureStream(ctx, stream); err != nil {
			t.Fatalf("stream %s: %v", stream.Name, err)
		}
	}
	for _, bucket := range h.buckets {
		if _, err := tc.CreateKVBucket(ctx, bucket); err != nil {
			t.Fatalf("bucket %s: %v", bucket, err)
		}
	}
	return tc
}

func startNATS(ctx context.Context, withJetStream bool) (testcontainers.Container, error) {
	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if withJetStream {
		cmd = append(cmd, "--js")
	}

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp"),
			),
		},
		Started: true,
	})
}

func clientURL(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}

// CreateKVBucket creates or returns the bucket called name.
func (tc *TestClient) CreateKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	return tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: name})
}
