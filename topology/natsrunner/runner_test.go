package natsrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/converter"
	sberrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/topology"
)

type published struct {
	subject string
	data    []byte
}

type fakeTransport struct {
	mu         sync.Mutex
	handler    func(jetstream.Msg)
	published  []published
	publishErr error
	consumeErr error
	stopped    bool
}

func (f *fakeTransport) PublishToStream(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{subject: subject, data: data})
	return nil
}

func (f *fakeTransport) Consume(_ context.Context, _, _, _ string, handler func(jetstream.Msg)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return f.consumeErr
	}
	f.handler = handler
	return nil
}

func (f *fakeTransport) StopConsumer(_, _ string) {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTransport) getHandler() func(jetstream.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeTransport) publishedCopy() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// fakeMsg overrides the acknowledgement methods the runner uses.
type fakeMsg struct {
	jetstream.Msg
	data []byte

	mu    sync.Mutex
	state string
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) settle(state string) error {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return nil
}

func (m *fakeMsg) Ack() error  { return m.settle("ack") }
func (m *fakeMsg) Nak() error  { return m.settle("nak") }
func (m *fakeMsg) Term() error { return m.settle("term") }

func (m *fakeMsg) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// upperBolt emits the "word" field back out and fails on "bad".
type upperBolt struct {
	collector  topology.Collector
	prepareErr error
	cleaned    bool
}

func (b *upperBolt) Prepare(_ context.Context, c topology.Collector) error {
	b.collector = c
	return b.prepareErr
}

func (b *upperBolt) Execute(_ context.Context, t *topology.Tuple) {
	word, _ := t.Value("word")
	switch word {
	case "bad":
		b.collector.Fail(t)
	case "boom":
		panic("boom")
	default:
		_ = b.collector.Emit(t, word)
		b.collector.Ack(t)
	}
}

func (b *upperBolt) Cleanup() { b.cleaned = true }

func (b *upperBolt) DeclareOutputFields() topology.Fields { return topology.NewFields("out") }

func encodeWord(t *testing.T, word string) []byte {
	t.Helper()
	data, err := DefaultCodec().Encode(topology.NewTuple("t-"+word, "src", topology.NewFields("word"), word))
	require.NoError(t, err)
	return data
}

func startBolt(t *testing.T, transport *fakeTransport, bolt topology.Bolt) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	r := New(transport)
	go func() {
		done <- r.RunBolt(ctx, BoltConfig{Name: "upper", Input: "in", Output: "out"}, bolt)
	}()
	require.Eventually(t, func() bool { return transport.getHandler() != nil }, time.Second, time.Millisecond)
	return cancel, done
}

func TestRunBolt_AckFailAndEmit(t *testing.T) {
	transport := &fakeTransport{}
	bolt := &upperBolt{}
	cancel, done := startBolt(t, transport, bolt)

	good := &fakeMsg{data: encodeWord(t, "hello")}
	bad := &fakeMsg{data: encodeWord(t, "bad")}
	handler := transport.getHandler()
	handler(good)
	handler(bad)

	require.Eventually(t, func() bool { return good.State() == "ack" && bad.State() == "nak" },
		time.Second, time.Millisecond)

	pubs := transport.publishedCopy()
	require.Len(t, pubs, 1)
	assert.Equal(t, "out", pubs[0].subject)

	out, err := DefaultCodec().Decode(pubs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "upper", out.Component)
	v, ok := out.Value("out")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, bolt.cleaned)
	assert.True(t, transport.stopped)
}

func TestRunBolt_UndecodableIsTerminated(t *testing.T) {
	transport := &fakeTransport{}
	cancel, done := startBolt(t, transport, &upperBolt{})

	msg := &fakeMsg{data: []byte("not a tuple")}
	transport.getHandler()(msg)
	require.Eventually(t, func() bool { return msg.State() == "term" }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunBolt_PanicFailsTupleAndContinues(t *testing.T) {
	transport := &fakeTransport{}
	cancel, done := startBolt(t, transport, &upperBolt{})

	boom := &fakeMsg{data: encodeWord(t, "boom")}
	next := &fakeMsg{data: encodeWord(t, "next")}
	handler := transport.getHandler()
	handler(boom)
	handler(next)

	require.Eventually(t, func() bool { return boom.State() == "nak" && next.State() == "ack" },
		time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunBolt_PrepareFailure(t *testing.T) {
	r := New(&fakeTransport{})
	err := r.RunBolt(context.Background(), BoltConfig{Name: "upper"}, &upperBolt{prepareErr: errors.New("no db")})
	require.Error(t, err)
	assert.True(t, sberrors.IsInitializationFailed(err))
}

func TestRunBolt_ConsumeFailure(t *testing.T) {
	bolt := &upperBolt{}
	r := New(&fakeTransport{consumeErr: errors.New("no stream")})
	err := r.RunBolt(context.Background(), BoltConfig{Name: "upper"}, bolt)
	require.Error(t, err)
	assert.True(t, sberrors.IsInitializationFailed(err))
	assert.True(t, bolt.cleaned)
}

// listSpout emits each queued word once per NextTuple call.
type listSpout struct {
	mu        sync.Mutex
	collector topology.SpoutCollector
	queue     []string
	acked     []string
	failed    []string
	closed    bool
}

func (s *listSpout) Open(_ context.Context, c topology.SpoutCollector) error {
	s.collector = c
	return nil
}

func (s *listSpout) NextTuple(_ context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	word := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	_ = s.collector.Emit(word, message.New(word))
}

func (s *listSpout) Ack(id string) {
	s.mu.Lock()
	s.acked = append(s.acked, id)
	s.mu.Unlock()
}

func (s *listSpout) Fail(id string) {
	s.mu.Lock()
	s.failed = append(s.failed, id)
	s.mu.Unlock()
}

func (s *listSpout) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *listSpout) DeclareOutputFields() topology.Fields { return topology.NewFields("message") }

func (s *listSpout) snapshot() (acked, failed []string, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...), append([]string(nil), s.failed...), s.closed
}

func TestRunSpout_AcksPublishedTuples(t *testing.T) {
	transport := &fakeTransport{}
	spout := &listSpout{queue: []string{"a", "b"}}
	r := New(transport, WithIdleWait(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunSpout(ctx, SpoutConfig{Name: "list", Output: "raw"}, spout) }()

	require.Eventually(t, func() bool {
		acked, _, _ := spout.snapshot()
		return len(acked) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	acked, failed, closed := spout.snapshot()
	assert.Equal(t, []string{"a", "b"}, acked)
	assert.Empty(t, failed)
	assert.True(t, closed)

	pubs := transport.publishedCopy()
	require.Len(t, pubs, 2)
	tuple, err := DefaultCodec().Decode(pubs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "a", tuple.ID)
	v, _ := tuple.Value("message")
	msg, ok := v.(*message.StreamMessage)
	require.True(t, ok)
	assert.Equal(t, "a", msg.Body)
}

func TestRunSpout_FailsOnPublishError(t *testing.T) {
	transport := &fakeTransport{publishErr: errors.New("stream full")}
	spout := &listSpout{queue: []string{"a"}}
	r := New(transport, WithIdleWait(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunSpout(ctx, SpoutConfig{Name: "list", Output: "raw"}, spout) }()

	require.Eventually(t, func() bool {
		_, failed, _ := spout.snapshot()
		return len(failed) == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	acked, failed, _ := spout.snapshot()
	assert.Empty(t, acked)
	assert.Equal(t, []string{"a"}, failed)
}

func TestDefaultCodec_RoundTripsRecordsAndTraps(t *testing.T) {
	codec := DefaultCodec()
	record := converter.RawRecord{ID: "r1", Source: "mqtt", Payload: []byte("hi"), Timestamp: time.UnixMilli(1000).UTC()}
	trap := &converter.SNMPTrap{
		Source:    "10.0.0.1",
		Community: "public",
		Variables: []converter.SNMPVariable{{OID: converter.TrapOID, Value: "1.3.6.1.4.1.9"}},
	}
	in := topology.NewTuple("1", "src", topology.NewFields("record", "trap"), record, trap)

	data, err := codec.Encode(in)
	require.NoError(t, err)
	out, err := codec.Decode(data)
	require.NoError(t, err)

	gotRecord, ok := out.Values[0].(converter.RawRecord)
	require.True(t, ok)
	assert.Equal(t, "r1", gotRecord.ID)
	assert.Equal(t, []byte("hi"), gotRecord.Payload)

	gotTrap, ok := out.Values[1].(*converter.SNMPTrap)
	require.True(t, ok)
	assert.Equal(t, "public", gotTrap.Community)
	assert.Equal(t, converter.TrapOID, gotTrap.Variables[0].OID)
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "cache_lookup_users", durableName("cache.lookup.users"))
	assert.Equal(t, "plain-name", durableName("plain-name"))
}
