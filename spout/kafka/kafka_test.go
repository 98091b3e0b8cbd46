package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/topology/topologytest"
	"github.com/c360/stormbridge/types"
)

type fakeReader struct {
	messages  []kafkago.Message
	fetchErr  error
	commitErr error
	committed []kafkago.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if r.fetchErr != nil {
		return kafkago.Message{}, r.fetchErr
	}
	if len(r.messages) == 0 {
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"kafka:9092"}
	cfg.Topic = "events"
	cfg.GroupID = "stormbridge"
	cfg.ReceiveWait = "5ms"
	return cfg
}

func openSpout(t *testing.T, cfg Config, r *fakeReader) (*Spout, *topologytest.Collector) {
	t.Helper()
	s, err := New("kafka-test", cfg, nil, nil)
	require.NoError(t, err)
	s.newReader = func(rc kafkago.ReaderConfig) reader {
		assert.Equal(t, cfg.Topic, rc.Topic)
		assert.Equal(t, cfg.GroupID, rc.GroupID)
		return r
	}
	c := topologytest.NewCollector()
	require.NoError(t, s.Open(context.Background(), c.SpoutCollector()))
	return s, c
}

func message(offset int64, key, value string) kafkago.Message {
	return kafkago.Message{
		Topic:     "events",
		Partition: 2,
		Offset:    offset,
		Key:       []byte(key),
		Value:     []byte(value),
		Headers:   []kafkago.Header{{Key: "origin", Value: []byte("edge")}},
		Time:      time.Unix(1700000000, 0),
	}
}

func TestSpout_EmitAndCommit(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{message(10, "k1", "v1"), message(11, "k2", "v2")}}
	s, c := openSpout(t, testConfig(), r)

	s.NextTuple(context.Background())
	s.NextTuple(context.Background())
	require.Len(t, c.Emits(), 2)

	record := c.Emits()[0].Values[0].(converter.RawRecord)
	assert.Equal(t, "events", record.Source)
	assert.Equal(t, "k1", record.Key)
	assert.Equal(t, []byte("v1"), record.Payload)
	assert.Equal(t, "2", record.Headers["partition"])
	assert.Equal(t, "10", record.Headers["offset"])
	assert.Equal(t, "edge", record.Headers["origin"])
	assert.Equal(t, time.Unix(1700000000, 0), record.Timestamp)

	s.Ack(c.Emits()[0].ID)
	s.Fail(c.Emits()[1].ID)
	s.Ack(c.Emits()[1].ID)

	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(10), r.committed[0].Offset)
	assert.Zero(t, s.pending.Len())

	require.NoError(t, s.Close())
	assert.True(t, r.closed)
}

func TestSpout_IdleFetchEmitsNothing(t *testing.T) {
	r := &fakeReader{}
	s, c := openSpout(t, testConfig(), r)

	s.NextTuple(context.Background())
	assert.Empty(t, c.Emits())
	assert.Empty(t, c.Errors())
}

func TestSpout_FetchErrorIsReported(t *testing.T) {
	r := &fakeReader{fetchErr: errors.New("broker unreachable")}
	s, c := openSpout(t, testConfig(), r)

	s.NextTuple(context.Background())
	assert.Empty(t, c.Emits())
	assert.Len(t, c.Errors(), 1)
}

func TestSpout_CommitFailureKeepsGoing(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{message(1, "", "x")}, commitErr: errors.New("rebalance")}
	s, c := openSpout(t, testConfig(), r)

	s.NextTuple(context.Background())
	s.Ack(c.Emits()[0].ID)
	assert.Empty(t, r.committed)
	assert.Zero(t, s.pending.Len())
}

func TestSpout_EmitErrorForgetsMessage(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{message(1, "", "x")}}
	s, c := openSpout(t, testConfig(), r)
	c.EmitErr = errors.New("publish failed")

	s.NextTuple(context.Background())
	assert.Zero(t, s.pending.Len())
}

func TestConfig_ReaderConfig(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, kafkago.FirstOffset, cfg.ReaderConfig().StartOffset)
	cfg.StartOffset = StartLatest
	assert.Equal(t, kafkago.LastOffset, cfg.ReaderConfig().StartOffset)
}

func TestConfig_Validate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Brokers = nil },
		func(c *Config) { c.Topic = "" },
		func(c *Config) { c.GroupID = "" },
		func(c *Config) { c.StartOffset = "middle" },
		func(c *Config) { c.MaxBytes = 0 },
		func(c *Config) { c.CommitTimeout = "soon" },
	} {
		cfg := testConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	inst, err := registry.CreateComponent("kafka-1", types.ComponentConfig{
		Type:   types.ComponentTypeSpout,
		Name:   "kafka",
		Output: "stormbridge.raw.kafka",
		Config: json.RawMessage(`{"brokers":["kafka:9092"],"topic":"events","group_id":"g"}`),
	}, component.Dependencies{})
	require.NoError(t, err)
	s := inst.Spout.(*Spout)
	assert.Equal(t, StartFirst, s.cfg.StartOffset)
	assert.Equal(t, 5*time.Second, s.commitTimeout)
	assert.Equal(t, "kafka-1", s.name)
}
