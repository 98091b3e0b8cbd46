package bolt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	sberrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/topology/topologytest"
)

type memWriter struct {
	openErr  error
	writeErr error
	rows     []*message.OrderedMap
	ids      []string
	closed   bool
	deadline bool
}

func (w *memWriter) Open(context.Context) error { return w.openErr }

func (w *memWriter) Write(ctx context.Context, msg *message.StreamMessage, row *message.OrderedMap) error {
	_, w.deadline = ctx.Deadline()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.ids = append(w.ids, msg.Header.MessageID)
	w.rows = append(w.rows, row)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func newTestSink(t *testing.T, w *memWriter) (*Sink, *topologytest.Collector) {
	t.Helper()
	s, err := NewSink("test-sink", SinkConfig{}, converter.NewRawConverter(), w, nil, nil)
	require.NoError(t, err)
	c := topologytest.NewCollector()
	require.NoError(t, s.Prepare(context.Background(), c))
	return s, c
}

func messageTuple(v any) *topology.Tuple {
	return topology.NewTuple("t1", "src", topology.NewFields("key", FieldMessage), "k", v)
}

func TestSink_WritesAndAcks(t *testing.T) {
	w := &memWriter{}
	s, c := newTestSink(t, w)

	msg := message.New([]string{"a", "b"}, message.WithID("m1"), message.WithSource("dev"))
	tuple := messageTuple(msg)
	s.Execute(context.Background(), tuple)

	assert.Equal(t, 1, c.AckCount(tuple))
	require.Len(t, w.rows, 1)
	assert.Equal(t, "m1", w.ids[0])
	body, _ := w.rows[0].Get(converter.KeyBody)
	assert.Equal(t, []string{"a", "b"}, body)
	assert.True(t, w.deadline)

	s.Cleanup()
	assert.True(t, w.closed)
}

func TestSink_GenericMessageIsDecoded(t *testing.T) {
	w := &memWriter{}
	s, c := newTestSink(t, w)

	tuple := messageTuple(map[string]any{
		"header": map[string]any{"messageId": "m2", "source": "dev"},
		"body":   "payload",
	})
	s.Execute(context.Background(), tuple)

	assert.Equal(t, 1, c.AckCount(tuple))
	assert.Equal(t, []string{"m2"}, w.ids)
}

func TestSink_FailuresAreAckedAndDropped(t *testing.T) {
	tests := []struct {
		name  string
		w     *memWriter
		tuple *topology.Tuple
	}{
		{"missing field", &memWriter{}, topology.NewTuple("t", "src", topology.NewFields("other"), 1)},
		{"nil message", &memWriter{}, messageTuple(nil)},
		{"wrong type", &memWriter{}, messageTuple(42)},
		{"write error", &memWriter{writeErr: errors.New("down")}, messageTuple(message.New("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newTestSink(t, tt.w)
			s.Execute(context.Background(), tt.tuple)
			assert.Equal(t, 1, c.AckCount(tt.tuple))
			assert.Empty(t, c.Fails())
			assert.Empty(t, tt.w.rows)
		})
	}
}

func TestSink_PrepareFailure(t *testing.T) {
	s, err := NewSink("s", SinkConfig{}, converter.NewRawConverter(), &memWriter{openErr: errors.New("refused")}, nil, nil)
	require.NoError(t, err)
	err = s.Prepare(context.Background(), topologytest.NewCollector())
	assert.Error(t, err)
	assert.True(t, sberrors.IsInitializationFailed(err))
}

func TestSink_BadTimeout(t *testing.T) {
	_, err := NewSink("s", SinkConfig{WriteTimeout: "soon"}, converter.NewRawConverter(), &memWriter{}, nil, nil)
	assert.Error(t, err)
}

func TestSink_MetricsRegistered(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	w := &memWriter{}
	s, err := NewSink("metered", SinkConfig{}, converter.NewRawConverter(), w, nil, reg)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(context.Background(), topologytest.NewCollector()))

	s.Execute(context.Background(), messageTuple(message.New("x")))

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "stormbridge_sink_written_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)

	s.Cleanup()
	assert.False(t, reg.Unregister("metered", "sink_written"))
}

func TestBuildSink(t *testing.T) {
	deps := component.Dependencies{InstanceName: "es-1"}
	s, err := BuildSink("elasticsearch", SinkConfig{Converter: "snmp"}, &memWriter{}, deps)
	require.NoError(t, err)
	assert.Equal(t, "es-1", s.name)
	assert.Equal(t, converter.TypeSNMP, s.conv.Type())

	_, err = BuildSink("elasticsearch", SinkConfig{Converter: "nope"}, &memWriter{}, deps)
	assert.Error(t, err)
}
