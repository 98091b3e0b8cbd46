package cachebolt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/topology/topologytest"
)

type putCall struct {
	key   string
	value string
}

// fakeCache records every call and can be told to fail.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	puts   []putCall
	gets   []string
	putErr error
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, key)
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Put(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{key, value})
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = value
	return nil
}

func messageTuple(key string, body any) *topology.Tuple {
	msg := message.New(body, message.WithID("m-1"), message.WithKey(key))
	return topology.NewTuple("t-1", "convert", topology.NewFields("key", "message"), key, msg)
}

func stringMapper() *FieldMapper[string, string] {
	return NewStringFieldMapper("message.header.messageKey", "message.body", ".")
}

func prepared[B topology.Bolt](t *testing.T, b B) *topologytest.Collector {
	t.Helper()
	collector := topologytest.NewCollector()
	require.NoError(t, b.Prepare(context.Background(), collector))
	return collector
}

func TestStore_KeyFailureSkipsPut(t *testing.T) {
	cache := newFakeCache()
	bolt := NewStoreBolt[string, string](cache, stringMapper(), StoreHooks[string, string]{}, Options{Name: "store"})
	collector := prepared(t, bolt)

	// no "message" field, so the key path cannot resolve
	tuple := topology.NewTuple("t-1", "src", topology.NewFields("other"), "x")
	bolt.Execute(context.Background(), tuple)

	assert.Empty(t, cache.puts)
	assert.Equal(t, 1, collector.AckCount(tuple))
	assert.Empty(t, collector.Fails())
	assert.Equal(t, 1.0, testutil.ToFloat64(bolt.metrics.failures.WithLabelValues(stageKey)))
}

func TestStore_ValueFailureSkipsPut(t *testing.T) {
	cache := newFakeCache()
	mapper := NewFieldMapper("message.header.messageKey", "message.body", ".",
		StringOf, func(any) (string, error) { return "", errors.New("bad value") })
	bolt := NewStoreBolt[string, string](cache, mapper, StoreHooks[string, string]{}, Options{Name: "store"})
	collector := prepared(t, bolt)

	tuple := messageTuple("k", "v")
	bolt.Execute(context.Background(), tuple)

	assert.Empty(t, cache.puts)
	assert.Equal(t, 1, collector.AckCount(tuple))
}

func TestStore_PutFailureAcksWithoutHook(t *testing.T) {
	cache := newFakeCache()
	cache.putErr = errors.New("connection refused")
	hookCalled := false
	hooks := StoreHooks[string, string]{
		PostStore: func(topology.Collector, *topology.Tuple, string, string) { hookCalled = true },
	}
	bolt := NewStoreBolt[string, string](cache, stringMapper(), hooks, Options{Name: "store"})
	collector := prepared(t, bolt)

	tuple := messageTuple("k", "v")
	bolt.Execute(context.Background(), tuple)

	assert.Len(t, cache.puts, 1)
	assert.False(t, hookCalled)
	assert.Equal(t, 1, collector.AckCount(tuple))
	assert.Equal(t, 1.0, testutil.ToFloat64(bolt.metrics.failures.WithLabelValues(stagePut)))
}

func TestStore_PostHookSeesPutArgumentsBeforeAck(t *testing.T) {
	cache := newFakeCache()
	var (
		order       []string
		hookTuple   *topology.Tuple
		hookKey     string
		hookValue   string
		acksAtHook  int
		collectorAt *topologytest.Collector
	)
	hooks := StoreHooks[string, string]{
		PreStore: func(*topology.Tuple) { order = append(order, "pre") },
		PostStore: func(_ topology.Collector, tuple *topology.Tuple, key, value string) {
			order = append(order, "post")
			hookTuple, hookKey, hookValue = tuple, key, value
			acksAtHook = collectorAt.AckCount(tuple)
		},
	}
	bolt := NewStoreBolt[string, string](cache, stringMapper(), hooks, Options{Name: "store"})
	collectorAt = prepared(t, bolt)

	tuple := messageTuple("user-1", "hello")
	bolt.Execute(context.Background(), tuple)

	require.Len(t, cache.puts, 1)
	assert.Equal(t, []string{"pre", "post"}, order)
	assert.Same(t, tuple, hookTuple)
	assert.Equal(t, cache.puts[0].key, hookKey)
	assert.Equal(t, cache.puts[0].value, hookValue)
	assert.Equal(t, 0, acksAtHook)
	assert.Equal(t, 1, collectorAt.AckCount(tuple))
	assert.Equal(t, 1.0, testutil.ToFloat64(bolt.metrics.stored))
}

func TestStore_StructuredValueStoredAsJSON(t *testing.T) {
	cache := newFakeCache()
	bolt := NewStoreBolt[string, string](cache, stringMapper(), StoreHooks[string, string]{}, Options{Name: "store"})
	prepared(t, bolt)

	bolt.Execute(context.Background(), messageTuple("k", []string{"a", "b"}))

	require.Len(t, cache.puts, 1)
	assert.JSONEq(t, `["a","b"]`, cache.puts[0].value)
}

func TestLookup_MissAndErrorPassNilValue(t *testing.T) {
	tests := []struct {
		name   string
		getErr error
	}{
		{name: "miss"},
		{name: "client error", getErr: errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newFakeCache()
			cache.getErr = tt.getErr

			var gotKey *string
			var gotValue *string
			hookCalled := false
			hooks := LookupHooks[string, string]{
				PostLookup: func(c topology.Collector, tuple *topology.Tuple, key *string, value *string) {
					hookCalled = true
					gotKey, gotValue = key, value
					DefaultPostLookup(c, tuple, key, value)
				},
			}
			bolt := NewLookupBolt[string, string](cache, stringMapper(), hooks, Options{Name: "lookup"})
			collector := prepared(t, bolt)

			tuple := messageTuple("absent", "ignored")
			bolt.Execute(context.Background(), tuple)

			assert.True(t, hookCalled)
			require.NotNil(t, gotKey)
			assert.Equal(t, "absent", *gotKey)
			assert.Nil(t, gotValue)
			assert.Empty(t, collector.Emits())
			assert.Equal(t, 1, collector.AckCount(tuple))
		})
	}
}

func TestLookup_HitForwardsOnceAndAcks(t *testing.T) {
	cache := newFakeCache()
	cache.data["user-1"] = "Ada"
	bolt := NewLookupBolt[string, string](cache, stringMapper(), LookupHooks[string, string]{}, Options{Name: "lookup"})
	collector := prepared(t, bolt)

	tuple := messageTuple("user-1", "ignored")
	bolt.Execute(context.Background(), tuple)

	emits := collector.Emits()
	require.Len(t, emits, 1)
	assert.Same(t, tuple, emits[0].Anchor)
	assert.Equal(t, topology.Values{"user-1", "Ada"}, emits[0].Values)
	assert.Equal(t, []string{"emit", "ack"}, collector.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(bolt.metrics.lookups.WithLabelValues(resultHit)))
	assert.Equal(t, topology.Fields{FieldKey, FieldValue}, bolt.DeclareOutputFields())
}

func TestLookup_KeyFailureSkipsGetButRunsHook(t *testing.T) {
	cache := newFakeCache()
	hookCalled := false
	var gotKey *string
	hooks := LookupHooks[string, string]{
		PostLookup: func(_ topology.Collector, _ *topology.Tuple, key *string, _ *string) {
			hookCalled = true
			gotKey = key
		},
	}
	bolt := NewLookupBolt[string, string](cache, stringMapper(), hooks, Options{Name: "lookup"})
	collector := prepared(t, bolt)

	tuple := topology.NewTuple("t-1", "src", topology.NewFields("other"), "x")
	bolt.Execute(context.Background(), tuple)

	assert.Empty(t, cache.gets)
	assert.True(t, hookCalled)
	assert.Nil(t, gotKey)
	assert.Equal(t, 1, collector.AckCount(tuple))
}

func TestBolts_PrepareRequiresCacheAndMapper(t *testing.T) {
	store := NewStoreBolt[string, string](nil, stringMapper(), StoreHooks[string, string]{}, Options{Name: "s"})
	err := store.Prepare(context.Background(), topologytest.NewCollector())
	assert.True(t, sberrors.IsInitializationFailed(err))

	lookup := NewLookupBolt[string, string](newFakeCache(), nil, LookupHooks[string, string]{}, Options{Name: "l"})
	err = lookup.Prepare(context.Background(), topologytest.NewCollector())
	assert.True(t, sberrors.IsInitializationFailed(err))
}

func TestBolts_RegisterMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	opts := Options{Name: "store", Registrar: registry}
	bolt := NewStoreBolt[string, string](newFakeCache(), stringMapper(), StoreHooks[string, string]{}, opts)
	prepared(t, bolt)

	// a second bolt with the same name collides
	dup := NewStoreBolt[string, string](newFakeCache(), stringMapper(), StoreHooks[string, string]{}, opts)
	err := dup.Prepare(context.Background(), topologytest.NewCollector())
	assert.True(t, sberrors.IsInitializationFailed(err))

	bolt.Cleanup()
	again := NewStoreBolt[string, string](newFakeCache(), stringMapper(), StoreHooks[string, string]{}, opts)
	assert.NoError(t, again.Prepare(context.Background(), topologytest.NewCollector()))
}

func TestStringOf(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{[]byte("b"), "b"},
		{42, "42"},
		{true, "true"},
		{map[string]any{"a": 1.0}, `{"a":1}`},
		{float64(1234567), "1234567"},
		{float64(9007199254740992), "9007199254740992"},
		{2.5, "2.5"},
		{json.Number("9007199254740993"), "9007199254740993"},
	}
	for _, tt := range tests {
		got, err := StringOf(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFieldMapper_NilFieldIsConversionFailure(t *testing.T) {
	mapper := NewStringFieldMapper("message.header.messageKey", "message.body", ".")
	tuple := messageTuple("", nil)

	_, err := mapper.Value(tuple)
	require.Error(t, err)
	assert.True(t, sberrors.IsConversionFailed(err))
	assert.True(t, sberrors.IsFieldNotFound(err))
}
