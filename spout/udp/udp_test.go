package udp

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	sberrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology/topologytest"
	"github.com/c360/stormbridge/types"
)

func openSpout(t *testing.T, queueSize int) (*Spout, *topologytest.Collector) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.ReceiveWait = "20ms"
	cfg.QueueSize = queueSize

	s, err := New("udp-test", cfg, nil, nil)
	require.NoError(t, err)
	collector := topologytest.NewCollector()
	require.NoError(t, s.Open(context.Background(), collector.SpoutCollector()))
	t.Cleanup(func() { s.Close() })
	return s, collector
}

func send(t *testing.T, to net.Addr, payloads ...string) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write([]byte(p))
		require.NoError(t, err)
	}
}

func TestSpout_EmitsDatagrams(t *testing.T) {
	s, collector := openSpout(t, 10)
	send(t, s.Addr(), "one", "two")

	require.Eventually(t, func() bool {
		s.NextTuple(context.Background())
		return len(collector.Emits()) == 2
	}, 2*time.Second, time.Millisecond)

	emits := collector.Emits()
	rec, ok := emits[0].Values[0].(converter.RawRecord)
	require.True(t, ok)
	assert.Equal(t, emits[0].ID, rec.ID)
	assert.Equal(t, []byte("one"), rec.Payload)
	assert.Contains(t, rec.Source, "127.0.0.1:")
	assert.Equal(t, "127.0.0.1:0", rec.Headers["listen_address"])

	s.Ack(emits[0].ID)
	s.Fail(emits[1].ID)
}

func TestSpout_QueueFullDrops(t *testing.T) {
	s, collector := openSpout(t, 1)
	send(t, s.Addr(), "a", "b", "c")

	require.Eventually(t, func() bool { return s.queue.Len() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	s.NextTuple(context.Background())
	s.NextTuple(context.Background())
	assert.Len(t, collector.Emits(), 1)
}

func TestSpout_CloseStopsReader(t *testing.T) {
	s, _ := openSpout(t, 1)
	require.NotNil(t, s.Addr())
	require.NoError(t, s.Close())
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Close())
}

func TestSpout_OpenFailure(t *testing.T) {
	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	cfg := DefaultConfig()
	cfg.Address = taken.LocalAddr().String()
	s, err := New("udp-test", cfg, nil, nil)
	require.NoError(t, err)

	err = s.Open(context.Background(), topologytest.NewCollector().SpoutCollector())
	require.Error(t, err)
	assert.True(t, sberrors.IsInitializationFailed(err))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Address = "not an address"
	assert.True(t, sberrors.IsInvalid(cfg.Validate()))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	meta, ok := registry.ListAvailable()["udp"]
	require.True(t, ok)
	assert.Equal(t, string(types.ComponentTypeSpout), meta.Type)

	sp, err := NewSpout(json.RawMessage(`{"address": "127.0.0.1:9999"}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", sp.(*Spout).cfg.Address)
}
