package snmp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	sberrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology/topologytest"
	"github.com/c360/stormbridge/types"
)

type fakeListener struct {
	listenErr error
	bound     chan bool
	addr      string
	closed    bool
}

func newFakeListener(listenErr error) *fakeListener {
	return &fakeListener{listenErr: listenErr, bound: make(chan bool)}
}

func (l *fakeListener) Listen(addr string) error {
	l.addr = addr
	if l.listenErr != nil {
		return l.listenErr
	}
	close(l.bound)
	return nil
}

func (l *fakeListener) Listening() <-chan bool { return l.bound }
func (l *fakeListener) Close()                 { l.closed = true }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:9162"
	cfg.QueueSize = 2
	cfg.ReceiveWait = "5ms"
	return cfg
}

func openSpout(t *testing.T, cfg Config) (*Spout, *topologytest.Collector, *fakeListener, trapHandler) {
	t.Helper()
	s, err := New("snmp-test", cfg, nil, nil)
	require.NoError(t, err)
	l := newFakeListener(nil)
	var handler trapHandler
	s.newListener = func(h trapHandler) listener {
		handler = h
		return l
	}
	c := topologytest.NewCollector()
	require.NoError(t, s.Open(context.Background(), c.SpoutCollector()))
	return s, c, l, handler
}

var agent = &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 40000}

func v2Trap(community string) *gosnmp.SnmpPacket {
	return &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: community,
		PDUType:   gosnmp.SNMPv2Trap,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(1234)},
			{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.9.41.2.0.1"},
			{Name: ".1.3.6.1.2.1.2.2.1.2.3", Type: gosnmp.OctetString, Value: []byte("eth0")},
		},
	}
}

func TestSpout_EmitsQueuedTraps(t *testing.T) {
	s, c, l, handler := openSpout(t, testConfig())
	assert.Equal(t, "127.0.0.1:9162", l.addr)

	handler(v2Trap("public"), agent)
	s.NextTuple(context.Background())
	require.Len(t, c.Emits(), 1)

	trap := c.Emits()[0].Values[0].(*converter.SNMPTrap)
	assert.Equal(t, "10.0.0.7", trap.Source)
	assert.Equal(t, "public", trap.Community)
	require.Len(t, trap.Variables, 3)
	assert.Equal(t, "1.3.6.1.6.3.1.1.4.1.0", trap.Variables[1].OID)
	assert.Equal(t, "1.3.6.1.4.1.9.9.41.2.0.1", trap.Variables[1].Value)
	assert.Equal(t, "eth0", trap.Variables[2].Value)

	body, err := converter.NewSNMPConverter().CreateBody(trap)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1.3.6.1.4.1.9.9.41.2.0.1",
		"1.3.6.1.2.1.1.3.0=1234;1.3.6.1.2.1.2.2.1.2.3=eth0",
	}, body)

	s.Ack(c.Emits()[0].ID)
	assert.Zero(t, s.pending.Len())

	s.NextTuple(context.Background())
	assert.Len(t, c.Emits(), 1)

	require.NoError(t, s.Close())
	assert.True(t, l.closed)
}

func TestSpout_CommunityFilterAndQueueBound(t *testing.T) {
	cfg := testConfig()
	cfg.Community = "secret"
	s, c, _, handler := openSpout(t, cfg)

	handler(v2Trap("public"), agent)
	for i := 0; i < 3; i++ {
		handler(v2Trap("secret"), agent)
	}
	for i := 0; i < 4; i++ {
		s.NextTuple(context.Background())
	}
	assert.Len(t, c.Emits(), 2)
}

func TestTrap_V1GenericAndSpecific(t *testing.T) {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version1,
		Community: "public",
		PDUType:   gosnmp.Trap,
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   ".1.3.6.1.4.1.8072",
			AgentAddress: "192.168.1.20",
			GenericTrap:  2,
		},
	}
	trap := Trap(packet, agent, time.Unix(10, 0))
	assert.Equal(t, "192.168.1.20", trap.Source)
	require.Len(t, trap.Variables, 1)
	assert.Equal(t, converter.TrapOID, trap.Variables[0].OID)
	assert.Equal(t, "1.3.6.1.6.3.1.1.5.3", trap.Variables[0].Value)

	packet.GenericTrap = 6
	packet.SpecificTrap = 17
	trap = Trap(packet, agent, time.Unix(10, 0))
	assert.Equal(t, "1.3.6.1.4.1.8072.0.17", trap.Variables[0].Value)
}

func TestSpout_OpenFailures(t *testing.T) {
	s, err := New("snmp-test", testConfig(), nil, nil)
	require.NoError(t, err)
	s.newListener = func(trapHandler) listener { return newFakeListener(errors.New("address in use")) }
	err = s.Open(context.Background(), topologytest.NewCollector().SpoutCollector())
	require.Error(t, err)
	assert.True(t, sberrors.IsInitializationFailed(err))

	cfg := testConfig()
	cfg.ListenTimeout = "5ms"
	s, err = New("snmp-test", cfg, nil, nil)
	require.NoError(t, err)
	stuck := &stuckListener{}
	s.newListener = func(trapHandler) listener { return stuck }
	err = s.Open(context.Background(), topologytest.NewCollector().SpoutCollector())
	require.Error(t, err)
	assert.True(t, sberrors.Is(err, sberrors.ErrConnectionTimeout))
	assert.True(t, stuck.closed)
}

// stuckListener never binds until closed.
type stuckListener struct {
	closed bool
}

func (l *stuckListener) Listen(string) error    { select {} }
func (l *stuckListener) Listening() <-chan bool { return nil }
func (l *stuckListener) Close()                 { l.closed = true }

func TestConfig_Validate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Address = "no-port" },
		func(c *Config) { c.ListenTimeout = "later" },
		func(c *Config) { c.QueueSize = -1 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	inst, err := registry.CreateComponent("traps", types.ComponentConfig{
		Type:   types.ComponentTypeSpout,
		Name:   "snmp",
		Output: "stormbridge.raw.snmp",
		Config: json.RawMessage(`{"address":"0.0.0.0:9162"}`),
	}, component.Dependencies{})
	require.NoError(t, err)
	s := inst.Spout.(*Spout)
	assert.Equal(t, "0.0.0.0:9162", s.cfg.Address)
	assert.Equal(t, 5*time.Second, s.listenTimeout)
	assert.Equal(t, "traps", s.name)
}
