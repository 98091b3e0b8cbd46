// Package snmp provides a spout that listens for SNMP traps over UDP and
// emits them as converter.SNMPTrap records.
package snmp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosnmp/gosnmp"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/spout"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// genericTrapPrefix roots the SNMPv2 OIDs of the SNMPv1 generic traps.
const genericTrapPrefix = "1.3.6.1.6.3.1.1.5."

// Config configures the SNMP trap spout.
type Config struct {
	spout.Config

	Address       string `json:"address,omitempty"        schema:"type:string,default:0.0.0.0:162,description:UDP address to listen on"`
	Community     string `json:"community,omitempty"      schema:"type:string,description:Accepted community; empty accepts all"`
	ListenTimeout string `json:"listen_timeout,omitempty" schema:"type:string,default:5s,description:Time allowed for the listener to bind"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse address")
	}
	if _, err := time.ParseDuration(c.ListenTimeout); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse listen timeout")
	}
	return c.Config.Validate()
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{Address: "0.0.0.0:162", ListenTimeout: "5s"}
}

var snmpSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// listener is the subset of *gosnmp.TrapListener the spout uses.
type listener interface {
	Listen(addr string) error
	Listening() <-chan bool
	Close()
}

type trapHandler = func(*gosnmp.SnmpPacket, *net.UDPAddr)

func newTrapListener(handler trapHandler) listener {
	tl := gosnmp.NewTrapListener()
	tl.OnNewTrap = handler
	tl.Params = gosnmp.Default
	return tl
}

// Spout emits one trap per NextTuple.
type Spout struct {
	name          string
	cfg           Config
	wait          time.Duration
	listenTimeout time.Duration
	logger        *slog.Logger
	registrar     metric.MetricsRegistrar
	metrics       *spout.Metrics

	newListener func(trapHandler) listener
	listener    listener
	queue       *spout.Queue[*converter.SNMPTrap]
	pending     *spout.Pending[*converter.SNMPTrap]
	collector   topology.SpoutCollector
}

var _ topology.Spout = (*Spout)(nil)

// New returns a spout for a validated cfg. registrar may be nil.
func New(name string, cfg Config, logger *slog.Logger, registrar metric.MetricsRegistrar) (*Spout, error) {
	wait, err := cfg.Wait()
	if err != nil {
		return nil, err
	}
	listenTimeout, err := time.ParseDuration(cfg.ListenTimeout)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "New", "parse listen timeout")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spout{
		name:          name,
		cfg:           cfg,
		wait:          wait,
		listenTimeout: listenTimeout,
		logger:        logger.With("spout", name),
		registrar:     registrar,
		metrics:       spout.NewMetrics(name),
		newListener:   newTrapListener,
		queue:         spout.NewQueue[*converter.SNMPTrap](cfg.Size()).Throttled(cfg.Throttle()),
		pending:       spout.NewPending[*converter.SNMPTrap](),
	}, nil
}

// NewSpout is the component factory.
func NewSpout(rawConfig json.RawMessage, deps component.Dependencies) (topology.Spout, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "NewSpout", "config unmarshal")
	}
	name := deps.Name("snmp")
	return New(name, cfg, deps.GetLoggerWithComponent(name), deps.Registrar())
}

// Open implements topology.Spout. It returns once the listener is bound.
func (s *Spout) Open(ctx context.Context, collector topology.SpoutCollector) error {
	if err := s.metrics.Register(s.registrar); err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "register metrics")
	}
	s.collector = collector
	s.listener = s.newListener(s.onTrap)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.listener.Listen(s.cfg.Address)
	}()

	timer := time.NewTimer(s.listenTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-s.listener.Listening():
		s.logger.Info("SNMP trap listener bound", "address", s.cfg.Address)
		return nil
	case err = <-listenErr:
		if err == nil {
			err = errors.ErrNotStarted
		}
		s.metrics.Unregister(s.registrar)
		return errors.InitializationFailed(err, "Spout", "Open", "listen on "+s.cfg.Address)
	case <-timer.C:
		err = errors.ErrConnectionTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.listener.Close()
	s.metrics.Unregister(s.registrar)
	return errors.InitializationFailed(err, "Spout", "Open", "listen on "+s.cfg.Address)
}

func (s *Spout) onTrap(packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	if s.cfg.Community != "" && packet.Community != s.cfg.Community {
		s.logger.Debug("Trap with foreign community dropped", "source", addr.String())
		s.metrics.Inc(spout.OutcomeDropped)
		return
	}
	trap := Trap(packet, addr, time.Now())
	if !s.queue.Offer(trap) {
		s.metrics.Inc(spout.OutcomeDropped)
		s.logger.Warn("Trap queue full, trap dropped", "source", trap.Source)
		return
	}
	s.metrics.Inc(spout.OutcomeReceived)
}

// Trap converts a received packet. SNMPv1 traps get the snmpTrapOID.0
// binding their v2 form would carry.
func Trap(packet *gosnmp.SnmpPacket, addr *net.UDPAddr, received time.Time) *converter.SNMPTrap {
	trap := &converter.SNMPTrap{
		Received:  received,
		Community: packet.Community,
		Variables: make([]converter.SNMPVariable, 0, len(packet.Variables)+1),
	}
	if addr != nil {
		trap.Source = addr.IP.String()
	}
	if packet.PDUType == gosnmp.Trap {
		trap.Variables = append(trap.Variables, converter.SNMPVariable{
			OID:   converter.TrapOID,
			Value: v1TrapOID(packet.SnmpTrap),
		})
		if packet.AgentAddress != "" {
			trap.Source = packet.AgentAddress
		}
	}
	for _, pdu := range packet.Variables {
		trap.Variables = append(trap.Variables, converter.SNMPVariable{
			OID:   strings.TrimPrefix(pdu.Name, "."),
			Value: variableValue(pdu),
		})
	}
	return trap
}

func v1TrapOID(t gosnmp.SnmpTrap) string {
	if t.GenericTrap >= 0 && t.GenericTrap < 6 {
		return genericTrapPrefix + strconv.Itoa(t.GenericTrap+1)
	}
	return strings.TrimPrefix(t.Enterprise, ".") + ".0." + strconv.Itoa(t.SpecificTrap)
}

func variableValue(pdu gosnmp.SnmpPDU) any {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b)
		}
	case gosnmp.ObjectIdentifier:
		if oid, ok := pdu.Value.(string); ok {
			return strings.TrimPrefix(oid, ".")
		}
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil
	}
	if b, ok := pdu.Value.([]byte); ok {
		return fmt.Sprintf("%x", b)
	}
	return pdu.Value
}

// NextTuple implements topology.Spout.
func (s *Spout) NextTuple(ctx context.Context) {
	trap, ok := s.queue.Poll(ctx, s.wait)
	if !ok {
		return
	}
	id := uuid.NewString()
	s.pending.Put(id, trap)
	if err := s.collector.Emit(id, trap); err != nil {
		s.pending.Take(id)
		s.metrics.Inc(spout.OutcomeFailed)
		s.logger.Error("Emit failed, trap dropped", "source", trap.Source, "error", err)
	}
}

// Ack implements topology.Spout.
func (s *Spout) Ack(id string) {
	if _, ok := s.pending.Take(id); ok {
		s.metrics.Inc(spout.OutcomeAcked)
	}
}

// Fail implements topology.Spout. Traps cannot be redelivered.
func (s *Spout) Fail(id string) {
	trap, ok := s.pending.Take(id)
	if !ok {
		return
	}
	s.metrics.Inc(spout.OutcomeFailed)
	s.logger.Warn("Trap tuple failed", "source", trap.Source)
}

// Close implements topology.Spout.
func (s *Spout) Close() error {
	s.pending.Drain()
	s.metrics.Unregister(s.registrar)
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	return nil
}

// DeclareOutputFields implements topology.Spout.
func (s *Spout) DeclareOutputFields() topology.Fields {
	return spout.OutputFields()
}

// Register registers the SNMP trap spout factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "snmp",
		Type:        types.ComponentTypeSpout,
		Protocol:    "snmp",
		Description: "Listens for SNMP traps and emits them for the snmp converter",
		Version:     "0.1.0",
		Schema:      snmpSchema,
		Spout:       NewSpout,
	})
}
