// Package udp provides a spout that listens on a UDP socket and emits each
// datagram as a raw record.
package udp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/spout"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

const (
	maxDatagram      = 65536
	socketBufferSize = 2 * 1024 * 1024
	readDeadline     = 100 * time.Millisecond
)

// Config configures the UDP spout.
type Config struct {
	spout.Config

	Address string `json:"address" schema:"type:string,default:0.0.0.0:14550,description:Listen address"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if _, err := net.ResolveUDPAddr("udp", c.Address); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "resolve address")
	}
	return c.Config.Validate()
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{Address: "0.0.0.0:14550"}
}

var udpSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

type datagram struct {
	from     string
	payload  []byte
	received time.Time
}

// Spout emits one record per datagram.
type Spout struct {
	name      string
	cfg       Config
	wait      time.Duration
	logger    *slog.Logger
	registrar metric.MetricsRegistrar
	metrics   *spout.Metrics

	queue     *spout.Queue[datagram]
	collector topology.SpoutCollector

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ topology.Spout = (*Spout)(nil)

// New returns a spout for a validated cfg. registrar may be nil.
func New(name string, cfg Config, logger *slog.Logger, registrar metric.MetricsRegistrar) (*Spout, error) {
	wait, err := cfg.Wait()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spout{
		name:      name,
		cfg:       cfg,
		wait:      wait,
		logger:    logger.With("spout", name),
		registrar: registrar,
		metrics:   spout.NewMetrics(name),
		queue:     spout.NewQueue[datagram](cfg.Size()).Throttled(cfg.Throttle()),
	}, nil
}

// NewSpout is the component factory.
func NewSpout(rawConfig json.RawMessage, deps component.Dependencies) (topology.Spout, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "NewSpout", "config unmarshal")
	}
	name := deps.Name("udp")
	return New(name, cfg, deps.GetLoggerWithComponent(name), deps.Registrar())
}

// Open implements topology.Spout. It binds the socket and starts the reader.
func (s *Spout) Open(_ context.Context, collector topology.SpoutCollector) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "resolve address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "listen on "+s.cfg.Address)
	}
	// Some systems cap the buffer size.
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		s.logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
	}
	if err := s.metrics.Register(s.registrar); err != nil {
		conn.Close()
		return errors.InitializationFailed(err, "Spout", "Open", "register metrics")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	s.collector = collector

	go s.readLoop(ctx, conn)
	s.logger.Info("UDP spout listening", "address", conn.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil before Open.
func (s *Spout) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Spout) readLoop(ctx context.Context, conn *net.UDPConn) {
	defer close(s.done)
	buf := make([]byte, maxDatagram)
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("UDP read failed", "error", err)
			if !errors.IsTransient(err) {
				return
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		d := datagram{from: from.String(), payload: payload, received: time.Now()}
		if !s.queue.Offer(d) {
			s.metrics.Inc(spout.OutcomeDropped)
			continue
		}
		s.metrics.Inc(spout.OutcomeReceived)
	}
}

// NextTuple implements topology.Spout.
func (s *Spout) NextTuple(ctx context.Context) {
	d, ok := s.queue.Poll(ctx, s.wait)
	if !ok {
		return
	}

	id := uuid.NewString()
	if err := s.collector.Emit(id, record(id, s.cfg.Address, d)); err != nil {
		s.metrics.Inc(spout.OutcomeFailed)
		s.logger.Error("Emit failed", "from", d.from, "error", err)
	}
}

func record(id, address string, d datagram) converter.RawRecord {
	return converter.RawRecord{
		ID:        id,
		Source:    d.from,
		Timestamp: d.received,
		Payload:   d.payload,
		Headers:   map[string]string{"listen_address": address},
	}
}

// Ack implements topology.Spout.
func (s *Spout) Ack(string) {
	s.metrics.Inc(spout.OutcomeAcked)
}

// Fail implements topology.Spout. Datagrams cannot be redelivered.
func (s *Spout) Fail(id string) {
	s.metrics.Inc(spout.OutcomeFailed)
	s.logger.Warn("Tuple failed downstream", "id", id)
}

// Close implements topology.Spout.
func (s *Spout) Close() error {
	s.mu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.done
	s.conn, s.cancel = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	err := conn.Close()
	<-done
	s.metrics.Unregister(s.registrar)
	return err
}

// DeclareOutputFields implements topology.Spout.
func (s *Spout) DeclareOutputFields() topology.Fields {
	return spout.OutputFields()
}

// Register registers the UDP spout factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "udp",
		Type:        types.ComponentTypeSpout,
		Protocol:    "udp",
		Description: "Listens on a UDP socket and emits each datagram as a raw record",
		Version:     "0.1.0",
		Schema:      udpSchema,
		Spout:       NewSpout,
	})
}
