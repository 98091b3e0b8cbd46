// Package websocket provides a spout that connects to a WebSocket server with
// gorilla/websocket and emits each received message as a raw record.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/pkg/retry"
	"github.com/c360/stormbridge/spout"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures the WebSocket spout.
type Config struct {
	spout.Config

	URL              string            `json:"url"                         schema:"type:string,description:Server URL such as ws://host:8080/stream,required"`
	Headers          map[string]string `json:"headers,omitempty"           schema:"type:object,description:Extra handshake headers"`
	HandshakeTimeout string            `json:"handshake_timeout,omitempty" schema:"type:string,default:10s,description:Handshake timeout"`
	ReconnectWait    string            `json:"reconnect_wait,omitempty"    schema:"type:string,default:1s,description:First delay between reconnect attempts"`
	MaxReconnects    int               `json:"max_reconnects,omitempty"    schema:"type:int,default:10,description:Reconnect attempts before giving up"`
	ReadLimit        int64             `json:"read_limit,omitempty"        schema:"type:int,default:1048576,description:Largest accepted message in bytes"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	for field, value := range map[string]string{
		"handshake_timeout": c.HandshakeTimeout,
		"reconnect_wait":    c.ReconnectWait,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: %s %q", errors.ErrInvalidConfig, field, value),
				"Config", "Validate", "parse duration")
		}
	}
	if c.MaxReconnects < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_reconnects cannot be negative")
	}
	if c.ReadLimit <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "read_limit must be positive")
	}
	return c.Config.Validate()
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: "10s",
		ReconnectWait:    "1s",
		MaxReconnects:    10,
		ReadLimit:        1 << 20,
	}
}

var websocketSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// message is one frame read from the server.
type message struct {
	kind     int
	payload  []byte
	received time.Time
}

// Spout emits one record per WebSocket message.
type Spout struct {
	name      string
	cfg       Config
	wait      time.Duration
	logger    *slog.Logger
	registrar metric.MetricsRegistrar
	metrics   *spout.Metrics

	dialer *websocket.Dialer
	queue  *spout.Queue[message]
	// lost carries reader failures to NextTuple, which owns the collector.
	lost      chan error
	collector topology.SpoutCollector

	mu     sync.Mutex
	conn   *websocket.Conn
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
	handshake, err := time.ParseDuration(cfg.HandshakeTimeout)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "New", "parse handshake timeout")
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
		dialer:    &websocket.Dialer{HandshakeTimeout: handshake, Proxy: http.ProxyFromEnvironment},
		queue:     spout.NewQueue[message](cfg.Size()).Throttled(cfg.Throttle()),
		lost:      make(chan error, 1),
	}, nil
}

// NewSpout is the component factory.
func NewSpout(rawConfig json.RawMessage, deps component.Dependencies) (topology.Spout, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "NewSpout", "config unmarshal")
	}
	name := deps.Name("websocket")
	return New(name, cfg, deps.GetLoggerWithComponent(name), deps.Registrar())
}

func (s *Spout) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range s.cfg.Headers {
		header.Set(k, v)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(s.cfg.ReadLimit)
	return conn, nil
}

// Open implements topology.Spout. It connects once and starts the reader.
func (s *Spout) Open(ctx context.Context, collector topology.SpoutCollector) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "dial "+s.cfg.URL)
	}
	if err := s.metrics.Register(s.registrar); err != nil {
		conn.Close()
		return errors.InitializationFailed(err, "Spout", "Open", "register metrics")
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	s.collector = collector

	go s.readLoop(readCtx, conn)
	s.logger.Info("WebSocket spout connected", "url", s.cfg.URL)
	return nil
}

// readLoop reads until the spout closes, reconnecting after read errors.
func (s *Spout) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	for {
		s.read(conn)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()

		s.signal(errors.ErrConnectionLost)
		s.logger.Warn("WebSocket connection lost, reconnecting", "url", s.cfg.URL)

		next, err := s.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.signal(errors.WrapTransient(err, "Spout", "readLoop", "reconnect"))
				s.logger.Error("WebSocket reconnect gave up", "url", s.cfg.URL, "error", err)
			}
			return
		}
		conn = next
	}
}

func (s *Spout) read(conn *websocket.Conn) {
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !s.queue.Offer(message{kind: kind, payload: payload, received: time.Now()}) {
			s.metrics.Inc(spout.OutcomeDropped)
			s.logger.Warn("Queue full, WebSocket message dropped", "url", s.cfg.URL)
			continue
		}
		s.metrics.Inc(spout.OutcomeReceived)
	}
}

func (s *Spout) reconnect(ctx context.Context) (*websocket.Conn, error) {
	initial, _ := time.ParseDuration(s.cfg.ReconnectWait)
	policy := retry.Reconnect(initial, s.cfg.MaxReconnects)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Debug("WebSocket reconnect attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
	}
	conn, err := retry.DoWithResult(ctx, policy, func() (*websocket.Conn, error) {
		return s.dial(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return nil, ctx.Err()
	}
	s.conn = conn
	s.logger.Info("WebSocket reconnected", "url", s.cfg.URL)
	return conn, nil
}

// signal keeps the first unreported failure.
func (s *Spout) signal(err error) {
	select {
	case s.lost <- err:
	default:
	}
}

// NextTuple implements topology.Spout.
func (s *Spout) NextTuple(ctx context.Context) {
	select {
	case err := <-s.lost:
		s.collector.ReportError(err)
	default:
	}

	msg, ok := s.queue.Poll(ctx, s.wait)
	if !ok {
		return
	}

	id := uuid.NewString()
	if err := s.collector.Emit(id, record(id, s.cfg.URL, msg)); err != nil {
		s.metrics.Inc(spout.OutcomeFailed)
		s.logger.Error("Emit failed", "url", s.cfg.URL, "error", err)
	}
}

// record converts a WebSocket message.
func record(id, url string, msg message) converter.RawRecord {
	kind := "binary"
	if msg.kind == websocket.TextMessage {
		kind = "text"
	}
	return converter.RawRecord{
		ID:        id,
		Source:    url,
		Timestamp: msg.received,
		Payload:   msg.payload,
		Headers:   map[string]string{"message_type": kind},
	}
}

// Ack implements topology.Spout.
func (s *Spout) Ack(string) {
	s.metrics.Inc(spout.OutcomeAcked)
}

// Fail implements topology.Spout. WebSocket has no redelivery; the message is
// lost.
func (s *Spout) Fail(id string) {
	s.metrics.Inc(spout.OutcomeFailed)
	s.logger.Warn("Tuple failed downstream", "url", s.cfg.URL, "id", id)
}

// Close implements topology.Spout.
func (s *Spout) Close() error {
	s.mu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.done
	s.conn, s.cancel = nil, nil
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	<-done
	s.metrics.Unregister(s.registrar)
	return err
}

// DeclareOutputFields implements topology.Spout.
func (s *Spout) DeclareOutputFields() topology.Fields {
	return spout.OutputFields()
}

// Register registers the WebSocket spout factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "websocket",
		Type:        types.ComponentTypeSpout,
		Protocol:    "websocket",
		Description: "Reads messages from a WebSocket server and emits raw records",
		Version:     "0.1.0",
		Schema:      websocketSchema,
		Spout:       NewSpout,
	})
}
