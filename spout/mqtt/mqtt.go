// Package mqtt provides a spout that subscribes to MQTT topics with the
// paho client and emits each message as a raw record.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/spout"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures the MQTT spout.
type Config struct {
	spout.Config

	Brokers        []string `json:"brokers"                   schema:"type:array,description:Broker URLs such as tcp://host:1883,required"`
	Topics         []string `json:"topics"                    schema:"type:array,description:Topic filters,required"`
	QoS            int      `json:"qos,omitempty"             schema:"type:int,default:1,description:Subscription QoS"`
	ClientID       string   `json:"client_id,omitempty"       schema:"type:string,description:Client id; generated when empty"`
	Username       string   `json:"username,omitempty"        schema:"type:string,description:Username"`
	Password       string   `json:"password,omitempty"        schema:"type:string,description:Password"`
	CleanSession   bool     `json:"clean_session"             schema:"type:bool,default:true,description:Start a clean session"`
	ManualAck      bool     `json:"manual_ack,omitempty"      schema:"type:bool,default:false,description:Acknowledge to the broker only after the tuple is acked"`
	ConnectTimeout string   `json:"connect_timeout,omitempty" schema:"type:string,default:30s,description:Connect timeout"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "brokers are required")
	}
	if len(c.Topics) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "topics are required")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return errors.WrapInvalid(fmt.Errorf("%w: qos %d", errors.ErrInvalidConfig, c.QoS), "Config", "Validate", "qos range")
	}
	if _, err := time.ParseDuration(c.ConnectTimeout); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse connect timeout")
	}
	return c.Config.Validate()
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{QoS: 1, CleanSession: true, ConnectTimeout: "30s"}
}

var mqttSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Spout emits one record per MQTT message.
type Spout struct {
	name      string
	cfg       Config
	wait      time.Duration
	logger    *slog.Logger
	registrar metric.MetricsRegistrar
	metrics   *spout.Metrics

	dial      func(*paho.ClientOptions) paho.Client
	client    paho.Client
	queue     *spout.Queue[paho.Message]
	pending   *spout.Pending[paho.Message]
	collector topology.SpoutCollector
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
		dial:      paho.NewClient,
		queue:     spout.NewQueue[paho.Message](cfg.Size()).Throttled(cfg.Throttle()),
		pending:   spout.NewPending[paho.Message](),
	}, nil
}

// NewSpout is the component factory.
func NewSpout(rawConfig json.RawMessage, deps component.Dependencies) (topology.Spout, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "NewSpout", "config unmarshal")
	}
	name := deps.Name("mqtt")
	return New(name, cfg, deps.GetLoggerWithComponent(name), deps.Registrar())
}

func (s *Spout) options() *paho.ClientOptions {
	timeout, _ := time.ParseDuration(s.cfg.ConnectTimeout)
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "stormbridge-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	for _, broker := range s.cfg.Brokers {
		opts.AddBroker(broker)
	}
	opts.SetClientID(clientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetCleanSession(s.cfg.CleanSession)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOrderMatters(false)
	opts.SetAutoAckDisabled(s.cfg.ManualAck)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		s.logger.Info("MQTT connected", "brokers", s.cfg.Brokers)
	})
	return opts
}

// Open implements topology.Spout. It connects and subscribes.
func (s *Spout) Open(_ context.Context, collector topology.SpoutCollector) error {
	timeout, _ := time.ParseDuration(s.cfg.ConnectTimeout)
	client := s.dial(s.options())

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.InitializationFailed(errors.ErrConnectionTimeout, "Spout", "Open", "connect")
	}
	if err := token.Error(); err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "connect")
	}

	filters := make(map[string]byte, len(s.cfg.Topics))
	for _, topic := range s.cfg.Topics {
		filters[topic] = byte(s.cfg.QoS)
	}
	token = client.SubscribeMultiple(filters, s.onMessage)
	if !token.WaitTimeout(timeout) {
		client.Disconnect(250)
		return errors.InitializationFailed(errors.ErrConnectionTimeout, "Spout", "Open", "subscribe")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return errors.InitializationFailed(err, "Spout", "Open", "subscribe")
	}

	if err := s.metrics.Register(s.registrar); err != nil {
		client.Disconnect(250)
		return errors.InitializationFailed(err, "Spout", "Open", "register metrics")
	}
	s.client = client
	s.collector = collector
	s.logger.Info("MQTT spout subscribed", "topics", s.cfg.Topics, "qos", s.cfg.QoS)
	return nil
}

// onMessage runs on paho's goroutines.
func (s *Spout) onMessage(_ paho.Client, msg paho.Message) {
	if !s.queue.Offer(msg) {
		s.metrics.Inc(spout.OutcomeDropped)
		s.logger.Warn("Queue full, MQTT message dropped", "topic", msg.Topic())
		return
	}
	s.metrics.Inc(spout.OutcomeReceived)
}

// NextTuple implements topology.Spout.
func (s *Spout) NextTuple(ctx context.Context) {
	msg, ok := s.queue.Poll(ctx, s.wait)
	if !ok {
		return
	}

	id := uuid.NewString()
	record := Record(id, msg)
	s.pending.Put(id, msg)
	if err := s.collector.Emit(id, record); err != nil {
		s.pending.Take(id)
		s.metrics.Inc(spout.OutcomeFailed)
		s.logger.Error("Emit failed", "topic", msg.Topic(), "error", err)
	}
}

// Record converts an MQTT message.
func Record(id string, msg paho.Message) converter.RawRecord {
	return converter.RawRecord{
		ID:        id,
		Source:    msg.Topic(),
		Key:       msg.Topic(),
		Timestamp: time.Now(),
		Payload:   msg.Payload(),
		Headers: map[string]string{
			"qos":       strconv.Itoa(int(msg.Qos())),
			"retained":  strconv.FormatBool(msg.Retained()),
			"duplicate": strconv.FormatBool(msg.Duplicate()),
		},
	}
}

// Ack implements topology.Spout.
func (s *Spout) Ack(id string) {
	msg, ok := s.pending.Take(id)
	if !ok {
		return
	}
	if s.cfg.ManualAck {
		msg.Ack()
	}
	s.metrics.Inc(spout.OutcomeAcked)
}

// Fail implements topology.Spout. MQTT has no negative acknowledgement; with
// manual_ack the message stays unacknowledged.
func (s *Spout) Fail(id string) {
	msg, ok := s.pending.Take(id)
	if !ok {
		return
	}
	s.metrics.Inc(spout.OutcomeFailed)
	s.logger.Warn("Tuple failed downstream", "topic", msg.Topic(), "id", id)
}

// Close implements topology.Spout.
func (s *Spout) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	s.metrics.Unregister(s.registrar)
	return nil
}

// DeclareOutputFields implements topology.Spout.
func (s *Spout) DeclareOutputFields() topology.Fields {
	return spout.OutputFields()
}

// Register registers the MQTT spout factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "mqtt",
		Type:        types.ComponentTypeSpout,
		Protocol:    "mqtt",
		Description: "Subscribes to MQTT topics and emits raw records",
		Version:     "0.1.0",
		Schema:      mqttSchema,
		Spout:       NewSpout,
	})
}
