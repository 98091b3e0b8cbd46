package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/remotecache"
	"github.com/c360/stormbridge/types"
)

// ComponentConfigs holds component instance configurations keyed by
// instance name (e.g. "mqtt-sensors"). Only enabled entries are created.
type ComponentConfigs map[string]types.ComponentConfig

// Config is the complete process configuration.
type Config struct {
	Version    string                      `json:"version,omitempty"` // semantic version of the topology
	NATS       NATSConfig                  `json:"nats"`
	Metrics    MetricsConfig               `json:"metrics"`
	Caches     map[string]remotecache.Spec `json:"caches,omitempty"`     // named caches bolts refer to
	Components ComponentConfigs            `json:"components,omitempty"` // component instances
}

// NATSConfig defines the NATS connection and the stream tuples travel on.
type NATSConfig struct {
	URLs          []string     `json:"urls,omitempty"`
	MaxReconnects int          `json:"max_reconnects,omitempty"`
	ReconnectWait Duration     `json:"reconnect_wait,omitempty"`
	Username      string       `json:"username,omitempty"`
	Password      string       `json:"password,omitempty"`
	Token         string       `json:"token,omitempty"`
	Stream        StreamConfig `json:"stream"`
}

// StreamConfig defines the JetStream stream backing component subjects.
type StreamConfig struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	MaxAge   Duration `json:"max_age,omitempty"` // 0 keeps messages until consumed limits apply
	Replicas int      `json:"replicas,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Duration is a time.Duration that reads "5s" style strings or nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON writes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1m30s" style strings, "14d" day counts and numbers
// of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := parseDurationWithDays(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// parseDurationWithDays parses durations that may be given in days ("14d").
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Default returns the configuration every loaded file is merged over.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Stream: StreamConfig{
				Name:     "STORMBRIDGE",
				Subjects: []string{"stormbridge.>"},
				Replicas: 1,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Validate checks the config and fills cache names from their keys.
func (c *Config) Validate() error {
	if c.Version != "" {
		if _, _, _, err := parseSemVer(c.Version); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "version")
		}
	}
	if len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.urls is required")
	}
	if c.NATS.Stream.Name == "" || len(c.NATS.Stream.Subjects) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.stream needs a name and subjects")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, c.Metrics.Port),
			"Config", "Validate", "metrics.port")
	}

	for name, spec := range c.Caches {
		if spec.Name == "" {
			spec.Name = name
			c.Caches[name] = spec
		}
		if err := spec.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "cache "+name)
		}
	}

	for instanceName, cfg := range c.Components {
		if err := component.ValidateComponentName(instanceName); err != nil {
			return errors.Wrap(err, "Config", "Validate", "component name "+instanceName)
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", "component "+instanceName)
		}
	}
	return nil
}

// Enabled returns the enabled components.
func (c *Config) Enabled() ComponentConfigs {
	out := make(ComponentConfigs, len(c.Components))
	for name, cfg := range c.Components {
		if cfg.Enabled {
			out[name] = cfg
		}
	}
	return out
}

// String returns the config as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := *c
	masked.NATS.Password = mask(c.NATS.Password)
	masked.NATS.Token = mask(c.NATS.Token)
	if len(c.Caches) > 0 {
		masked.Caches = make(map[string]remotecache.Spec, len(c.Caches))
		for name, spec := range c.Caches {
			spec.Password = mask(spec.Password)
			masked.Caches[name] = spec
		}
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// parseSemVer parses a semantic version string such as "1.2.3" or "v1.2.3".
func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, errors.New("version cannot be empty")
	}
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid version component '%s' in '%s'", part, version)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
