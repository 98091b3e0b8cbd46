package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/remotecache"
	"github.com/c360/stormbridge/types"
)

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const baseJSON = `{
	"version": "1.0.0",
	"nats": {
		"urls": ["nats://nats-1:4222", "nats://nats-2:4222"],
		"reconnect_wait": "5s",
		"stream": {"name": "EVENTS", "subjects": ["events.>"], "max_age": "14d"}
	},
	"caches": {
		"devices": {"kind": "redis", "urls": ["redis:6379"], "ttl_seconds": 60}
	},
	"components": {
		"mqtt-sensors": {
			"type": "spout",
			"name": "mqtt",
			"enabled": true,
			"output": "events.raw.mqtt",
			"config": {"brokers": ["tcp://broker:1883"], "topics": ["sensors/#"]}
		},
		"es-sink": {
			"type": "bolt",
			"name": "elasticsearch",
			"enabled": false,
			"input": "events.messages",
			"config": {"addresses": ["http://es:9200"], "index": "events"}
		}
	}
}`

func TestLoader_LoadJSON(t *testing.T) {
	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(writeFile(t, "stormbridge.json", baseJSON))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, []string{"nats://nats-1:4222", "nats://nats-2:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, -1, cfg.NATS.MaxReconnects, "default kept")
	assert.Equal(t, "EVENTS", cfg.NATS.Stream.Name)
	assert.Equal(t, 14*24*time.Hour, cfg.NATS.Stream.MaxAge.Std())
	assert.Equal(t, 1, cfg.NATS.Stream.Replicas, "default kept")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)

	require.Contains(t, cfg.Caches, "devices")
	assert.Equal(t, "devices", cfg.Caches["devices"].Name, "name filled from key")
	assert.Equal(t, remotecache.KindRedis, cfg.Caches["devices"].Kind)

	require.Len(t, cfg.Components, 2)
	mqtt := cfg.Components["mqtt-sensors"]
	assert.Equal(t, types.ComponentTypeSpout, mqtt.Type)
	assert.JSONEq(t, `{"brokers":["tcp://broker:1883"],"topics":["sensors/#"]}`, string(mqtt.Config))

	enabled := cfg.Enabled()
	assert.Len(t, enabled, 1)
	assert.Contains(t, enabled, "mqtt-sensors")
}

func TestLoader_YAMLLayerOverridesJSON(t *testing.T) {
	base := writeFile(t, "base.json", baseJSON)
	override := writeFile(t, "prod.yaml", `
nats:
  urls:
    - nats://prod:4222
metrics:
  port: 9300
components:
  es-sink:
    enabled: true
    config:
      addresses: ["http://es-prod:9200"]
      index: events-prod
      refresh: wait_for
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://prod:4222"}, cfg.NATS.URLs, "arrays are replaced")
	assert.Equal(t, "EVENTS", cfg.NATS.Stream.Name, "nested maps are merged")
	assert.Equal(t, 9300, cfg.Metrics.Port)

	es := cfg.Components["es-sink"]
	assert.True(t, es.Enabled)
	assert.Equal(t, "elasticsearch", es.Name)
	var esCfg map[string]any
	require.NoError(t, json.Unmarshal(es.Config, &esCfg))
	assert.Equal(t, "events-prod", esCfg["index"])
	assert.Equal(t, "wait_for", esCfg["refresh"])
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"STORMBRIDGE_NATS_URLS":     "nats://a:4222, nats://b:4222",
		"STORMBRIDGE_NATS_PASSWORD": "s3cret",
		"STORMBRIDGE_METRICS_PORT":  "9500",
	})
	cfg, err := l.LoadFile(writeFile(t, "c.json", baseJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "s3cret", cfg.NATS.Password)
	assert.Equal(t, 9500, cfg.Metrics.Port)
	assert.NotContains(t, cfg.String(), "s3cret")

	_, err = newTestLoader(map[string]string{"STORMBRIDGE_METRICS_PORT": "nine"}).
		LoadFile(writeFile(t, "c.json", baseJSON))
	assert.Error(t, err)

	_, err = newTestLoader(map[string]string{"STORMBRIDGE_NATS_TOKEN": "a\x00b"}).
		LoadFile(writeFile(t, "c.json", baseJSON))
	assert.Error(t, err)
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_FileErrors(t *testing.T) {
	l := newTestLoader(nil)

	_, err := l.LoadFile(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err, "unsupported extension")

	_, err = l.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = l.LoadFile(writeFile(t, "broken.json", `{"nats": {`))
	assert.Error(t, err)

	_, err = l.LoadFile(writeFile(t, "broken.yaml", "nats: [unclosed"))
	assert.Error(t, err)

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	_, err = l.LoadFile(writeFile(t, "deep.json", `{"x":`+deep+`}`))
	assert.Error(t, err)

	_, err = l.LoadFile(writeFile(t, "bad-duration.json", `{"nats":{"reconnect_wait":"soon"}}`))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad version", func(c *Config) { c.Version = "1.0" }},
		{"no nats urls", func(c *Config) { c.NATS.URLs = nil }},
		{"no stream subjects", func(c *Config) { c.NATS.Stream.Subjects = nil }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"bad cache", func(c *Config) {
			c.Caches = map[string]remotecache.Spec{"x": {Kind: "memcached"}}
		}},
		{"bad instance name", func(c *Config) {
			c.Components = ComponentConfigs{"has space": {Type: types.ComponentTypeSpout, Name: "mqtt", Output: "a"}}
		}},
		{"bolt without input", func(c *Config) {
			c.Components = ComponentConfigs{"sink": {Type: types.ComponentTypeBolt, Name: "sql"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate(), "port ignored when metrics are off")
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`"2d"`), &d))
	assert.Equal(t, 48*time.Hour, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`1500000000`), &d))
	assert.Equal(t, 1500*time.Millisecond, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"xd"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	data, err := json.Marshal(Duration(3 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"3s"`, string(data))
}

func TestParseSemVer(t *testing.T) {
	major, minor, patch, err := parseSemVer("v2.10.3")
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 10, 3}, [3]int{major, minor, patch})

	for _, bad := range []string{"", "1.2", "1.2.x", "1.-2.3"} {
		_, _, _, err := parseSemVer(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckConfigPath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"topology.json", true},
		{"/etc/stormbridge/topology.YAML", true},
		{"conf/prod.yml", true},
		{"", false},
		{"../outside.json", false},
		{"conf/../../outside.yaml", false},
		{"topology.toml", false},
		{"bad\x00.json", false},
		{strings.Repeat("a", maxPathLen) + ".json", false},
	}
	for _, tt := range tests {
		err := checkConfigPath(tt.path)
		if tt.ok {
			assert.NoError(t, err, tt.path)
		} else {
			assert.True(t, errors.IsInvalid(err), tt.path)
		}
	}
}

func TestCheckEnvVar(t *testing.T) {
	assert.NoError(t, checkEnvVar("K", "nats://a:4222"))
	assert.Error(t, checkEnvVar("K", "a\x00b"))
	assert.Error(t, checkEnvVar("K", strings.Repeat("x", maxEnvVarLen+1)))
}

func TestLoader_RejectsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, os.Mkdir(dir, 0o755))
	_, err := newTestLoader(nil).LoadFile(dir)
	assert.True(t, errors.IsInvalid(err))
}
