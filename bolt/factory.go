package bolt

import (
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
)

// BuildSink resolves cfg's converter from deps and wraps writer in a Sink
// named after the instance, or kind when the instance is unnamed.
func BuildSink(kind string, cfg SinkConfig, writer Writer, deps component.Dependencies) (*Sink, error) {
	cfg.ApplyDefaults()
	conv, err := deps.GetConverters().Create(cfg.Converter, cfg.ConverterConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Sink", "BuildSink", "create converter")
	}
	name := deps.Name(kind)
	return NewSink(name, cfg, conv, writer, deps.GetLoggerWithComponent(name), deps.Registrar())
}
