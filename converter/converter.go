// Package converter maps raw inbound payloads into message.StreamMessage and
// flattens messages back into ordered maps for sinks.
//
// Each protocol implements Converter. Behavior shared across protocols lives
// in plain functions (DefaultBody, DefaultToMap) that implementations call
// where they have nothing protocol-specific to do.
package converter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/fieldpath"
	"github.com/c360/stormbridge/message"
)

// Keys of the map produced by DefaultToMap, in output order.
const (
	KeyMessageID = "messageId"
	KeyTimestamp = "timestamp"
	KeySource    = "source"
	KeyBody      = "body"
)

// Converter builds envelopes for one protocol.
type Converter interface {
	// Type returns the stable protocol tag, e.g. "snmp".
	Type() string
	// CreateHeader builds header fields from raw input.
	CreateHeader(raw any) (message.Header, error)
	// CreateBody builds the body from raw input.
	CreateBody(raw any) (any, error)
	// ToMap flattens msg for positional sinks.
	ToMap(msg *message.StreamMessage) *message.OrderedMap
}

// Decoder is implemented by converters that parse their input. Convert
// decodes once and passes the result to both CreateHeader and CreateBody,
// which must also accept the decoded form.
type Decoder interface {
	Decode(raw any) (any, error)
}

// Convert runs c over raw and returns the finished message. A header without
// a type, id or timestamp gets c.Type(), a new UUID and the current time.
// Any failure is reported as a conversion error.
func Convert(c Converter, raw any) (*message.StreamMessage, error) {
	if d, ok := c.(Decoder); ok {
		decoded, err := d.Decode(raw)
		if err != nil {
			return nil, asConversionFailed(err, c.Type(), "Decode", "decode input")
		}
		raw = decoded
	}

	header, err := c.CreateHeader(raw)
	if err != nil {
		return nil, asConversionFailed(err, c.Type(), "CreateHeader", "build header")
	}
	body, err := c.CreateBody(raw)
	if err != nil {
		return nil, asConversionFailed(err, c.Type(), "CreateBody", "build body")
	}

	if header.Type == "" {
		header.Type = c.Type()
	}
	if header.MessageID == "" {
		header.MessageID = uuid.New().String()
	}
	if header.Timestamp == 0 {
		header.Timestamp = time.Now().UnixMilli()
	}
	return &message.StreamMessage{Header: header, Body: body}, nil
}

func asConversionFailed(err error, component, method, action string) error {
	if errors.IsConversionFailed(err) {
		return err
	}
	return errors.ConversionFailed(err, component, method, action)
}

// DefaultBody stringifies raw.
func DefaultBody(raw any) any {
	return stringify(raw)
}

// DefaultToMap flattens msg into messageId, timestamp, source and body.
// An iterable body becomes a list with each element stringified in order;
// anything else becomes a one-element list.
func DefaultToMap(msg *message.StreamMessage) *message.OrderedMap {
	out := message.NewOrderedMap(4)
	if msg == nil {
		return out
	}
	out.Set(KeyMessageID, msg.Header.MessageID)
	out.Set(KeyTimestamp, msg.Header.Timestamp)
	out.Set(KeySource, msg.Header.Source)
	out.Set(KeyBody, BodyStrings(msg.Body))
	return out
}

// BodyStrings coerces a body to a list of strings.
func BodyStrings(body any) []string {
	switch b := body.(type) {
	case []string:
		out := make([]string, len(b))
		copy(out, b)
		return out
	case []any:
		out := make([]string, len(b))
		for i, v := range b {
			out[i] = stringify(v)
		}
		return out
	case string, []byte, nil:
		return []string{stringify(b)}
	}

	// Other slice and array types are still sequences.
	rv := reflect.ValueOf(body)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, rv.Len())
		for i := range out {
			out[i] = stringify(rv.Index(i).Interface())
		}
		return out
	}
	return []string{stringify(body)}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fieldpath.FormatValue(t)
	}
}

// Factory builds a converter from its raw JSON configuration.
// rawConfig may be empty.
type Factory func(rawConfig json.RawMessage) (Converter, error)

// Registry maps protocol tags to converter factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns a registry holding the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	_ = r.Register(TypeJSON, NewJSONConverterFromConfig)
	_ = r.Register(TypeTwitter, func(json.RawMessage) (Converter, error) { return NewTwitterConverter(), nil })
	_ = r.Register(TypeSNMP, func(json.RawMessage) (Converter, error) { return NewSNMPConverter(), nil })
	_ = r.Register(TypeRaw, func(json.RawMessage) (Converter, error) { return NewRawConverter(), nil })
	return r
}

// Register adds a factory. Names must be unique.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "converter validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("converter '%s' is already registered", name),
			"Registry", "Register", "duplicate converter check")
	}
	r.factories[name] = factory
	return nil
}

// Create builds the converter registered under name.
func (r *Registry) Create(name string, rawConfig json.RawMessage) (Converter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown converter '%s'", name),
			"Registry", "Create", "converter lookup")
	}
	c, err := factory(rawConfig)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Create", "converter construction")
	}
	return c, nil
}

// Names returns the registered tags in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
