package topology

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
)

// Wire kinds known to every codec.
const (
	KindMessage = "message"
	KindBytes   = "bytes"
)

type wireValue struct {
	Kind string          `json:"kind,omitempty"`
	Data json.RawMessage `json:"data"`
}

type wireTuple struct {
	ID        string      `json:"id"`
	Component string      `json:"component"`
	Stream    string      `json:"stream"`
	Task      int         `json:"task,omitempty"`
	Fields    Fields      `json:"fields"`
	Values    []wireValue `json:"values"`
}

// Codec encodes tuples as JSON. Values of a registered Go type are tagged
// with their kind and decoded back to the same type; anything else decodes
// as generic JSON.
type Codec struct {
	mu       sync.RWMutex
	kinds    map[reflect.Type]string
	decoders map[string]func(json.RawMessage) (any, error)
}

// NewCodec returns a codec that knows *message.StreamMessage and []byte.
func NewCodec() *Codec {
	c := &Codec{
		kinds:    make(map[reflect.Type]string),
		decoders: make(map[string]func(json.RawMessage) (any, error)),
	}
	Register[*message.StreamMessage](c, KindMessage)
	Register[[]byte](c, KindBytes)
	return c
}

// Register teaches c to round-trip values of type T under kind.
func Register[T any](c *Codec, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kinds[reflect.TypeFor[T]()] = kind
	c.decoders[kind] = func(data json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Encode serializes t.
func (c *Codec) Encode(t *Tuple) ([]byte, error) {
	wt := wireTuple{
		ID:        t.ID,
		Component: t.Component,
		Stream:    t.Stream,
		Task:      t.Task,
		Fields:    t.Fields,
		Values:    make([]wireValue, len(t.Values)),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, v := range t.Values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("value %d: %w", i, err), "Codec", "Encode", "marshal value")
		}
		wt.Values[i] = wireValue{Data: data}
		if v != nil {
			wt.Values[i].Kind = c.kinds[reflect.TypeOf(v)]
		}
	}

	data, err := json.Marshal(wt)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "Encode", "marshal tuple")
	}
	return data, nil
}

// Decode restores a tuple written by Encode.
func (c *Codec) Decode(data []byte) (*Tuple, error) {
	var wt wireTuple
	if err := json.Unmarshal(data, &wt); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"Codec", "Decode", "unmarshal tuple")
	}

	t := &Tuple{
		ID:        wt.ID,
		Component: wt.Component,
		Stream:    wt.Stream,
		Task:      wt.Task,
		Fields:    wt.Fields,
		Values:    make(Values, len(wt.Values)),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, wv := range wt.Values {
		decode, ok := c.decoders[wv.Kind]
		if !ok {
			if wv.Kind != "" {
				return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown kind %q", errors.ErrInvalidData, wv.Kind),
					"Codec", "Decode", "resolve kind")
			}
			decode = decodeGeneric
		}
		v, err := decode(wv.Data)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("value %d: %w", i, err), "Codec", "Decode", "unmarshal value")
		}
		t.Values[i] = v
	}
	return t, nil
}

func decodeGeneric(data json.RawMessage) (any, error) {
	var v any
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
