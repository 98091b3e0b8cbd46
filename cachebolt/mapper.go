package cachebolt

import (
	"encoding/json"
	"fmt"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/fieldpath"
	"github.com/c360/stormbridge/topology"
)

// FieldMapper reads key and value from fixed field paths on the tuple and
// converts them with the supplied funcs.
type FieldMapper[K comparable, V any] struct {
	keyPath   fieldpath.Path
	valuePath fieldpath.Path
	toKey     func(any) (K, error)
	toValue   func(any) (V, error)
}

var _ Mapper[string, string] = (*FieldMapper[string, string])(nil)

// NewFieldMapper returns a FieldMapper. The paths start at the tuple's
// declared fields, e.g. "message.header.messageKey".
func NewFieldMapper[K comparable, V any](
	keyPath, valuePath, delim string, toKey func(any) (K, error), toValue func(any) (V, error),
) *FieldMapper[K, V] {
	return &FieldMapper[K, V]{
		keyPath:   fieldpath.New(keyPath, delim),
		valuePath: fieldpath.New(valuePath, delim),
		toKey:     toKey,
		toValue:   toValue,
	}
}

// NewStringFieldMapper maps both fields to strings. Values that are not
// strings are stored as JSON.
func NewStringFieldMapper(keyPath, valuePath, delim string) *FieldMapper[string, string] {
	return NewFieldMapper(keyPath, valuePath, delim, StringOf, StringOf)
}

// Key implements Mapper.
func (m *FieldMapper[K, V]) Key(t *topology.Tuple) (K, error) {
	var zero K
	raw, err := m.resolve(t, m.keyPath, "Key")
	if err != nil {
		return zero, err
	}
	key, err := m.toKey(raw)
	if err != nil {
		return zero, errors.ConversionFailed(err, "FieldMapper", "Key", "convert key")
	}
	return key, nil
}

// Value implements Mapper.
func (m *FieldMapper[K, V]) Value(t *topology.Tuple) (V, error) {
	var zero V
	raw, err := m.resolve(t, m.valuePath, "Value")
	if err != nil {
		return zero, err
	}
	value, err := m.toValue(raw)
	if err != nil {
		return zero, errors.ConversionFailed(err, "FieldMapper", "Value", "convert value")
	}
	return value, nil
}

func (m *FieldMapper[K, V]) resolve(t *topology.Tuple, path fieldpath.Path, method string) (any, error) {
	raw, err := path.Extract(t)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.ConversionFailed(
			fmt.Errorf("%w: %q resolved to nil", errors.ErrFieldNotFound, path.String()),
			"FieldMapper", method, "resolve field")
	}
	return raw, nil
}

// StringOf converts scalars to their string form and anything structured
// to JSON.
func StringOf(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case json.Number, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fieldpath.FormatValue(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
