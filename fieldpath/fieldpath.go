// Package fieldpath resolves delimited paths such as "header.messageKey"
// against nested maps and named-field types.
//
// Maps are looked up by key. Types implementing message.FieldGetter are read
// through their accessor table. A path that runs into anything else (a
// scalar, a slice, a struct without accessors) is malformed input and fails
// with a conversion error.
//
// Absent is not an error: a missing map key, a missing named field or a nil
// value along the way all resolve to nil.
package fieldpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
)

// DefaultDelimiter separates path segments when callers have no preference.
const DefaultDelimiter = "."

// KeyHead returns the part of path before the first delim, or path itself
// when delim does not occur. A path starting with delim has an empty first
// segment and is returned whole.
func KeyHead(path, delim string) string {
	if i := split(path, delim); i > 0 {
		return path[:i]
	}
	return path
}

// KeyTail returns the part of path after the first delim. ok is false when
// there is nothing left to descend into.
func KeyTail(path, delim string) (tail string, ok bool) {
	if i := split(path, delim); i > 0 {
		return path[i+len(delim):], true
	}
	return "", false
}

func split(path, delim string) int {
	if delim == "" {
		return -1
	}
	return strings.Index(path, delim)
}

// Extract walks path through target and returns the value found there.
//
// A nil target, a missing key or field, and a nil intermediate value all
// return (nil, nil). An empty delimiter or an unreadable intermediate type
// returns a conversion error.
func Extract(target any, path, delim string) (any, error) {
	if delim == "" {
		return nil, errors.ConversionFailed(errors.ErrInvalidData, "fieldpath", "Extract", "validate delimiter")
	}
	return extract(target, path, delim)
}

func extract(target any, path, delim string) (any, error) {
	if isNil(target) {
		return nil, nil
	}

	head := KeyHead(path, delim)
	tail, hasTail := KeyTail(path, delim)

	inner, err := lookup(target, head)
	if err != nil {
		return nil, err
	}
	if isNil(inner) {
		return nil, nil
	}
	if !hasTail {
		return inner, nil
	}
	return extract(inner, tail, delim)
}

func lookup(target any, name string) (any, error) {
	switch t := target.(type) {
	case map[string]any:
		return t[name], nil
	case map[string]string:
		if v, ok := t[name]; ok {
			return v, nil
		}
		return nil, nil
	case map[string][]byte:
		if v, ok := t[name]; ok {
			return v, nil
		}
		return nil, nil
	case message.FieldGetter:
		v, _ := t.GetField(name)
		return v, nil
	default:
		return nil, errors.FieldNotFound(name, target)
	}
}

// isNil reports untyped nil and the nil pointers this package can meet.
func isNil(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *message.StreamMessage:
		return t == nil
	case *message.Header:
		return t == nil
	case *message.OrderedMap:
		return t == nil
	case map[string]any:
		return t == nil
	default:
		return false
	}
}

// ExtractString resolves path and formats the result with FormatValue.
// A nil result becomes "".
func ExtractString(target any, path, delim string) (string, error) {
	v, err := Extract(target, path, delim)
	if err != nil || v == nil {
		return "", err
	}
	return FormatValue(v), nil
}

// FormatValue formats a scalar the way it appears in a JSON document:
// json.Number keeps its literal digits and floats never use exponent form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Path is a field path fixed at construction time.
type Path struct {
	raw   string
	delim string
}

// New returns a Path using delim, or DefaultDelimiter when delim is empty.
func New(raw, delim string) Path {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return Path{raw: raw, delim: delim}
}

// String returns the raw path.
func (p Path) String() string {
	return p.raw
}

// Extract resolves the path against target.
func (p Path) Extract(target any) (any, error) {
	return Extract(target, p.raw, p.delim)
}

// ExtractString resolves the path against target as a string.
func (p Path) ExtractString(target any) (string, error) {
	return ExtractString(target, p.raw, p.delim)
}
