package converter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/fieldpath"
	"github.com/c360/stormbridge/message"
)

// TypeJSON tags messages built from generic JSON documents.
const TypeJSON = "json"

// JSONConfig selects the document fields that populate the header.
// Empty paths are skipped.
type JSONConfig struct {
	IDPath        string `json:"id_path"`
	TimestampPath string `json:"timestamp_path"`
	SourcePath    string `json:"source_path"`
	KeyPath       string `json:"key_path"`
	Delimiter     string `json:"delimiter"`
	// Source is used when SourcePath resolves to nothing.
	Source string `json:"source"`
}

// DefaultJSONConfig returns the conventional field names.
func DefaultJSONConfig() JSONConfig {
	return JSONConfig{
		IDPath:        "id",
		TimestampPath: "timestamp",
		SourcePath:    "source",
		KeyPath:       "key",
		Delimiter:     fieldpath.DefaultDelimiter,
	}
}

// JSONConverter converts JSON objects. The decoded document is the body.
type JSONConverter struct {
	config JSONConfig
}

// NewJSONConverter returns a converter for cfg.
func NewJSONConverter(cfg JSONConfig) *JSONConverter {
	if cfg.Delimiter == "" {
		cfg.Delimiter = fieldpath.DefaultDelimiter
	}
	return &JSONConverter{config: cfg}
}

// NewJSONConverterFromConfig parses rawConfig over DefaultJSONConfig.
func NewJSONConverterFromConfig(rawConfig json.RawMessage) (Converter, error) {
	cfg := DefaultJSONConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "JSONConverter", "NewJSONConverterFromConfig", "parse config")
		}
	}
	return NewJSONConverter(cfg), nil
}

// Type implements Converter.
func (c *JSONConverter) Type() string { return TypeJSON }

// Decode implements Decoder.
func (c *JSONConverter) Decode(raw any) (any, error) {
	return decodeObject(raw, TypeJSON)
}

// CreateHeader implements Converter. A missing timestamp defaults to now;
// one that is present but unparsable fails.
func (c *JSONConverter) CreateHeader(raw any) (message.Header, error) {
	doc, err := decodeObject(raw, TypeJSON)
	if err != nil {
		return message.Header{}, err
	}

	var header message.Header
	if header.MessageID, err = c.str(doc, c.config.IDPath); err != nil {
		return message.Header{}, err
	}
	if header.Source, err = c.str(doc, c.config.SourcePath); err != nil {
		return message.Header{}, err
	}
	if header.Source == "" {
		header.Source = c.config.Source
	}
	if header.MessageKey, err = c.str(doc, c.config.KeyPath); err != nil {
		return message.Header{}, err
	}

	header.Timestamp = time.Now().UnixMilli()
	if c.config.TimestampPath != "" {
		v, err := fieldpath.Extract(doc, c.config.TimestampPath, c.config.Delimiter)
		if err != nil {
			return message.Header{}, err
		}
		if v != nil {
			ts, err := parseTimestamp(v)
			if err != nil {
				return message.Header{}, errors.ConversionFailed(err, "JSONConverter", "CreateHeader", "parse timestamp")
			}
			header.Timestamp = ts
		}
	}

	header.Type = TypeJSON
	return header, nil
}

// CreateBody implements Converter.
func (c *JSONConverter) CreateBody(raw any) (any, error) {
	return decodeObject(raw, TypeJSON)
}

// ToMap implements Converter.
func (c *JSONConverter) ToMap(msg *message.StreamMessage) *message.OrderedMap {
	return DefaultToMap(msg)
}

func (c *JSONConverter) str(doc map[string]any, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return fieldpath.ExtractString(doc, path, c.config.Delimiter)
}

// decodeObject accepts JSON bytes, a JSON string or an already decoded object.
// Numbers decode as json.Number so ids and keys keep their digits.
func decodeObject(raw any, component string) (map[string]any, error) {
	var data []byte
	switch r := raw.(type) {
	case map[string]any:
		return r, nil
	case []byte:
		data = r
	case string:
		data = []byte(r)
	case nil:
		return nil, errors.ConversionFailed(errors.ErrInvalidData, component, "decode", "read input")
	default:
		return nil, errors.ConversionFailed(fmt.Errorf("%w: unsupported input %T", errors.ErrInvalidData, raw),
			component, "decode", "read input")
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&doc)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = fmt.Errorf("trailing data after document")
	}
	if err != nil {
		return nil, errors.ConversionFailed(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			component, "decode", "parse document")
	}
	if doc == nil {
		return nil, errors.ConversionFailed(errors.ErrInvalidData, component, "decode", "parse document")
	}
	return doc, nil
}

// parseTimestamp accepts epoch millis as a number or numeric string, or an
// RFC 3339 string.
func parseTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return ms, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: timestamp %q", errors.ErrParsingFailed, t)
		}
		return int64(f), nil
	case time.Time:
		return t.UnixMilli(), nil
	case string:
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return ms, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0, fmt.Errorf("%w: timestamp %q", errors.ErrParsingFailed, t)
		}
		return parsed.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("%w: timestamp of type %T", errors.ErrParsingFailed, v)
	}
}
