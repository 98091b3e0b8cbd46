package converter

import (
	"sort"
	"time"

	"github.com/c360/stormbridge/message"
)

// TypeRaw tags messages whose body is the stringified payload.
const TypeRaw = "raw"

// RawRecord is a payload with the transport metadata a spout knows about it.
type RawRecord struct {
	ID        string            `json:"id,omitempty"`
	Source    string            `json:"source,omitempty"`
	Key       string            `json:"key,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   []byte            `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// RawConverter converts RawRecords, byte slices and strings.
type RawConverter struct{}

// NewRawConverter returns a RawConverter.
func NewRawConverter() *RawConverter {
	return &RawConverter{}
}

// Type implements Converter.
func (c *RawConverter) Type() string { return TypeRaw }

// CreateHeader implements Converter. Transport headers are added in key order.
func (c *RawConverter) CreateHeader(raw any) (message.Header, error) {
	header := message.Header{Type: TypeRaw}

	rec := asRecord(raw)
	if rec == nil {
		return header, nil
	}
	header.MessageID = rec.ID
	header.Source = rec.Source
	header.MessageKey = rec.Key
	if !rec.Timestamp.IsZero() {
		header.Timestamp = rec.Timestamp.UnixMilli()
	}

	keys := make([]string, 0, len(rec.Headers))
	for k := range rec.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		header.SetHeader(k, rec.Headers[k])
	}
	return header, nil
}

// CreateBody implements Converter.
func (c *RawConverter) CreateBody(raw any) (any, error) {
	if rec := asRecord(raw); rec != nil {
		return DefaultBody(rec.Payload), nil
	}
	return DefaultBody(raw), nil
}

// ToMap implements Converter.
func (c *RawConverter) ToMap(msg *message.StreamMessage) *message.OrderedMap {
	return DefaultToMap(msg)
}

func asRecord(raw any) *RawRecord {
	switch r := raw.(type) {
	case *RawRecord:
		return r
	case RawRecord:
		return &r
	default:
		return nil
	}
}
