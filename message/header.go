package message

import "time"

// Header names accepted by Header.GetField.
const (
	FieldMessageID         = "messageId"
	FieldTimestamp         = "timestamp"
	FieldSource            = "source"
	FieldType              = "type"
	FieldMessageKey        = "messageKey"
	FieldAdditionalHeaders = "additionalHeaders"
)

// Header carries the envelope metadata of a StreamMessage.
type Header struct {
	MessageID  string `json:"messageId"`
	Timestamp  int64  `json:"timestamp"` // epoch millis
	Source     string `json:"source"`
	Type       string `json:"type"`
	MessageKey string `json:"messageKey,omitempty"`

	// AdditionalHeaders holds protocol-specific string headers in the order
	// the converter added them.
	AdditionalHeaders *OrderedMap `json:"additionalHeaders,omitempty"`
}

var headerFields = map[string]func(*Header) any{
	FieldMessageID:  func(h *Header) any { return h.MessageID },
	FieldTimestamp:  func(h *Header) any { return h.Timestamp },
	FieldSource:     func(h *Header) any { return h.Source },
	FieldType:       func(h *Header) any { return h.Type },
	FieldMessageKey: func(h *Header) any { return h.MessageKey },
	FieldAdditionalHeaders: func(h *Header) any {
		if h.AdditionalHeaders == nil {
			return nil
		}
		return h.AdditionalHeaders
	},
}

var headerFieldNames = []string{
	FieldMessageID, FieldTimestamp, FieldSource, FieldType, FieldMessageKey, FieldAdditionalHeaders,
}

// GetField implements FieldGetter.
func (h *Header) GetField(name string) (any, bool) {
	get, ok := headerFields[name]
	if !ok || h == nil {
		return nil, false
	}
	return get(h), true
}

// FieldNames implements FieldNames.
func (h *Header) FieldNames() []string {
	return headerFieldNames
}

// SetHeader appends or replaces an additional header.
func (h *Header) SetHeader(key, value string) {
	if h.AdditionalHeaders == nil {
		h.AdditionalHeaders = NewOrderedMap(4)
	}
	h.AdditionalHeaders.Set(key, value)
}

// GetHeader returns an additional header value.
func (h *Header) GetHeader(key string) (string, bool) {
	return h.AdditionalHeaders.GetString(key)
}

// Time returns the timestamp as a time.Time.
func (h *Header) Time() time.Time {
	return time.UnixMilli(h.Timestamp)
}
