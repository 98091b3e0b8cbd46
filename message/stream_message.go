package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamMessage names accepted by StreamMessage.GetField.
const (
	FieldHeader = "header"
	FieldBody   = "body"
)

// StreamMessage is the envelope passed between adapters.
//
// It is built once by a converter and handed to the next stage; the stage
// that holds it owns it. Only additional headers may be appended while a
// converter is still building the message.
type StreamMessage struct {
	Header Header `json:"header"`
	Body   any    `json:"body"`
}

// Option configures a StreamMessage built by New.
type Option func(*StreamMessage)

// WithID sets the message id instead of a generated UUID.
func WithID(id string) Option {
	return func(m *StreamMessage) { m.Header.MessageID = id }
}

// WithTime sets the timestamp instead of time.Now().
func WithTime(t time.Time) Option {
	return func(m *StreamMessage) { m.Header.Timestamp = t.UnixMilli() }
}

// WithSource sets the header source.
func WithSource(source string) Option {
	return func(m *StreamMessage) { m.Header.Source = source }
}

// WithType sets the header type tag.
func WithType(msgType string) Option {
	return func(m *StreamMessage) { m.Header.Type = msgType }
}

// WithKey sets the message key.
func WithKey(key string) Option {
	return func(m *StreamMessage) { m.Header.MessageKey = key }
}

// WithHeader appends an additional header.
func WithHeader(key, value string) Option {
	return func(m *StreamMessage) { m.Header.SetHeader(key, value) }
}

// New builds a message around body with a fresh id and the current time.
//
//	msg := message.New("payload", message.WithSource("mqtt"), message.WithKey("k1"))
func New(body any, opts ...Option) *StreamMessage {
	m := &StreamMessage{
		Header: Header{
			MessageID: uuid.New().String(),
			Timestamp: time.Now().UnixMilli(),
		},
		Body: body,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetField implements FieldGetter.
func (m *StreamMessage) GetField(name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	switch name {
	case FieldHeader:
		return &m.Header, true
	case FieldBody:
		return m.Body, true
	default:
		return nil, false
	}
}

// FieldNames implements FieldNames.
func (m *StreamMessage) FieldNames() []string {
	return []string{FieldHeader, FieldBody}
}

// String renders the message for logs.
func (m *StreamMessage) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("StreamMessage{id=%s source=%s type=%s key=%s body=%v}",
		m.Header.MessageID, m.Header.Source, m.Header.Type, m.Header.MessageKey, m.Body)
}

// Marshal encodes the message in its JSON wire form.
func Marshal(m *StreamMessage) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a message from its JSON wire form.
func Unmarshal(data []byte) (*StreamMessage, error) {
	var m StreamMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal stream message: %w", err)
	}
	return &m, nil
}

// UnmarshalJSON decodes the wire form. Numbers in the body decode as
// json.Number so ids and keys keep their digits between stages.
func (m *StreamMessage) UnmarshalJSON(data []byte) error {
	type wire StreamMessage
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*m = StreamMessage(w)
	return nil
}
