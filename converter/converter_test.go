package converter

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
)

func TestDefaultToMap_IterableBody(t *testing.T) {
	msg := message.New([]any{"a", 2, true}, message.WithID("m1"), message.WithSource("src"))

	out := DefaultToMap(msg)

	assert.Equal(t, []string{KeyMessageID, KeyTimestamp, KeySource, KeyBody}, out.Keys())
	body, ok := out.Get(KeyBody)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "2", "true"}, body)

	id, _ := out.Get(KeyMessageID)
	assert.Equal(t, "m1", id)
	ts, _ := out.Get(KeyTimestamp)
	assert.Equal(t, msg.Header.Timestamp, ts)
}

func TestDefaultToMap_ScalarBody(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		expected []string
	}{
		{"string", "hello", []string{"hello"}},
		{"number", 42, []string{"42"}},
		{"bytes", []byte("raw"), []string{"raw"}},
		{"nil", nil, []string{""}},
		{"map", map[string]any{"k": "v"}, []string{`{"k":"v"}`}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := DefaultToMap(message.New(test.body))
			body, _ := out.Get(KeyBody)
			assert.Equal(t, test.expected, body)
		})
	}
}

func TestBodyStrings_TypedSlices(t *testing.T) {
	assert.Equal(t, []string{"x", "y", "z"}, BodyStrings([]string{"x", "y", "z"}))
	assert.Equal(t, []string{"1", "2", "3"}, BodyStrings([]int{1, 2, 3}))
	assert.Equal(t, []string{"a", "b"}, BodyStrings([2]string{"a", "b"}))
	assert.Empty(t, BodyStrings([]any{}))
}

func TestDefaultToMap_NilMessage(t *testing.T) {
	assert.Equal(t, 0, DefaultToMap(nil).Len())
}

func TestDefaultBody(t *testing.T) {
	assert.Equal(t, "abc", DefaultBody([]byte("abc")))
	assert.Equal(t, "abc", DefaultBody("abc"))
	assert.Equal(t, "12", DefaultBody(12))
	assert.Equal(t, "stringer", DefaultBody(stringer{}))
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

type stubConverter struct {
	header    message.Header
	headerErr error
	bodyErr   error
}

func (s stubConverter) Type() string { return "stub" }

func (s stubConverter) CreateHeader(any) (message.Header, error) { return s.header, s.headerErr }

func (s stubConverter) CreateBody(raw any) (any, error) {
	if s.bodyErr != nil {
		return nil, s.bodyErr
	}
	return DefaultBody(raw), nil
}

func (s stubConverter) ToMap(msg *message.StreamMessage) *message.OrderedMap { return DefaultToMap(msg) }

func TestConvert_FillsDefaults(t *testing.T) {
	msg, err := Convert(stubConverter{}, "payload")
	require.NoError(t, err)

	assert.Equal(t, "stub", msg.Header.Type)
	assert.NotEmpty(t, msg.Header.MessageID)
	assert.NotZero(t, msg.Header.Timestamp)
	assert.Equal(t, "payload", msg.Body)
}

func TestConvert_KeepsHeader(t *testing.T) {
	c := stubConverter{header: message.Header{MessageID: "id", Timestamp: 5, Type: "custom"}}
	msg, err := Convert(c, "payload")
	require.NoError(t, err)

	assert.Equal(t, "id", msg.Header.MessageID)
	assert.Equal(t, int64(5), msg.Header.Timestamp)
	assert.Equal(t, "custom", msg.Header.Type)
}

func TestConvert_WrapsFailures(t *testing.T) {
	cause := fmt.Errorf("boom")

	_, err := Convert(stubConverter{headerErr: cause}, "x")
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
	assert.ErrorIs(t, err, cause)

	_, err = Convert(stubConverter{bodyErr: cause}, "x")
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
	assert.True(t, errors.IsInvalid(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{TypeJSON, TypeRaw, TypeSNMP, TypeTwitter}, r.Names())

	for _, name := range r.Names() {
		c, err := r.Create(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Type())
	}

	_, err := r.Create("xml", nil)
	assert.Error(t, err)

	err = r.Register(TypeRaw, func(json.RawMessage) (Converter, error) { return NewRawConverter(), nil })
	assert.Error(t, err)

	assert.Error(t, r.Register("", nil))
}

func TestRegistry_CreateWithConfig(t *testing.T) {
	r := NewRegistry()

	c, err := r.Create(TypeJSON, json.RawMessage(`{"id_path":"meta.uid"}`))
	require.NoError(t, err)

	msg, err := Convert(c, `{"meta":{"uid":"u-1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "u-1", msg.Header.MessageID)

	_, err = r.Create(TypeJSON, json.RawMessage(`{bad`))
	assert.Error(t, err)
}

func TestJSONConverter(t *testing.T) {
	c := NewJSONConverter(DefaultJSONConfig())
	raw := []byte(`{"id":"r1","timestamp":1700000000000,"source":"sensor","key":"k1","value":3.5}`)

	msg, err := Convert(c, raw)
	require.NoError(t, err)

	assert.Equal(t, "r1", msg.Header.MessageID)
	assert.Equal(t, int64(1700000000000), msg.Header.Timestamp)
	assert.Equal(t, "sensor", msg.Header.Source)
	assert.Equal(t, "k1", msg.Header.MessageKey)
	assert.Equal(t, TypeJSON, msg.Header.Type)

	body, ok := msg.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("3.5"), body["value"])
}

func TestJSONConverter_NumericIDsKeepDigits(t *testing.T) {
	c := NewJSONConverter(DefaultJSONConfig())
	raw := []byte(`{"id":1234567,"key":9007199254740993,"timestamp":1700000000000,"reading":0.25}`)

	msg, err := Convert(c, raw)
	require.NoError(t, err)

	assert.Equal(t, "1234567", msg.Header.MessageID)
	assert.Equal(t, "9007199254740993", msg.Header.MessageKey)
	assert.Equal(t, int64(1700000000000), msg.Header.Timestamp)

	body, ok := msg.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), body["key"])

	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"key":9007199254740993`)

	row := DefaultToMap(msg)
	rowBody, _ := row.Get(KeyBody)
	assert.Contains(t, rowBody.([]string)[0], `"id":1234567`)
}

func TestJSONConverter_FractionalTimestamp(t *testing.T) {
	header, err := NewJSONConverter(DefaultJSONConfig()).CreateHeader(`{"timestamp":1700000000000.9}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), header.Timestamp)
}

func TestJSONConverter_RejectsTrailingData(t *testing.T) {
	_, err := Convert(NewJSONConverter(DefaultJSONConfig()), `{"id":"a"} {"id":"b"}`)
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
}

// decodingConverter counts decodes and records what the builders receive.
type decodingConverter struct {
	stubConverter
	decodes int
	seen    []any
}

func (c *decodingConverter) Decode(raw any) (any, error) {
	c.decodes++
	if raw == "bad" {
		return nil, fmt.Errorf("cannot decode")
	}
	return map[string]any{"decoded": raw}, nil
}

func (c *decodingConverter) CreateHeader(raw any) (message.Header, error) {
	c.seen = append(c.seen, raw)
	return message.Header{}, nil
}

func (c *decodingConverter) CreateBody(raw any) (any, error) {
	c.seen = append(c.seen, raw)
	return raw, nil
}

func TestConvert_DecodesOnce(t *testing.T) {
	c := &decodingConverter{}
	msg, err := Convert(c, "payload")
	require.NoError(t, err)

	assert.Equal(t, 1, c.decodes)
	want := map[string]any{"decoded": "payload"}
	assert.Equal(t, []any{want, want}, c.seen)
	assert.Equal(t, want, msg.Body)

	_, err = Convert(c, "bad")
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
	assert.Len(t, c.seen, 2)
}

func TestDecoders(t *testing.T) {
	var _ Decoder = NewJSONConverter(DefaultJSONConfig())
	var _ Decoder = NewTwitterConverter()

	doc, err := NewTwitterConverter().Decode(tweet)
	require.NoError(t, err)
	header, err := NewTwitterConverter().CreateHeader(doc)
	require.NoError(t, err)
	assert.Equal(t, "1050118621198921728", header.MessageID)
}

func TestJSONConverter_Timestamps(t *testing.T) {
	c := NewJSONConverter(DefaultJSONConfig())

	header, err := c.CreateHeader(`{"timestamp":"2024-03-01T12:00:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), header.Timestamp)

	header, err = c.CreateHeader(`{"timestamp":"1700000000123"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), header.Timestamp)

	before := time.Now().UnixMilli()
	header, err = c.CreateHeader(`{"id":"no-ts"}`)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, header.Timestamp, before)

	_, err = c.CreateHeader(`{"timestamp":"yesterday"}`)
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
}

func TestJSONConverter_FallbackSource(t *testing.T) {
	cfg := DefaultJSONConfig()
	cfg.Source = "gateway"
	c := NewJSONConverter(cfg)

	header, err := c.CreateHeader(map[string]any{"id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "gateway", header.Source)
}

func TestJSONConverter_BadInput(t *testing.T) {
	c := NewJSONConverter(DefaultJSONConfig())

	for name, raw := range map[string]any{
		"not json": "{{{",
		"array":    `["a"]`,
		"null":     "null",
		"nil":      nil,
		"number":   42,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Convert(c, raw)
			require.Error(t, err)
			assert.True(t, errors.IsConversionFailed(err))
		})
	}
}

const tweet = `{
	"id_str": "1050118621198921728",
	"created_at": "Wed Oct 10 20:19:24 +0000 2018",
	"text": "To make room for more expression",
	"lang": "en",
	"user": {"id_str": "6253282", "screen_name": "TwitterAPI"}
}`

func TestTwitterConverter(t *testing.T) {
	msg, err := Convert(NewTwitterConverter(), tweet)
	require.NoError(t, err)

	assert.Equal(t, "1050118621198921728", msg.Header.MessageID)
	assert.Equal(t, "1050118621198921728", msg.Header.MessageKey)
	assert.Equal(t, time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC).UnixMilli(), msg.Header.Timestamp)
	assert.Equal(t, "TwitterAPI", msg.Header.Source)
	assert.Equal(t, TypeTwitter, msg.Header.Type)
	assert.Equal(t, "To make room for more expression", msg.Body)

	assert.Equal(t, []string{HeaderLang, HeaderUserID}, msg.Header.AdditionalHeaders.Keys())
	userID, _ := msg.Header.GetHeader(HeaderUserID)
	assert.Equal(t, "6253282", userID)
}

func TestTwitterConverter_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"created_at":"Wed Oct 10 20:19:24 +0000 2018"}`},
		{"missing created_at", `{"id_str":"1"}`},
		{"bad date", `{"id_str":"1","created_at":"2018-10-10"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewTwitterConverter().CreateHeader(test.raw)
			require.Error(t, err)
			assert.True(t, errors.IsConversionFailed(err))
		})
	}
}

func TestSNMPConverter(t *testing.T) {
	received := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	trap := SNMPTrap{
		Source:    "10.0.0.5",
		Received:  received,
		Community: "public",
		Variables: []SNMPVariable{
			{OID: ".1.3.6.1.2.1.1.3.0", Value: uint32(1234)},
			{OID: "." + TrapOID, Value: ".1.3.6.1.6.3.1.1.5.3"},
			{OID: "1.3.6.1.2.1.2.2.1.1.2", Value: 2},
		},
	}

	msg, err := Convert(NewSNMPConverter(), &trap)
	require.NoError(t, err)

	assert.Equal(t, TypeSNMP, msg.Header.Type)
	assert.Equal(t, "10.0.0.5", msg.Header.Source)
	assert.Equal(t, received.UnixMilli(), msg.Header.Timestamp)
	community, _ := msg.Header.GetHeader(HeaderCommunity)
	assert.Equal(t, "public", community)

	assert.Equal(t, []string{
		".1.3.6.1.6.3.1.1.5.3",
		"1.3.6.1.2.1.1.3.0=1234;1.3.6.1.2.1.2.2.1.1.2=2",
	}, msg.Body)

	body, _ := NewSNMPConverter().ToMap(msg).Get(KeyBody)
	assert.Len(t, body, 2)
}

func TestSNMPConverter_MissingTrapOID(t *testing.T) {
	trap := SNMPTrap{Variables: []SNMPVariable{{OID: "1.3.6.1.2.1.1.3.0", Value: 1}}}

	_, err := Convert(NewSNMPConverter(), trap)
	require.Error(t, err)
	assert.True(t, errors.IsConversionFailed(err))
	assert.True(t, errors.IsFieldNotFound(err))
}

func TestSNMPConverter_WrongInput(t *testing.T) {
	_, err := NewSNMPConverter().CreateHeader("not a trap")
	assert.True(t, errors.IsConversionFailed(err))
}

func TestRawConverter(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	rec := RawRecord{
		ID:        "r1",
		Source:    "mqtt",
		Key:       "sensors/1",
		Timestamp: ts,
		Payload:   []byte("21.5"),
		Headers:   map[string]string{"topic": "sensors/1", "qos": "1"},
	}

	msg, err := Convert(NewRawConverter(), rec)
	require.NoError(t, err)

	assert.Equal(t, "r1", msg.Header.MessageID)
	assert.Equal(t, "mqtt", msg.Header.Source)
	assert.Equal(t, "sensors/1", msg.Header.MessageKey)
	assert.Equal(t, ts.UnixMilli(), msg.Header.Timestamp)
	assert.Equal(t, []string{"qos", "topic"}, msg.Header.AdditionalHeaders.Keys())
	assert.Equal(t, "21.5", msg.Body)

	plain, err := Convert(NewRawConverter(), []byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", plain.Body)
	assert.Equal(t, TypeRaw, plain.Header.Type)
}
