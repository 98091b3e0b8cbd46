package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := New("payload")

	assert.NotEmpty(t, msg.Header.MessageID)
	assert.GreaterOrEqual(t, msg.Header.Timestamp, before)
	assert.Equal(t, "payload", msg.Body)
	assert.Nil(t, msg.Header.AdditionalHeaders)
}

func TestNew_Options(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := New([]string{"a"},
		WithID("id-1"),
		WithTime(ts),
		WithSource("sensor"),
		WithType("raw"),
		WithKey("k1"),
		WithHeader("lang", "en"),
		WithHeader("community", "public"),
	)

	assert.Equal(t, "id-1", msg.Header.MessageID)
	assert.Equal(t, ts.UnixMilli(), msg.Header.Timestamp)
	assert.True(t, msg.Header.Time().Equal(ts))
	assert.Equal(t, "sensor", msg.Header.Source)
	assert.Equal(t, "raw", msg.Header.Type)
	assert.Equal(t, "k1", msg.Header.MessageKey)
	assert.Equal(t, []string{"lang", "community"}, msg.Header.AdditionalHeaders.Keys())

	lang, ok := msg.Header.GetHeader("lang")
	assert.True(t, ok)
	assert.Equal(t, "en", lang)
}

func TestStreamMessage_GetField(t *testing.T) {
	msg := New("body", WithKey("messageKey"))

	header, ok := msg.GetField("header")
	require.True(t, ok)
	h, ok := header.(*Header)
	require.True(t, ok)
	assert.Same(t, &msg.Header, h)

	body, ok := msg.GetField("body")
	assert.True(t, ok)
	assert.Equal(t, "body", body)

	_, ok = msg.GetField("history")
	assert.False(t, ok)
}

func TestHeader_GetField(t *testing.T) {
	h := &Header{MessageID: "id", Timestamp: 42, Source: "src", Type: "json", MessageKey: "key"}

	tests := []struct {
		name     string
		expected any
	}{
		{"messageId", "id"},
		{"timestamp", int64(42)},
		{"source", "src"},
		{"type", "json"},
		{"messageKey", "key"},
		{"additionalHeaders", nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, ok := h.GetField(test.name)
			assert.True(t, ok)
			assert.Equal(t, test.expected, v)
		})
	}

	_, ok := h.GetField("history")
	assert.False(t, ok)
	assert.Equal(t, headerFieldNames, h.FieldNames())
}

func TestOrderedMap_Order(t *testing.T) {
	m := NewOrderedMap(0)
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("c", 3)
	m.Set("a", 4)

	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	assert.Equal(t, []any{1, 4, 3}, m.Values())
	assert.Equal(t, 3, m.Len())

	var seen []string
	m.Range(func(k string, _ any) bool {
		seen = append(seen, k)
		return k != "a"
	})
	assert.Equal(t, []string{"b", "a"}, seen)
}

func TestOrderedMap_ZeroValueAndNil(t *testing.T) {
	var nilMap *OrderedMap
	assert.Equal(t, 0, nilMap.Len())
	assert.Nil(t, nilMap.Keys())
	_, ok := nilMap.Get("x")
	assert.False(t, ok)

	var zero OrderedMap
	zero.Set("x", "y")
	v, ok := zero.GetString("x")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestOrderedMap_JSONKeepsOrder(t *testing.T) {
	m := NewOrderedMap(3)
	m.Set("zeta", "1")
	m.Set("alpha", []string{"x", "y"})
	m.Set("mid", 7)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":["x","y"],"mid":7}`, string(data))

	var decoded OrderedMap
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, decoded.Keys())
	v, _ := decoded.Get("mid")
	assert.Equal(t, float64(7), v)
}

func TestOrderedMap_UnmarshalRejectsNonObject(t *testing.T) {
	var m OrderedMap
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
}

func TestWireForm(t *testing.T) {
	msg := New([]any{"a", "b"},
		WithID("m1"),
		WithTime(time.UnixMilli(1700000000000)),
		WithSource("twitter"),
		WithType("twitterjson"),
		WithHeader("lang", "en"),
	)

	data, err := Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"header": {
			"messageId": "m1",
			"timestamp": 1700000000000,
			"source": "twitter",
			"type": "twitterjson",
			"additionalHeaders": {"lang": "en"}
		},
		"body": ["a", "b"]
	}`, string(data))

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.MessageID, decoded.Header.MessageID)
	assert.Equal(t, msg.Header.Timestamp, decoded.Header.Timestamp)
	assert.Equal(t, []string{"lang"}, decoded.Header.AdditionalHeaders.Keys())
	assert.Equal(t, []any{"a", "b"}, decoded.Body)

	_, err = Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestUnmarshal_BodyNumbersKeepDigits(t *testing.T) {
	decoded, err := Unmarshal([]byte(`{"header":{"messageId":"m2","timestamp":1},"body":{"serial":9007199254740993}}`))
	require.NoError(t, err)

	body, ok := decoded.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), body["serial"])
	assert.Equal(t, int64(1), decoded.Header.Timestamp)
}
