package converter

import (
	"fmt"
	"time"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/fieldpath"
	"github.com/c360/stormbridge/message"
)

// TypeTwitter tags messages built from Twitter status JSON.
const TypeTwitter = "twitterjson"

// TwitterTimeLayout is the created_at format of the Twitter API.
const TwitterTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Additional header names set by TwitterConverter.
const (
	HeaderLang   = "lang"
	HeaderUserID = "user_id"
)

// TwitterConverter converts Twitter statuses. The body is the tweet text.
type TwitterConverter struct{}

// NewTwitterConverter returns a TwitterConverter.
func NewTwitterConverter() *TwitterConverter {
	return &TwitterConverter{}
}

// Type implements Converter.
func (c *TwitterConverter) Type() string { return TypeTwitter }

// Decode implements Decoder.
func (c *TwitterConverter) Decode(raw any) (any, error) {
	return decodeObject(raw, TypeTwitter)
}

// CreateHeader implements Converter. id_str and created_at are required.
func (c *TwitterConverter) CreateHeader(raw any) (message.Header, error) {
	doc, err := decodeObject(raw, TypeTwitter)
	if err != nil {
		return message.Header{}, err
	}

	id, err := required(doc, "id_str")
	if err != nil {
		return message.Header{}, err
	}
	createdAt, err := required(doc, "created_at")
	if err != nil {
		return message.Header{}, err
	}
	ts, err := time.Parse(TwitterTimeLayout, createdAt)
	if err != nil {
		return message.Header{}, errors.ConversionFailed(
			fmt.Errorf("%w: created_at %q", errors.ErrParsingFailed, createdAt),
			"TwitterConverter", "CreateHeader", "parse created_at")
	}

	header := message.Header{
		MessageID:  id,
		Timestamp:  ts.UnixMilli(),
		Type:       TypeTwitter,
		MessageKey: id,
	}
	if header.Source, err = fieldpath.ExtractString(doc, "user.screen_name", fieldpath.DefaultDelimiter); err != nil {
		return message.Header{}, err
	}
	if lang, _ := fieldpath.ExtractString(doc, "lang", fieldpath.DefaultDelimiter); lang != "" {
		header.SetHeader(HeaderLang, lang)
	}
	if userID, _ := fieldpath.ExtractString(doc, "user.id_str", fieldpath.DefaultDelimiter); userID != "" {
		header.SetHeader(HeaderUserID, userID)
	}
	return header, nil
}

// CreateBody implements Converter.
func (c *TwitterConverter) CreateBody(raw any) (any, error) {
	doc, err := decodeObject(raw, TypeTwitter)
	if err != nil {
		return nil, err
	}
	return fieldpath.ExtractString(doc, "text", fieldpath.DefaultDelimiter)
}

// ToMap implements Converter.
func (c *TwitterConverter) ToMap(msg *message.StreamMessage) *message.OrderedMap {
	return DefaultToMap(msg)
}

func required(doc map[string]any, path string) (string, error) {
	v, err := fieldpath.ExtractString(doc, path, fieldpath.DefaultDelimiter)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errors.ConversionFailed(
			fmt.Errorf("%w: %s", errors.ErrFieldNotFound, path),
			"TwitterConverter", "CreateHeader", "read required field")
	}
	return v, nil
}
