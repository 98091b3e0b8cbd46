package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/c360/stormbridge/errors"
)

// SchemaDirectives is a parsed schema struct tag.
//
// Tags are comma-separated: key:value pairs plus the bare flag "required".
// Enum values are pipe-separated:
//
//	Mode string `json:"mode" schema:"type:enum,enum:a|b,default:a,description:Mode"`
type SchemaDirectives struct {
	Type        string
	Description string
	Default     string
	Enum        []string
	Required    bool
}

var validSchemaTypes = map[string]bool{
	"string": true, "int": true, "bool": true, "float": true,
	"enum": true, "array": true, "object": true, "cache": true,
}

// ParseSchemaTag parses a schema tag. The type directive is required.
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	var d SchemaDirectives
	if tag == "" {
		return d, errors.WrapInvalid(fmt.Errorf("empty schema tag"), "SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, ":")
		if !found {
			if part != "required" {
				return d, errors.WrapInvalid(fmt.Errorf("unknown flag: %s", part),
					"SchemaTag", "ParseSchemaTag", "flag parsing")
			}
			d.Required = true
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "type":
			if !validSchemaTypes[value] {
				return d, errors.WrapInvalid(fmt.Errorf("invalid type: %s", value),
					"SchemaTag", "ParseSchemaTag", "type validation")
			}
			d.Type = value
		case "description":
			d.Description = value
		case "default":
			d.Default = value
		case "enum":
			d.Enum = strings.Split(value, "|")
		default:
			return d, errors.WrapInvalid(fmt.Errorf("unknown directive: %s", key),
				"SchemaTag", "ParseSchemaTag", "directive parsing")
		}
	}

	if d.Type == "" {
		return d, errors.WrapInvalid(fmt.Errorf("type directive is required"),
			"SchemaTag", "ParseSchemaTag", "required field validation")
	}
	return d, nil
}

// GenerateConfigSchema builds a ConfigSchema from the json and schema tags of
// a struct type. Fields without a schema tag, or with an invalid one, are
// skipped. Call it once at package init.
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
		Required:   []string{},
	}
	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	addFields(&schema, configType)
	return schema
}

// addFields adds the tagged fields of t, descending into untagged embedded
// structs the way encoding/json does.
func addFields(schema *ConfigSchema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			addFields(schema, field.Type)
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		tag := field.Tag.Get("schema")
		if tag == "" {
			continue
		}
		d, err := ParseSchemaTag(tag)
		if err != nil {
			continue
		}

		description := d.Description
		if description == "" {
			description = name
		}
		schema.Properties[name] = PropertySchema{
			Type:        d.Type,
			Description: description,
			Default:     convertDefault(d.Default, d.Type),
			Enum:        d.Enum,
		}
		if d.Required {
			schema.Required = append(schema.Required, name)
		}
	}
}

func convertDefault(value, typ string) any {
	if value == "" {
		return nil
	}
	switch typ {
	case "int":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return value
}
