package main

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/config"
)

// checkConfigFile validates the config block of every component in the file
// against its factory's schema and returns one line per problem.
func checkConfigFile(registry *component.Registry, path string) ([]string, error) {
	cfg, err := config.NewLoader().LoadFile(path)
	if err != nil {
		return nil, err
	}
	schemas, err := componentSchemas(registry)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Components))
	for name := range cfg.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		cc := cfg.Components[name]
		schema, ok := schemas[cc.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown component factory %q", name, cc.Name))
			continue
		}
		raw := []byte(cc.Config)
		if len(raw) == 0 {
			raw = []byte(`{}`)
		}
		errs, err := validateConfig(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, e := range errs {
			problems = append(problems, fmt.Sprintf("%s (%s): %s", name, cc.Name, e))
		}
	}
	return problems, nil
}

// validateConfig validates a raw component config against schema.
func validateConfig(schema ComponentSchema, raw []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	out := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		out = append(out, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return out, nil
}
