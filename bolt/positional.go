package bolt

import (
	"fmt"
	"strings"

	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
)

// RowValues returns the values of row in order. With expandBody the body
// list is spread into trailing values instead of being passed as one list.
func RowValues(row *message.OrderedMap, expandBody bool) []any {
	values := make([]any, 0, row.Len()+4)
	row.Range(func(key string, value any) bool {
		if expandBody && key == converter.KeyBody {
			if list, ok := value.([]string); ok {
				for _, v := range list {
					values = append(values, v)
				}
				return true
			}
		}
		values = append(values, value)
		return true
	})
	return values
}

// FitColumns checks that values can be bound to columns. Missing trailing
// body elements are bound as nil; surplus values are an error.
func FitColumns(values []any, columns []string) ([]any, error) {
	if len(values) > len(columns) {
		return nil, errors.ConversionFailed(
			fmt.Errorf("%w: %d values for %d columns", errors.ErrInvalidData, len(values), len(columns)),
			"Sink", "FitColumns", "bind values")
	}
	for len(values) < len(columns) {
		values = append(values, nil)
	}
	return values, nil
}

// ValidIdentifier reports whether s is safe to splice into a statement as a
// table, keyspace or column name.
func ValidIdentifier(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ValidateIdentifiers checks every name with ValidIdentifier.
func ValidateIdentifiers(kind string, names ...string) error {
	for _, name := range names {
		if !ValidIdentifier(name) {
			return errors.WrapInvalid(fmt.Errorf("%w: %s %q", errors.ErrInvalidConfig, kind, name),
				"Sink", "ValidateIdentifiers", "identifier check")
		}
	}
	return nil
}

// InsertStatement renders INSERT INTO table (columns) VALUES (placeholders).
// placeholder maps a 1-based position to its bind marker.
func InsertStatement(table string, columns []string, placeholder func(int) string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}
