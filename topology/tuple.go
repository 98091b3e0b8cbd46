package topology

import (
	"fmt"
	"strings"
)

// Fields names the positions of a tuple's values.
type Fields []string

// NewFields returns Fields for names.
func NewFields(names ...string) Fields {
	return Fields(names)
}

// Index returns the position of name, or -1.
func (f Fields) Index(name string) int {
	for i, n := range f {
		if n == name {
			return i
		}
	}
	return -1
}

// Values are the ordered contents of a tuple.
type Values []any

// Tuple is one unit of work flowing between components.
type Tuple struct {
	ID        string
	Component string
	Stream    string
	Task      int
	Fields    Fields
	Values    Values
}

// NewTuple builds a tuple on the default stream.
func NewTuple(id, component string, fields Fields, values ...any) *Tuple {
	return &Tuple{
		ID:        id,
		Component: component,
		Stream:    DefaultStream,
		Fields:    fields,
		Values:    values,
	}
}

// Value returns the value declared under field.
func (t *Tuple) Value(field string) (any, bool) {
	if t == nil {
		return nil, false
	}
	i := t.Fields.Index(field)
	if i < 0 || i >= len(t.Values) {
		return nil, false
	}
	return t.Values[i], true
}

// GetField implements message.FieldGetter.
func (t *Tuple) GetField(name string) (any, bool) {
	return t.Value(name)
}

// FieldNames implements message.FieldNames.
func (t *Tuple) FieldNames() []string {
	return t.Fields
}

// String renders the tuple for logs.
func (t *Tuple) String() string {
	if t == nil {
		return "<nil>"
	}
	parts := make([]string, 0, len(t.Values))
	for i, v := range t.Values {
		name := fmt.Sprintf("%d", i)
		if i < len(t.Fields) {
			name = t.Fields[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}
	return fmt.Sprintf("Tuple{id=%s component=%s stream=%s [%s]}",
		t.ID, t.Component, t.Stream, strings.Join(parts, " "))
}
