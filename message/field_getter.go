package message

// FieldGetter is implemented by types whose fields can be read by name.
// GetField returns false when the type has no field called name.
type FieldGetter interface {
	GetField(name string) (any, bool)
}

// FieldNames lists the names a FieldGetter accepts, in declaration order.
type FieldNames interface {
	FieldNames() []string
}
