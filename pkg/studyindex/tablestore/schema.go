package tablestore

import (
	"fmt"
	"strings"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

// FieldType is the declared type of a table column.
type FieldType string

const (
	Text      FieldType = "text"
	Integer   FieldType = "integer"
	Float     FieldType = "float"
	Boolean   FieldType = "boolean"
	Timestamp FieldType = "timestamp"
)

// ParseFieldType accepts the type names used in schema files.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "str":
		return Text, nil
	case "integer", "int":
		return Integer, nil
	case "float", "double":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "timestamp", "datetime", "time":
		return Timestamp, nil
	}
	return "", fmt.Errorf("field type %q: %w", s, internalerr.ErrInvalidInput)
}

// Field is one named, typed column.
type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered list of fields. Order controls the column order of
// persisted tables.
type Schema []Field

// Lookup returns the type of the named field.
func (s Schema) Lookup(name string) (FieldType, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Clone returns an independent copy.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

func (s Schema) without(name string) Schema {
	out := make(Schema, 0, len(s))
	for _, f := range s {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// TextSchema builds an all-text schema, used for tables whose schema is
// inferred from a file header.
func TextSchema(names ...string) Schema {
	out := make(Schema, len(names))
	for i, n := range names {
		out[i] = Field{Name: n, Type: Text}
	}
	return out
}
