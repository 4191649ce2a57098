package tablestore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

// Value is a nullable cell. The zero Value is null.
type Value struct {
	typ  FieldType
	null bool
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// Null returns the null value.
func Null() Value { return Value{null: true} }

func TextValue(s string) Value       { return Value{typ: Text, s: s} }
func IntValue(i int64) Value         { return Value{typ: Integer, i: i} }
func FloatValue(f float64) Value     { return Value{typ: Float, f: f} }
func BoolValue(b bool) Value         { return Value{typ: Boolean, b: b} }
func TimeValue(t time.Time) Value    { return Value{typ: Timestamp, t: t} }
func (v Value) IsNull() bool         { return v.null || v.typ == "" }
func (v Value) Type() FieldType      { return v.typ }
func (v Value) Text() (string, bool) { return v.s, !v.IsNull() && v.typ == Text }
func (v Value) Int() (int64, bool)   { return v.i, !v.IsNull() && v.typ == Integer }
func (v Value) Float() (float64, bool) {
	return v.f, !v.IsNull() && v.typ == Float
}
func (v Value) Bool() (bool, bool)      { return v.b, !v.IsNull() && v.typ == Boolean }
func (v Value) Time() (time.Time, bool) { return v.t, !v.IsNull() && v.typ == Timestamp }

// Equal compares type and content. Two nulls are equal.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Text:
		return v.s == o.s
	case Integer:
		return v.i == o.i
	case Float:
		return v.f == o.f
	case Boolean:
		return v.b == o.b
	case Timestamp:
		return v.t.Equal(o.t)
	}
	return false
}

// Raw returns the Go value held (nil for null).
func (v Value) Raw() any {
	if v.IsNull() {
		return nil
	}
	switch v.typ {
	case Text:
		return v.s
	case Integer:
		return v.i
	case Float:
		return v.f
	case Boolean:
		return v.b
	case Timestamp:
		return v.t
	}
	return nil
}

// Encode renders the value for a flat file cell. Null encodes as "".
func (v Value) Encode() string {
	if v.IsNull() {
		return ""
	}
	switch v.typ {
	case Text:
		return v.s
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.b)
	case Timestamp:
		return v.t.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

func (v Value) String() string {
	if v.IsNull() {
		return "<null>"
	}
	return v.Encode()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Cast coerces raw into a value of type t. nil and empty strings become
// null. Failures wrap internalerr.ErrCast.
func Cast(raw any, t FieldType) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	if v, ok := raw.(Value); ok {
		if v.IsNull() {
			return Null(), nil
		}
		if v.typ == t {
			return v, nil
		}
		raw = v.Raw()
	}
	if p, ok := derefPointer(raw); ok {
		if p == nil {
			return Null(), nil
		}
		raw = p
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return Null(), nil
	}

	switch t {
	case Text:
		return castText(raw)
	case Integer:
		return castInt(raw)
	case Float:
		return castFloat(raw)
	case Boolean:
		return castBool(raw)
	case Timestamp:
		return castTime(raw)
	}
	return Null(), fmt.Errorf("unknown field type %q: %w", t, internalerr.ErrCast)
}

func castErr(raw any, t FieldType) error {
	return fmt.Errorf("cannot cast %v (%T) to %s: %w", raw, raw, t, internalerr.ErrCast)
}

func castText(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return TextValue(x), nil
	case time.Time:
		return TextValue(x.UTC().Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		return TextValue(x.String()), nil
	}
	return TextValue(fmt.Sprint(raw)), nil
}

func castInt(raw any) (Value, error) {
	switch x := raw.(type) {
	case int:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return IntValue(int64(x)), nil
		}
	case bool:
		if x {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return IntValue(int64(f)), nil
		}
	}
	return Null(), castErr(raw, Integer)
}

func castFloat(raw any) (Value, error) {
	switch x := raw.(type) {
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case int:
		return FloatValue(float64(x)), nil
	case int64:
		return FloatValue(float64(x)), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return FloatValue(f), nil
		}
	}
	return Null(), castErr(raw, Float)
}

func castBool(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case int:
		return BoolValue(x != 0), nil
	case int64:
		return BoolValue(x != 0), nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return BoolValue(b), nil
		}
	}
	return Null(), castErr(raw, Boolean)
}

func castTime(raw any) (Value, error) {
	switch x := raw.(type) {
	case time.Time:
		return TimeValue(x), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return TimeValue(t), nil
			}
		}
	}
	return Null(), castErr(raw, Timestamp)
}

func derefPointer(raw any) (any, bool) {
	switch x := raw.(type) {
	case *string:
		if x == nil {
			return nil, true
		}
		return *x, true
	case *int:
		if x == nil {
			return nil, true
		}
		return *x, true
	case *int64:
		if x == nil {
			return nil, true
		}
		return *x, true
	case *float64:
		if x == nil {
			return nil, true
		}
		return *x, true
	case *bool:
		if x == nil {
			return nil, true
		}
		return *x, true
	case *time.Time:
		if x == nil {
			return nil, true
		}
		return *x, true
	}
	return nil, false
}

// inferType guesses a field type for a Go value added outside the schema.
func inferType(raw any) FieldType {
	if v, ok := raw.(Value); ok && !v.IsNull() {
		return v.typ
	}
	switch raw.(type) {
	case int, int32, int64:
		return Integer
	case float32, float64:
		return Float
	case bool:
		return Boolean
	case time.Time:
		return Timestamp
	}
	return Text
}
