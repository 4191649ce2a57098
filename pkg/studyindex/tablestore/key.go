package tablestore

import "sort"

// Match is the condition one key field places on a row. It is either a
// single value (Is) or a set of accepted values (In).
type Match struct {
	values []any
	set    bool
}

// Is matches rows whose field equals v.
func Is(v any) Match { return Match{values: []any{v}} }

// In matches rows whose field equals any of vs.
func In(vs ...any) Match { return Match{values: vs, set: true} }

// IsSet reports whether the match accepts several values.
func (m Match) IsSet() bool { return m.set }

// Values returns the raw accepted values.
func (m Match) Values() []any { return m.values }

// Key selects rows: every field must satisfy its Match.
type Key map[string]Match

// KeyFromRow builds a key that matches each non-null field of row exactly.
func KeyFromRow(row Row) Key {
	k := make(Key, len(row))
	for name, v := range row {
		if v.IsNull() {
			continue
		}
		k[name] = Is(v)
	}
	return k
}

// KeyOf builds a single-value key from alternating field/value pairs.
func KeyOf(pairs ...any) Key {
	k := make(Key, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		k[name] = Is(pairs[i+1])
	}
	return k
}

func (k Key) fields() []string {
	out := make([]string, 0, len(k))
	for name := range k {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// compiledKey is a key whose raw values have been cast to the table schema.
type compiledKey map[string][]Value

func (c compiledKey) matches(row Row) bool {
	for name, accepted := range c {
		got := row[name]
		ok := false
		for _, want := range accepted {
			if got.Equal(want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
