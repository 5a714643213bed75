package tsid

import (
	"fmt"
	"strings"
)

// Separator joins identifier parts in the unique string.
const Separator = "."

// Layout describes the ordered part names of an identifier. The part set is
// backend-defined; DefaultLayout covers the usual six-part path.
type Layout struct {
	parts []string
	index map[string]int // lower-case part name or alias -> position
}

// NewLayout builds a layout from canonical part names plus optional aliases
// (alias -> canonical part name).
func NewLayout(parts []string, aliases map[string]string) (*Layout, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("identifier layout needs at least one part")
	}
	l := &Layout{
		parts: make([]string, len(parts)),
		index: make(map[string]int, len(parts)+len(aliases)),
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("identifier part %d has an empty name", i)
		}
		key := strings.ToLower(p)
		if _, dup := l.index[key]; dup {
			return nil, fmt.Errorf("duplicate identifier part %q", p)
		}
		l.parts[i] = p
		l.index[key] = i
	}
	for alias, target := range aliases {
		pos, ok := l.index[strings.ToLower(target)]
		if !ok {
			return nil, fmt.Errorf("alias %q points at unknown part %q", alias, target)
		}
		l.index[strings.ToLower(alias)] = pos
	}
	return l, nil
}

// DefaultLayout returns Location.Param.ParamType.Interval.Duration.Version with
// the site/datatype/statcode aliases.
func DefaultLayout() *Layout {
	l, _ := NewLayout(
		[]string{"Location", "Param", "ParamType", "Interval", "Duration", "Version"},
		map[string]string{"site": "Location", "datatype": "Param", "statcode": "ParamType"},
	)
	return l
}

// Parts returns the canonical part names in order.
func (l *Layout) Parts() []string {
	out := make([]string, len(l.parts))
	copy(out, l.parts)
	return out
}

// Canonical maps a part name or alias to its canonical spelling.
func (l *Layout) Canonical(name string) (string, bool) {
	pos, ok := l.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return l.parts[pos], true
}

// New returns an empty (fully partial) identifier.
func (l *Layout) New() Identifier {
	return Identifier{layout: l, values: make([]string, len(l.parts))}
}

// Parse splits a unique string into parts. Fewer parts than the layout
// defines yields a partial identifier; more is an error.
func (l *Layout) Parse(unique string) (Identifier, error) {
	id := l.New()
	unique = strings.TrimSpace(unique)
	if unique == "" {
		return id, nil
	}
	parts := strings.Split(unique, Separator)
	if len(parts) > len(l.parts) {
		return Identifier{}, fmt.Errorf("identifier %q has %d parts, layout allows %d", unique, len(parts), len(l.parts))
	}
	copy(id.values, parts)
	return id, nil
}

// MustParse is Parse for literals in tests and fixtures.
func (l *Layout) MustParse(unique string) Identifier {
	id, err := l.Parse(unique)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks that an identifier is complete and that no part contains
// the separator.
func (l *Layout) Validate(id Identifier) error {
	if id.layout == nil {
		return fmt.Errorf("identifier has no layout")
	}
	for i, v := range id.values {
		if v == "" {
			return fmt.Errorf("identifier %q: part %s is not set", id.UniqueString(), l.parts[i])
		}
		if strings.Contains(v, Separator) {
			return fmt.Errorf("identifier %q: part %s contains %q", id.UniqueString(), l.parts[i], Separator)
		}
	}
	return nil
}

// Identifier is a composite time-series key. Values are treated as
// immutable; With and CopyNoKey return modified copies.
type Identifier struct {
	Key    int64
	layout *Layout
	values []string
}

// Layout returns the layout the identifier was built with.
func (id Identifier) Layout() *Layout { return id.layout }

// IsZero reports whether the identifier was never initialized.
func (id Identifier) IsZero() bool { return id.layout == nil }

// Part returns the value of a part (or alias); empty when unset or unknown.
func (id Identifier) Part(name string) string {
	if id.layout == nil {
		return ""
	}
	pos, ok := id.layout.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ""
	}
	return id.values[pos]
}

// With returns a keyless copy with one part replaced.
func (id Identifier) With(name, value string) (Identifier, error) {
	if id.layout == nil {
		return Identifier{}, fmt.Errorf("identifier has no layout")
	}
	pos, ok := id.layout.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Identifier{}, fmt.Errorf("unknown identifier part %q", name)
	}
	out := id.CopyNoKey()
	out.values[pos] = value
	return out, nil
}

// CopyNoKey returns a mutable copy with the store key cleared.
func (id Identifier) CopyNoKey() Identifier {
	out := Identifier{layout: id.layout, values: make([]string, len(id.values))}
	copy(out.values, id.values)
	return out
}

// Complete reports whether every part is set.
func (id Identifier) Complete() bool {
	if id.layout == nil {
		return false
	}
	for _, v := range id.values {
		if v == "" {
			return false
		}
	}
	return true
}

// UniqueString joins all parts in canonical order.
func (id Identifier) UniqueString() string {
	return strings.Join(id.values, Separator)
}

func (id Identifier) String() string { return id.UniqueString() }

// LookupKey is the case-folded unique string used by indexes.
func (id Identifier) LookupKey() string {
	return strings.ToLower(id.UniqueString())
}

// Equal compares unique strings case-insensitively; keys are ignored.
func (id Identifier) Equal(other Identifier) bool {
	return strings.EqualFold(id.UniqueString(), other.UniqueString())
}

// Compare orders identifiers by unique string, then key.
func Compare(a, b Identifier) int {
	if c := strings.Compare(a.LookupKey(), b.LookupKey()); c != 0 {
		return c
	}
	switch {
	case a.Key < b.Key:
		return -1
	case a.Key > b.Key:
		return 1
	}
	return 0
}
