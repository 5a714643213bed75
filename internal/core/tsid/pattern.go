package tsid

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrMaskMismatch is returned when a sub-part mask cannot be applied to an
// identifier part (the mask references more sub-parts than exist).
var ErrMaskMismatch = errors.New("mask does not fit identifier part")

// Pattern is a partial identifier: canonical part name -> explicit value.
// Parts that are absent are inherited from whichever identifier the pattern
// is applied to.
type Pattern map[string]string

// NewPattern canonicalizes part names against the layout and drops empty values.
func (l *Layout) NewPattern(parts map[string]string) (Pattern, error) {
	p := make(Pattern, len(parts))
	for name, value := range parts {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		canon, ok := l.Canonical(name)
		if !ok {
			return nil, fmt.Errorf("unknown identifier part %q", name)
		}
		p[canon] = value
	}
	return p, nil
}

// PatternOf returns a pattern with every set part of id made explicit.
func PatternOf(id Identifier) Pattern {
	p := make(Pattern)
	if id.layout == nil {
		return p
	}
	for i, name := range id.layout.parts {
		if id.values[i] != "" {
			p[name] = id.values[i]
		}
	}
	return p
}

// Equal reports whether both patterns set the same parts to the same values
// (case-insensitive).
func (p Pattern) Equal(other Pattern) bool {
	if len(p) != len(other) {
		return false
	}
	for name, v := range p {
		ov, ok := other[name]
		if !ok || !strings.EqualFold(v, ov) {
			return false
		}
	}
	return true
}

// Names returns the explicit part names in sorted order.
func (p Pattern) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i, name := range p.Names() {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(p[name])
	}
	return sb.String()
}

// Apply overlays the pattern onto base and returns a keyless identifier.
// Values containing '*' are masks over base's hyphen-separated sub-parts.
func (p Pattern) Apply(base Identifier) (Identifier, error) {
	if base.layout == nil {
		return Identifier{}, fmt.Errorf("base identifier has no layout")
	}
	out := base.CopyNoKey()
	for name, value := range p {
		pos, ok := base.layout.index[strings.ToLower(name)]
		if !ok {
			return Identifier{}, fmt.Errorf("unknown identifier part %q", name)
		}
		if strings.Contains(value, "*") {
			morphed, ok := Morph(base.values[pos], value)
			if !ok {
				return Identifier{}, fmt.Errorf("%w: %s %q with mask %q", ErrMaskMismatch, name, base.values[pos], value)
			}
			value = morphed
		}
		out.values[pos] = value
	}
	return out, nil
}

// Morph masks an identifier part by a parameter part.
//
//	part A-B-C  mask D-*-F  -> D-B-F
//	part A-B    mask *-E-F  -> A-E-F
//	part A-B-C  mask D-*    -> D-B-C   (trailing * copies the rest)
//	part A-B    mask *-     -> A       (trailing - drops the rest)
//	part A      mask D-*    -> no match
func Morph(part, mask string) (string, bool) {
	lop := strings.HasSuffix(mask, "-")
	tps := strings.Split(part, "-")
	pps := strings.Split(strings.TrimRight(mask, "-"), "-")

	var sb strings.Builder
	for idx, pp := range pps {
		if idx > 0 {
			sb.WriteString("-")
		}
		if pp != "*" {
			sb.WriteString(pp)
			continue
		}
		if idx >= len(tps) {
			return "", false
		}
		if idx == len(pps)-1 && !lop {
			sb.WriteString(strings.Join(tps[idx:], "-"))
		} else {
			sb.WriteString(tps[idx])
		}
	}
	return sb.String(), true
}

// CompileWildcard turns a group filter value into an anchored,
// case-insensitive expression where '*' matches one or more characters
// inside a single hyphen-delimited sub-part.
func CompileWildcard(value string) (*regexp.Regexp, error) {
	chunks := strings.Split(value, "*")
	for i, c := range chunks {
		chunks[i] = regexp.QuoteMeta(c)
	}
	return regexp.Compile("(?i)^" + strings.Join(chunks, "[^-]+") + "$")
}
