package group

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// TypeCompSelect marks groups synthesized to steer a single template computation.
const TypeCompSelect = "comp-select"

// Combine is how a subgroup contributes to its parent.
type Combine string

const (
	CombineInclude   Combine = "A" // union
	CombineExclude   Combine = "S" // subtraction
	CombineIntersect Combine = "I" // intersection
)

// ParseCombine accepts the stored single-letter codes. "F" is a legacy
// spelling of subtraction; anything unrecognized is treated as include.
func ParseCombine(code string) Combine {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "S", "F":
		return CombineExclude
	case "I":
		return CombineIntersect
	default:
		return CombineInclude
	}
}

// PartFilter selects catalog identifiers whose part matches any of Values.
// Values may contain '*' wildcards.
type PartFilter struct {
	Part   string   `yaml:"part" json:"part"`
	Values []string `yaml:"values" json:"values"`
}

// TsGroup is a named collection of time series. Subgroups are referenced by
// ID so the graph may contain cycles.
type TsGroup struct {
	ID          int64
	Name        string
	Type        string
	Description string

	Members     []tsid.Identifier
	Included    []int64
	Excluded    []int64
	Intersected []int64
	Filters     []PartFilter
}

// AddMember appends an explicit member.
func (g *TsGroup) AddMember(id tsid.Identifier) {
	g.Members = append(g.Members, id)
}

// AddSubgroup links a subgroup with the given combine mode.
func (g *TsGroup) AddSubgroup(id int64, combine Combine) {
	switch combine {
	case CombineExclude:
		g.Excluded = append(g.Excluded, id)
	case CombineIntersect:
		g.Intersected = append(g.Intersected, id)
	default:
		g.Included = append(g.Included, id)
	}
}

// AddFilter appends a value to the filter for part, creating it if needed.
func (g *TsGroup) AddFilter(part, value string) {
	for i := range g.Filters {
		if strings.EqualFold(g.Filters[i].Part, part) {
			g.Filters[i].Values = append(g.Filters[i].Values, value)
			return
		}
	}
	g.Filters = append(g.Filters, PartFilter{Part: part, Values: []string{value}})
}

// Copy returns a deep copy.
func (g *TsGroup) Copy() *TsGroup {
	out := *g
	out.Members = append([]tsid.Identifier(nil), g.Members...)
	out.Included = append([]int64(nil), g.Included...)
	out.Excluded = append([]int64(nil), g.Excluded...)
	out.Intersected = append([]int64(nil), g.Intersected...)
	out.Filters = make([]PartFilter, len(g.Filters))
	for i, f := range g.Filters {
		out.Filters[i] = PartFilter{Part: f.Part, Values: append([]string(nil), f.Values...)}
	}
	return &out
}

func (g *TsGroup) String() string {
	return fmt.Sprintf("Group-%d (%s)", g.ID, g.Name)
}
