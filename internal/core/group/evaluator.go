package group

import (
	"log/slog"
	"regexp"

	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// Graph resolves subgroup references.
type Graph interface {
	Group(id int64) (*TsGroup, bool)
}

// Evaluator flattens a group into its member identifiers.
//
// Own members (explicit list plus part-filter matches from the catalog) are
// unioned with every included subgroup, then every excluded subgroup is
// subtracted, then the result is intersected with each intersected subgroup.
// The output keeps first-seen order from the union phase so repeated runs over
// the same snapshot enumerate members identically.
type Evaluator struct {
	graph   Graph
	catalog *tsid.Catalog
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator. catalog may be nil when no group uses
// part filters.
func NewEvaluator(graph Graph, catalog *tsid.Catalog, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{graph: graph, catalog: catalog, logger: logger}
}

// Expand returns the flattened, de-duplicated member list of g.
func (e *Evaluator) Expand(g *TsGroup) []tsid.Identifier {
	return e.expand(g, make(map[int64]bool)).Items()
}

// ExpandByID expands a stored group. The bool is false for an unknown ID.
func (e *Evaluator) ExpandByID(id int64) ([]tsid.Identifier, bool) {
	g, ok := e.graph.Group(id)
	if !ok {
		return nil, false
	}
	return e.Expand(g), true
}

func (e *Evaluator) expand(g *TsGroup, visiting map[int64]bool) *tsid.Set {
	if g.ID != 0 {
		if visiting[g.ID] {
			e.logger.Warn("Group references itself, treating nested reference as empty",
				"group_id", g.ID, "group", g.Name)
			return tsid.NewSet()
		}
		visiting[g.ID] = true
		defer delete(visiting, g.ID)
	}

	result := e.ownMembers(g)

	for _, id := range g.Included {
		result.AddAll(e.expandRef(g, id, visiting))
	}
	for _, id := range g.Excluded {
		result.RemoveAll(e.expandRef(g, id, visiting))
	}
	for _, id := range g.Intersected {
		result.RetainAll(e.expandRef(g, id, visiting))
	}
	return result
}

func (e *Evaluator) expandRef(parent *TsGroup, id int64, visiting map[int64]bool) *tsid.Set {
	sub, ok := e.graph.Group(id)
	if !ok {
		e.logger.Warn("Dangling subgroup reference, treating as empty",
			"group_id", parent.ID, "group", parent.Name, "subgroup_id", id)
		return tsid.NewSet()
	}
	return e.expand(sub, visiting)
}

func (e *Evaluator) ownMembers(g *TsGroup) *tsid.Set {
	own := tsid.NewSet(g.Members...)
	if len(g.Filters) == 0 || e.catalog == nil {
		return own
	}

	compiled := make([][]*regexp.Regexp, len(g.Filters))
	for i, f := range g.Filters {
		for _, v := range f.Values {
			re, err := tsid.CompileWildcard(v)
			if err != nil {
				e.logger.Warn("Cannot compile group filter", "group", g.Name, "part", f.Part, "value", v, "error", err)
				continue
			}
			compiled[i] = append(compiled[i], re)
		}
	}

	for _, id := range e.catalog.All() {
		if passesFilters(id, g.Filters, compiled) {
			own.Add(id)
		}
	}
	return own
}

// passesFilters requires at least one matching value for every filtered part.
func passesFilters(id tsid.Identifier, filters []PartFilter, compiled [][]*regexp.Regexp) bool {
	for i, f := range filters {
		value := id.Part(f.Part)
		matched := false
		for _, re := range compiled[i] {
			if re.MatchString(value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
