package resolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/aevon-lab/compresolver/internal/core/comp"
)

// StructurallyEquivalent reports whether single runs the clone's algorithm
// over the same parameters. Each clone parm is paired with the first unpaired
// single parm whose pattern is equal; pairing is greedy and never revisited.
// Role names are ignored.
func StructurallyEquivalent(clone *comp.Clone, single *comp.Computation) bool {
	if clone.AlgorithmID != single.AlgorithmID {
		return false
	}
	if len(clone.Parms) != len(single.Parms) {
		return false
	}
	paired := make([]bool, len(single.Parms))
	for _, cp := range clone.Parms {
		found := false
		for j, sp := range single.Parms {
			if paired[j] || !cp.PatternEqual(sp) {
				continue
			}
			paired[j] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

// PropertyDiff names the first property whose evaluated values differ.
type PropertyDiff struct {
	Property    string
	CloneValue  string
	SingleValue string
}

func (d *PropertyDiff) String() string {
	return fmt.Sprintf("%s: group=%q single=%q", d.Property, d.CloneValue, d.SingleValue)
}

// Matcher compares evaluated execution properties.
type Matcher struct {
	evaluator comp.PropertyEvaluator
}

// NewMatcher creates a matcher using evaluator to prepare both sides.
func NewMatcher(evaluator comp.PropertyEvaluator) *Matcher {
	return &Matcher{evaluator: evaluator}
}

// PropertiesEquivalent prepares both computations and compares every
// algorithm property plus the built-in ones, case-insensitively. A nil diff
// means the two are equivalent. An error means either side could not be
// prepared, and the pair must be treated as not equivalent.
func (m *Matcher) PropertiesEquivalent(ctx context.Context, clone *comp.Clone, single *comp.Computation) (*PropertyDiff, error) {
	cp, err := m.evaluator.Prepare(ctx, clone.Computation)
	if err != nil {
		return nil, fmt.Errorf("preparing clone of %s: %w", clone.Computation, err)
	}
	sp, err := m.evaluator.Prepare(ctx, single)
	if err != nil {
		return nil, fmt.Errorf("preparing %s: %w", single, err)
	}

	names := append(append([]string{}, cp.PropertyNames()...), comp.BuiltinProperties...)
	for _, name := range names {
		cv := m.evaluator.Evaluate(cp, name)
		sv := m.evaluator.Evaluate(sp, name)
		if !strings.EqualFold(cv, sv) {
			return &PropertyDiff{Property: name, CloneValue: cv, SingleValue: sv}, nil
		}
	}
	return nil, nil
}
