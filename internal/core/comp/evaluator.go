package comp

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// BuiltinProperties are execution properties honored by every algorithm in
// addition to the ones it declares.
var BuiltinProperties = []string{
	"aggUpperBoundClosed",
	"aggLowerBoundClosed",
	"aggregateTimeZone",
	"noAggregateFill",
	"aggPeriodInterval",
	"interpDeltas",
	"maxInterpIntervals",
}

// PreparedAlgorithm is a computation instantiated for execution.
type PreparedAlgorithm interface {
	PropertyNames() []string
}

// PropertyEvaluator prepares computations and evaluates their properties
// into the final strings the algorithm would run with.
type PropertyEvaluator interface {
	Prepare(ctx context.Context, c *Computation) (PreparedAlgorithm, error)
	Evaluate(p PreparedAlgorithm, name string) string
}

// AlgorithmSource resolves algorithm references.
type AlgorithmSource interface {
	Algorithm(id int64) (*Algorithm, bool)
}

// DefaultEvaluator resolves a property from the computation, falling back to
// the algorithm default, then substitutes ${role.part} references with the
// computation's parameter parts. Numeric results are canonicalized so "1.50"
// and "1.5" evaluate alike.
type DefaultEvaluator struct {
	algorithms AlgorithmSource
}

// NewDefaultEvaluator creates an evaluator over the given algorithms.
func NewDefaultEvaluator(algorithms AlgorithmSource) *DefaultEvaluator {
	return &DefaultEvaluator{algorithms: algorithms}
}

type preparedComputation struct {
	comp *Computation
	algo *Algorithm
}

func (p *preparedComputation) PropertyNames() []string { return p.algo.PropertyNames() }

// Prepare binds the computation to its algorithm.
func (e *DefaultEvaluator) Prepare(_ context.Context, c *Computation) (PreparedAlgorithm, error) {
	a, ok := e.algorithms.Algorithm(c.AlgorithmID)
	if !ok {
		return nil, fmt.Errorf("%w: computation %q references algorithm %d", ErrUnknownAlgorithm, c.Name, c.AlgorithmID)
	}
	return &preparedComputation{comp: c, algo: a}, nil
}

// Evaluate returns the evaluated property value, or "" when unset.
func (e *DefaultEvaluator) Evaluate(p PreparedAlgorithm, name string) string {
	pc, ok := p.(*preparedComputation)
	if !ok {
		return ""
	}
	raw, ok := pc.comp.Property(name)
	if !ok {
		raw, _ = pc.algo.Default(name)
	}
	return canonicalValue(substituteParms(raw, pc.comp))
}

var parmRef = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)\}`)

func substituteParms(raw string, c *Computation) string {
	if !strings.Contains(raw, "${") {
		return raw
	}
	return parmRef.ReplaceAllStringFunc(raw, func(ref string) string {
		m := parmRef.FindStringSubmatch(ref)
		parm, ok := c.Parm(m[1])
		if !ok {
			return ref
		}
		for part, v := range parm.Pattern {
			if strings.EqualFold(part, m[2]) {
				return v
			}
		}
		return ref
	})
}

func canonicalValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.String()
	}
	return s
}
