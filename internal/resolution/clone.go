package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

var (
	// ErrNotTemplate is returned when expanding a computation without a group.
	ErrNotTemplate = errors.New("computation is not group-driven")

	// ErrUnknownGroup is returned when a template references a missing group.
	ErrUnknownGroup = errors.New("template references an unknown group")
)

// SkipKind says why a member produced no clone.
type SkipKind string

const (
	// NotCandidate: an input does not exist for this member. Expected and quiet.
	NotCandidate SkipKind = "not-candidate"

	// Unresolvable: a mask did not fit or an output could not be created.
	Unresolvable SkipKind = "unresolvable"
)

// Resolution is the outcome of resolving a template against one member.
// Exactly one of Clone or Skip is set.
type Resolution struct {
	Clone  *comp.Clone
	Skip   SkipKind
	Reason string
}

// Applicable reports whether a clone was produced.
func (r Resolution) Applicable() bool { return r.Clone != nil }

func skip(kind SkipKind, format string, args ...any) Resolution {
	return Resolution{Skip: kind, Reason: fmt.Sprintf(format, args...)}
}

// Skipped records a member that produced no clone.
type Skipped struct {
	Member tsid.Identifier
	Kind   SkipKind
	Reason string
}

// Duplicate records a clone dropped because an earlier clone already
// resolved to the same first input.
type Duplicate struct {
	Member     tsid.Identifier
	FirstInput tsid.Identifier
}

// Expansion is a template expanded over its group.
type Expansion struct {
	Group      *group.TsGroup
	Members    []tsid.Identifier
	Clones     []*comp.Clone
	Skipped    []Skipped
	Duplicates []Duplicate
}

// Generator turns templates into concrete clones.
type Generator struct {
	rc     *Context
	groups *group.Evaluator
	dryRun bool
	logger *slog.Logger
}

// NewGenerator creates a generator. With dryRun, missing outputs are
// validated but never created.
func NewGenerator(rc *Context, dryRun bool, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		rc:     rc,
		groups: group.NewEvaluator(rc, rc.Catalog, logger),
		dryRun: dryRun,
		logger: logger,
	}
}

// Groups exposes the group evaluator bound to the same context.
func (g *Generator) Groups() *group.Evaluator { return g.groups }

// MakeClone resolves template against member. Inputs must already exist;
// outputs are derived from the first resolved input and created when
// missing. Only store failures are returned as errors.
func (g *Generator) MakeClone(ctx context.Context, template *comp.Computation, member tsid.Identifier) (Resolution, error) {
	clone := &comp.Clone{
		Computation:    template.Copy(),
		TriggeringTsid: member,
		Resolved:       make([]tsid.Identifier, len(template.Parms)),
	}
	clone.GroupID = 0

	var basis tsid.Identifier
	for i, p := range clone.Parms {
		if !p.IsInput() {
			continue
		}
		candidate, err := p.Pattern.Apply(member)
		if err != nil {
			return skip(NotCandidate, "input %s: %v", p.Role, err), nil
		}
		found, ok := g.rc.LookupTimeSeries(candidate)
		if !ok {
			return skip(NotCandidate, "input %s resolves to %s which does not exist", p.Role, candidate), nil
		}
		clone.Resolved[i] = found
		clone.Parms[i].Pattern = tsid.PatternOf(found)
		if basis.IsZero() {
			basis = found
		}
	}
	if basis.IsZero() {
		return skip(NotCandidate, "%s has no input parameters", template), nil
	}

	for i, p := range clone.Parms {
		if !p.IsOutput() {
			continue
		}
		candidate, err := p.Pattern.Apply(basis)
		if err != nil {
			return skip(Unresolvable, "output %s: %v", p.Role, err), nil
		}
		found, err := g.rc.EnsureTimeSeries(ctx, candidate, g.dryRun)
		if err != nil {
			var ve *storage.ValidationError
			if errors.As(err, &ve) {
				return skip(Unresolvable, "output %s cannot be created as %s: %v", p.Role, candidate, err), nil
			}
			return Resolution{}, fmt.Errorf("creating output %s for %s: %w", candidate, template, err)
		}
		clone.Resolved[i] = found
		clone.Parms[i].Pattern = tsid.PatternOf(found)
	}

	return Resolution{Clone: clone}, nil
}

// ExpandToConcreteClones evaluates the template's group and resolves the
// template against every member. Clones that resolve to an already seen
// first input are dropped; the first one wins.
func (g *Generator) ExpandToConcreteClones(ctx context.Context, template *comp.Computation) (*Expansion, error) {
	if !template.IsTemplate() {
		return nil, fmt.Errorf("%w: %s", ErrNotTemplate, template)
	}
	grp, ok := g.rc.Group(template.GroupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s references group %d", ErrUnknownGroup, template, template.GroupID)
	}

	exp := &Expansion{Group: grp, Members: g.groups.Expand(grp)}
	seen := tsid.NewSet()

	for _, member := range exp.Members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := g.MakeClone(ctx, template, member)
		if err != nil {
			return nil, err
		}
		if !res.Applicable() {
			if res.Skip == Unresolvable {
				g.logger.Warn("Cannot resolve template for member",
					"computation", template.ID, "member", member.String(), "reason", res.Reason)
			}
			exp.Skipped = append(exp.Skipped, Skipped{Member: member, Kind: res.Skip, Reason: res.Reason})
			continue
		}
		first, _ := res.Clone.FirstInput()
		if !seen.Add(first) {
			exp.Duplicates = append(exp.Duplicates, Duplicate{Member: member, FirstInput: first})
			continue
		}
		exp.Clones = append(exp.Clones, res.Clone)
	}

	g.logger.Debug("Template expanded",
		"computation", template.ID,
		"group", grp.ID,
		"members", len(exp.Members),
		"clones", len(exp.Clones),
		"skipped", len(exp.Skipped),
		"duplicates", len(exp.Duplicates))
	return exp, nil
}
