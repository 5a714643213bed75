// Package reconcile converts group-driven template computations into their
// effective form: singles that duplicate a clone are disposed of, members
// already covered by a differing single are excluded from the template's
// group, and the template is enabled.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
	"github.com/aevon-lab/compresolver/internal/report"
	"github.com/aevon-lab/compresolver/internal/resolution"
)

// Reconciler processes templates one at a time against a shared context.
type Reconciler struct {
	rc      *resolution.Context
	groups  storage.GroupStore
	comps   storage.ComputationStore
	gen     *resolution.Generator
	matcher *resolution.Matcher
	report  *report.Writer
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a reconciler. A nil evaluator uses comp.DefaultEvaluator over
// the context's algorithms; a nil writer keeps the report in memory.
func New(rc *resolution.Context, stores storage.Stores, evaluator comp.PropertyEvaluator, w *report.Writer, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if evaluator == nil {
		evaluator = comp.NewDefaultEvaluator(rc)
	}
	if w == nil {
		w = report.New(nil, logger)
	}
	if opts.Dispose == "" {
		opts.Dispose = DisposeDisable
	}
	return &Reconciler{
		rc:      rc,
		groups:  stores.Groups,
		comps:   stores.Computations,
		gen:     resolution.NewGenerator(rc, opts.DryRun, logger),
		matcher: resolution.NewMatcher(evaluator),
		report:  w,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Run reconciles every computation ID in args, in order. Arguments that are
// not IDs are skipped with a warning. Cancellation is honored between
// computations. A store failure ends the run and is returned together with
// the outcomes gathered so far.
func (r *Reconciler) Run(ctx context.Context, args []string) ([]*Outcome, error) {
	runID := uuid.NewString()
	r.writeHeader(runID, args)
	r.logger.Info("[Reconcile] Reconciliation run starting", "run", runID, "computations", len(args), "dry_run", r.opts.DryRun)

	var outcomes []*Outcome
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			r.report.SetLevel(0)
			r.report.Line("Run interrupted before '%s': %v", arg, err)
			return outcomes, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			r.logger.Warn("[Reconcile] Skipping argument that is not a computation ID", "arg", arg)
			r.report.SetLevel(0)
			r.report.Line("Argument '%s' is not a computation ID -- skipped.", arg)
			continue
		}
		out, err := r.Reconcile(ctx, id)
		if out != nil {
			outcomes = append(outcomes, out)
		}
		if err != nil {
			r.report.SetLevel(0)
			r.report.Line("Run aborted: %v", err)
			return outcomes, err
		}
	}

	r.report.SetLevel(0)
	r.report.Blank()
	r.report.Line("============== compresolver run %s finished %s =============", runID, r.timestamp())
	return outcomes, nil
}

func (r *Reconciler) writeHeader(runID string, args []string) {
	r.report.SetLevel(0)
	r.report.Line("============== compresolver run %s starting %s =============", runID, r.timestamp())
	r.report.Line("Computations: %s", strings.Join(args, " "))
	if r.opts.DryRun {
		r.report.Line("Dry run: no changes will be written to the database.")
	}
	r.report.Line("Redundant single computations will be %sd.", r.opts.Dispose)
	if r.opts.DisposedPath != "" {
		r.report.Line("Disposed computations will be saved to %s first.", r.opts.DisposedPath)
	}
}

func (r *Reconciler) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// Reconcile processes one template. It returns an error only for store
// failures; everything else ends in a skipped, stopped, clean or applied
// outcome.
func (r *Reconciler) Reconcile(ctx context.Context, compID int64) (*Outcome, error) {
	out := &Outcome{CompID: compID, State: StateInitial}
	r.report.SetLevel(0)
	r.report.Blank()

	tmpl, ok := r.rc.Computation(compID)
	if !ok {
		r.logger.Warn("[Reconcile] No computation with this ID", "computation", compID)
		r.report.Line("No computation with ID %d -- skipped.", compID)
		out.State, out.Reason = StateSkipped, ReasonNoSuchComputation
		return out, nil
	}
	out.CompName = tmpl.Name
	label := fmt.Sprintf("Computation-%d (%s)", tmpl.ID, tmpl.Name)

	r.report.Line("Processing %s", label)
	r.report.Blank()
	r.report.Indent()
	defer r.report.SetLevel(0)

	if !tmpl.IsTemplate() {
		r.report.Line("%s is not a group computation -- skipped.", label)
		out.State, out.Reason = StateSkipped, ReasonNotTemplate
		return out, nil
	}

	exp, err := r.gen.ExpandToConcreteClones(ctx, tmpl)
	if errors.Is(err, resolution.ErrUnknownGroup) {
		r.logger.Warn("[Reconcile] Template references an unknown group", "computation", compID, "group", tmpl.GroupID)
		r.report.Line("Invalid group ID %d: no matching group -- skipped.", tmpl.GroupID)
		out.State, out.Reason = StateSkipped, ReasonUnknownGroup
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("expanding %s: %w", label, err)
	}
	out.State, out.Expansion = StateExpanded, exp
	out.Members, out.Clones = len(exp.Members), len(exp.Clones)
	r.reportExpansion(exp)

	if len(exp.Clones) == 0 {
		r.report.Line("No concrete computations were produced. Nothing to reconcile.")
		out.State, out.Reason = StateStopped, ReasonNoClones
		return out, nil
	}

	redundant, mustExclude := r.match(ctx, exp)
	out.State = StateMatched
	out.Redundant = redundant
	out.MustExclude = mustExclude.Items()
	if mustExclude.Len() > 0 {
		out.State = StateNeedsExclusion
	} else {
		out.State = StateClean
	}

	if len(redundant) == 0 && mustExclude.Len() == 0 && tmpl.Enabled {
		r.report.Blank()
		r.report.Line("%s is enabled and no single computation overlaps it. No changes needed.", label)
		return out, nil
	}

	applied, err := r.apply(ctx, tmpl, label, out, mustExclude)
	if err != nil {
		return out, err
	}
	if applied {
		out.State = StateApplied
	}
	r.logger.Info("[Reconcile] Template reconciled",
		"computation", compID,
		"state", out.State,
		"redundant", len(out.Redundant),
		"excluded", len(out.MustExclude),
		"dry_run", r.opts.DryRun)
	return out, nil
}

func (r *Reconciler) reportExpansion(exp *resolution.Expansion) {
	r.report.Line("Computation IS a group computation.")
	r.report.Line("%s has %d members.", exp.Group, len(exp.Members))
	r.report.Indent()
	for _, s := range exp.Skipped {
		if s.Kind == resolution.NotCandidate {
			r.report.Line("TS %s is not a candidate: %s", s.Member, s.Reason)
		} else {
			r.report.Line("TS %s cannot be resolved: %s", s.Member, s.Reason)
		}
	}
	for _, d := range exp.Duplicates {
		r.report.Line("TS %s resolves to input %s already used by an earlier member -- dropped.", d.Member, d.FirstInput)
	}
	r.report.Outdent()
	r.report.Line("When expanded by group, there are %d computations.", len(exp.Clones))
}

// match compares every clone with every enabled single computation.
// Disabled singles are ignored so a second run over the same data is a no-op.
// A member excluded for a conflict takes its dropped duplicates with it, or
// the next kept duplicate would run the same clone again.
func (r *Reconciler) match(ctx context.Context, exp *resolution.Expansion) ([]*comp.Computation, *tsid.Set) {
	var redundant []*comp.Computation
	disposed := make(map[int64]bool)
	mustExclude := tsid.NewSet()

	duplicates := make(map[string][]tsid.Identifier)
	for _, d := range exp.Duplicates {
		key := d.FirstInput.LookupKey()
		duplicates[key] = append(duplicates[key], d.Member)
	}

	r.report.Blank()
	r.report.Line("Looking for single computations that match the expanded group computation.")
	r.report.Indent()
	defer r.report.Outdent()

	for _, clone := range exp.Clones {
		for _, single := range r.rc.Computations() {
			if single.IsTemplate() || !single.Enabled || disposed[single.ID] {
				continue
			}
			if !resolution.StructurallyEquivalent(clone, single) {
				continue
			}
			r.report.Line("Computation-%d (%s) has the same algorithm and parameters as the clone for %s.",
				single.ID, single.Name, clone.TriggeringTsid)
			r.report.Indent()

			diff, err := r.matcher.PropertiesEquivalent(ctx, clone, single)
			if err != nil {
				r.logger.Warn("[Reconcile] Cannot compare properties", "computation", single.ID, "error", err)
				r.report.Line("Cannot compare properties: %v", err)
			}
			if err == nil && diff == nil {
				disposed[single.ID] = true
				redundant = append(redundant, single)
				r.report.Line("Properties also match. It is redundant and will be %sd.", r.opts.Dispose)
			} else {
				if diff != nil {
					r.report.Line("Properties differ (%s).", diff)
				}
				mustExclude.Add(clone.TriggeringTsid)
				r.report.Line("It remains; %s will be excluded from the group.", clone.TriggeringTsid)
				if first, ok := clone.FirstInput(); ok {
					for _, member := range duplicates[first.LookupKey()] {
						if mustExclude.Add(member) {
							r.report.Line("%s resolves to the same input and will be excluded too.", member)
						}
					}
				}
			}
			r.report.Outdent()
		}
	}
	return redundant, mustExclude
}

// apply performs export, exclusion, disposal and enablement in that order.
// It reports false when a rejected write stopped the sequence.
func (r *Reconciler) apply(ctx context.Context, tmpl *comp.Computation, label string, out *Outcome, mustExclude *tsid.Set) (bool, error) {
	updated := tmpl.Copy()
	updated.Enabled = true

	if len(out.Redundant) > 0 && r.opts.DisposedPath != "" {
		r.report.Blank()
		r.report.Line("Saving redundant computations to %s", r.opts.DisposedPath)
		if err := WriteDisposed(r.opts.DisposedPath, out.Redundant, r.rc); err != nil {
			r.logger.Warn("[Reconcile] Cannot save disposed computations", "path", r.opts.DisposedPath, "error", err)
			r.report.Line("Cannot save: %v", err)
			r.report.Line("No changes made to %s.", label)
			out.Reason = ReasonExportFailed
			return false, nil
		}
	}

	if mustExclude.Len() > 0 {
		wrapper, err := r.excludeMembers(ctx, tmpl, out, mustExclude)
		if err != nil || wrapper == nil {
			return false, err
		}
		updated.GroupID = wrapper.ID
	}

	if len(out.Redundant) > 0 {
		r.report.Blank()
		if r.opts.Dispose == DisposeDelete {
			r.report.Line("Deleting the following single computations:")
		} else {
			r.report.Line("Disabling the following single computations:")
		}
		r.report.Indent()
		for _, c := range out.Redundant {
			r.report.Line("Computation-%d (%s)", c.ID, c.Name)
			if !r.opts.DryRun {
				r.report.Indent()
				r.dispose(ctx, c, out)
				r.report.Outdent()
			}
		}
		r.report.Outdent()
	}

	r.report.Blank()
	if r.opts.DryRun {
		r.report.Line("Dry run: %s would be enabled; nothing was written.", label)
		return true, nil
	}
	r.report.Line("Enabling %s", label)
	if err := r.comps.WriteComputation(ctx, updated); err != nil {
		return false, r.writeFailed(out, label, err)
	}
	r.rc.PutComputation(updated)
	out.Changed = true
	return true, nil
}

// excludeMembers writes (or extends) the exclusion group and points a
// wrapper group at "original minus excluded". A nil wrapper with a nil error
// means a write was rejected and already reported.
func (r *Reconciler) excludeMembers(ctx context.Context, tmpl *comp.Computation, out *Outcome, members *tsid.Set) (*group.TsGroup, error) {
	exclName := fmt.Sprintf("comp-%d-excluded", tmpl.ID)
	wrapName := fmt.Sprintf("comp-%d-group", tmpl.ID)

	excl := &group.TsGroup{
		Name:        exclName,
		Type:        group.TypeCompSelect,
		Description: fmt.Sprintf("These time series identifiers are excluded from the execution of computation(%d) %s", tmpl.ID, tmpl.Name),
	}
	if existing, ok := r.rc.GroupByName(exclName); ok {
		excl = existing.Copy()
	}
	have := tsid.NewSet(excl.Members...)
	for _, id := range members.Items() {
		if have.Add(id) {
			excl.AddMember(id)
		}
	}

	r.report.Blank()
	r.report.Line("Exclusion group %s holds:", exclName)
	r.report.Indent()
	for _, id := range excl.Members {
		r.report.Line("%s", id)
	}
	r.report.Outdent()

	current, _ := r.rc.Group(tmpl.GroupID)
	var wrapper *group.TsGroup
	switch existing, found := r.rc.GroupByName(wrapName); {
	case current != nil && strings.EqualFold(current.Name, wrapName):
		// Already wrapped by an earlier run; only the exclusions grow.
		wrapper = current.Copy()
	case found:
		wrapper = existing.Copy()
		wrapper.Members, wrapper.Filters, wrapper.Intersected = nil, nil, nil
		wrapper.Included = []int64{tmpl.GroupID}
		wrapper.Excluded = nil
	default:
		wrapper = &group.TsGroup{
			Name:        wrapName,
			Type:        group.TypeCompSelect,
			Description: fmt.Sprintf("Members of group %d that computation(%d) %s runs on", tmpl.GroupID, tmpl.ID, tmpl.Name),
			Included:    []int64{tmpl.GroupID},
		}
	}
	r.report.Line("Group computation will run on %s: %s minus %s.", wrapName, describeGroups(wrapper.Included), exclName)
	out.ExclusionGroup, out.WrapperGroup = excl, wrapper

	if r.opts.DryRun {
		// A new exclusion group has no ID yet; only an existing one can be linked.
		if excl.ID != 0 && !slices.Contains(wrapper.Excluded, excl.ID) {
			wrapper.Excluded = append(wrapper.Excluded, excl.ID)
		}
		return wrapper, nil
	}

	if err := r.groups.WriteGroup(ctx, excl); err != nil {
		return nil, r.writeFailed(out, exclName, err)
	}
	r.rc.PutGroup(excl)

	if !slices.Contains(wrapper.Excluded, excl.ID) {
		wrapper.Excluded = append(wrapper.Excluded, excl.ID)
	}
	if err := r.groups.WriteGroup(ctx, wrapper); err != nil {
		return nil, r.writeFailed(out, wrapName, err)
	}
	r.rc.PutGroup(wrapper)
	out.Changed = true
	return wrapper, nil
}

// describeGroups renders a wrapper's base groups, e.g. "group 10" or
// "groups 10, 12".
func describeGroups(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	if len(ids) == 1 {
		return "group " + parts[0]
	}
	return "groups " + strings.Join(parts, ", ")
}

// dispose deletes or disables one redundant single. Failures are reported
// and never end the run; a refused delete falls back to disabling.
func (r *Reconciler) dispose(ctx context.Context, c *comp.Computation, out *Outcome) {
	if r.opts.Dispose == DisposeDelete {
		err := r.comps.DeleteComputation(ctx, c.ID)
		if err == nil {
			r.rc.RemoveComputation(c.ID)
			out.Deleted = append(out.Deleted, c.ID)
			out.Changed = true
			return
		}
		if errors.Is(err, storage.ErrReferentialIntegrity) {
			r.logger.Info("[Reconcile] Computation is still referenced, disabling instead", "computation", c.ID)
			r.report.Line("Cannot delete (%v); disabling instead.", err)
		} else {
			r.logger.Warn("[Reconcile] Delete failed, disabling instead", "computation", c.ID, "error", err)
			r.report.Line("Delete failed (%v); disabling instead.", err)
		}
	}

	disabled := c.Copy()
	disabled.Enabled = false
	if err := r.comps.WriteComputation(ctx, disabled); err != nil {
		r.logger.Warn("[Reconcile] Cannot disable computation", "computation", c.ID, "error", err)
		r.report.Line("Cannot disable: %v", err)
		return
	}
	r.rc.PutComputation(disabled)
	out.Disabled = append(out.Disabled, c.ID)
	out.Changed = true
}

// writeFailed reports a rejected write and returns nil, or wraps any other
// failure for the caller to abort on.
func (r *Reconciler) writeFailed(out *Outcome, what string, err error) error {
	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		r.logger.Warn("[Reconcile] Write rejected", "object", what, "error", err)
		r.report.Line("Cannot write %s: %v", what, err)
		out.Reason = fmt.Sprintf("%s rejected: %v", what, err)
		return nil
	}
	return fmt.Errorf("writing %s: %w", what, err)
}
