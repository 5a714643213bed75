package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/storage/memory"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
	"github.com/aevon-lab/compresolver/internal/report"
	"github.com/aevon-lab/compresolver/internal/resolution"
)

const fixture = `
time_series:
  - BRNS.Flow.Inst.15Minutes.0.rating
  - KEYS.Flow.Inst.15Minutes.0.rating
  - TULA.Flow.Inst.15Minutes.0.rating
algorithms:
  - id: 1
    name: RatingTable
    exec_class: decodes.tsdb.algo.TabRating
    properties:
      - name: tableName
        default: ""
groups:
  - id: 10
    name: stage-sites
    type: basin
    members:
      - BRNS.Stage.Inst.15Minutes.0.raw
      - KEYS.Stage.Inst.15Minutes.0.raw
      - TULA.Stage.Inst.15Minutes.0.raw
computations:
  - id: 100
    name: rate-stage
    algorithm_id: 1
    group_id: 10
    parms:
      - role: indep
        direction: i
        parts: {Param: Stage}
      - role: dep
        direction: o
        parts: {Param: Flow, Version: rating}
  - id: 101
    name: rate-brns
    algorithm_id: 1
    enabled: true
    parms:
      - role: stage
        direction: i
        parts: {Location: BRNS, Param: Stage, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: raw}
      - role: flow
        direction: o
        parts: {Location: BRNS, Param: Flow, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: rating}
  - id: 102
    name: rate-keys
    algorithm_id: 1
    enabled: true
    properties:
      tableName: keys.custom
    parms:
      - role: stage
        direction: i
        parts: {Location: KEYS, Param: Stage, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: raw}
      - role: flow
        direction: o
        parts: {Location: KEYS, Param: Flow, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: rating}
`

var layout = tsid.DefaultLayout()

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.ParseSnapshot([]byte(fixture), layout)
	require.NoError(t, err)
	return store
}

func newReconciler(t *testing.T, stores storage.Stores, opts Options) (*Reconciler, *report.Writer) {
	t.Helper()
	rc, err := resolution.Load(context.Background(), stores, layout, resolution.LoadOptions{}, nil)
	require.NoError(t, err)
	w := report.New(nil, nil)
	return New(rc, stores, nil, w, opts, nil), w
}

func getComp(t *testing.T, store *memory.Store, id int64) *comp.Computation {
	t.Helper()
	c, err := store.GetComputation(context.Background(), id)
	require.NoError(t, err)
	return c
}

func groupByName(t *testing.T, store *memory.Store, name string) *group.TsGroup {
	t.Helper()
	groups, err := store.ListGroups(context.Background())
	require.NoError(t, err)
	for _, g := range groups {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("group %q not found", name)
	return nil
}

func locations(ids []tsid.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Part("Location")
	}
	return out
}

// effectiveMembers expands a group from a fresh load of the store.
func effectiveMembers(t *testing.T, store *memory.Store, groupID int64) []string {
	t.Helper()
	rc, err := resolution.Load(context.Background(), store.Stores(), layout, resolution.LoadOptions{}, nil)
	require.NoError(t, err)
	ids, ok := group.NewEvaluator(rc, rc.Catalog, nil).ExpandByID(groupID)
	require.True(t, ok)
	return locations(ids)
}

func TestReconcile_AppliesExclusionAndDisposal(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	r, w := newReconciler(t, store.Stores(), Options{})

	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateApplied, out.State)
	require.True(t, out.Changed)
	require.Equal(t, 3, out.Members)
	require.Equal(t, 3, out.Clones)
	require.Len(t, out.Redundant, 1)
	require.Equal(t, int64(101), out.Redundant[0].ID)
	require.Equal(t, []string{"KEYS"}, locations(out.MustExclude))
	require.Equal(t, []int64{101}, out.Disabled)

	require.False(t, getComp(t, store, 101).Enabled)
	require.True(t, getComp(t, store, 102).Enabled, "differing single stays")

	excl := groupByName(t, store, "comp-100-excluded")
	require.Equal(t, group.TypeCompSelect, excl.Type)
	require.Equal(t, []string{"KEYS"}, locations(excl.Members))
	require.Contains(t, excl.Description, "computation(100) rate-stage")

	wrapper := groupByName(t, store, "comp-100-group")
	require.Equal(t, []int64{10}, wrapper.Included)
	require.Equal(t, []int64{excl.ID}, wrapper.Excluded)

	tmpl := getComp(t, store, 100)
	require.True(t, tmpl.Enabled)
	require.Equal(t, wrapper.ID, tmpl.GroupID)

	// The template no longer covers what the differing single covers.
	require.Equal(t, []string{"BRNS", "TULA"}, effectiveMembers(t, store, wrapper.ID))

	text := w.String()
	require.Contains(t, text, "Processing Computation-100 (rate-stage)")
	require.Contains(t, text, "    When expanded by group, there are 3 computations.")
	require.Contains(t, text, "Properties differ (tableName")
	require.Contains(t, text, "Disabling the following single computations:")
}

func TestReconcile_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	r, _ := newReconciler(t, store.Stores(), Options{})
	_, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	groupsBefore, err := store.ListGroups(ctx)
	require.NoError(t, err)

	r2, w2 := newReconciler(t, store.Stores(), Options{})
	out, err := r2.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateClean, out.State)
	require.False(t, out.Changed)
	require.Empty(t, out.Redundant)
	require.Empty(t, out.MustExclude)
	require.Contains(t, w2.String(), "No changes needed.")

	groupsAfter, err := store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groupsAfter, len(groupsBefore))
}

func TestReconcile_NewConflictExtendsExclusionGroup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	r, _ := newReconciler(t, store.Stores(), Options{})
	_, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)

	addTulaSingle(t, store)

	r2, w2 := newReconciler(t, store.Stores(), Options{})
	out, err := r2.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateApplied, out.State)
	// The template already runs on the wrapper; its base is still group 10.
	require.Contains(t, w2.String(), "will run on comp-100-group: group 10 minus comp-100-excluded.")

	groups, err := store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3, "exclusion and wrapper groups are reused")

	excl := groupByName(t, store, "comp-100-excluded")
	require.Equal(t, []string{"KEYS", "TULA"}, locations(excl.Members))
	wrapper := groupByName(t, store, "comp-100-group")
	require.Equal(t, []int64{10}, wrapper.Included)
	require.Equal(t, []string{"BRNS"}, effectiveMembers(t, store, wrapper.ID))
}

// addTulaSingle adds an enabled single on TULA whose properties differ from
// the template's.
func addTulaSingle(t *testing.T, store *memory.Store) {
	t.Helper()
	in, err := layout.NewPattern(map[string]string{"Location": "TULA", "Param": "Stage", "ParamType": "Inst", "Interval": "15Minutes", "Duration": "0", "Version": "raw"})
	require.NoError(t, err)
	outp, err := layout.NewPattern(map[string]string{"Location": "TULA", "Param": "Flow", "ParamType": "Inst", "Interval": "15Minutes", "Duration": "0", "Version": "rating"})
	require.NoError(t, err)
	require.NoError(t, store.WriteComputation(context.Background(), &comp.Computation{
		Name:        "rate-tula",
		AlgorithmID: 1,
		Enabled:     true,
		Properties:  map[string]string{"tableName": "tula.special"},
		Parms: []comp.Parm{
			{Role: "in", Direction: comp.Input, Pattern: in},
			{Role: "out", Direction: comp.Output, Pattern: outp},
		},
	}))
}

const duplicateFixture = `
time_series:
  - BRNS.Stage.Inst.15Minutes.0.raw
  - BRNS.Flow.Inst.15Minutes.0.rating
algorithms:
  - id: 1
    name: RatingTable
    properties:
      - name: tableName
        default: ""
groups:
  - id: 20
    name: brns-versions
    members:
      - BRNS.Stage.Inst.15Minutes.0.raw
      - BRNS.Stage.Inst.15Minutes.0.rev
computations:
  - id: 200
    name: rate-raw
    algorithm_id: 1
    group_id: 20
    parms:
      - role: indep
        direction: i
        parts: {Version: raw}
      - role: dep
        direction: o
        parts: {Param: Flow, Version: rating}
  - id: 201
    name: rate-brns
    algorithm_id: 1
    enabled: true
    properties:
      tableName: brns.custom
    parms:
      - role: stage
        direction: i
        parts: {Location: BRNS, Param: Stage, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: raw}
      - role: flow
        direction: o
        parts: {Location: BRNS, Param: Flow, ParamType: Inst, Interval: 15Minutes, Duration: "0", Version: rating}
`

func TestReconcile_ConflictExcludesDuplicateMembers(t *testing.T) {
	ctx := context.Background()
	store, err := memory.ParseSnapshot([]byte(duplicateFixture), layout)
	require.NoError(t, err)

	r, w := newReconciler(t, store.Stores(), Options{})
	out, err := r.Reconcile(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, StateApplied, out.State)
	require.Equal(t, 1, out.Clones)
	require.Len(t, out.Expansion.Duplicates, 1)
	require.Equal(t, []string{
		"BRNS.Stage.Inst.15Minutes.0.raw",
		"BRNS.Stage.Inst.15Minutes.0.rev",
	}, uniqueStrings(out.MustExclude))
	require.Contains(t, w.String(), "BRNS.Stage.Inst.15Minutes.0.rev resolves to the same input and will be excluded too.")

	single := getComp(t, store, 201)
	require.True(t, single.Enabled, "differing single stays")

	// Nothing the template still runs may duplicate the single.
	rc, err := resolution.Load(ctx, store.Stores(), layout, resolution.LoadOptions{}, nil)
	require.NoError(t, err)
	tmpl, ok := rc.Computation(200)
	require.True(t, ok)
	exp, err := resolution.NewGenerator(rc, true, nil).ExpandToConcreteClones(ctx, tmpl)
	require.NoError(t, err)
	for _, clone := range exp.Clones {
		require.False(t, resolution.StructurallyEquivalent(clone, single),
			"template still runs the clone for %s", clone.TriggeringTsid)
	}
	require.Empty(t, exp.Clones)

	groupsBefore, err := store.ListGroups(ctx)
	require.NoError(t, err)

	r2, _ := newReconciler(t, store.Stores(), Options{})
	out, err = r2.Reconcile(ctx, 200)
	require.NoError(t, err)
	require.False(t, out.Changed)
	require.Equal(t, StateStopped, out.State)
	require.Equal(t, ReasonNoClones, out.Reason)

	groupsAfter, err := store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groupsAfter, len(groupsBefore))
}

func uniqueStrings(ids []tsid.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func TestReconcile_DeleteFallsBackToDisable(t *testing.T) {
	tests := []struct {
		name         string
		referenced   bool
		wantDeleted  []int64
		wantDisabled []int64
	}{
		{name: "unreferenced is deleted", wantDeleted: []int64{101}},
		{name: "referenced is disabled", referenced: true, wantDisabled: []int64{101}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			if tc.referenced {
				store.MarkReferenced(101)
			}
			r, w := newReconciler(t, store.Stores(), Options{Dispose: DisposeDelete})

			out, err := r.Reconcile(ctx, 100)
			require.NoError(t, err)
			require.Equal(t, StateApplied, out.State)
			require.Equal(t, tc.wantDeleted, out.Deleted)
			require.Equal(t, tc.wantDisabled, out.Disabled)

			c, err := store.GetComputation(ctx, 101)
			if tc.referenced {
				require.NoError(t, err)
				require.False(t, c.Enabled)
				require.Contains(t, w.String(), "disabling instead")
			} else {
				require.ErrorIs(t, err, storage.ErrNotFound)
			}
			require.True(t, getComp(t, store, 100).Enabled)
		})
	}
}

func TestReconcile_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	r, w := newReconciler(t, store.Stores(), Options{DryRun: true, Dispose: DisposeDelete})

	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateApplied, out.State)
	require.False(t, out.Changed)
	require.Len(t, out.Redundant, 1)
	require.Equal(t, []string{"KEYS"}, locations(out.MustExclude))
	require.NotNil(t, out.ExclusionGroup)
	require.Zero(t, out.ExclusionGroup.ID)

	groups, err := store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.True(t, getComp(t, store, 101).Enabled)
	require.False(t, getComp(t, store, 100).Enabled)
	require.Contains(t, w.String(), "Dry run: Computation-100 (rate-stage) would be enabled")

	// A new exclusion group has no ID to link yet; the wrapper names its base.
	require.Equal(t, []int64{10}, out.WrapperGroup.Included)
	require.Empty(t, out.WrapperGroup.Excluded)
}

func TestReconcile_DryRunLinksExistingExclusionGroup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	r, _ := newReconciler(t, store.Stores(), Options{})
	_, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	excl := groupByName(t, store, "comp-100-excluded")
	addTulaSingle(t, store)

	dry, _ := newReconciler(t, store.Stores(), Options{DryRun: true})
	out, err := dry.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.False(t, out.Changed)
	require.NotNil(t, out.WrapperGroup)
	require.Equal(t, []int64{10}, out.WrapperGroup.Included)
	require.Equal(t, []int64{excl.ID}, out.WrapperGroup.Excluded)
	require.Equal(t, excl.ID, out.ExclusionGroup.ID)
	require.Equal(t, []string{"KEYS", "TULA"}, locations(out.ExclusionGroup.Members))

	require.Equal(t, []string{"KEYS"}, locations(groupByName(t, store, "comp-100-excluded").Members), "dry run leaves the stored group alone")
}

func TestReconcile_DisabledTemplateWithoutOverlapIsEnabled(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	// Remove both singles so nothing overlaps.
	require.NoError(t, store.DeleteComputation(ctx, 101))
	require.NoError(t, store.DeleteComputation(ctx, 102))
	r, _ := newReconciler(t, store.Stores(), Options{})

	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateApplied, out.State)
	require.Nil(t, out.ExclusionGroup)
	tmpl := getComp(t, store, 100)
	require.True(t, tmpl.Enabled)
	require.Equal(t, int64(10), tmpl.GroupID)
}

func TestReconcile_Skips(t *testing.T) {
	tests := []struct {
		name       string
		id         int64
		wantReason string
	}{
		{name: "unknown computation", id: 999, wantReason: "no such computation"},
		{name: "single computation", id: 101, wantReason: "not a group computation"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newReconciler(t, newStore(t).Stores(), Options{})
			out, err := r.Reconcile(context.Background(), tc.id)
			require.NoError(t, err)
			require.Equal(t, StateSkipped, out.State)
			require.Equal(t, tc.wantReason, out.Reason)
		})
	}
}

func TestReconcile_UnknownGroupIsSkipped(t *testing.T) {
	store := newStore(t)
	r, _ := newReconciler(t, store.Stores(), Options{})
	tmpl, ok := r.rc.Computation(100)
	require.True(t, ok)
	tmpl.GroupID = 4242

	out, err := r.Reconcile(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, StateSkipped, out.State)
	require.Equal(t, "unknown group", out.Reason)
}

func TestReconcile_NoClonesStops(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	empty := &group.TsGroup{Name: "empty"}
	require.NoError(t, store.WriteGroup(ctx, empty))
	tmpl := getComp(t, store, 100)
	tmpl.GroupID = empty.ID
	require.NoError(t, store.WriteComputation(ctx, tmpl))

	r, _ := newReconciler(t, store.Stores(), Options{})
	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateStopped, out.State)
	require.False(t, getComp(t, store, 100).Enabled)
}

func TestReconcile_ExportsDisposedBeforeDisposal(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "disposed.xml")
	r, _ := newReconciler(t, store.Stores(), Options{Dispose: DisposeDelete, DisposedPath: path})

	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, []int64{101}, out.Deleted)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	xml := string(data)
	require.True(t, strings.HasPrefix(xml, "<?xml"))
	require.Contains(t, xml, `<Algorithm name="RatingTable">`)
	require.Contains(t, xml, `<Computation name="rate-brns" id="101">`)
	require.Contains(t, xml, `<CompParm roleName="stage" direction="i">`)
	require.Contains(t, xml, `<Part name="Location">BRNS</Part>`)
}

func TestReconcile_ExportFailureLeavesEverythingAlone(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "missing-dir", "disposed.xml")
	r, w := newReconciler(t, store.Stores(), Options{Dispose: DisposeDelete, DisposedPath: path})

	out, err := r.Reconcile(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, StateNeedsExclusion, out.State)
	require.Equal(t, "disposed computations could not be saved", out.Reason)
	require.True(t, getComp(t, store, 101).Enabled)
	require.False(t, getComp(t, store, 100).Enabled)
	require.Contains(t, w.String(), "Cannot save")
}

type brokenWrites struct {
	*memory.Store
}

func (brokenWrites) WriteComputation(context.Context, *comp.Computation) error {
	return errors.New("connection reset by peer")
}

func TestReconcile_TemplateWriteFailureAbortsRun(t *testing.T) {
	store := newStore(t)
	stores := store.Stores()
	stores.Computations = brokenWrites{store}
	r, w := newReconciler(t, stores, Options{})

	outcomes, err := r.Run(context.Background(), []string{"100", "101"})
	require.ErrorContains(t, err, "connection reset by peer")
	require.Len(t, outcomes, 1)
	require.Contains(t, w.String(), "Run aborted")
}

func TestRun(t *testing.T) {
	store := newStore(t)
	r, w := newReconciler(t, store.Stores(), Options{})

	outcomes, err := r.Run(context.Background(), []string{"abc", "101", "100"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, StateSkipped, outcomes[0].State)
	require.Equal(t, StateApplied, outcomes[1].State)

	lines := w.Lines()
	require.True(t, strings.HasPrefix(lines[0], "============== compresolver run "))
	require.Contains(t, w.String(), "Argument 'abc' is not a computation ID -- skipped.")
	require.Contains(t, lines[len(lines)-1], "finished")
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	r, w := newReconciler(t, newStore(t).Stores(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := r.Run(ctx, []string{"100"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, outcomes)
	require.Contains(t, w.String(), "Run interrupted")
}

func TestParseDisposeMode(t *testing.T) {
	mode, err := ParseDisposeMode("")
	require.NoError(t, err)
	require.Equal(t, DisposeDisable, mode)

	mode, err = ParseDisposeMode("DELETE")
	require.NoError(t, err)
	require.Equal(t, DisposeDelete, mode)

	_, err = ParseDisposeMode("archive")
	require.Error(t, err)
}
