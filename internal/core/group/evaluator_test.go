package group

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

type mapGraph map[int64]*TsGroup

func (m mapGraph) Group(id int64) (*TsGroup, bool) {
	g, ok := m[id]
	return g, ok
}

func ts(layout *tsid.Layout, loc string) tsid.Identifier {
	return layout.MustParse(loc + ".Flow.Inst.1Hour.0.raw")
}

func names(ids []tsid.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Part("Location")
	}
	return out
}

func TestEvaluator_SetAlgebra(t *testing.T) {
	layout := tsid.DefaultLayout()
	a := &TsGroup{ID: 1, Name: "A", Members: []tsid.Identifier{ts(layout, "1"), ts(layout, "2"), ts(layout, "3")}}
	b := &TsGroup{ID: 2, Name: "B", Members: []tsid.Identifier{ts(layout, "2"), ts(layout, "3"), ts(layout, "4")}}
	g := &TsGroup{ID: 3, Name: "G", Included: []int64{1}, Excluded: []int64{2}}
	h := &TsGroup{ID: 4, Name: "H", Included: []int64{1}, Intersected: []int64{2}}
	u := &TsGroup{ID: 5, Name: "U", Included: []int64{2, 1}}
	graph := mapGraph{1: a, 2: b, 3: g, 4: h, 5: u}

	e := NewEvaluator(graph, nil, nil)

	tests := []struct {
		name  string
		group *TsGroup
		want  []string
	}{
		{name: "include minus exclude", group: g, want: []string{"1"}},
		{name: "include intersect", group: h, want: []string{"2", "3"}},
		{name: "union keeps first-seen order", group: u, want: []string{"2", "3", "4", "1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := names(e.Expand(tc.group))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("expansion mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluator_OrderOfOperations(t *testing.T) {
	layout := tsid.DefaultLayout()
	// Own member 4 is subtracted by B even though it is listed explicitly,
	// and the intersection runs last.
	a := &TsGroup{ID: 1, Members: []tsid.Identifier{ts(layout, "1"), ts(layout, "2")}}
	b := &TsGroup{ID: 2, Members: []tsid.Identifier{ts(layout, "4")}}
	c := &TsGroup{ID: 3, Members: []tsid.Identifier{ts(layout, "2"), ts(layout, "4")}}
	top := &TsGroup{ID: 10, Members: []tsid.Identifier{ts(layout, "4")}, Included: []int64{1}, Excluded: []int64{2}, Intersected: []int64{3}}

	e := NewEvaluator(mapGraph{1: a, 2: b, 3: c, 10: top}, nil, nil)
	require.Equal(t, []string{"2"}, names(e.Expand(top)))
}

func TestEvaluator_CycleIsFinite(t *testing.T) {
	layout := tsid.DefaultLayout()
	a := &TsGroup{ID: 1, Name: "A", Members: []tsid.Identifier{ts(layout, "1")}, Included: []int64{2}}
	b := &TsGroup{ID: 2, Name: "B", Members: []tsid.Identifier{ts(layout, "2")}, Included: []int64{1}}
	self := &TsGroup{ID: 3, Name: "Self", Members: []tsid.Identifier{ts(layout, "3")}, Included: []int64{3}, Intersected: []int64{3}}

	e := NewEvaluator(mapGraph{1: a, 2: b, 3: self}, nil, nil)

	require.Equal(t, []string{"1", "2"}, names(e.Expand(a)))
	require.Equal(t, []string{"2", "1"}, names(e.Expand(b)))
	require.Empty(t, e.Expand(self))
}

func TestEvaluator_DanglingReferenceIsEmpty(t *testing.T) {
	layout := tsid.DefaultLayout()
	g := &TsGroup{ID: 1, Members: []tsid.Identifier{ts(layout, "1")}, Included: []int64{99}, Excluded: []int64{98}}

	e := NewEvaluator(mapGraph{1: g}, nil, nil)
	require.Equal(t, []string{"1"}, names(e.Expand(g)))

	_, ok := e.ExpandByID(77)
	require.False(t, ok)
}

func TestEvaluator_PartFilters(t *testing.T) {
	layout := tsid.DefaultLayout()
	catalog := tsid.NewCatalog(layout)
	for _, s := range []string{
		"BRNS-Gate1.Flow.Inst.1Hour.0.raw",
		"BRNS-Gate2.Flow.Inst.1Hour.0.raw",
		"BRNS-Gate2.Stage.Inst.1Hour.0.raw",
		"KEYS.Flow.Inst.1Hour.0.raw",
	} {
		catalog.Add(layout.MustParse(s))
	}

	g := &TsGroup{ID: 1, Name: "gates"}
	g.AddFilter("Location", "BRNS-*")
	g.AddFilter("Param", "Flow")

	e := NewEvaluator(mapGraph{1: g}, catalog, nil)
	got := e.Expand(g)
	require.Len(t, got, 2)
	require.Equal(t, "BRNS-Gate1.Flow.Inst.1Hour.0.raw", got[0].UniqueString())
	require.Equal(t, "BRNS-Gate2.Flow.Inst.1Hour.0.raw", got[1].UniqueString())
}

func TestParseCombine(t *testing.T) {
	require.Equal(t, CombineExclude, ParseCombine("f"))
	require.Equal(t, CombineExclude, ParseCombine("S"))
	require.Equal(t, CombineIntersect, ParseCombine("i"))
	require.Equal(t, CombineInclude, ParseCombine("A"))
	require.Equal(t, CombineInclude, ParseCombine(""))
}
