package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

func TestStore_TimeSeries(t *testing.T) {
	ctx := context.Background()
	layout := tsid.DefaultLayout()
	s := NewStore(layout)

	created, err := s.CreateTimeSeries(ctx, layout.MustParse("BRNS.Stage.Inst.15Minutes.0.raw"))
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Key)

	again, err := s.CreateTimeSeries(ctx, layout.MustParse("brns.stage.inst.15minutes.0.RAW"))
	require.NoError(t, err)
	require.Equal(t, created.Key, again.Key)

	found, err := s.LookupTimeSeries(ctx, "BRNS.STAGE.Inst.15Minutes.0.raw")
	require.NoError(t, err)
	require.Equal(t, created.Key, found.Key)

	_, err = s.CreateTimeSeries(ctx, layout.MustParse("BRNS.Stage"))
	var ve *storage.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = s.LookupTimeSeries(ctx, "KEYS.Stage.Inst.15Minutes.0.raw")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_WriteGroupAssignsIDAndRejectsDuplicateNames(t *testing.T) {
	ctx := context.Background()
	s := NewStore(tsid.DefaultLayout())

	g := &group.TsGroup{Name: "basin"}
	require.NoError(t, s.WriteGroup(ctx, g))
	require.Equal(t, int64(1), g.ID)

	err := s.WriteGroup(ctx, &group.TsGroup{Name: "BASIN"})
	var ve *storage.ValidationError
	require.ErrorAs(t, err, &ve)

	g.Description = "updated"
	require.NoError(t, s.WriteGroup(ctx, g))
	got, err := s.GetGroup(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "updated", got.Description)

	got.Description = "mutated copy"
	again, _ := s.GetGroup(ctx, 1)
	require.Equal(t, "updated", again.Description)
}

func TestStore_Computations(t *testing.T) {
	ctx := context.Background()
	s := NewStore(tsid.DefaultLayout())
	s.PutAlgorithm(&comp.Algorithm{ID: 1, Name: "Copy"})

	c := &comp.Computation{Name: "copy-1", AlgorithmID: 1, AppID: 3}
	require.NoError(t, s.WriteComputation(ctx, c))
	require.NotZero(t, c.ID)
	require.NoError(t, s.WriteComputation(ctx, &comp.Computation{Name: "copy-2", AlgorithmID: 1, AppID: 4}))

	err := s.WriteComputation(ctx, &comp.Computation{Name: "bad", AlgorithmID: 9})
	require.ErrorContains(t, err, "unknown algorithm")
	err = s.WriteComputation(ctx, &comp.Computation{Name: "bad", AlgorithmID: 1, GroupID: 5})
	require.ErrorContains(t, err, "unknown group")

	names, err := s.ListComputationNames(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"copy-1"}, names)
	names, err = s.ListComputationNames(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"copy-1", "copy-2"}, names)

	s.MarkReferenced(c.ID)
	require.ErrorIs(t, s.DeleteComputation(ctx, c.ID), storage.ErrReferentialIntegrity)

	other, err := s.GetComputationByName(ctx, "copy-2")
	require.NoError(t, err)
	require.NoError(t, s.DeleteComputation(ctx, other.ID))
	require.ErrorIs(t, s.DeleteComputation(ctx, other.ID), storage.ErrNotFound)
}

const snapshotYAML = `
time_series:
  - BRNS.Stage.Inst.15Minutes.0.raw
algorithms:
  - id: 1
    name: AverageAlgorithm
    properties:
      - name: minSamplesNeeded
        default: "1"
groups:
  - id: 1
    name: all-stage
    include: [2]
    filters:
      - part: Param
        values: [Stage]
  - id: 2
    name: keys
    type: basin
    members:
      - KEYS.Stage.Inst.15Minutes.0.raw
computations:
  - id: 10
    name: avg-stage
    algorithm_id: 1
    group_id: 1
    enabled: true
    parms:
      - role: input
        direction: i
        parts: {datatype: Stage}
      - role: average
        direction: output
        parts: {Interval: 1Day, Duration: 1Day, Version: avg}
    referenced: true
`

func TestParseSnapshot(t *testing.T) {
	ctx := context.Background()
	s, err := ParseSnapshot([]byte(snapshotYAML), tsid.DefaultLayout())
	require.NoError(t, err)

	series, err := s.ListTimeSeries(ctx)
	require.NoError(t, err)
	require.Len(t, series, 2, "group members are added to the series list")

	g, err := s.GetGroup(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, g.Included)
	require.Equal(t, []group.PartFilter{{Part: "Param", Values: []string{"Stage"}}}, g.Filters)

	c, err := s.GetComputation(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "AverageAlgorithm", c.AlgorithmName)
	require.Equal(t, comp.Output, c.Parms[1].Direction)
	require.Equal(t, tsid.Pattern{"Param": "Stage"}, c.Parms[0].Pattern)
	require.ErrorIs(t, s.DeleteComputation(ctx, 10), storage.ErrReferentialIntegrity)
}

func TestParseSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknown field", body: "groupz: []\n", wantErr: "field groupz not found"},
		{name: "bad direction", body: `
algorithms: [{id: 1, name: A}]
computations:
  - name: c
    algorithm_id: 1
    parms: [{role: x, direction: sideways}]
`, wantErr: "invalid parameter direction"},
		{name: "unknown part", body: `
algorithms: [{id: 1, name: A}]
computations:
  - name: c
    algorithm_id: 1
    parms: [{role: x, direction: i, parts: {Basin: Lower}}]
`, wantErr: "unknown identifier part"},
		{name: "too many parts", body: "time_series: [A.B.C.D.E.F.G]\n", wantErr: "layout allows 6"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tc.body), tsid.DefaultLayout())
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadSnapshot_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o644))

	s, err := LoadSnapshot(path, tsid.DefaultLayout())
	require.NoError(t, err)
	algos, err := s.ListAlgorithms(context.Background())
	require.NoError(t, err)
	require.Len(t, algos, 1)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.yaml"), tsid.DefaultLayout())
	require.ErrorContains(t, err, "reading snapshot")
}
