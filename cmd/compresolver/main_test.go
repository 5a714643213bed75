package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const snapshotYAML = `
time_series:
  - BRNS.Flow.Inst.15Minutes.0.rating
algorithms:
  - id: 1
    name: RatingTable
    properties:
      - name: tableName
groups:
  - id: 10
    name: stage-sites
    members:
      - BRNS.Stage.Inst.15Minutes.0.raw
      - KEYS.Stage.Inst.15Minutes.0.raw
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
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSnapshot(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o644))
	return path
}

func TestRun_TestModeWritesReportAndExport(t *testing.T) {
	dir := t.TempDir()
	snapshot := writeSnapshot(t, dir)
	reportPath := filepath.Join(dir, "report.txt")
	disposedPath := filepath.Join(dir, "disposed.xml")

	out, err := execute(t, "run", "--snapshot", snapshot, "-T", "-X", "delete",
		"-R", reportPath, "-S", disposedPath, "100", "abc")
	require.NoError(t, err)
	require.Contains(t, out, "Computation-100: applied, 1 redundant, 0 excluded")
	require.Contains(t, out, "Test mode: nothing was written.")

	reportText, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	require.Contains(t, string(reportText), "Processing Computation-100 (rate-stage)")
	require.Contains(t, string(reportText), "Redundant single computations will be deleted.")
	require.Contains(t, string(reportText), "Argument 'abc' is not a computation ID -- skipped.")

	exported, err := os.ReadFile(disposedPath)
	require.NoError(t, err)
	require.Contains(t, string(exported), `<Computation name="rate-brns"`)
}

func TestRun_ReportPathFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	snapshot := writeSnapshot(t, dir)
	t.Setenv("REPORT_DIR", dir)

	_, err := execute(t, "run", "--snapshot", snapshot, "-T", "-R", "$REPORT_DIR/out.txt",
		"-S", filepath.Join(dir, "d.xml"), "100")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "out.txt"))
}

func TestRun_StartupFailures(t *testing.T) {
	dir := t.TempDir()
	snapshot := writeSnapshot(t, dir)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "no computation IDs",
			args:    []string{"run", "--snapshot", snapshot},
			wantErr: "requires at least 1 arg",
		},
		{
			name:    "bad dispose mode",
			args:    []string{"run", "--snapshot", snapshot, "-X", "shred", "100"},
			wantErr: "invalid dispose mode",
		},
		{
			name:    "report file cannot be opened",
			args:    []string{"run", "--snapshot", snapshot, "-R", filepath.Join(dir, "missing", "r.txt"), "100"},
			wantErr: "cannot open report file",
		},
		{
			name:    "missing snapshot",
			args:    []string{"run", "--snapshot", filepath.Join(dir, "nope.yaml"), "-R", filepath.Join(dir, "r.txt"), "100"},
			wantErr: "failed to load snapshot",
		},
		{
			name:    "bad log level",
			args:    []string{"run", "--snapshot", snapshot, "--log-level", "chatty", "100"},
			wantErr: "invalid log level",
		},
		{
			name:    "migrate needs postgres",
			args:    []string{"migrate", "--snapshot", snapshot},
			wantErr: "migrate needs the postgres store",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
