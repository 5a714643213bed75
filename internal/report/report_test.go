package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter_Indentation(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, nil)

	w.Line("Processing %s", "Computation-7 (rate)")
	w.Indent()
	w.Line("Group has %d members.", 3)
	w.Indent()
	w.Line("%d%% literal", 100)
	w.Blank()
	w.Outdent()
	w.Outdent()
	w.Outdent()
	w.Line("done")

	want := "Processing Computation-7 (rate)\n" +
		"    Group has 3 members.\n" +
		"        100% literal\n" +
		"\n" +
		"done\n"
	require.Equal(t, want, buf.String())
	require.Equal(t, want, w.String())
	require.NoError(t, w.Err())
}

func TestWriter_LinesIsACopy(t *testing.T) {
	w := New(nil, nil)
	w.Line("first")
	lines := w.Lines()
	lines[0] = "changed"
	require.Equal(t, []string{"first"}, w.Lines())
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPORT_DIR", dir)

	w, err := Create("$REPORT_DIR/run.txt", nil)
	require.NoError(t, err)
	w.SetLevel(1)
	w.Line("partial")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "run.txt"))
	require.NoError(t, err)
	require.Equal(t, "    partial\n", string(data))

	_, err = Create(filepath.Join(dir, "missing", "run.txt"), nil)
	require.Error(t, err)
}
