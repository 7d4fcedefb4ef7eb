package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/report"
)

func analyze(t *testing.T, script string) *engine.Result {
	t.Helper()
	res, err := engine.New(engine.WithLogger(logging.Discard())).AnalyzeString(context.Background(), script)
	require.NoError(t, err)
	return res
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	store, err := Open(dir, WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Equal(t, dir, store.Root())

	res := analyze(t, "cmd /c \"cmd /c echo deep\"\r\npowershell -enc d2hvYW1p")
	written, err := store.Save(res)
	require.NoError(t, err)

	child := res.Children[0]
	grandchild := child.Result.Children[0]
	script := res.Scripts[0]
	top := engine.Digest([]byte(res.Text()))[:10] + "_deobfuscated.bat"

	expected := []Artifact{
		{Kind: KindDeobfuscated, Path: filepath.Join(dir, top)},
		{Kind: KindBatch, Path: filepath.Join(dir, child.Name())},
		{Kind: KindBatch, Path: filepath.Join(dir, grandchild.Name())},
		{Kind: KindScript, Path: filepath.Join(dir, script.Name())},
	}
	if diff := cmp.Diff(expected, written); diff != "" {
		t.Errorf("artifacts mismatch (-expected +actual):\n%s", diff)
	}

	body, err := os.ReadFile(filepath.Join(dir, script.Name()))
	require.NoError(t, err)
	assert.Equal(t, "whoami", string(body))

	body, err = os.ReadFile(filepath.Join(dir, grandchild.Name()))
	require.NoError(t, err)
	assert.Equal(t, "echo deep\n", string(body))

	assert.Len(t, names(t, dir), 4, "no temporary files are left behind")
}

func TestSaveDeduplicates(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, WithLogger(logging.Discard()))
	require.NoError(t, err)

	_, err = store.Save(analyze(t, "powershell -enc d2hvYW1p"))
	require.NoError(t, err)

	written, err := store.Save(analyze(t, "echo other\r\npowershell -enc d2hvYW1p"))
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.False(t, written[0].Existed)
	assert.True(t, written[1].Existed)
	assert.Len(t, names(t, dir), 3)
}

func TestSaveReport(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, WithLogger(logging.Discard()))
	require.NoError(t, err)

	res := analyze(t, "echo a")
	a, err := store.SaveReport(report.Build(res, nil), report.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, KindReport, a.Kind)
	assert.Equal(t, ".json", filepath.Ext(a.Path))
	assert.FileExists(t, a.Path)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "script", KindScript.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}
