package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/report"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeStdin(t *testing.T) {
	out, _, err := run(t, "set com=netstat /ano&&cmd /c %com%\r\n", "analyze")
	require.NoError(t, err)

	expected := strings.Join([]string{
		"# <stdin>",
		"set com=netstat /ano",
		"cmd /c netstat /ano",
		"[CHILD CMD]",
		"\tnetstat /ano",
		"[END OF CHILD CMD]",
		"",
		"# traits: var_used, one-liner",
		"",
	}, "\n")
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("output mismatch (-expected +actual):\n%s", diff)
	}
}

func TestAnalyzeDirectoryAsJSON(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.bat", "echo a\r\n")
	writeScript(t, dir, "notes.txt", "echo skipped\r\n")

	out, _, err := run(t, "", "analyze", "--format", "json", dir)
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []string{"echo a"}, doc.Commands)
	assert.Equal(t, filepath.Join(dir, "a.bat"), doc.Source)
}

func TestAnalyzeWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "s.bat", "powershell -enc d2hvYW1p\r\n")
	outDir := filepath.Join(dir, "out")

	_, _, err := run(t, "", "analyze", "--out", outDir, script)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var exts []string
	for _, e := range entries {
		exts = append(exts, filepath.Ext(e.Name()))
	}
	assert.ElementsMatch(t, []string{".bat", ".ps1", ".txt"}, exts)
}

func TestAnalyzeReportsFailuresAndContinues(t *testing.T) {
	dir := t.TempDir()
	deep := writeScript(t, dir, "deep.bat", "cmd /c cmd /c cmd /c echo x\r\n")
	fine := writeScript(t, dir, "fine.bat", "echo fine\r\n")

	out, stderr, err := run(t, "", "analyze", "--max-depth", "1", deep, fine)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 inputs failed", err.Error())
	assert.Contains(t, stderr, "DEPTH_EXCEEDED")
	assert.Contains(t, out, "# error: ")
	assert.Contains(t, out, "echo fine\n")
}

func TestWatchRejectsMissingDirectory(t *testing.T) {
	_, _, err := run(t, "", "watch", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrInput))
}

func TestInteractive(t *testing.T) {
	out, _, err := run(t, "set A=cmd /c echo nested\r\n%A%\r\n", "interactive")
	require.NoError(t, err)

	expected := strings.Join([]string{
		"set A=cmd /c echo nested",
		"cmd /c echo nested",
		"[CHILD CMD]",
		"\techo nested",
		"[END OF CHILD CMD]",
		"",
	}, "\n")
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("output mismatch (-expected +actual):\n%s", diff)
	}
}

func TestTraitsCommand(t *testing.T) {
	out, _, err := run(t, "", "traits")
	require.NoError(t, err)
	assert.Contains(t, out, "complex-one-liner")

	out, _, err = run(t, "", "traits", "LOLBAS")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "LOLBAS: "))

	_, _, err = run(t, "", "traits", "downlod")
	var cliErr *CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, `did you mean "download"?`, cliErr.Hint)
}

func TestBadFlagValue(t *testing.T) {
	_, _, err := run(t, "", "analyze", "--format", "jsn")
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), `did you mean "json"?`)
}

func TestFormatError(t *testing.T) {
	var buf bytes.Buffer
	FormatError(&buf, errors.NewArgumentError("curl", "curl without a URL"), false)
	assert.Equal(t, "Error: curl without a URL [ARGUMENT_ERROR]\n  command: curl\n", buf.String())

	buf.Reset()
	FormatError(&buf, &CLIError{Message: "boom", Hint: "try again"}, false)
	assert.Equal(t, "Error: boom\nHint: try again\n", buf.String())
}

func TestStyleLine(t *testing.T) {
	assert.Equal(t, "echo a", styleLine("echo a"))
	assert.True(t, strings.HasPrefix(styleLine("\t[CHILD CMD]"), "\t"))
}
