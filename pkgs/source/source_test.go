package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
)

func compress(t *testing.T, data string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(data), nil)
}

func readAll(t *testing.T, in *Input) string {
	t.Helper()
	defer in.Close()
	data, err := io.ReadAll(in)
	require.NoError(t, err)
	return string(data)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.bat")
	packed := filepath.Join(dir, "b.bat.zst")
	require.NoError(t, os.WriteFile(plain, []byte("echo plain\r\n"), 0o644))
	require.NoError(t, os.WriteFile(packed, compress(t, "echo packed\r\n"), 0o644))

	in, err := Open(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, in.Name)
	assert.Equal(t, "echo plain\r\n", readAll(t, in))

	in, err = Open(packed, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo packed\r\n", readAll(t, in))

	in, err = Open(Stdin, strings.NewReader("ec"))
	require.NoError(t, err)
	assert.Equal(t, "<stdin>", in.Name)
	assert.Equal(t, "ec", readAll(t, in), "input shorter than the magic is passed through")

	_, err = Open(filepath.Join(dir, "missing.bat"), nil)
	assert.True(t, errors.IsErrorType(err, errors.ErrInput))
}

func TestFilter(t *testing.T) {
	f, err := NewFilter("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPattern, f.String())

	tests := map[string]bool{
		"dropper.bat":          true,
		"/tmp/x/RUN.CMD":       true,
		"sample.bat.zst":       true,
		"notes.txt":            false,
		"bat":                  false,
		"payload.ps1":          false,
		`C:\samples\stage.Bat`: true,
	}
	for name, expected := range tests {
		assert.Equal(t, expected, f.Match(name), name)
	}

	_, err = NewFilter("[")
	assert.True(t, errors.IsErrorType(err, errors.ErrConfig))
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.bat", "a.cmd", "readme.md", "sub/c.bat"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	single := filepath.Join(dir, "readme.md")

	f, err := NewFilter(DefaultPattern)
	require.NoError(t, err)
	got, err := Expand([]string{Stdin, dir, single}, f)
	require.NoError(t, err)

	expected := []string{
		Stdin,
		filepath.Join(dir, "a.cmd"),
		filepath.Join(dir, "b.bat"),
		filepath.Join(dir, "sub", "c.bat"),
		single,
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("Expand mismatch (-expected +actual):\n%s", diff)
	}

	_, err = Expand([]string{filepath.Join(dir, "nope")}, f)
	assert.Error(t, err)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFilter(DefaultPattern)
	require.NoError(t, err)

	w, err := NewWatcher(f, WithDebounce(20*time.Millisecond), WithWatchLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(path string) { seen <- path })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	target := filepath.Join(dir, "drop.bat")
	require.NoError(t, os.WriteFile(target, []byte("echo a"), 0o644))

	select {
	case path := <-seen:
		assert.Equal(t, target, path)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new script")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherCloseAfterFailedAdd(t *testing.T) {
	f, err := NewFilter(DefaultPattern)
	require.NoError(t, err)
	w, err := NewWatcher(f, WithWatchLogger(logging.Discard()))
	require.NoError(t, err)

	err = w.Add(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrInput))

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
