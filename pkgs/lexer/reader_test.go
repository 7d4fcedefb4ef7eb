package lexer

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func TestLogicalLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "lf and crlf",
			input:    "echo a\r\necho b\n",
			expected: []string{"echo a", "echo b"},
		},
		{
			name:     "caret continues the line",
			input:    "echo a^\nb\nc",
			expected: []string{"echo a^\nb", "c"},
		},
		{
			name:     "caret continuation with crlf",
			input:    "set x=1^\r\n2\r\n",
			expected: []string{"set x=1^\n2"},
		},
		{
			name:     "caret on the last line without terminator",
			input:    "echo a^",
			expected: []string{"echo a^"},
		},
		{
			name:     "continued last line is flushed at eof",
			input:    "echo a^\n",
			expected: []string{"echo a^\n"},
		},
		{
			name:     "blank lines are kept",
			input:    "a\n\nb\n",
			expected: []string{"a", "", "b"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := LogicalLines(strings.NewReader(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Errorf("LogicalLines mismatch (-expected +actual):\n%s", diff)
			}
		})
	}
}

func TestLineReaderDecoding(t *testing.T) {
	t.Run("utf-16 with bom", func(t *testing.T) {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		encoded, err := enc.String("echo hi\r\nset a=b\r\n")
		require.NoError(t, err)

		lines, err := LogicalLines(strings.NewReader(encoded))
		require.NoError(t, err)
		assert.Equal(t, []string{"echo hi", "set a=b"}, lines)
	})

	t.Run("utf-8 bom is dropped", func(t *testing.T) {
		lines, err := LogicalLines(strings.NewReader("\xef\xbb\xbfecho hi\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"echo hi"}, lines)
	})

	t.Run("invalid bytes are replaced", func(t *testing.T) {
		lines, err := LogicalLines(strings.NewReader("echo \xff\xfe!\n"))
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.True(t, strings.HasPrefix(lines[0], "echo "))
		assert.True(t, strings.HasSuffix(lines[0], "!"))
		assert.Contains(t, lines[0], "�")
	})
}

type failingReader struct{ data string }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data == "" {
		return 0, errors.New("disk on fire")
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestLineReaderError(t *testing.T) {
	lr := NewLineReader(&failingReader{data: "echo a\necho b"})
	var lines []string
	for line := range lr.Lines() {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"echo a", "echo b"}, lines)
	require.Error(t, lr.Err())
	assert.Contains(t, lr.Err().Error(), "disk on fire")
	assert.Equal(t, 2, lr.PhysicalLines())
}
