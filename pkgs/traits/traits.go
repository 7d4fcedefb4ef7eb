// Package traits accumulates the observations an analysis makes about a
// script, for consumers that score how suspicious it is.
package traits

import (
	"slices"
	"strings"

	"github.com/aledsdavies/batchdeob/pkgs/interpreter"
)

// Trait names as they appear in reports
const (
	StartWithVar    = "start_with_var"
	VarUsed         = "var_used"
	CommandGrouping = "command-grouping"
	LOLBAS          = "LOLBAS"
	Download        = "download"
	OneLiner        = "one-liner"
	ComplexOneLiner = "complex-one-liner"
)

// Info describes one trait
type Info struct {
	Name        string
	Description string
}

// Catalog lists every trait in report order
var Catalog = []Info{
	{StartWithVar, "a command began with a variable expansion"},
	{VarUsed, "number of variable expansions per command"},
	{CommandGrouping, "a normalized command split into several commands"},
	{LOLBAS, "a rarely used dual-use Windows binary was named"},
	{Download, "curl fetched a URL"},
	{OneLiner, "the script is a single non-empty physical line"},
	{ComplexOneLiner, "a one-liner expanded into many commands"},
}

// Names returns the trait names in catalog order
func Names() []string {
	names := make([]string, len(Catalog))
	for i, info := range Catalog {
		names[i] = info.Name
	}
	return names
}

// Lookup returns the catalog entry for name
func Lookup(name string) (Info, bool) {
	i := slices.IndexFunc(Catalog, func(info Info) bool { return info.Name == name })
	if i < 0 {
		return Info{}, false
	}
	return Catalog[i], true
}

// Gathered from https://gist.github.com/api0cradle/8cdc53e2a80de079709d28a2d96458c2
var DefaultLOLBAS = []string{
	"forfiles",
	"bash",
	"scriptrunner",
	"syncappvpublishingserver",
	"hh.exe",
	"msbuild",
	"regsvcs",
	"regasm",
	"installutil",
	"ieexec",
	"msxsl",
	"odbcconf",
	"sqldumper",
	"pcalua",
	"appvlp",
	"runscripthelper",
	"infdefaultinstall",
	"diskshadow",
	"msdt",
	"regsvr32",
}

// Expansion records a command whose normalization expanded variables
type Expansion struct {
	Command    string `json:"command" yaml:"command" cbor:"command"`
	Normalized string `json:"normalized" yaml:"normalized" cbor:"normalized"`
	Count      int    `json:"count,omitempty" yaml:"count,omitempty" cbor:"count,omitempty"`
}

// Grouping records a command that re-split after normalization
type Grouping struct {
	Command    string `json:"command" yaml:"command" cbor:"command"`
	Normalized string `json:"normalized" yaml:"normalized" cbor:"normalized"`
}

// BinaryHit records a LOLBAS name found in a command
type BinaryHit struct {
	LOLBAS  string `json:"lolbas" yaml:"lolbas" cbor:"lolbas"`
	Command string `json:"command" yaml:"command" cbor:"command"`
}

// Record is the append-only trait record of one analysis. Child analyses
// get their own Record.
type Record struct {
	StartWithVar    []Expansion            `json:"start_with_var,omitempty" yaml:"start_with_var,omitempty" cbor:"start_with_var,omitempty"`
	VarUsed         []Expansion            `json:"var_used,omitempty" yaml:"var_used,omitempty" cbor:"var_used,omitempty"`
	CommandGrouping []Grouping             `json:"command-grouping,omitempty" yaml:"command-grouping,omitempty" cbor:"command-grouping,omitempty"`
	LOLBAS          []BinaryHit            `json:"LOLBAS,omitempty" yaml:"LOLBAS,omitempty" cbor:"LOLBAS,omitempty"`
	Downloads       []interpreter.Download `json:"download,omitempty" yaml:"download,omitempty" cbor:"download,omitempty"`
	OneLiner        bool                   `json:"one-liner" yaml:"one-liner" cbor:"one-liner"`
	// ComplexOneLiner is the resulting command count, or 0
	ComplexOneLiner int `json:"complex-one-liner,omitempty" yaml:"complex-one-liner,omitempty" cbor:"complex-one-liner,omitempty"`
}

// AddExpansion records the variable use of one normalized command
func (r *Record) AddExpansion(command, normalized string, startsWithVar bool, count int) {
	if startsWithVar {
		r.StartWithVar = append(r.StartWithVar, Expansion{Command: command, Normalized: normalized})
	}
	r.VarUsed = append(r.VarUsed, Expansion{Command: command, Normalized: normalized, Count: count})
}

// AddGrouping records a command that re-split after normalization
func (r *Record) AddGrouping(command, normalized string) {
	r.CommandGrouping = append(r.CommandGrouping, Grouping{Command: command, Normalized: normalized})
}

// AddBinaries records every LOLBAS hit
func (r *Record) AddBinaries(command string, names []string) {
	for _, name := range names {
		r.LOLBAS = append(r.LOLBAS, BinaryHit{LOLBAS: name, Command: command})
	}
}

// AddDownloads records curl downloads
func (r *Record) AddDownloads(downloads ...interpreter.Download) {
	r.Downloads = append(r.Downloads, downloads...)
}

// Present returns the names of the traits that were observed. var_used
// counts only when some command actually expanded a variable.
func (r *Record) Present() []string {
	var names []string
	add := func(ok bool, name string) {
		if ok {
			names = append(names, name)
		}
	}
	add(len(r.StartWithVar) > 0, StartWithVar)
	add(slices.ContainsFunc(r.VarUsed, func(e Expansion) bool { return e.Count > 0 }), VarUsed)
	add(len(r.CommandGrouping) > 0, CommandGrouping)
	add(len(r.LOLBAS) > 0, LOLBAS)
	add(len(r.Downloads) > 0, Download)
	add(r.OneLiner, OneLiner)
	add(r.ComplexOneLiner > 0, ComplexOneLiner)
	return names
}

// Matcher finds LOLBAS names inside commands, ignoring case
type Matcher struct {
	names []string
	lower []string
}

// NewMatcher builds a Matcher; a nil list selects DefaultLOLBAS
func NewMatcher(names []string) *Matcher {
	if names == nil {
		names = DefaultLOLBAS
	}
	m := &Matcher{names: slices.Clone(names), lower: make([]string, len(names))}
	for i, n := range names {
		m.lower[i] = strings.ToLower(n)
	}
	return m
}

// Match returns the names contained in command, in list order
func (m *Matcher) Match(command string) []string {
	lc := strings.ToLower(command)
	var hits []string
	for i, n := range m.lower {
		if n != "" && strings.Contains(lc, n) {
			hits = append(hits, m.names[i])
		}
	}
	return hits
}
