package engine

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

// Digest returns the hex blake2b-256 digest of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of analyzing one script or nested command line
type Result struct {
	// Commands is the normalized command stream, in execution order
	Commands []string
	// Children are nested command lines found by cmd /c, each analyzed
	// against a copy of the environment at the point of the fork
	Children []Child
	// Scripts are powershell bodies, each reported once per session
	Scripts []Script
	Traits  traits.Record
	// Diagnostics are soft failures that did not stop analysis
	Diagnostics []Diagnostic
	// Env is the environment after the last command
	Env map[string]string
}

// Child is a nested batch payload and its analysis
type Child struct {
	// Parent indexes the command in Commands that launched it
	Parent  int
	Command string
	Digest  string
	Result  *Result
}

// Name is the artifact file name of the child
func (c Child) Name() string {
	return c.Digest[:10] + ".bat"
}

// Script is a decoded script body
type Script struct {
	Parent  int
	Command string
	Digest  string
	Body    []byte
}

// Name is the artifact file name of the script
func (s Script) Name() string {
	return s.Digest[:10] + ".ps1"
}

// Diagnostic is a per-command soft failure
type Diagnostic struct {
	Command string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Command, d.Err)
}

func newResult() *Result {
	return &Result{}
}

// Text is the normalized stream as a batch file, one command per line
func (r *Result) Text() string {
	if len(r.Commands) == 0 {
		return ""
	}
	return strings.Join(r.Commands, "\n") + "\n"
}

// Digest is the digest of Text
func (r *Result) Digest() string {
	return Digest([]byte(r.Text()))
}

// ChildrenOf returns the children launched by Commands[i]
func (r *Result) ChildrenOf(i int) []Child {
	var out []Child
	for _, c := range r.Children {
		if c.Parent == i {
			out = append(out, c)
		}
	}
	return out
}

// merge appends other to r, shifting parent indexes
func (r *Result) merge(other *Result) {
	offset := len(r.Commands)
	r.Commands = append(r.Commands, other.Commands...)
	for _, c := range other.Children {
		c.Parent += offset
		r.Children = append(r.Children, c)
	}
	for _, s := range other.Scripts {
		s.Parent += offset
		r.Scripts = append(r.Scripts, s)
	}
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)

	t, o := &r.Traits, &other.Traits
	t.StartWithVar = append(t.StartWithVar, o.StartWithVar...)
	t.VarUsed = append(t.VarUsed, o.VarUsed...)
	t.CommandGrouping = append(t.CommandGrouping, o.CommandGrouping...)
	t.LOLBAS = append(t.LOLBAS, o.LOLBAS...)
	t.Downloads = append(t.Downloads, o.Downloads...)
	r.Env = other.Env
}

// Summary returns a short human-readable account of the analysis
func (r *Result) Summary() string {
	var summary strings.Builder

	summary.WriteString("Analysis Summary:\n")
	fmt.Fprintf(&summary, "  commands: %d\n", len(r.Commands))
	fmt.Fprintf(&summary, "  children: %d\n", len(r.Children))
	fmt.Fprintf(&summary, "  scripts: %d\n", len(r.Scripts))
	if present := r.Traits.Present(); len(present) > 0 {
		summary.WriteString("  traits: " + strings.Join(present, ", ") + "\n")
	}
	for _, d := range r.Diagnostics {
		summary.WriteString("  diagnostic: " + d.String() + "\n")
	}

	return summary.String()
}
