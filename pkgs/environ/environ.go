// Package environ models the variable table a batch script sees.
//
// Names are case-insensitive in cmd.exe, so every key is stored lower-cased
// while values keep their original case. An Env is created from a Profile
// at session construction and cloned whenever analysis forks into a child
// payload; nothing in this package reads ambient process state on its own.
package environ

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Profile selects the variables an Env starts with
type Profile int

const (
	// ProfileSynthetic is a fixed, deterministic Windows workstation
	ProfileSynthetic Profile = iota
	// ProfileHost copies the environment handed in by the caller
	ProfileHost
)

// String returns the configuration name of the profile
func (p Profile) String() string {
	switch p {
	case ProfileSynthetic:
		return "synthetic"
	case ProfileHost:
		return "host"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ProfileNames lists the accepted profile names
var ProfileNames = []string{"synthetic", "host"}

// ParseProfile maps a configuration name to a Profile
func ParseProfile(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "synthetic", "":
		return ProfileSynthetic, true
	case "host":
		return ProfileHost, true
	default:
		return ProfileSynthetic, false
	}
}

// Env is a mapping from lower-cased variable name to value
type Env struct {
	vars map[string]string
}

// New returns an empty environment
func New() *Env {
	return &Env{vars: make(map[string]string)}
}

// FromPairs builds an environment from KEY=VALUE entries such as os.Environ().
// Entries without '=' are skipped. Windows exposes per-drive entries like
// "=C:=C:\" whose name starts with '=', so the separator search skips the
// first byte.
func FromPairs(pairs []string) *Env {
	e := New()
	for _, kv := range pairs {
		if len(kv) < 2 {
			continue
		}
		i := strings.IndexByte(kv[1:], '=')
		if i < 0 {
			continue
		}
		e.Set(kv[:i+1], kv[i+2:])
	}
	return e
}

// FromMap builds an environment from a plain map
func FromMap(m map[string]string) *Env {
	e := New()
	for k, v := range m {
		e.Set(k, v)
	}
	return e
}

// Lookup returns the value for name and whether it is defined
func (e *Env) Lookup(name string) (string, bool) {
	v, ok := e.vars[strings.ToLower(name)]
	return v, ok
}

// Get returns the value for name, or "" when undefined
func (e *Env) Get(name string) string {
	return e.vars[strings.ToLower(name)]
}

// Set defines or replaces a variable
func (e *Env) Set(name, value string) {
	e.vars[strings.ToLower(name)] = value
}

// Delete removes a variable; deleting an undefined name is a no-op
func (e *Env) Delete(name string) {
	delete(e.vars, strings.ToLower(name))
}

// Len returns the number of defined variables
func (e *Env) Len() int {
	return len(e.vars)
}

// Names returns the defined names in sorted order
func (e *Env) Names() []string {
	return slices.Sorted(maps.Keys(e.vars))
}

// Snapshot returns a copy of the table
func (e *Env) Snapshot() map[string]string {
	return maps.Clone(e.vars)
}

// Clone returns an independent copy; mutations on either side are not
// visible to the other.
func (e *Env) Clone() *Env {
	c := maps.Clone(e.vars)
	if c == nil {
		c = make(map[string]string)
	}
	return &Env{vars: c}
}

// Merge layers overrides on top of the current values
func (e *Env) Merge(overrides map[string]string) {
	for k, v := range overrides {
		e.Set(k, v)
	}
}
