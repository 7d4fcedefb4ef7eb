package normalize

import (
	"fmt"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/pkgs/variables"
)

// State is a state of the normalization automaton
type State int

const (
	// StateInit is outside quotes
	StateInit State = iota
	// StateString is inside a double-quoted run
	StateString
	// StateVarPercent scans a %...% reference
	StateVarPercent
	// StateVarBang scans a !...! reference
	StateVarBang
	// StateEscape follows a caret
	StateEscape
)

// String returns a human-readable state name
func (s State) String() string {
	names := []string{"Init", "String", "VarPercent", "VarBang", "Escape"}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// frame is a saved state and the token start that was active in it
type frame struct {
	state    State
	varStart int
}

// quoted are the characters that keep their caret when escaped
func quoted(c byte) bool {
	switch c {
	case '|', '>', '<', '"', '^', '&':
		return true
	}
	return false
}

// positional modifier letters accepted between %~ and a digit
func modifier(c byte) bool {
	switch c {
	case 'f', 'd', 'p', 'n', 'x', 's', 'a', 't', 'z',
		'F', 'D', 'P', 'N', 'X', 'S', 'A', 'T', 'Z':
		return true
	}
	return false
}

type machine struct {
	n     *Normalizer
	depth int

	out      []byte
	state    State
	stack    []frame
	varStart int

	startsWithVar bool
	expansions    int
	err           error
}

func (n *Normalizer) newMachine(depth int) *machine {
	return &machine{n: n, depth: depth, state: StateInit, stack: make([]frame, 0, 8)}
}

func (m *machine) push(next State) {
	m.stack = append(m.stack, frame{state: m.state, varStart: m.varStart})
	m.state = next
}

func (m *machine) pop() {
	invariant.Invariant(len(m.stack) > 0, "normalizer stack underflow in state %s", m.state)
	f := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.state, m.varStart = f.state, f.varStart
}

func (m *machine) last() byte {
	if len(m.out) == 0 {
		return 0
	}
	return m.out[len(m.out)-1]
}

// beginVar records the delimiter just written at the end of out as the
// start of a new reference.
func (m *machine) beginVar(state State) {
	start := len(m.out) - 1
	m.push(state)
	m.varStart = start
}

// closeVar resolves out[varStart:], splices in the normalized value and
// returns to the enclosing state.
func (m *machine) closeVar() {
	token := string(m.out[m.varStart:])
	value := variables.Resolve(m.n.lookup, token)
	m.out = m.out[:m.varStart]
	if len(m.out) == 0 {
		m.startsWithVar = true
	}
	text, nested, err := m.n.value(value, m.depth+1)
	if err != nil && m.err == nil {
		m.err = err
	}
	m.out = append(m.out, text...)
	m.expansions += 1 + nested
	m.pop()
}

// positional replaces the %N or %~mods token being scanned. Only %0 with
// supported modifiers has a value; every other positional is empty.
func (m *machine) positional(digit byte, supported bool) {
	m.out = m.out[:m.varStart]
	if digit == '0' && supported {
		m.out = append(m.out, m.n.scriptName...)
	}
	m.pop()
}

// positionalPrefix reports whether out[varStart:] is "%" or "%~" plus
// letters, and whether every letter is a supported modifier.
func (m *machine) positionalPrefix() (ok, supported bool) {
	tok := m.out[m.varStart:]
	if len(tok) == 1 {
		return true, true
	}
	if tok[1] != '~' {
		return false, false
	}
	supported = true
	for _, c := range tok[2:] {
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false, false
		}
		supported = supported && modifier(c)
	}
	return true, supported
}

func (m *machine) run(src string) {
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch m.state {
		case StateInit:
			m.stepInit(c)
		case StateString:
			m.stepString(c)
		case StateVarPercent:
			m.stepVarPercent(c)
		case StateVarBang:
			m.stepVarBang(c)
		case StateEscape:
			m.stepEscape(c)
		}
	}
	m.finish()
}

func (m *machine) stepInit(c byte) {
	switch c {
	case '"':
		m.state = StateString
		// adjacent quoted runs merge: "a""b" reads as "ab"
		if m.last() == '"' {
			m.out = m.out[:len(m.out)-1]
		} else {
			m.out = append(m.out, c)
		}
	case ',', ';':
		m.out = append(m.out, ' ')
	case '^':
		m.push(StateEscape)
	case '%':
		m.out = append(m.out, c)
		m.beginVar(StateVarPercent)
	case '!':
		m.out = append(m.out, c)
		m.beginVar(StateVarBang)
	default:
		m.out = append(m.out, c)
	}
}

func (m *machine) stepString(c byte) {
	switch c {
	case '"':
		m.state = StateInit
		m.out = append(m.out, c)
	case ',', ';':
		if m.n.foldQuoted {
			m.out = append(m.out, ' ')
		} else {
			m.out = append(m.out, c)
		}
	case '^':
		m.push(StateEscape)
	case '%':
		m.out = append(m.out, c)
		m.beginVar(StateVarPercent)
	case '!':
		m.out = append(m.out, c)
		m.beginVar(StateVarBang)
	default:
		m.out = append(m.out, c)
	}
}

func (m *machine) stepVarPercent(c byte) {
	switch {
	case c == '%' && m.last() != '%':
		m.out = append(m.out, c)
		m.closeVar()
	case c == '%':
		// %% is a literal percent pair
		m.out = append(m.out, c)
		m.pop()
	case c == '*' && len(m.out) == m.varStart+1:
		// %* with no arguments
		m.out = m.out[:m.varStart]
		m.pop()
	case '0' <= c && c <= '9':
		if ok, supported := m.positionalPrefix(); ok {
			m.positional(c, supported)
		} else {
			m.out = append(m.out, c)
		}
	default:
		// carets are part of the name here
		m.out = append(m.out, c)
	}
}

func (m *machine) stepVarBang(c byte) {
	switch {
	case c == '!' && m.last() != '!':
		m.out = append(m.out, c)
		m.closeVar()
	case c == '!':
		m.out = append(m.out, c)
		m.pop()
	case c == '^':
		m.push(StateEscape)
	default:
		m.out = append(m.out, c)
	}
}

func (m *machine) stepEscape(c byte) {
	if c == '\n' || c == '\r' {
		// caret at a line break continues the line
		m.pop()
		return
	}
	if quoted(c) {
		m.out = append(m.out, '^')
	}
	m.out = append(m.out, c)
	m.pop()

	switch c {
	case '%':
		if m.state == StateVarPercent {
			m.closeVar()
		} else {
			m.beginVar(StateVarPercent)
		}
	case '!':
		if m.state == StateVarBang {
			m.closeVar()
		} else {
			m.beginVar(StateVarBang)
		}
	}
}

// finish drops a dangling caret and the opening delimiter of any
// reference left unterminated.
func (m *machine) finish() {
	for {
		switch m.state {
		case StateEscape:
			m.pop()
		case StateVarPercent, StateVarBang:
			m.out = append(m.out[:m.varStart], m.out[m.varStart+1:]...)
			m.pop()
		default:
			return
		}
	}
}
