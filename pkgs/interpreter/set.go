package interpreter

import "strings"

// PromptValue stands in for a value read by set /p
const PromptValue = "__input__"

// SetCommand is a parsed set assignment
type SetCommand struct {
	Name  string
	Value string
	// Option is the lower-cased switch letter, 'a' or 'p', or 0
	Option byte
}

// setState is a state of the set argument scanner
type setState int

const (
	setInit setState = iota
	setOption
	setVar
	setValue
	setEscape
)

// specials are stripped from set /a names and keep their caret inside
// quoted names
const specials = `|><"^&`

type setScanner struct {
	args  string
	state setState
	prev  setState
	stop  int

	option byte
	name   []byte
	value  []byte
	// quote records how a quoted form was opened: `"`, `^"` or not at all
	quote string
}

// ParseSet parses the text following the set keyword.
//
// An opening double quote limits parsing to the last double quote in args,
// which is how `set "NAME=VALUE" trailing` drops the trailer. /a wraps the
// expression in parentheses without evaluating it and /p replaces the value
// with PromptValue.
func ParseSet(args string) SetCommand {
	s := &setScanner{args: args, state: setInit, stop: len(args)}
	for i := 0; i < len(args) && i < s.stop; i++ {
		s.step(i, args[i])
	}
	return s.result()
}

// lastQuote is the end of the parse range for a quote opened at i
func (s *setScanner) lastQuote(i int) int {
	j := strings.LastIndexByte(s.args, '"')
	if j == i {
		return len(s.args)
	}
	return j
}

func (s *setScanner) escape() {
	s.prev = s.state
	s.state = setEscape
}

func (s *setScanner) step(i int, c byte) {
	switch s.state {
	case setInit:
		switch c {
		case ' ':
		case '/':
			s.state = setOption
		case '"':
			s.quote = `"`
			s.stop = s.lastQuote(i)
			s.state = setVar
		case '^':
			s.escape()
		default:
			s.state = setVar
			s.name = append(s.name, c)
		}

	case setOption:
		s.option = lower(c)
		s.state = setInit

	case setVar:
		switch {
		case c == '=':
			s.state = setValue
		case s.quote == "" && c == '"':
			s.quote = `"`
			s.name = append(s.name, c)
		case c == '^':
			s.escape()
		default:
			s.name = append(s.name, c)
		}

	case setValue:
		if c == '^' {
			s.escape()
		} else {
			s.value = append(s.value, c)
		}

	case setEscape:
		switch s.prev {
		case setInit:
			if c == '"' {
				s.quote = `^"`
				s.stop = s.lastQuote(i)
				s.state = setInit
			} else {
				s.state = setVar
				s.name = append(s.name, c)
			}
		case setVar:
			if s.quote == `"` && strings.IndexByte(specials, c) >= 0 {
				s.name = append(s.name, '^')
			}
			if s.quote == "" && c == '"' {
				s.quote = `^"`
			}
			s.name = append(s.name, c)
			s.state = setVar
		case setValue:
			s.value = append(s.value, c)
			s.state = setValue
		}
	}
}

func (s *setScanner) result() SetCommand {
	name, value := string(s.name), string(s.value)

	switch s.option {
	case 'a':
		name = strings.Trim(name, " ")
		name = strings.Map(func(r rune) rune {
			if strings.ContainsRune(specials, r) {
				return -1
			}
			return r
		}, name)
		value = "(" + strings.Trim(value, " ") + ")"
	case 'p':
		value = PromptValue
	}

	name = strings.TrimLeft(name, " ")
	if s.quote == "" {
		name = strings.ReplaceAll(strings.TrimLeft(name, `^"`), `^"`, `"`)
	}
	return SetCommand{Name: name, Value: value, Option: s.option}
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
