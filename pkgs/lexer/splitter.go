package lexer

import (
	"iter"
	"slices"
	"strings"

	"github.com/aledsdavies/batchdeob/pkgs/statement"
)

// SplitState is the state of the command splitter
type SplitState int

const (
	// SplitInit is outside quotes with no pending escape
	SplitInit SplitState = iota
	// SplitString is inside a double-quoted run
	SplitString
	// SplitEscape follows a caret in SplitInit
	SplitEscape
)

// String returns a human-readable state name
func (s SplitState) String() string {
	switch s {
	case SplitInit:
		return "Init"
	case SplitString:
		return "String"
	case SplitEscape:
		return "Escape"
	}
	return "Unknown"
}

// Commands returns the commands of one logical line in source order.
//
// Unquoted, unescaped '&' and '|' separate commands, so "&&" and "||"
// produce an empty segment that is dropped. A '&' directly after '>' is part
// of a redirection such as 2>&1 and does not split. Each segment is trimmed,
// and IF/FOR segments are expanded into their pseudo-command parts.
func Commands(line string) iter.Seq[string] {
	return func(yield func(string) bool) {
		emit := func(segment string) bool {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				return true
			}
			for _, part := range statement.Rewrite(segment) {
				if !yield(part) {
					return false
				}
			}
			return true
		}

		state := SplitInit
		start := 0
		for i := 0; i < len(line); i++ {
			c := line[i]
			switch state {
			case SplitInit:
				switch {
				case c == '"':
					state = SplitString
				case c == '^':
					state = SplitEscape
				case c == '&' && i > 0 && line[i-1] == '>':
					// redirection target such as 2>&1
				case c == '&' || c == '|':
					if !emit(line[start:i]) {
						return
					}
					start = i + 1
				}
			case SplitString:
				if c == '"' {
					state = SplitInit
				}
			case SplitEscape:
				state = SplitInit
			}
		}
		emit(line[start:])
	}
}

// SplitCommands collects Commands into a slice
func SplitCommands(line string) []string {
	return slices.Collect(Commands(line))
}

// CountCommands returns how many commands line splits into, stopping early
// once the count passes limit.
func CountCommands(line string, limit int) int {
	n := 0
	for range Commands(line) {
		n++
		if n > limit {
			break
		}
	}
	return n
}
