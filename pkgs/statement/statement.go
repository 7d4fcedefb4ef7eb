// Package statement rewrites single-line IF and FOR statements into
// parenthesised pseudo-command groups.
//
// A statement such as
//
//	IF "A"=="A" echo AAA
//
// becomes the parts
//
//	IF "A"=="A" (
//	echo AAA
//	)
//
// so later stages can treat conditionals and loops as ordinary command
// groups. The grammars are parsed by hand with a cursor over the input;
// there are no regular expressions. Parsing is anchored at the start of the
// statement and never backtracks further than one clause, which keeps the
// cost linear-ish on hostile input.
//
// Text that does not parse is returned unchanged. The emitted header of a
// rewritten statement parses back to itself, so rewriting is idempotent.
package statement

import (
	"strings"
)

// Rewrite splits stmt into pseudo-commands if it is an IF or FOR
// statement. Anything else, including statements the grammars reject, is
// returned as a single part.
func Rewrite(stmt string) []string {
	lower := strings.ToLower(stmt)
	switch {
	case strings.HasPrefix(lower, "if "):
		if s, ok := ParseIf(stmt); ok {
			return s.Parts()
		}
	case strings.HasPrefix(lower, "for "):
		if s, ok := ParseFor(stmt); ok {
			return s.Parts()
		}
	}
	return []string{stmt}
}

// IsCompound reports whether stmt starts with an IF or FOR keyword
func IsCompound(stmt string) bool {
	lower := strings.ToLower(stmt)
	return strings.HasPrefix(lower, "if ") || strings.HasPrefix(lower, "for ")
}

// keepNonBlank drops parts that are empty after trimming. Kept parts are
// not trimmed: leading whitespace of a body survives into the output.
func keepNonBlank(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// closer returns the closing pseudo-command with any trailing text the
// statement carried after its last parenthesis.
func closer(trailer string) string {
	if strings.TrimSpace(trailer) == "" {
		return ")"
	}
	return ")" + trailer
}

// body scans a `[^)]*` run starting at i and an optional ')'.
// It returns the body text, whether the paren was present and the position
// after it.
func body(src string, i int) (text string, closed bool, next int) {
	j := strings.IndexByte(src[i:], ')')
	if j < 0 {
		return src[i:], false, len(src)
	}
	return src[i : i+j], true, i + j + 1
}
