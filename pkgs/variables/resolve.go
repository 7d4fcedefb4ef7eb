package variables

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aledsdavies/batchdeob/core/invariant"
)

// Resolve evaluates token against l.
//
// Trailing carets are removed from the result unless the whole value is a
// single caret, matching how cmd.exe drops a dangling escape at the end of
// an expansion.
func Resolve(l Lookup, token string) string {
	ref, ok := ParseReference(token)
	if !ok {
		return ""
	}
	value, ok := l.Lookup(ref.Name)
	if !ok {
		return ""
	}
	return trimCarets(ref.Apply(value))
}

// Apply evaluates the operator of r against value
func (r Reference) Apply(value string) string {
	switch r.Op {
	case OpSubstring:
		return substring(value, r.Index, r.Length, r.HasLength)
	case OpSubstitute:
		return substitute(value, r.Old, r.New)
	default:
		return value
	}
}

func trimCarets(v string) string {
	if v == "^" {
		return v
	}
	return strings.TrimRight(v, "^")
}

// substring slices by character. A negative index counts from the end and
// clamps to the start; a negative length stops that many characters before
// the end; everything else clamps to the string bounds.
func substring(value string, index, length int, hasLength bool) string {
	runes := []rune(value)
	n := len(runes)

	if index < 0 {
		if -index >= n {
			index = 0
		} else {
			index = n + index
		}
	}
	if !hasLength {
		length = n - index
	}

	var lo, hi int
	if length >= 0 {
		lo, hi = clampSlice(n, index, saturatingAdd(index, length))
	} else {
		lo, hi = clampSlice(n, index, length)
	}
	invariant.InRange(lo, 0, n, "substring start")
	invariant.Postcondition(lo <= hi && hi <= n, "substring %d:%d outside %d characters", lo, hi, n)
	return string(runes[lo:hi])
}

// clampSlice applies the bounds rules of value[lo:hi] where negative
// bounds count from the end.
func clampSlice(n, lo, hi int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}
	lo, hi = clamp(lo), clamp(hi)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func saturatingAdd(a, b int) int {
	const maxInt = int(^uint(0) >> 1)
	if b > 0 && a > maxInt-b {
		return maxInt
	}
	return a + b
}

// substitute replaces old with repl, ignoring case. An old value starting
// with '*' replaces everything up to and including the first match of the
// rest; when the rest does not occur, old is replaced literally.
func substitute(value, old, repl string) string {
	if strings.HasPrefix(old, "*") {
		if _, end, ok := indexFold(value, old[1:], 0); ok {
			return repl + value[end:]
		}
	}
	return replaceAllFold(value, old, repl)
}

func replaceAllFold(value, old, repl string) string {
	if old == "" {
		return value
	}
	var b strings.Builder
	pos := 0
	for {
		start, end, ok := indexFold(value, old, pos)
		if !ok {
			b.WriteString(value[pos:])
			return b.String()
		}
		b.WriteString(value[pos:start])
		b.WriteString(repl)
		pos = end
	}
}

// indexFold finds the first case-insensitive occurrence of sub in s at or
// after from, returning byte offsets into s. An empty sub matches at from.
func indexFold(s, sub string, from int) (start, end int, ok bool) {
	for i := from; i <= len(s); {
		if e, ok := matchFoldAt(s, i, sub); ok {
			return i, e, true
		}
		if i == len(s) {
			break
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return 0, 0, false
}

func matchFoldAt(s string, i int, sub string) (int, bool) {
	for _, want := range sub {
		if i >= len(s) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(s[i:])
		if !equalFoldRune(got, want) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
