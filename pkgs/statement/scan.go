package statement

import "strings"

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// spaces returns the end of the whitespace run at i
func spaces(src string, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}

// spaces1 is spaces requiring at least one whitespace byte
func spaces1(src string, i int) (int, bool) {
	j := spaces(src, i)
	return j, j > i
}

// word returns the end of the non-whitespace run at i
func word(src string, i int) int {
	for i < len(src) && !isSpace(src[i]) {
		i++
	}
	return i
}

// word1 is word requiring at least one byte
func word1(src string, i int) (int, bool) {
	j := word(src, i)
	return j, j > i
}

// digits1 returns the end of the digit run at i, requiring at least one
func digits1(src string, i int) (int, bool) {
	j := i
	for j < len(src) && isDigit(src[j]) {
		j++
	}
	return j, j > i
}

// keyword matches kw case-insensitively at i
func keyword(src string, i int, kw string) (int, bool) {
	if len(src)-i < len(kw) || !strings.EqualFold(src[i:i+len(kw)], kw) {
		return i, false
	}
	return i + len(kw), true
}

// keywordSpace matches kw followed by at least one whitespace byte
func keywordSpace(src string, i int, kw string) (int, bool) {
	j, ok := keyword(src, i, kw)
	if !ok {
		return i, false
	}
	return spaces1(src, j)
}

// keywordOpen matches kw followed by whitespace, or by optional whitespace
// and an opening parenthesis. Both `else (` and `else(` are accepted.
func keywordOpen(src string, i int, kw string) (int, bool) {
	j, ok := keyword(src, i, kw)
	if !ok {
		return i, false
	}
	k := spaces(src, j)
	if k > j || (k < len(src) && src[k] == '(') {
		return k, true
	}
	return i, false
}
