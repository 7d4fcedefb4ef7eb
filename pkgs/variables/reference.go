// Package variables parses and evaluates batch variable references.
//
// A reference is a delimited token such as %PATH%, !x!, %COMSPEC:~-7,3% or
// %COMSPEC:\=/%. Names are looked up case-insensitively; an undefined name
// or a token that is not a well-formed reference resolves to empty text.
package variables

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aledsdavies/batchdeob/core/invariant"
)

// Op is the operator suffix of a reference
type Op int

const (
	OpNone       Op = iota
	OpSubstring     // :~index[,length]
	OpSubstitute    // :old=new
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpSubstring:
		return "substring"
	case OpSubstitute:
		return "substitute"
	}
	return "unknown"
}

// Reference is a parsed variable token
type Reference struct {
	Delim     byte // '%' or '!'
	Name      string
	Op        Op
	Index     int
	Length    int
	HasLength bool
	Old       string
	New       string
}

// Lookup is the read side of an environment
type Lookup interface {
	Lookup(name string) (string, bool)
}

// extra punctuation allowed in names besides letters, digits, '_' and
// whitespace
const nameSymbols = "\"^|!#$'()*+,-.?@[]`{}~"

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) ||
		unicode.IsSpace(r) || strings.ContainsRune(nameSymbols, r)
}

// ParseReference parses a complete token including both delimiters
func ParseReference(token string) (Reference, bool) {
	if len(token) < 3 {
		return Reference{}, false
	}
	delim := token[0]
	if (delim != '%' && delim != '!') || token[len(token)-1] != delim {
		return Reference{}, false
	}
	body := token[1 : len(token)-1]

	n := 0
	for n < len(body) {
		r, size := utf8.DecodeRuneInString(body[n:])
		if !isNameRune(r) {
			break
		}
		n += size
	}
	if n == 0 {
		return Reference{}, false
	}
	ref := Reference{Delim: delim, Name: body[:n]}
	if n == len(body) {
		return ref, true
	}
	if body[n] != ':' {
		return Reference{}, false
	}
	suffix := body[n+1:]

	if index, length, hasLength, ok := parseSubstring(suffix); ok {
		ref.Op = OpSubstring
		ref.Index, ref.Length, ref.HasLength = index, length, hasLength
		return ref, true
	}

	eq := strings.IndexByte(suffix, '=')
	if eq <= 0 {
		return Reference{}, false
	}
	ref.Op = OpSubstitute
	ref.Old, ref.New = suffix[:eq], suffix[eq+1:]
	return ref, true
}

// parseSubstring parses `~ index [, length]` with optional whitespace
// around the numbers.
func parseSubstring(s string) (index, length int, hasLength, ok bool) {
	if !strings.HasPrefix(s, "~") {
		return 0, 0, false, false
	}
	c := cursor{src: s, pos: 1}
	c.skipSpace()
	if index, ok = c.signedInt(); !ok {
		return 0, 0, false, false
	}
	c.skipSpace()
	if c.peek() == ',' {
		c.pos++
		c.skipSpace()
		if length, ok = c.signedInt(); !ok {
			return 0, 0, false, false
		}
		hasLength = true
		c.skipSpace()
	}
	invariant.InRange(c.pos, 1, len(s), "substring cursor")
	if c.pos != len(s) {
		return 0, 0, false, false
	}
	return index, length, hasLength, true
}

type cursor struct {
	src string
	pos int
}

func (c *cursor) peek() byte {
	if c.pos < len(c.src) {
		return c.src[c.pos]
	}
	return 0
}

func (c *cursor) skipSpace() {
	for c.pos < len(c.src) {
		r, size := utf8.DecodeRuneInString(c.src[c.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		c.pos += size
	}
}

// signedInt reads [+-]?digits. Values beyond the int range saturate, which
// is equivalent after clamping to the string length.
func (c *cursor) signedInt() (int, bool) {
	start := c.pos
	if b := c.peek(); b == '+' || b == '-' {
		c.pos++
	}
	digitsStart := c.pos
	for c.pos < len(c.src) && '0' <= c.src[c.pos] && c.src[c.pos] <= '9' {
		c.pos++
	}
	if c.pos == digitsStart {
		c.pos = start
		return 0, false
	}
	invariant.Postcondition(c.pos > start, "number scan did not advance at %d", start)
	v, err := strconv.ParseInt(c.src[start:c.pos], 10, 32)
	if err != nil {
		if c.src[start] == '-' {
			return -1 << 31, true
		}
		return 1<<31 - 1, true
	}
	return int(v), true
}
