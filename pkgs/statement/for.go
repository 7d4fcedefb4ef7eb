package statement

import "strings"

// ForStatement is a parsed single-line FOR loop
type ForStatement struct {
	Parameter  string // options and loop variable, e.g. `/f "tokens=*" %%a`
	Set        string // text between the IN parentheses
	Header     string // keyword through the whitespace after DO
	OpenParen  bool
	Body       string
	CloseParen bool
	Trailer    string
}

// ParseFor parses `for <parameter> IN (<set>) DO <body>` anchored at the
// start of src. When IN appears more than once the last usable occurrence
// delimits the parameter.
func ParseFor(src string) (ForStatement, bool) {
	i, ok := keyword(src, 0, "for")
	if !ok {
		return ForStatement{}, false
	}
	start, ok := spaces1(src, i)
	if !ok {
		return ForStatement{}, false
	}

	paramLimit := len(src)
	if nl := strings.IndexByte(src[start:], '\n'); nl >= 0 {
		paramLimit = start + nl
	}

	// Candidate IN keywords, right to left. The parameter needs at least one
	// byte and at least one whitespace byte separates it from IN.
	for k := paramLimit - 2; k >= start+2; k-- {
		if !isSpace(src[k-1]) {
			continue
		}
		stmt, ok := parseForTail(src, k)
		if !ok {
			continue
		}
		stmt.Parameter = strings.TrimRight(src[start:k], " \t\r\f\v")
		if stmt.Parameter == "" {
			continue
		}
		return stmt, true
	}
	return ForStatement{}, false
}

// parseForTail parses `IN (<set>) DO [(]<body>[)]` starting at k
func parseForTail(src string, k int) (ForStatement, bool) {
	j, ok := keywordOpen(src, k, "in")
	if !ok || j >= len(src) || src[j] != '(' {
		return ForStatement{}, false
	}
	j++
	setEnd := strings.IndexByte(src[j:], ')')
	if setEnd <= 0 {
		return ForStatement{}, false
	}
	stmt := ForStatement{Set: src[j : j+setEnd]}
	j += setEnd + 1

	if j, ok = spaces1(src, j); !ok {
		return ForStatement{}, false
	}
	if j, ok = keywordOpen(src, j, "do"); !ok {
		return ForStatement{}, false
	}
	stmt.Header = src[:j]
	if j < len(src) && src[j] == '(' {
		stmt.OpenParen = true
		j++
	}
	stmt.Body, stmt.CloseParen, j = body(src, j)
	stmt.Trailer = src[j:]
	return stmt, true
}

// Parts returns the pseudo-command sequence for the loop
func (s ForStatement) Parts() []string {
	parts := []string{s.Header + "(", s.Body}
	if !s.OpenParen || s.CloseParen {
		parts = append(parts, closer(s.Trailer))
	}
	return keepNonBlank(parts)
}
