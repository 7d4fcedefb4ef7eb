package statement

import "strings"

// ConditionKind identifies the clause form of an IF condition
type ConditionKind int

const (
	CondErrorLevel ConditionKind = iota
	CondExist
	CondEquals
	CondCompare
	CondCmdExtVersion
	CondDefined
)

func (k ConditionKind) String() string {
	switch k {
	case CondErrorLevel:
		return "errorlevel"
	case CondExist:
		return "exist"
	case CondEquals:
		return "equals"
	case CondCompare:
		return "compare"
	case CondCmdExtVersion:
		return "cmdextversion"
	case CondDefined:
		return "defined"
	}
	return "unknown"
}

// compareOps are the extended comparison operators of IF
var compareOps = []string{"equ", "neq", "lss", "leq", "gtr", "geq"}

// conditionForms are tried in this order; the first that matches wins even
// when a later form would also match.
var conditionForms = []struct {
	kind  ConditionKind
	parse func(src string, i int) (int, bool)
}{
	{CondErrorLevel, parseErrorLevel},
	{CondExist, parseExist},
	{CondEquals, parseEquals},
	{CondCompare, parseCompare},
	{CondCmdExtVersion, parseCmdExtVersion},
	{CondDefined, parseDefined},
}

// IfStatement is a parsed single-line IF
type IfStatement struct {
	Keyword    string // IF keyword as written, case preserved
	Negated    bool
	Kind       ConditionKind
	Header     string // keyword through the whitespace after the condition
	OpenParen  bool
	Then       string
	CloseParen bool
	HasElse    bool
	Else       string
	Trailer    string // text after the final closing paren
}

// ParseIf parses an IF statement anchored at the start of src
func ParseIf(src string) (IfStatement, bool) {
	i, ok := keyword(src, 0, "if")
	if !ok {
		return IfStatement{}, false
	}
	i, ok = spaces1(src, i)
	if !ok {
		return IfStatement{}, false
	}

	stmt := IfStatement{Keyword: src[:2]}
	end, kind, ok := -1, ConditionKind(0), false
	if j, neg := keywordSpace(src, i, "not"); neg {
		end, kind, ok = condition(src, j)
		stmt.Negated = ok
	}
	if !ok {
		end, kind, ok = condition(src, i)
	}
	if !ok {
		return IfStatement{}, false
	}
	stmt.Kind = kind
	stmt.Header = src[:end]

	pos := end
	if pos < len(src) && src[pos] == '(' {
		stmt.OpenParen = true
		pos++
	}
	stmt.Then, stmt.CloseParen, pos = body(src, pos)
	if !stmt.CloseParen {
		return stmt, true
	}

	// ` else (` is only recognised directly after the closing paren
	if j, ok := spaces1(src, pos); ok {
		if k, ok := keywordOpen(src, j, "else"); ok {
			if k < len(src) && src[k] == '(' {
				k++
			}
			k = spaces(src, k)
			stmt.HasElse = true
			stmt.Else, _, pos = body(src, k)
		}
	}
	stmt.Trailer = src[pos:]
	return stmt, true
}

// Parts returns the pseudo-command sequence for the statement
func (s IfStatement) Parts() []string {
	parts := []string{s.Header + "(", s.Then}
	if !s.HasElse {
		if !s.OpenParen || s.CloseParen {
			parts = append(parts, closer(s.Trailer))
		}
		return keepNonBlank(parts)
	}
	if s.Keyword == "if" {
		parts = append(parts, ") else (")
	} else {
		parts = append(parts, ") ELSE (")
	}
	parts = append(parts, s.Else, closer(s.Trailer))
	return keepNonBlank(parts)
}

// condition tries each form at i and returns the position after the
// condition's trailing whitespace.
func condition(src string, i int) (int, ConditionKind, bool) {
	for _, form := range conditionForms {
		if end, ok := form.parse(src, i); ok {
			return end, form.kind, true
		}
	}
	return i, 0, false
}

// errorlevel N
func parseErrorLevel(src string, i int) (int, bool) {
	j, ok := keywordSpace(src, i, "errorlevel")
	if !ok {
		return i, false
	}
	if j, ok = digits1(src, j); !ok {
		return i, false
	}
	return spaces1(src, j)
}

// exist "quoted path" | exist path
func parseExist(src string, i int) (int, bool) {
	j, ok := keywordSpace(src, i, "exist")
	if !ok {
		return i, false
	}
	if j < len(src) && src[j] == '"' {
		// Longest quoted run first, on one line, followed by whitespace
		lineEnd := strings.IndexByte(src[j:], '\n')
		limit := len(src)
		if lineEnd >= 0 {
			limit = j + lineEnd
		}
		for k := strings.LastIndexByte(src[j+1:limit], '"'); k >= 0; k = strings.LastIndexByte(src[j+1:j+1+k], '"') {
			if end, ok := spaces1(src, j+1+k+1); ok {
				return end, true
			}
		}
	}
	if j, ok = word1(src, j); !ok {
		return i, false
	}
	return spaces1(src, j)
}

// a==b, with the shortest left side and the shortest right side that is
// followed by whitespace
func parseEquals(src string, i int) (int, bool) {
	for p := i + 1; p < len(src); p++ {
		if src[p-1] == '\n' {
			return i, false
		}
		if !strings.HasPrefix(src[p:], "==") {
			continue
		}
		q := p + 2
		for k := q + 1; k < len(src); k++ {
			if src[k-1] == '\n' {
				break
			}
			if isSpace(src[k]) {
				end, _ := spaces1(src, k)
				return end, true
			}
		}
	}
	return i, false
}

// [/i] a op b
func parseCompare(src string, i int) (int, bool) {
	if j, ok := keywordSpace(src, i, "/i"); ok {
		if end, ok := compareOperands(src, j); ok {
			return end, true
		}
	}
	return compareOperands(src, i)
}

func compareOperands(src string, i int) (int, bool) {
	j, ok := word1(src, i)
	if !ok {
		return i, false
	}
	if j, ok = spaces1(src, j); !ok {
		return i, false
	}
	op := -1
	for n, name := range compareOps {
		if k, ok := keywordSpace(src, j, name); ok {
			op, j = n, k
			break
		}
	}
	if op < 0 {
		return i, false
	}
	if j, ok = word1(src, j); !ok {
		return i, false
	}
	return spaces1(src, j)
}

// cmdextversion N, a single digit
func parseCmdExtVersion(src string, i int) (int, bool) {
	j, ok := keywordSpace(src, i, "cmdextversion")
	if !ok || j >= len(src) || !isDigit(src[j]) {
		return i, false
	}
	return spaces1(src, j+1)
}

// defined NAME
func parseDefined(src string, i int) (int, bool) {
	j, ok := keywordSpace(src, i, "defined")
	if !ok {
		return i, false
	}
	if j, ok = word1(src, j); !ok {
		return i, false
	}
	return spaces1(src, j)
}
