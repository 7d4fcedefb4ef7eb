// Package shellwords splits command arguments the way a POSIX-style shell
// would: whitespace separates words, quotes group them and are removed.
//
// It is used for the argument lists of curl and powershell invocations. The
// parsing is done by mvdan.cc/sh; the text of each word is then rebuilt from
// the original source so backslashes in Windows paths and '$' inside
// PowerShell strings survive unchanged. Text the bash grammar rejects but
// whose quotes balance, such as PowerShell's bare (...) or backtick escapes,
// is split by github.com/google/shlex instead.
package shellwords

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"mvdan.cc/sh/v3/syntax"
)

// Split returns the words of command. Words of every statement are
// returned in order, so `a; b | c` yields a, b and c, and redirections are
// dropped. When the shell grammar fails, the command is split on whitespace
// and quotes alone. The split fails only when quotes do not balance.
func Split(command string) ([]string, error) {
	words, err := splitShell(command)
	if err == nil {
		return words, nil
	}
	fallback, ferr := shlex.Split(command)
	if ferr != nil {
		return nil, err
	}
	return fallback, nil
}

func splitShell(command string) ([]string, error) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, err
	}

	var words []string
	for _, stmt := range file.Stmts {
		if err := collect(command, stmt, &words); err != nil {
			return nil, err
		}
	}
	return words, nil
}

func collect(src string, stmt *syntax.Stmt, out *[]string) error {
	if stmt == nil {
		return nil
	}
	switch cmd := stmt.Cmd.(type) {
	case nil:
		return nil
	case *syntax.CallExpr:
		for _, assign := range cmd.Assigns {
			*out = append(*out, slice(src, assign))
		}
		for _, word := range cmd.Args {
			*out = append(*out, wordText(src, word))
		}
		return nil
	case *syntax.BinaryCmd:
		if err := collect(src, cmd.X, out); err != nil {
			return err
		}
		return collect(src, cmd.Y, out)
	default:
		return fmt.Errorf("unsupported shell construct %T", cmd)
	}
}

// wordText concatenates the parts of w with quotes removed
func wordText(src string, w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			start := int(p.Pos().Offset()) + 1
			if p.Dollar {
				start++
			}
			end := int(p.End().Offset()) - 1
			if start <= end && end <= len(src) {
				sb.WriteString(src[start:end])
			}
		default:
			sb.WriteString(slice(src, part))
		}
	}
	return sb.String()
}

func slice(src string, n syntax.Node) string {
	start, end := int(n.Pos().Offset()), int(n.End().Offset())
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return src[start:end]
}
