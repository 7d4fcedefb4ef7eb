// Package interpreter applies the side effects of a normalized batch
// command to an environment.
//
// Commands are dispatched by case-insensitive keyword: call, start, cmd,
// setlocal, set, curl and powershell. Nothing is executed; recognised
// launches are reported in an Outcome as pending child payloads, script
// bodies and downloads for the caller to analyze further.
package interpreter

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/environ"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/normalize"
)

// DefaultMaxDepth bounds call/start recursion
const DefaultMaxDepth = 32

// Kind identifies the command form that was dispatched
type Kind int

const (
	KindNone Kind = iota
	KindComment
	KindSetlocal
	KindSet
	KindCmd
	KindCurl
	KindPowerShell
)

// String returns a human-readable kind name
func (k Kind) String() string {
	names := []string{"None", "Comment", "Setlocal", "Set", "Cmd", "Curl", "PowerShell"}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Unknown(%d)", k)
}

// Download is a curl invocation reduced to its source and destination
type Download struct {
	Command string `json:"command" yaml:"command" cbor:"command"`
	Src     string `json:"src" yaml:"src" cbor:"src"`
	Dst     string `json:"dst" yaml:"dst" cbor:"dst"`
}

// Outcome is what interpreting one command produced
type Outcome struct {
	// Kind of the innermost dispatched command, after call and start
	// prefixes have been peeled off
	Kind Kind
	// Command is the text that was finally dispatched
	Command string
	// Children are nested command lines queued by cmd /c
	Children []string
	// Scripts are script bodies queued by powershell
	Scripts [][]byte
	// Downloads recorded from curl
	Downloads []Download
	// Set holds the parsed assignment for KindSet
	Set *SetCommand
}

// Interpreter mutates an environment according to set commands and
// collects launch payloads. A forked analysis gets its own Interpreter over
// a cloned Env.
type Interpreter struct {
	env      *environ.Env
	norm     *normalize.Normalizer
	maxDepth int
	logger   *slog.Logger
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithMaxDepth bounds call/start recursion
func WithMaxDepth(depth int) Option {
	return func(in *Interpreter) {
		in.maxDepth = depth
	}
}

// WithLogger sets the debug logger
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = logger
	}
}

// New creates an Interpreter writing to env. norm is used to expand the
// remainder of a call command and must resolve names through env.
func New(env *environ.Env, norm *normalize.Normalizer, opts ...Option) *Interpreter {
	invariant.NotNil(env, "env")
	invariant.NotNil(norm, "normalizer")

	in := &Interpreter{env: env, norm: norm, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = logging.Default()
	}
	invariant.Precondition(in.maxDepth > 0, "max depth must be positive, got %d", in.maxDepth)
	return in
}

// Env returns the environment being mutated
func (in *Interpreter) Env() *environ.Env {
	return in.env
}

// Interpret applies command, which must already be normalized.
//
// A non-nil error is either a soft failure for this command (tokenization,
// decoding or unusable arguments), in which case the Outcome still carries
// whatever was recognised, or ErrDepthExceeded.
func (in *Interpreter) Interpret(command string) (Outcome, error) {
	var out Outcome
	err := in.interpret(command, 0, &out)
	return out, err
}

func (in *Interpreter) interpret(command string, depth int, out *Outcome) error {
	if depth > in.maxDepth {
		return errors.NewDepthError(depth, in.maxDepth, command)
	}
	out.Command = command
	out.Kind = KindNone

	if normalize.IsComment(command) {
		out.Kind = KindComment
		return nil
	}

	command = stripParens(command)
	if command == "" {
		return nil
	}
	command = strings.TrimPrefix(command, "@")
	out.Command = command

	if rest, ok := cutKeyword(command, "call"); ok {
		res, err := in.norm.Normalize(rest)
		if err != nil {
			return err
		}
		return in.interpret(res.Exact, depth+1, out)
	}

	if rest, ok := ParseStart(command); ok {
		if rest == "" {
			return nil
		}
		return in.interpret(rest, depth+1, out)
	}

	if _, ok := cutKeyword(command, "cmd"); ok {
		out.Kind = KindCmd
		if child, ok := ParseCmd(command); ok && child != "" {
			out.Children = append(out.Children, child)
		}
		return nil
	}

	if _, ok := cutKeyword(command, "setlocal"); ok {
		out.Kind = KindSetlocal
		return nil
	}

	if _, ok := cutKeyword(command, "set"); ok {
		out.Kind = KindSet
		in.applySet(command[len("set"):], out)
		return nil
	}

	if _, ok := cutKeyword(command, "curl"); ok {
		out.Kind = KindCurl
		dl, err := ParseCurl(command)
		if err != nil {
			in.logger.Debug("curl arguments not understood", "command", command, "error", err)
			return err
		}
		out.Downloads = append(out.Downloads, dl)
		return nil
	}

	if _, ok := cutKeyword(command, "powershell"); ok {
		out.Kind = KindPowerShell
		script, err := ParsePowerShell(command)
		if err != nil {
			in.logger.Debug("powershell payload not extracted", "command", command, "error", err)
			return err
		}
		if len(script) > 0 {
			out.Scripts = append(out.Scripts, script)
		}
		return nil
	}

	return nil
}

func (in *Interpreter) applySet(args string, out *Outcome) {
	set := ParseSet(args)
	out.Set = &set
	if set.Name == "" {
		in.logger.Debug("set without a variable name ignored", "command", out.Command)
		return
	}
	if set.Value == "" {
		in.env.Delete(set.Name)
		return
	}
	in.env.Set(set.Name, set.Value)
}

// stripParens removes leading spaces and opening parens. For every '('
// removed, trailing spaces up to and including one ')' are removed too.
func stripParens(s string) string {
	index, last := 0, len(s)-1
	for index < last && (s[index] == ' ' || s[index] == '(') {
		if s[index] == '(' {
			for last > index && (s[last] == ' ' || s[last] == ')') {
				if s[last] == ')' {
					last--
					break
				}
				last--
			}
		}
		index++
	}
	return s[index : last+1]
}

// cutKeyword matches kw case-insensitively at the start of s, followed by
// the end of s or a byte that cannot continue a command name. The remainder
// has its leading whitespace removed.
func cutKeyword(s, kw string) (string, bool) {
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return "", false
	}
	rest := s[len(kw):]
	if rest != "" && isNameByte(rest[0]) {
		return "", false
	}
	return strings.TrimLeft(rest, " \t"), true
}

func isNameByte(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '_' || c == '-' || c >= 0x80
}
