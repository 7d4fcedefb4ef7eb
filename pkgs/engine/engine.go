// Package engine drives the deobfuscation pipeline over a script: logical
// lines are split into commands, each command is normalized and
// interpreted, and nested payloads are analyzed recursively.
//
// A Session owns the environment of one analysis. Nested cmd /c payloads
// are analyzed in child sessions over a clone of the environment taken at
// the moment of the fork, so siblings never see each other's assignments.
// Script bodies are de-duplicated by digest across the whole session tree.
package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/environ"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/interpreter"
	"github.com/aledsdavies/batchdeob/pkgs/lexer"
	"github.com/aledsdavies/batchdeob/pkgs/normalize"
	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

// DefaultComplexOneLinerThreshold is the command count from which a
// one-liner counts as complex
const DefaultComplexOneLinerThreshold = 4

// Engine holds analysis settings. It is immutable after New and may be
// shared between goroutines; each analysis runs in its own Session.
type Engine struct {
	env        *environ.Env
	scriptName string
	foldQuoted bool
	maxDepth   int
	threshold  int
	matcher    *traits.Matcher
	logger     *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithEnvironment sets the environment every session starts from. The
// engine keeps its own copy.
func WithEnvironment(env *environ.Env) Option {
	return func(e *Engine) {
		e.env = env.Clone()
	}
}

// WithScriptName sets the expansion of %0
func WithScriptName(name string) Option {
	return func(e *Engine) {
		e.scriptName = name
	}
}

// WithQuotedDelimiterFolding also folds ',' and ';' to spaces inside quotes
func WithQuotedDelimiterFolding(enabled bool) Option {
	return func(e *Engine) {
		e.foldQuoted = enabled
	}
}

// WithMaxDepth bounds nested payloads, command regrouping, call chains
// and value re-normalization
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithComplexOneLinerThreshold sets the complex one-liner command count
func WithComplexOneLinerThreshold(n int) Option {
	return func(e *Engine) {
		e.threshold = n
	}
}

// WithLOLBAS replaces the rare dual-use binary list
func WithLOLBAS(names []string) Option {
	return func(e *Engine) {
		e.matcher = traits.NewMatcher(names)
	}
}

// WithLogger sets the logger for soft failures
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine. Without WithEnvironment sessions start from the
// synthetic profile.
func New(opts ...Option) *Engine {
	e := &Engine{
		scriptName: normalize.DefaultScriptName,
		maxDepth:   normalize.DefaultMaxDepth,
		threshold:  DefaultComplexOneLinerThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.env == nil {
		e.env = environ.Synthetic()
	}
	if e.matcher == nil {
		e.matcher = traits.NewMatcher(nil)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	invariant.Precondition(e.maxDepth > 0, "max depth must be positive, got %d", e.maxDepth)
	invariant.Precondition(e.threshold > 0, "complex one-liner threshold must be positive, got %d", e.threshold)
	return e
}

// Analyze reads a script and analyzes it line by line.
//
// Soft failures are reported as Diagnostics. A read failure, a cancelled
// context or a recursion depth breach stops the analysis; the partial
// Result is returned with the error.
func (e *Engine) Analyze(ctx context.Context, r io.Reader) (*Result, error) {
	s := e.NewSession()
	lines := lexer.NewLineReader(r)
	for lines.Scan() {
		if err := ctx.Err(); err != nil {
			return s.Result(), err
		}
		if _, err := s.AnalyzeLogicalLine(lines.Text()); err != nil {
			e.logger.Debug("analysis aborted", "error", err)
			return s.Result(), err
		}
	}
	if err := lines.Err(); err != nil {
		return s.Result(), errors.NewInputError("cannot read script", err)
	}
	return s.Result(), nil
}

// AnalyzeString analyzes an in-memory script
func (e *Engine) AnalyzeString(ctx context.Context, script string) (*Result, error) {
	return e.Analyze(ctx, strings.NewReader(script))
}

// Deobfuscate analyzes script with default settings and returns the
// normalized commands joined by CRLF
func Deobfuscate(script string, opts ...Option) (string, error) {
	res, err := New(opts...).AnalyzeString(context.Background(), script)
	if res == nil {
		return "", err
	}
	return strings.Join(res.Commands, "\r\n"), err
}

// registry is shared by every session of one analysis tree
type registry struct {
	scripts map[string]bool
}

// Session is one analysis with its own environment. Sessions are not safe
// for concurrent use.
type Session struct {
	engine *Engine
	env    *environ.Env
	norm   *normalize.Normalizer
	interp *interpreter.Interpreter
	reg    *registry
	depth  int

	out   *Result
	total *Result
	// nonBlank counts non-empty physical lines seen at the top level
	nonBlank int
}

// NewSession starts a top-level session from the engine's environment
func (e *Engine) NewSession() *Session {
	return e.newSession(e.env.Clone(), &registry{scripts: make(map[string]bool)}, 0)
}

func (e *Engine) newSession(env *environ.Env, reg *registry, depth int) *Session {
	norm := normalize.New(env,
		normalize.WithScriptName(e.scriptName),
		normalize.WithQuotedDelimiterFolding(e.foldQuoted),
		normalize.WithMaxDepth(e.maxDepth),
		normalize.WithLogger(e.logger),
	)
	s := &Session{
		engine: e,
		env:    env,
		norm:   norm,
		interp: interpreter.New(env, norm, interpreter.WithMaxDepth(e.maxDepth), interpreter.WithLogger(e.logger)),
		reg:    reg,
		depth:  depth,
		total:  newResult(),
	}
	s.out = s.total
	return s
}

// Env is the live environment of the session
func (s *Session) Env() *environ.Env {
	return s.env
}

// AnalyzeLogicalLine analyzes one logical line and returns what it
// produced. The session keeps the environment and the accumulated result.
func (s *Session) AnalyzeLogicalLine(line string) (*Result, error) {
	for _, physical := range strings.Split(line, "\n") {
		if strings.TrimSpace(physical) != "" {
			s.nonBlank++
		}
	}

	cur := newResult()
	s.out = cur
	err := s.analyzeLine(line, 0)
	s.out = s.total
	cur.Env = s.env.Snapshot()
	s.total.merge(cur)
	return cur, err
}

// Result returns the accumulated result with one-liner classification
func (s *Session) Result() *Result {
	s.total.Env = s.env.Snapshot()
	s.total.Traits.OneLiner = s.nonBlank == 1
	s.total.Traits.ComplexOneLiner = 0
	if s.total.Traits.OneLiner && len(s.total.Commands) >= s.engine.threshold {
		s.total.Traits.ComplexOneLiner = len(s.total.Commands)
	}
	return s.total
}

func (s *Session) analyzeLine(line string, group int) error {
	if group > s.engine.maxDepth {
		return errors.NewDepthError(group, s.engine.maxDepth, line)
	}
	for command := range lexer.Commands(line) {
		res, err := s.norm.Normalize(command)
		if err != nil {
			return err
		}
		s.out.Traits.AddExpansion(command, res.Text, res.StartsWithVar, res.Expansions)

		if lexer.CountCommands(res.Text, 2) > 1 {
			s.out.Traits.AddGrouping(command, res.Text)
			if err := s.analyzeLine(res.Text, group+1); err != nil {
				return err
			}
			continue
		}
		if err := s.interpret(res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) interpret(res normalize.Result) error {
	out, err := s.interp.Interpret(res.Exact)

	index := len(s.out.Commands)
	s.out.Commands = append(s.out.Commands, res.Text)
	s.out.Traits.AddBinaries(res.Text, s.engine.matcher.Match(res.Text))
	s.out.Traits.AddDownloads(out.Downloads...)

	if err != nil {
		if errors.IsErrorType(err, errors.ErrDepthExceeded) {
			return err
		}
		s.engine.logger.Debug("command side effect skipped", "command", res.Text, "error", err)
		s.out.Diagnostics = append(s.out.Diagnostics, Diagnostic{Command: res.Text, Err: err})
	}

	for _, child := range out.Children {
		if err := s.fork(index, child); err != nil {
			return err
		}
	}
	for _, body := range out.Scripts {
		s.addScript(index, res.Text, body)
	}
	return nil
}

// fork analyzes a nested command line against a copy of the environment
func (s *Session) fork(parent int, command string) error {
	if s.depth+1 > s.engine.maxDepth {
		return errors.NewDepthError(s.depth+1, s.engine.maxDepth, command)
	}
	child := s.engine.newSession(s.env.Clone(), s.reg, s.depth+1)
	err := child.analyzeLine(command, 0)
	res := child.total
	res.Env = child.env.Snapshot()
	s.out.Children = append(s.out.Children, Child{
		Parent:  parent,
		Command: command,
		Digest:  res.Digest(),
		Result:  res,
	})
	return err
}

func (s *Session) addScript(parent int, command string, body []byte) {
	digest := Digest(body)
	if s.reg.scripts[digest] {
		return
	}
	s.reg.scripts[digest] = true
	s.out.Scripts = append(s.out.Scripts, Script{Parent: parent, Command: command, Digest: digest, Body: body})
}
