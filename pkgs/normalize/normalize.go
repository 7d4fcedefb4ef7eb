// Package normalize collapses escapes and expands variables in a single
// batch command.
//
// The Normalizer is a pushdown automaton over the bytes of a command. Quote
// runs, caret escapes and %var% / !var! scans nest through an explicit frame
// stack; every frame remembers where its variable token began, so a scan
// interrupted by an escape resumes against the right token. Resolved values
// are normalized again before being spliced in, which is what unwinds
// indirect chains like `set a=%%b%%` followed by `call echo %a%`.
//
// Characters with meaning to the command splitter (| > < " ^ &) keep their
// caret when escaped, so normalizing a normalized command is a no-op.
package normalize

import (
	"log/slog"
	"strings"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/variables"
)

// DefaultScriptName is the text %0 expands to
const DefaultScriptName = "script.bat"

// DefaultMaxDepth bounds re-normalization of resolved values
const DefaultMaxDepth = 32

// Result is a normalized command plus what the automaton observed
type Result struct {
	Text string
	// Exact is Text before surrounding whitespace was trimmed. The
	// interpreter reads it so `set V=43 ` keeps its trailing space.
	Exact string
	// StartsWithVar is set when the command text began with an expansion
	StartsWithVar bool
	// Expansions counts resolved references, including nested ones
	Expansions int
}

// Normalizer expands variables from a lookup. It holds no per-command
// state and is safe to reuse; it is not safe for concurrent use when the
// lookup is being mutated.
type Normalizer struct {
	lookup     variables.Lookup
	foldQuoted bool
	scriptName string
	maxDepth   int
	logger     *slog.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithQuotedDelimiterFolding also turns ',' and ';' into spaces inside
// double quotes.
func WithQuotedDelimiterFolding(enabled bool) Option {
	return func(n *Normalizer) {
		n.foldQuoted = enabled
	}
}

// WithScriptName sets the expansion of %0
func WithScriptName(name string) Option {
	return func(n *Normalizer) {
		n.scriptName = name
	}
}

// WithMaxDepth bounds nested value normalization
func WithMaxDepth(depth int) Option {
	return func(n *Normalizer) {
		n.maxDepth = depth
	}
}

// WithLogger sets the debug logger
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer resolving names through lookup
func New(lookup variables.Lookup, opts ...Option) *Normalizer {
	invariant.NotNil(lookup, "lookup")

	n := &Normalizer{
		lookup:     lookup,
		scriptName: DefaultScriptName,
		maxDepth:   DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logging.Default()
	}
	invariant.Precondition(n.maxDepth > 0, "max depth must be positive, got %d", n.maxDepth)
	return n
}

// Normalize expands and unescapes command. REM comments are returned
// untouched. Surrounding whitespace is trimmed from the result.
//
// The only error is ErrDepthExceeded, returned when resolved values keep
// expanding past the configured depth; the partial text is still returned.
func (n *Normalizer) Normalize(command string) (Result, error) {
	if IsComment(command) {
		return Result{Text: command, Exact: command}, nil
	}
	m := n.newMachine(0)
	m.run(command)
	res := Result{
		Text:          strings.TrimSpace(string(m.out)),
		Exact:         string(m.out),
		StartsWithVar: m.startsWithVar,
		Expansions:    m.expansions,
	}
	if m.err != nil {
		n.logger.Debug("normalization depth exceeded", "command", command, "limit", n.maxDepth)
	}
	return res, m.err
}

// IsComment reports whether command is a REM line: the keyword in any case
// followed by the end of the command or a non-alphanumeric byte.
func IsComment(command string) bool {
	if len(command) < 3 || !strings.EqualFold(command[:3], "rem") {
		return false
	}
	if len(command) == 3 {
		return true
	}
	c := command[3]
	return !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '_' || c >= 0x80)
}

// value normalizes resolved text one level deeper
func (n *Normalizer) value(text string, depth int) (string, int, error) {
	if depth > n.maxDepth {
		return text, 0, errors.NewDepthError(depth, n.maxDepth, text)
	}
	m := n.newMachine(depth)
	m.run(text)
	return string(m.out), m.expansions, m.err
}
