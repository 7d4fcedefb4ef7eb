package lexer

import (
	"bufio"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineReader yields logical lines from script text.
//
// A physical line whose last byte before the terminator is '^' continues
// onto the next physical line; the caret is kept and the pieces are joined
// with a single '\n' so the command stages can see the escaped line break.
// CRLF and LF terminators are both accepted and removed from emitted lines.
//
// The input is decoded before splitting: a UTF-16 or UTF-8 byte order mark
// selects the decoder, anything else is read as UTF-8, and invalid bytes
// are replaced with U+FFFD rather than failing.
type LineReader struct {
	r    *bufio.Reader
	line string
	err  error
	done bool

	physical int
}

// NewLineReader wraps r with BOM-aware lossy decoding
func NewLineReader(r io.Reader) *LineReader {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return &LineReader{r: bufio.NewReader(transform.NewReader(r, dec))}
}

// Scan advances to the next logical line
func (lr *LineReader) Scan() bool {
	if lr.done {
		return false
	}

	var acc strings.Builder
	pending := false
	for {
		raw, err := lr.r.ReadString('\n')
		if raw != "" {
			lr.physical++
			line := trimTerminator(raw)
			terminated := len(line) < len(raw)
			if terminated && strings.HasSuffix(line, "^") {
				acc.WriteString(line)
				acc.WriteByte('\n')
				pending = true
			} else {
				acc.WriteString(line)
				lr.line = acc.String()
				if err != nil {
					lr.finish(err)
				}
				return true
			}
		}
		if err != nil {
			lr.finish(err)
			if pending {
				lr.line = acc.String()
				return true
			}
			return false
		}
	}
}

func (lr *LineReader) finish(err error) {
	lr.done = true
	if err != io.EOF {
		lr.err = err
	}
}

// Text returns the most recent logical line
func (lr *LineReader) Text() string {
	return lr.line
}

// Err returns the first non-EOF read error
func (lr *LineReader) Err() error {
	return lr.err
}

// PhysicalLines reports how many physical lines have been consumed
func (lr *LineReader) PhysicalLines() int {
	return lr.physical
}

// Lines returns a single-pass sequence over the remaining logical lines.
// Check Err after the sequence ends.
func (lr *LineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for lr.Scan() {
			if !yield(lr.Text()) {
				return
			}
		}
	}
}

func trimTerminator(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// LogicalLines reads all logical lines from r
func LogicalLines(r io.Reader) ([]string, error) {
	lr := NewLineReader(r)
	var lines []string
	for line := range lr.Lines() {
		lines = append(lines, line)
	}
	return lines, lr.Err()
}
