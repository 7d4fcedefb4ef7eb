package main

import (
	"bytes"
	"io"
	"strings"

	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/report"
)

// DisplayReport writes doc in format. Text reports get their markers and
// summary lines styled when color is on.
func DisplayReport(w io.Writer, doc *report.Document, format report.Format, useColor bool) error {
	if format != report.FormatText || !useColor {
		return report.Write(w, doc, format)
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, doc, format); err != nil {
		return err
	}
	return writeStyled(w, buf.String())
}

// DisplayTree writes the command tree of one result
func DisplayTree(w io.Writer, res *engine.Result, useColor bool) error {
	text := report.Tree(res)
	if !useColor {
		_, err := io.WriteString(w, text)
		return err
	}
	return writeStyled(w, text)
}

func writeStyled(w io.Writer, text string) error {
	lines := strings.SplitAfter(text, "\n")
	var out strings.Builder
	for _, line := range lines {
		body := strings.TrimSuffix(line, "\n")
		out.WriteString(styleLine(body))
		if len(body) < len(line) {
			out.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, out.String())
	return err
}

func styleLine(line string) string {
	trimmed := strings.TrimLeft(line, "\t")
	indent := line[:len(line)-len(trimmed)]
	switch {
	case trimmed == "[CHILD CMD]", trimmed == "[END OF CHILD CMD]", strings.HasPrefix(trimmed, "[SCRIPT "):
		return indent + Colorize(trimmed, styleMarker, true)
	case strings.HasPrefix(line, "# diagnostic:"), strings.HasPrefix(line, "# error:"):
		return Colorize(line, styleError, true)
	case strings.HasPrefix(line, "# traits:"):
		return Colorize(line, styleTrait, true)
	case strings.HasPrefix(line, "# "):
		return Colorize(line, styleSource, true)
	}
	return line
}
