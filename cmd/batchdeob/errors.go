package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aledsdavies/batchdeob/pkgs/errors"
)

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Message string
	Details string // Additional context
	Hint    string // How to fix it
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(e.Details)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// FormatError formats an error for CLI output with colors
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	var cliErr *CLIError
	var deobErr *errors.DeobError
	switch {
	case stderrors.As(err, &cliErr):
		formatCLIError(w, cliErr, useColor)
	case stderrors.As(err, &deobErr):
		formatDeobError(w, deobErr, useColor)
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", styleError, useColor), err.Error())
	}
}

// formatDeobError prints the message, then the context keys in order and
// the cause
func formatDeobError(w io.Writer, err *errors.DeobError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s [%s]\n", Colorize("Error: ", styleError, useColor), err.Message, err.Type)

	keys := make([]string, 0, len(err.Context))
	for k := range err.Context {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s: %v\n", k, err.Context[k])
	}
	if err.Cause != nil {
		_, _ = fmt.Fprintf(w, "  cause: %v\n", err.Cause)
	}
}

// formatCLIError formats CLI errors
func formatCLIError(w io.Writer, err *CLIError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", styleError, useColor), err.Message)

	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", err.Details)
	}

	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", styleHint, useColor), err.Hint)
	}
}
