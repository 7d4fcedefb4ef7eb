package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aledsdavies/batchdeob/pkgs/lexer"
)

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Deobfuscate commands typed on stdin, one line at a time",
		Long: `Interactive keeps one session open: variables set on one line are visible
on the next. Nested command lines are printed indented under [CHILD CMD].`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.engine().NewSession()
			prompt := isTerminal(a.stdin)
			if prompt {
				_, _ = fmt.Fprintln(a.stderr, "Please enter an obfuscated batch command:")
			}

			lines := lexer.NewLineReader(a.stdin)
			for lines.Scan() {
				res, err := s.AnalyzeLogicalLine(lines.Text())
				if werr := DisplayTree(a.stdout, res, a.useColor); werr != nil {
					return werr
				}
				if err != nil {
					FormatError(a.stderr, err, a.useColor)
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
			return lines.Err()
		},
	}
}

func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
