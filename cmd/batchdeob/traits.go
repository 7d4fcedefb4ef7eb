package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/batchdeob/pkgs/config"
	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

func newTraitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "traits [name]",
		Short: "Describe the traits an analysis can report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, info := range traits.Catalog {
					_, _ = fmt.Fprintf(a.stdout, "%-18s %s\n", Colorize(info.Name, styleTrait, a.useColor), info.Description)
				}
				return nil
			}

			info, ok := traits.Lookup(args[0])
			if !ok {
				e := &CLIError{Message: fmt.Sprintf("unknown trait %q", args[0])}
				if hint := config.Suggest(args[0], traits.Names()); hint != "" {
					e.Hint = fmt.Sprintf("did you mean %q?", hint)
				}
				return e
			}
			_, _ = fmt.Fprintf(a.stdout, "%s: %s\n", Colorize(info.Name, styleTrait, a.useColor), info.Description)
			return nil
		},
	}
}
