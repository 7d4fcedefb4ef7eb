package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/batchdeob/pkgs/source"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		pattern  string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Analyze scripts as they are written into directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := source.NewFilter(pattern)
			if err != nil {
				return err
			}
			w, err := source.NewWatcher(filter,
				source.WithDebounce(debounce),
				source.WithWatchLogger(a.logger),
			)
			if err != nil {
				return err
			}
			for _, dir := range args {
				if err := w.Add(dir); err != nil {
					_ = w.Close()
					return err
				}
			}

			e := a.engine()
			store, err := a.openStore()
			if err != nil {
				_ = w.Close()
				return err
			}
			ctx := cmd.Context()
			_, _ = fmt.Fprintf(a.stderr, "%s\n",
				Colorize(fmt.Sprintf("Watching %d directories for %s", len(args), filter), styleSource, a.useColor))

			return w.Run(ctx, func(path string) {
				if err := a.analyzeOne(ctx, e, store, path); err != nil {
					FormatError(a.stderr, err, a.useColor)
				}
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", source.DefaultPattern, "Glob selecting scripts to analyze")
	cmd.Flags().DurationVar(&debounce, "debounce", source.DefaultDebounce, "Quiet period before a changed file is analyzed")
	return cmd
}
