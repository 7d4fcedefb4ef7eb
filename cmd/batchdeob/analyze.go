package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/batchdeob/pkgs/artifacts"
	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/report"
	"github.com/aledsdavies/batchdeob/pkgs/source"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "analyze [file|dir|-]...",
		Short: "Deobfuscate scripts and report what they would do",
		Long: `Analyze reads each script, normalizes every command and prints the result.
Directories are searched for files matching --pattern. Without arguments, or
with "-", the script is read from stdin. Files starting with a zstd frame are
decompressed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{source.Stdin}
			}
			filter, err := source.NewFilter(pattern)
			if err != nil {
				return err
			}
			paths, err := source.Expand(args, filter)
			if err != nil {
				return err
			}
			return a.analyzeAll(cmd.Context(), paths)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", source.DefaultPattern, "Glob selecting scripts inside directories")
	return cmd
}

func (a *app) openStore() (*artifacts.Store, error) {
	if a.cfg.Output.Dir == "" {
		return nil, nil
	}
	return artifacts.Open(a.cfg.Output.Dir, artifacts.WithLogger(a.logger))
}

// analyzeAll analyzes every path, reporting failures as it goes. One input
// failing does not stop the others.
func (a *app) analyzeAll(ctx context.Context, paths []string) error {
	e := a.engine()
	store, err := a.openStore()
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		if err := a.analyzeOne(ctx, e, store, path); err != nil {
			failed++
			FormatError(a.stderr, err, a.useColor)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		return &exitError{failed: failed, total: len(paths)}
	}
	return nil
}

// analyzeOne prints the report of one input and stores its artifacts. A
// hard analysis error is returned after the partial result was written.
func (a *app) analyzeOne(ctx context.Context, e *engine.Engine, store *artifacts.Store, path string) error {
	in, err := source.Open(path, a.stdin)
	if err != nil {
		return err
	}
	defer in.Close()

	res, analysisErr := e.Analyze(ctx, in)
	doc := report.Build(res, analysisErr, report.WithSource(in.Name))
	if err := DisplayReport(a.stdout, doc, a.format(), a.useColor); err != nil {
		return err
	}

	if store != nil {
		written, err := store.Save(res)
		if err != nil {
			return err
		}
		rep, err := store.SaveReport(doc, a.format())
		if err != nil {
			return err
		}
		for _, art := range append(written, rep) {
			a.logger.Info("artifact", "kind", art.Kind.String(), "path", art.Path, "existed", art.Existed)
		}
	}
	return analysisErr
}
