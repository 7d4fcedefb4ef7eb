package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/config"
	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		FormatError(os.Stderr, err, ShouldUseColor(os.Stderr, false))
		os.Exit(1)
	}
}

// app is the state shared by the subcommands once flags are parsed
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	debug      bool
	noColor    bool

	cfg      *config.Config
	logger   *slog.Logger
	useColor bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "batchdeob",
		Short:         "Statically deobfuscate Windows batch scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug output")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.StringP("format", "o", "", "Report format: text, json, yaml or cbor")
	flags.String("out", "", "Directory to write deobfuscated artifacts to")
	flags.String("profile", "", "Starting environment: synthetic or host")
	flags.String("script-name", "", "Text that %0 expands to")
	flags.Int("max-depth", 0, "Recursion cap for nested payloads")
	flags.Int("threshold", 0, "Command count from which a one-liner is complex")
	flags.Bool("fold-quoted", false, "Also fold ',' and ';' inside quotes")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newWatchCmd(a),
		newInteractiveCmd(a),
		newTraitsCmd(a),
	)
	return rootCmd
}

// setup loads the configuration and layers the changed flags over it
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("profile") {
		cfg.Environment.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("script-name") {
		cfg.ScriptName, _ = flags.GetString("script-name")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("threshold") {
		cfg.ComplexOneLinerThreshold, _ = flags.GetInt("threshold")
	}
	if flags.Changed("fold-quoted") {
		cfg.FoldQuotedDelimiters, _ = flags.GetBool("fold-quoted")
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(a.stderr, cfg.Level())
	a.useColor = ShouldUseColor(a.stdout, a.noColor)
	return nil
}

// engine builds an engine from the active configuration
func (a *app) engine() *engine.Engine {
	return engine.New(a.cfg.EngineOptions(os.Environ(), a.logger)...)
}

func (a *app) format() report.Format {
	return a.cfg.Format()
}

// exitError reports that some inputs failed after all were processed
type exitError struct {
	failed int
	total  int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("%d of %d inputs failed", e.failed, e.total)
}
