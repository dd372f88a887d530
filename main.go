// grokctx selects, packs, and budgets source files as context for a coding
// assistant.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/config"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/engine"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/logging"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

var version = "dev"

// Output formats for command results.
const (
	outputTOON = "toon"
	outputJSON = "json"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return execute(ctx, args, os.Stdin, stdout, stderr)
}

// execute runs the command tree with explicit streams.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

// app holds global flags and the engine built from them.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	root       string
	configPath string
	output     string
	modelName  string
	logLevel   string

	cfg config.Config
	log *zap.Logger
	eng *engine.Engine
}

// skipSetup marks commands that run without an engine.
const skipSetup = "skip-setup"

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "grokctx",
		Short: "Context intelligence for coding assistants",
		Long: `grokctx ranks project files against a task description, packs the best
of them into a model's token budget, tracks that budget across a session,
and adds relevant files automatically as the conversation moves.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup()
		},
	}
	root.SetVersionTemplate("grokctx {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&a.root, "root", "C", ".", "project root")
	pf.StringVar(&a.configPath, "config", "", "config file (default <root>/"+config.FileName+")")
	pf.StringVarP(&a.output, "output", "o", outputTOON, "output format: toon or json")
	pf.StringVarP(&a.modelName, "model", "m", "", "model whose token limit applies (default from config)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		newSuggestCmd(a),
		newOptimizeCmd(a),
		newGraphCmd(a),
		newBudgetCmd(a),
		newAutoCmd(a),
		newSessionCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup resolves the root, loads configuration, and builds the logger and
// engine.
func (a *app) setup() error {
	if a.output != outputTOON && a.output != outputJSON {
		return fmt.Errorf("unknown output %q (want %s or %s)", a.output, outputTOON, outputJSON)
	}

	root, err := filepath.Abs(a.root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	cfg, err := config.Load(root, a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	log, err := logging.NewWriter(cfg.Logging, a.stderr)
	if err != nil {
		return &config.ConfigError{Field: "logging", Message: err.Error()}
	}

	eng, err := engine.New(engine.Options{Root: root, Config: cfg, Log: log})
	if err != nil {
		return err
	}
	if a.modelName != "" {
		if got := eng.SetModel(a.modelName); got != a.modelName {
			log.Warn("unknown model, using default", zap.String("model", a.modelName), zap.String("default", got))
		}
	}

	a.cfg, a.log, a.eng = cfg, log, eng
	return nil
}

// emit writes v as indented JSON, or the TOON rendering from text.
func (a *app) emit(v any, text func() string) error {
	if a.output == outputJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(a.stdout, text())
	return err
}

// warn reports per-file problems on stderr without failing the command.
func (a *app) warn(errs []model.ItemError) {
	for _, ie := range errs {
		_, _ = fmt.Fprintf(a.stderr, "Warning: %s: %v\n", a.rel(ie.Path), ie.Err)
	}
}

func (a *app) rel(path string) string {
	if a.eng == nil {
		return path
	}
	if r, err := filepath.Rel(a.eng.Root(), path); err == nil && filepath.IsLocal(r) {
		return filepath.ToSlash(r)
	}
	return path
}

// isCanceled reports whether err came from an interrupted run.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
