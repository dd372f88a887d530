package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/engine"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/toon"
)

func newSuggestCmd(a *app) *cobra.Command {
	var opts engine.SuggestOptions
	cmd := &cobra.Command{
		Use:   "suggest QUERY...",
		Short: "Suggest the files to read for a task",
		Long: `Classify the task the query describes, rank project files for it, and
explain each suggestion. The number of suggestions depends on the task type
unless --max is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, errs, err := a.eng.SuggestFiles(cmd.Context(), strings.Join(args, " "), opts)
			a.warn(errs)
			if err != nil {
				return err
			}
			return a.emit(res, func() string { return toon.Suggestions(res) })
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.Roots, "path", nil, "restrict the scan to these files or directories")
	f.IntVarP(&opts.Max, "max", "n", 0, "maximum number of suggestions")
	f.BoolVar(&opts.IncludeWeak, "weak", false, "include files matched only by type and recency")
	return cmd
}

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		opts    engine.OptimizeOptions
		content bool
	)
	cmd := &cobra.Command{
		Use:   "optimize QUERY...",
		Short: "Pack the most relevant files into the model's context share",
		Long: `Score every file against the query, select the best of them with the
chosen strategy, and cut each one down to its share of the token budget,
keeping imports, signatures, and the sections that mention the query.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Model = a.modelName
			res, errs, err := a.eng.OptimizeContext(cmd.Context(), strings.Join(args, " "), opts)
			a.warn(errs)
			if err != nil {
				return err
			}
			return a.emit(res, func() string { return toon.Context(a.eng.Root(), res, content) })
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.Roots, "path", nil, "restrict the scan to these files or directories")
	f.IntVarP(&opts.MaxFiles, "max-files", "n", 0, "maximum number of files (default from config)")
	f.StringVar(&opts.Strategy, "strategy", "", "selection strategy: depth-first or diversity-first")
	f.Float64Var(&opts.MinScore, "min-score", 0, "drop files scoring below this")
	f.BoolVar(&opts.IncludeDependencies, "include-deps", false, "pull in direct imports of the top files")
	f.BoolVar(&content, "content", false, "print the packed file content after the table")
	return cmd
}

func newGraphCmd(a *app) *cobra.Command {
	var (
		format   string
		cycles   bool
		absolute bool
		top      int
	)
	cmd := &cobra.Command{
		Use:   "graph [PATH...]",
		Short: "Build and export the file dependency graph",
		Long: `Parse source files under the given paths (default: the project root) and
link their imports. --format exports json, dot, or csv; without it the graph
is printed in the global output format with per-file centrality. --top keeps
the most central files and the edges among them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, errs, err := a.eng.BuildDependencyGraph(cmd.Context(), args)
			a.warn(errs)
			if err != nil {
				return err
			}
			g = g.Top(top)
			if !absolute {
				g = g.Relative(a.eng.Root())
			}
			if format == "" && a.output == outputJSON {
				format = string(graph.FormatJSON)
			}
			if format != "" {
				f, err := graph.ParseFormat(format)
				if err != nil {
					return err
				}
				return g.Export(a.stdout, f)
			}
			_, err = fmt.Fprintln(a.stdout, toon.Graph(g, cycles))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "", "export format: json, dot, or csv")
	f.BoolVar(&cycles, "cycles", false, "list import cycles")
	f.BoolVar(&absolute, "absolute", false, "print absolute paths")
	f.IntVarP(&top, "top", "n", 0, "keep only the n most central files")
	return cmd
}

func newBudgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect token budgets",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show category capacities for the model",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			st := a.eng.BudgetStatus(a.modelName)
			return a.emit(st, func() string { return toon.Budget(st) })
		},
	}

	check := &cobra.Command{
		Use:   "check CATEGORY TOKENS",
		Short: "Check whether tokens fit in a budget category",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("tokens must be an integer: %w", err)
			}
			d, err := a.eng.CanAddToBudget(args[0], n, a.modelName)
			if err != nil {
				return err
			}
			return a.emit(d, func() string { return toon.Decision(d) })
		},
	}

	var (
		transcript string
		prune      string
	)
	analyze := &cobra.Command{
		Use:   "analyze [FILE...]",
		Short: "Measure a transcript and files against the model's limit",
		Long: `Load a JSON transcript ([{"role": "user", "content": "..."}, ...]) and the
given files into a session, then report utilization. --prune evicts files
with the named strategy afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcript != "" {
				msgs, err := readTranscript(transcript)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					a.eng.AddMessage(m.Role, m.Content)
				}
			}
			for _, p := range args {
				f, d, err := a.eng.AddFile(cmd.Context(), p, false)
				if err != nil {
					return err
				}
				if !d.Allowed {
					_, _ = fmt.Fprintf(a.stderr, "Warning: %s: over the files budget by %d tokens\n", a.rel(f.Path), d.OverBy)
				}
			}

			an := a.eng.AnalyzeSession()
			if prune == "" {
				return a.emit(an, func() string { return toon.Analysis(a.eng.Root(), an) })
			}
			res, err := a.eng.PruneContext(prune)
			if err != nil {
				return err
			}
			out := struct {
				Analysis budget.Analysis    `json:"analysis"`
				Prune    budget.PruneResult `json:"prune"`
			}{an, res}
			return a.emit(out, func() string {
				return toon.Analysis(a.eng.Root(), an) + "\n" + toon.Prune(a.eng.Root(), res)
			})
		},
	}
	analyze.Flags().StringVar(&transcript, "transcript", "", "JSON transcript file")
	analyze.Flags().StringVar(&prune, "prune", "", "prune with this strategy: aggressive, balanced, or conservative")

	cmd.AddCommand(status, check, analyze)
	return cmd
}

func readTranscript(path string) ([]model.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decoding transcript %s: %w", path, err)
	}
	for i, m := range msgs {
		switch m.Role {
		case model.RoleSystem, model.RoleUser, model.RoleAssistant:
		default:
			return nil, fmt.Errorf("transcript message %d: unknown role %q", i, m.Role)
		}
	}
	return msgs, nil
}

func newAutoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auto UTTERANCE...",
		Short: "Show which files auto-context would add for an utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.eng.AnalyzeAndAutoAdd(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return a.emit(res, func() string { return toon.AutoContext(a.eng.Root(), res) })
		},
	}
}
