package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/config"
)

const (
	sentinelStart = "<!-- grokctx:start -->"
	sentinelEnd   = "<!-- grokctx:end -->"
)

// newInitCmd implements `grokctx init`, which writes a default config file
// and optionally a grokctx usage section in an agent instructions file.
func newInitCmd(a *app) *cobra.Command {
	var (
		dryRun bool
		force  bool
		doc    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName + " and agent instructions",
		Long: `Write the default configuration to <root>/` + config.FileName + `. An existing
file is left alone unless --force is set.

With --doc, also write a grokctx usage section to that file (for example
CLAUDE.md or AGENTS.md). The section is wrapped in sentinel comments so it
can be updated in place on later runs without touching surrounding content.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(*cobra.Command, []string) error {
			data, err := config.Marshal(config.Default())
			if err != nil {
				return err
			}

			if dryRun {
				_, _ = fmt.Fprint(a.stdout, string(data))
				if doc != "" {
					existing, _ := os.ReadFile(doc)
					_, _ = fmt.Fprint(a.stdout, applySection(string(existing), generateSection()))
				}
				return nil
			}

			path := filepath.Join(a.root, config.FileName)
			if _, err := os.Stat(path); err == nil && !force {
				_, _ = fmt.Fprintf(a.stderr, "%s exists; use --force to overwrite\n", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", path, err)
			} else {
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", path)
			}

			if doc == "" {
				return nil
			}
			existing, _ := os.ReadFile(doc)
			updated := applySection(string(existing), generateSection())
			if err := os.WriteFile(doc, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", doc, err)
			}
			_, _ = fmt.Fprintf(a.stderr, "wrote grokctx section to %s\n", doc)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying files")
	f.BoolVar(&force, "force", false, "overwrite an existing config file")
	f.StringVar(&doc, "doc", "", "agent instructions file to update with a usage section")
	return cmd
}

// generateSection returns the full sentinel-wrapped grokctx documentation block.
func generateSection() string {
	body := `## grokctx: Context Selection

Run ` + "`grokctx`" + ` via the Bash tool before reading code for a task. It ranks
files against the task description and packs the best of them into the
model's token budget.

**Availability:** Check with ` + "`grokctx --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
grokctx suggest "fix the login redirect bug"    # ranked files with reasons
grokctx optimize --content "session expiry"     # packed file content
grokctx optimize -n 5 --include-deps "billing"  # top 5 plus their imports
grokctx graph --cycles                          # dependency graph and cycles
grokctx budget status -m grok-4                 # category capacities
` + "```" + `

**All flags:** ` + "`grokctx --help`" + `

**How to use the output:**

1. **Read suggestions in rank order.** Each row carries a reasoning column;
   start with the first file and its recommended action.

2. **Prefer ` + "`optimize --content`" + ` over reading whole files** when the budget is
   tight. Packed files keep imports, signatures, and the sections that
   mention the task.

3. **Check ` + "`graph`" + ` before editing a hub file.** Files with many dependents
   ripple widely; review their callers.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
