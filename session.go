package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/toon"
)

const sessionHelp = `Lines starting with / are commands; anything else is a user message,
which may add files automatically.

  /add PATH...        add files to context
  /pin PATH...        add files and protect them from pruning
  /drop PATH...       remove files from context
  /assistant TEXT     record an assistant reply
  /files              list the file context
  /status             show budget usage
  /analyze            measure the session against the model limit
  /prune [STRATEGY]   evict files (default balanced)
  /model NAME         switch model
  /auto on|off        toggle auto-context
  /patterns           show learned query patterns
  /reset              start a new session
  /quit               exit`

func newSessionCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run an interactive context session on stdin",
		Long:  "Read a conversation from stdin, one message or command per line.\n\n" + sessionHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if watch {
				w, err := a.eng.Watch(ctx)
				if err != nil {
					return err
				}
				defer func() {
					cancel()
					<-w.Done()
				}()
			}
			_, _ = fmt.Fprintf(a.stdout, "session %s (model %s)\n", a.eng.Session().ID(), a.eng.Session().Model())
			return a.repl(ctx, a.stdin)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh cached files as they change on disk")
	return cmd
}

// repl processes lines until EOF, /quit, or cancellation. Command errors are
// printed and the session continues.
func (a *app) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var (
			quit bool
			err  error
		)
		if strings.HasPrefix(line, "/") {
			quit, err = a.command(ctx, line)
		} else {
			err = a.message(ctx, line)
		}
		if err != nil {
			if isCanceled(err) {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

func (a *app) message(ctx context.Context, line string) error {
	if !a.eng.AddMessage(model.RoleUser, line) {
		_, _ = fmt.Fprintln(a.stderr, "Warning: conversation exceeds its budget; consider /prune or /reset")
	}
	res, err := a.eng.AnalyzeAndAutoAdd(ctx, line)
	if err != nil {
		return err
	}
	return a.emit(res, func() string { return toon.AutoContext(a.eng.Root(), res) })
}

func (a *app) command(ctx context.Context, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)
	e := a.eng

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		_, err := fmt.Fprintln(a.stdout, sessionHelp)
		return false, err
	case "/add", "/pin":
		if len(args) == 0 {
			return false, fmt.Errorf("%s needs at least one path", name)
		}
		for _, p := range args {
			f, d, err := e.AddFile(ctx, p, name == "/pin")
			if err != nil {
				return false, err
			}
			if d.Allowed {
				_, _ = fmt.Fprintf(a.stdout, "added %s (%d tokens, %d left in files)\n", a.rel(f.Path), f.Tokens, d.Remaining)
			} else {
				_, _ = fmt.Fprintf(a.stdout, "rejected %s: over the files budget by %d tokens\n", a.rel(f.Path), d.OverBy)
			}
		}
		return false, nil
	case "/drop":
		if len(args) == 0 {
			return false, fmt.Errorf("/drop needs at least one path")
		}
		for _, p := range args {
			if e.RemoveFile(p) {
				_, _ = fmt.Fprintf(a.stdout, "removed %s\n", p)
			} else {
				_, _ = fmt.Fprintf(a.stdout, "not in context: %s\n", p)
			}
		}
		return false, nil
	case "/assistant":
		if rest == "" {
			return false, fmt.Errorf("/assistant needs text")
		}
		e.AddMessage(model.RoleAssistant, rest)
		return false, nil
	case "/files":
		files := e.Session().Files()
		return false, a.emit(files, func() string { return toon.Files(e.Root(), files) })
	case "/status":
		st := e.BudgetStatus("")
		return false, a.emit(st, func() string { return toon.Budget(st) })
	case "/analyze":
		an := e.AnalyzeSession()
		return false, a.emit(an, func() string { return toon.Analysis(e.Root(), an) })
	case "/prune":
		strategy := budget.Balanced
		if len(args) > 0 {
			strategy = args[0]
		}
		res, err := e.PruneContext(strategy)
		if err != nil {
			return false, err
		}
		return false, a.emit(res, func() string { return toon.Prune(e.Root(), res) })
	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("/model needs one name")
		}
		got := e.SetModel(args[0])
		_, err := fmt.Fprintf(a.stdout, "model %s (limit %d)\n", got, e.Budget().Limit(got))
		return false, err
	case "/auto":
		switch rest {
		case "on", "off":
			e.AutoContext().SetEnabled(rest == "on")
			_, err := fmt.Fprintf(a.stdout, "auto-context %s\n", rest)
			return false, err
		}
		return false, fmt.Errorf("/auto takes on or off")
	case "/patterns":
		pats := e.AutoContext().Patterns()
		return false, a.emit(pats, func() string { return toon.Patterns(pats) })
	case "/reset":
		e.Reset()
		_, err := fmt.Fprintf(a.stdout, "session %s\n", e.Session().ID())
		return false, err
	}
	return false, fmt.Errorf("unknown command %q (try /help)", name)
}
