package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/optimize"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
)

// pipeline adapts the engine for the auto-context controller. It runs
// while the session lock is held, so it must not touch the session.
type pipeline struct{ e *Engine }

func (p pipeline) Suggest(ctx context.Context, query string, max int, learned map[string]int) (suggest.Result, error) {
	res, errs, err := p.e.suggest(ctx, query, SuggestOptions{Max: max}, learned)
	if len(errs) > 0 {
		p.e.log.Debug("auto-context scan had item errors", zap.Int("count", len(errs)))
	}
	return res, err
}

// Pack optimizes the picked files and keeps those that fit the remaining
// files budget, in pick order.
func (p pipeline) Pack(ctx context.Context, query string, picks []suggest.Suggestion, strategy optimize.Strategy) ([]model.ContextFile, error) {
	e := p.e
	ranked := make([]relevance.Score, len(picks))
	for i, sg := range picks {
		ranked[i] = sg.Relevance
		ranked[i].Total = sg.Score
	}
	modelName := e.session.model

	res, errs := e.optimizer.Optimize(ctx, optimize.Request{
		Query:      query,
		Ranked:     ranked,
		ModelLimit: e.budget.Limit(modelName),
		MaxFiles:   len(picks),
		Strategy:   strategy,
		Source:     "auto",
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ie := range errs {
		e.log.Warn("auto-context skipped file", zap.String("path", e.rel(ie.Path)), zap.Error(ie.Err))
	}

	var out []model.ContextFile
	total := 0
	for _, f := range res.Files {
		if f.Tokens == 0 {
			continue
		}
		d, err := e.budget.CanAdd(budget.Files, total+f.Tokens, modelName)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			continue
		}
		total += f.Tokens
		out = append(out, f)
	}
	return out, nil
}
