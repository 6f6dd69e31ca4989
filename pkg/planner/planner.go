package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

// Planner lists a source and a destination and derives the ordered action
// plan that makes the destination mirror the source.
type Planner struct {
	source storage.Provider
	dest   storage.Provider
	opts   Options
}

func New(source, dest storage.Provider, opts Options) *Planner {
	if opts.Policy == nil {
		opts.Policy = Fresh
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Planner{
		source: source,
		dest:   dest,
		opts:   opts,
	}
}

// Plan fetches both listings once and returns the optimized, ordered plan.
// A listing failure on either side aborts before any plan is produced.
func (p *Planner) Plan(ctx context.Context) ([]Action, error) {
	log := p.opts.Logger

	if err := ValidatePatterns(p.opts.Excludes); err != nil {
		return nil, err
	}

	source, err := p.list(ctx, p.source, "source")
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dest, err := p.list(ctx, p.dest, "destination")
	if err != nil {
		return nil, err
	}

	actions := Compute(source, dest, p.opts.Policy)
	if p.opts.NoDelete {
		actions = KeepOrphans(actions)
	}
	actions = Order(Optimize(actions))

	s := Summarize(actions)
	log.Debug("plan computed",
		"source", len(source),
		"destination", len(dest),
		"add", s.Add,
		"overwrite", s.Overwrite,
		"delete", s.Delete,
		"keep", s.Keep,
	)

	return actions, nil
}

func (p *Planner) list(ctx context.Context, provider storage.Provider, side string) ([]storage.Record, error) {
	records, err := provider.List(ctx, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to list %s: %w", side, err)
	}

	filtered, err := Filter(records, p.opts.Excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to apply exclude patterns: %w", err)
	}

	p.opts.Logger.Debug("listed", "side", side, "objects", len(records), "excluded", len(records)-len(filtered))
	return filtered, nil
}
