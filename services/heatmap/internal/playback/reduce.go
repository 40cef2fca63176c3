package playback

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultFanIn is the number of operands merged by one Combine call in Reduce.
const DefaultFanIn = 16

// ReduceOptions tunes the shape of a reduction tree.
type ReduceOptions struct {
	// Budget is the bucket budget of every Combine call.
	Budget int
	// FanIn is the number of operands per Combine call (minimum 2).
	FanIn int
	// Workers bounds the number of concurrent Combine calls. Zero means GOMAXPROCS.
	Workers int
}

func (o ReduceOptions) withDefaults() ReduceOptions {
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.FanIn < 2 {
		o.FanIn = DefaultFanIn
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Reduce combines ops into a single Histogram by repeatedly combining groups of
// FanIn operands until one remains. Groups on the same level are combined
// concurrently. The only error is a cancelled context.
func Reduce(ctx context.Context, ops []Operand, opts ReduceOptions) (Histogram, error) {
	opts = opts.withDefaults()
	if len(ops) == 0 {
		return Histogram{}, ctx.Err()
	}

	level := ops
	for {
		groups := (len(level) + opts.FanIn - 1) / opts.FanIn
		next := make([]Operand, groups)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i := 0; i < groups; i++ {
			lo := i * opts.FanIn
			hi := min(lo+opts.FanIn, len(level))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				next[i] = Combine(level[lo:hi], opts.Budget)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Histogram{}, err
		}
		if groups == 1 {
			return next[0].(Histogram), nil
		}
		level = next
	}
}

// CoalesceAll coalesces every record concurrently and returns the non-empty
// sequences as leaf operands, in record order.
func CoalesceAll(ctx context.Context, records []Record, workers int) ([]Operand, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seqs := make([]Sequence, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seqs[i] = Coalesce(records[i].Actions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Operand, 0, len(seqs))
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}
