package datalake

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultPoolSize = 10

type outcome struct {
	ok  bool
	err error
}

// runInPool runs process for every item on at most min(poolSize, len(items))
// goroutines and waits for all of them. A failing item never stops its
// siblings. Outcomes are returned in input order.
func runInPool[I any](ctx context.Context, poolSize int, itemTimeout time.Duration, items []I, process func(context.Context, I) (bool, error)) []outcome {
	if len(items) == 0 {
		return nil
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	outcomes := make([]outcome, len(items))
	var g errgroup.Group
	g.SetLimit(min(poolSize, len(items)))

	for i, item := range items {
		g.Go(func() error {
			itemCtx := ctx
			if itemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, itemTimeout)
				defer cancel()
			}
			ok, err := process(itemCtx, item)
			outcomes[i] = outcome{ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
