package exec

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ovalle15/matchengine-go/internal/match"
	"github.com/ovalle15/matchengine-go/internal/matcherr"
)

// Task is one translated, id-injected path queued for execution, carrying
// enough provenance to build the TrialMatch records its results produce.
type Task struct {
	Trial      match.Trial
	ClauseData match.MatchClauseData
	Path       match.Path
	Queries    []match.MultiCollectionQuery
}

// Outcome is one task's settled result: either a (possibly empty) set of
// raw results, or a terminal error.
type Outcome struct {
	Task    Task
	Results []match.RawQueryResult
	Err     error
}

// Pool is the bounded worker pool of spec §4.8: N = min(len(tasks),
// Workers) concurrent executors drain the task list and record each
// outcome in a slice indexed like the task list, sharing one Executor (and
// therefore one Cache) across workers.
type Pool struct {
	Executor *Executor
	Workers  int
}

// Run feeds tasks to the pool and returns every Outcome once all tasks
// have settled. A task that fails with DBTransient is retried once in
// place before its error is surfaced, per spec §7's DBTransient policy;
// every other error kind is surfaced on the first failure. Cancellation
// of ctx drains remaining tasks without emitting partial results.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]Outcome, error) {
	limit := p.Workers
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	if limit == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	outcomes := make([]Outcome, len(tasks))
	var mu sync.Mutex

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			outcome := p.runOne(gctx, task)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			if outcome.Err != nil && !matcherr.Is(outcome.Err, matcherr.CurationMalformed) {
				return outcome.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (p *Pool) runOne(ctx context.Context, task Task) Outcome {
	results, err := p.Executor.Run(ctx, task.Queries)
	if err != nil && matcherr.Is(err, matcherr.DBTransient) {
		results, err = p.Executor.Run(ctx, task.Queries)
	}
	return Outcome{Task: task, Results: results, Err: err}
}
