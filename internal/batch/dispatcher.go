package batch

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"git.lost.host/meutraa/bmspreview/internal/render"
)

type Option interface {
	apply(*Dispatcher)
}

type loggerOption struct {
	logger *slog.Logger
}

func (o loggerOption) apply(d *Dispatcher) {
	d.logger = o.logger
}

func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

// Dispatcher renders charts on a pool of workers.
type Dispatcher struct {
	renderer render.Renderer
	workers  int
	logger   *slog.Logger
}

// NewDispatcher sizes the pool to the CPU count when workers < 1.
func NewDispatcher(r render.Renderer, workers int, opts ...Option) *Dispatcher {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	d := &Dispatcher{renderer: r, workers: workers, logger: slog.Default()}
	for _, o := range opts {
		o.apply(d)
	}
	return d
}

// Run renders every path and yields one result per path in input order.
// Once ctx is cancelled no new chart is started, charts in flight finish,
// and the rest are reported as aborted. Stopping the iteration early
// cancels the same way.
func (d *Dispatcher) Run(ctx context.Context, paths []string) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		slots := make([]chan Result, len(paths))
		for i := range slots {
			slots[i] = make(chan Result, 1)
		}

		// The first chart to claim an output keeps it
		owners := map[string]string{}
		shared := make([]string, len(paths))
		for i, p := range paths {
			target := d.renderer.Target(p)
			if owner, ok := owners[target]; ok {
				shared[i] = owner
				continue
			}
			owners[target] = p
		}

		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < d.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					slots[i] <- d.process(ctx, paths[i])
				}
			}()
		}
		defer wg.Wait()

		go func() {
			defer close(jobs)
			for i, p := range paths {
				if shared[i] != "" {
					slots[i] <- Result{
						Path:    p,
						Outcome: Skipped,
						Message: "output shared with " + shared[i],
						Output:  d.renderer.Target(p),
					}
					continue
				}
				if nil != ctx.Err() {
					slots[i] <- aborted(p, ctx.Err())
					continue
				}
				select {
				case jobs <- i:
				case <-ctx.Done():
					slots[i] <- aborted(p, ctx.Err())
				}
			}
		}()

		for i := range paths {
			if !yield(<-slots[i]) {
				cancel()
				return
			}
		}
	}
}

func aborted(path string, err error) Result {
	return Result{Path: path, Outcome: Failure, Kind: Aborted, Message: err.Error()}
}

// process runs one chart, recovering from any panic in the pipeline.
func (d *Dispatcher) process(ctx context.Context, path string) (result Result) {
	result.Path = path
	defer func() {
		if r := recover(); nil != r {
			d.logger.ErrorContext(ctx, "pipeline panic", "chart", path, "panic", r)
			result.Outcome = Failure
			result.Kind = Internal
			result.Message = fmt.Sprintf("panic: %v", r)
		}
	}()

	report, err := d.renderer.Render(ctx, path)
	if nil != err {
		d.logger.WarnContext(ctx, "unable to render", "chart", path, "error", err)
		result.Outcome = Failure
		result.Kind = Classify(err)
		result.Message = err.Error()
		return result
	}

	result.Output = report.Output
	result.Warnings = report.Warnings
	if report.Skipped {
		result.Outcome = Skipped
		result.Message = report.Reason
		return result
	}
	result.Outcome = Success
	return result
}
