package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/mirrorsync/pkg/planner"
	"github.com/yuya-takeyama/mirrorsync/pkg/pool"
	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
	"github.com/yuya-takeyama/mirrorsync/pkg/transfer"
)

const (
	DefaultConcurrency      = 4
	DefaultStagingThreshold = 1 << 20
	DefaultRangeThreshold   = 1 << 20
)

type Options struct {
	// Concurrency is the number of actions in flight.
	Concurrency int
	// RangeConcurrency is the number of ranges in flight per object. Range
	// transfer is used only when it is above 1.
	RangeConcurrency int
	// Payloads up to StagingThreshold bytes are staged in memory.
	StagingThreshold int64
	// Objects above RangeThreshold bytes are read as parallel ranges when
	// the source supports it.
	RangeThreshold int64
	ChunkSize      int64

	// Progress is called from worker goroutines; it must be safe for
	// concurrent use.
	Progress func(Event)
	Logger   *slog.Logger

	// TempFs and TempDir hold payloads above StagingThreshold.
	TempFs  afero.Fs
	TempDir string
}

func DefaultOptions() Options {
	return Options{
		Concurrency:      DefaultConcurrency,
		RangeConcurrency: transfer.DefaultConcurrency,
		StagingThreshold: DefaultStagingThreshold,
		RangeThreshold:   DefaultRangeThreshold,
		ChunkSize:        transfer.DefaultChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RangeConcurrency <= 0 {
		o.RangeConcurrency = transfer.DefaultConcurrency
	}
	if o.StagingThreshold < 0 {
		o.StagingThreshold = DefaultStagingThreshold
	}
	if o.RangeThreshold < 0 {
		o.RangeThreshold = DefaultRangeThreshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = transfer.DefaultChunkSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.TempFs == nil {
		o.TempFs = afero.NewOsFs()
	}
	return o
}

// Executor applies an action plan from a source to a destination.
type Executor struct {
	source storage.Provider
	dest   storage.Provider
	opts   Options
}

func New(source, dest storage.Provider, opts Options) *Executor {
	return &Executor{
		source: source,
		dest:   dest,
		opts:   opts.withDefaults(),
	}
}

// Execute runs the actions in order on Concurrency slots. ctx is checked
// before each action starts; actions already started always finish. The run
// stops scheduling after the first failed action and reports it once the
// in-flight actions have drained.
func (e *Executor) Execute(ctx context.Context, actions []planner.Action) *Outcome {
	log := e.opts.Logger
	start := time.Now()

	results := make([]Result, len(actions))
	started := make([]bool, len(actions))

	err := pool.New(e.opts.Concurrency).Run(ctx, len(actions), func(ctx context.Context, i int) error {
		a := actions[i]
		started[i] = true

		e.notify(Event{Action: a, Phase: EventStarted})
		log.Debug("action started", "op", a.Operation, "key", a.Record.Key, "size", a.Record.Size)

		t0 := time.Now()
		n, err := e.run(ctx, a)
		elapsed := time.Since(t0)

		cancelled := err != nil && isCancellation(ctx, err)
		results[i] = Result{Action: a, Err: err, Cancelled: cancelled, Elapsed: elapsed, Bytes: n}

		ev := Event{Action: a, Phase: EventFinished, Elapsed: elapsed, Bytes: n, Err: err, Cancelled: cancelled}
		if n > 0 && elapsed > 0 {
			ev.Throughput = float64(n) / elapsed.Seconds()
		}
		e.notify(ev)

		if err != nil {
			if !cancelled {
				log.Error("action failed", "op", a.Operation, "key", a.Record.Key, "error", err)
			}
			return err
		}
		log.Debug("action finished", "op", a.Operation, "key", a.Record.Key, "elapsed", elapsed)
		return nil
	})

	if err == nil && len(actions) == 0 {
		err = ctx.Err()
	}

	outcome := &Outcome{Elapsed: time.Since(start)}
	var failure error
	for i, r := range results {
		if !started[i] {
			continue
		}
		outcome.Results = append(outcome.Results, r)
		if r.Cancelled {
			outcome.Interrupted++
			continue
		}
		if r.Err != nil {
			outcome.Failed++
			if failure == nil {
				failure = r.Err
			}
			continue
		}
		switch r.Action.Operation {
		case planner.OpAdd:
			outcome.Added++
		case planner.OpOverwrite:
			outcome.Overwritten++
		case planner.OpDelete:
			outcome.Deleted++
		case planner.OpKeep:
			outcome.Kept++
		}
		outcome.Bytes += r.Bytes
	}

	switch {
	case failure != nil:
		outcome.Status = StatusFailed
		outcome.err = failure
	case err == nil:
		outcome.Status = StatusSucceeded
	case isCancellation(ctx, err):
		outcome.Status = StatusCancelled
	default:
		outcome.Status = StatusFailed
		outcome.err = err
	}

	log.Debug("execution finished",
		"status", outcome.Status,
		"started", len(outcome.Results),
		"planned", len(actions),
		"elapsed", outcome.Elapsed,
	)
	return outcome
}

// isCancellation reports whether err is ctx's own cancellation rather than
// a backend failure.
func isCancellation(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}

func (e *Executor) notify(ev Event) {
	if e.opts.Progress != nil {
		e.opts.Progress(ev)
	}
}

// run performs one action. Backend calls use a context that is not
// cancelled with ctx, so started I/O runs to completion.
func (e *Executor) run(ctx context.Context, a planner.Action) (int64, error) {
	ioCtx := context.WithoutCancel(ctx)

	switch a.Operation {
	case planner.OpKeep:
		return 0, nil
	case planner.OpDelete:
		if err := e.dest.Delete(ioCtx, a.Record); err != nil {
			return 0, &ActionError{Action: a, Call: CallDelete, Err: err}
		}
		return 0, nil
	case planner.OpAdd, planner.OpOverwrite:
		return e.copy(ctx, a)
	}
	return 0, fmt.Errorf("unknown operation %v", a.Operation)
}

func (e *Executor) copy(ctx context.Context, a planner.Action) (int64, error) {
	rec := a.Record
	ioCtx := context.WithoutCancel(ctx)

	buf, err := e.stage(rec.Size)
	if err != nil {
		return 0, &ActionError{Action: a, Call: CallStage, Err: err}
	}
	defer buf.release()

	if err := e.fetch(ctx, rec, buf.file); err != nil {
		if isCancellation(ctx, err) {
			return 0, err
		}
		return 0, &ActionError{Action: a, Call: CallRead, Err: err}
	}

	if _, err := buf.file.Seek(0, io.SeekStart); err != nil {
		return 0, &ActionError{Action: a, Call: CallStage, Err: fmt.Errorf("failed to rewind staging file: %w", err)}
	}

	overwrite := a.Operation == planner.OpOverwrite
	if err := e.dest.Write(ioCtx, rec, buf.file, overwrite); err != nil {
		return 0, &ActionError{Action: a, Call: CallWrite, Err: err}
	}

	return rec.Size, nil
}

// fetch copies the source payload into the staging file, as parallel
// ranges when the source supports them and the object is large enough.
func (e *Executor) fetch(ctx context.Context, rec storage.Record, dst afero.File) error {
	if rr, ok := e.source.(storage.RangeReader); ok && e.opts.RangeConcurrency > 1 && rec.Size > e.opts.RangeThreshold {
		return transfer.ParallelRead(ctx, rr, rec, dst, transfer.Options{
			ChunkSize:   e.opts.ChunkSize,
			Concurrency: e.opts.RangeConcurrency,
		})
	}

	body, err := e.source.Read(context.WithoutCancel(ctx), rec)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.CopyN(dst, body, rec.Size); err != nil {
		return fmt.Errorf("failed to read %s: %w", rec.Key, err)
	}
	return nil
}
