// Package scheduler runs a probe over a batch of targets with a bounded pool
// of workers pulling indices from a shared cursor.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	MinConcurrency     = 1
	MaxConcurrency     = 50
	DefaultConcurrency = 10
)

// Sink receives slot transitions. Implementations decide whether a write is
// still current and report false when it was dropped.
type Sink interface {
	Mark(idx int) bool
	Record(idx int, res probe.Result) bool
}

// Job is one batch to run.
type Job struct {
	Prober      probe.Prober
	Targets     []target.Target
	Concurrency int
	Timeout     time.Duration
	// RateLimit caps probe dispatches per second across all workers. Zero disables it.
	RateLimit float64
	Sink      Sink
	// OnResult is called after each recorded result.
	OnResult func(idx int, res probe.Result)
}

// Summary describes a finished run.
type Summary struct {
	Total       int
	Workers     int
	MaxInFlight int
	Dropped     int
	Elapsed     time.Duration
}

type Scheduler struct {
	logger zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{logger: log.With().Str("component", "scheduler").Logger()}
}

// ClampConcurrency keeps c within 1-50; zero selects the default.
func ClampConcurrency(c int) int {
	switch {
	case c == 0:
		return DefaultConcurrency
	case c < MinConcurrency:
		return MinConcurrency
	case c > MaxConcurrency:
		return MaxConcurrency
	default:
		return c
	}
}

// Run drives every target of job to a terminal status and returns once all
// workers have exited. Exactly min(concurrency, len(targets)) workers are
// started. Each claims the next index from an atomic cursor, so no index is
// probed twice. After ctx is canceled the remaining slots resolve to Error
// without probing.
func (s *Scheduler) Run(ctx context.Context, job Job) Summary {
	start := time.Now()
	total := len(job.Targets)
	workers := ClampConcurrency(job.Concurrency)
	if workers > total {
		workers = total
	}

	var limiter *rate.Limiter
	if job.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(job.RateLimit), 1)
	}

	r := &run{job: job, total: total, limiter: limiter}
	s.logger.Info().Str("kind", string(job.Prober.Kind())).Int("targets", total).
		Int("workers", workers).Dur("timeout", job.Timeout).Msg("Dispatching batch")

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r.work(ctx)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{
		Total:       total,
		Workers:     workers,
		MaxInFlight: int(r.maxInFlight.Load()),
		Dropped:     int(r.dropped.Load()),
		Elapsed:     time.Since(start),
	}
	s.logger.Info().Int("targets", total).Int("max_in_flight", sum.MaxInFlight).
		Int("dropped", sum.Dropped).Dur("elapsed", sum.Elapsed).Msg("Batch drained")
	return sum
}

type run struct {
	job     Job
	total   int
	limiter *rate.Limiter

	cursor      atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	dropped     atomic.Int64
}

func (r *run) claim() (int, bool) {
	idx := int(r.cursor.Add(1) - 1)
	return idx, idx < r.total
}

func (r *run) work(ctx context.Context) {
	kind := r.job.Prober.Kind()
	for {
		idx, ok := r.claim()
		if !ok {
			return
		}
		t := r.job.Targets[idx]

		if ctx.Err() != nil {
			r.record(idx, probe.Canceled(kind, t))
			continue
		}
		if r.limiter != nil && t.Valid() {
			if err := r.limiter.Wait(ctx); err != nil {
				r.record(idx, probe.Canceled(kind, t))
				continue
			}
		}

		r.job.Sink.Mark(idx)
		r.enter()
		res := probe.Execute(ctx, r.job.Prober, t, r.job.Timeout)
		r.inFlight.Add(-1)
		r.record(idx, res)
	}
}

func (r *run) enter() {
	n := r.inFlight.Add(1)
	for {
		cur := r.maxInFlight.Load()
		if n <= cur || r.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (r *run) record(idx int, res probe.Result) {
	if !r.job.Sink.Record(idx, res) {
		r.dropped.Add(1)
		return
	}
	if r.job.OnResult != nil {
		r.job.OnResult(idx, res)
	}
}
