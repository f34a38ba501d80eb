// Package recon ties the target parser, probe registry, scheduler and batch
// tracker into batches the CLI and API can start.
package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/batch"
	"github.com/shii9/reconkit/internal/ports"
	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/proxy"
	"github.com/shii9/reconkit/internal/scheduler"
	"github.com/shii9/reconkit/internal/target"
)

const (
	MinTimeout = time.Second
	MaxTimeout = 10 * time.Second
)

var (
	// ErrBatchRunning is returned for exclusive requests while a batch is in flight.
	ErrBatchRunning = errors.New("a batch is already running")
	ErrInvalidInput = errors.New("invalid batch request")
)

// Request describes a batch to run.
type Request struct {
	Kind        probe.Kind
	Input       string
	Ports       string // "start-end", a comma list or "common"; tcp only
	Concurrency int
	Timeout     time.Duration
	RateLimit   float64
	// Exclusive refuses to preempt a running batch.
	Exclusive bool
}

// Handle identifies a started batch. Done yields the run summary once.
type Handle struct {
	ID         string
	Generation uint64
	Total      int
	Done       <-chan scheduler.Summary
}

type Runner struct {
	registry  *probe.Registry
	tracker   *batch.Tracker
	scheduler *scheduler.Scheduler
	defaults  Request
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRunner builds a runner. defaults fills Concurrency and RateLimit when a
// request leaves them zero.
func NewRunner(reg *probe.Registry, defaults Request, log zerolog.Logger) *Runner {
	return &Runner{
		registry:  reg,
		tracker:   batch.NewTracker(log),
		scheduler: scheduler.New(log),
		defaults:  defaults,
		logger:    log.With().Str("component", "runner").Logger(),
	}
}

func (r *Runner) Registry() *probe.Registry { return r.registry }

func (r *Runner) Tracker() *batch.Tracker { return r.tracker }

// Prepare resolves the prober and parses the input into targets. A malformed
// port spec refuses the whole request; malformed lines become Invalid slots.
func (r *Runner) Prepare(req Request) (probe.Prober, []target.Target, error) {
	p, err := r.registry.Get(req.Kind)
	if err != nil {
		return nil, nil, err
	}
	if req.Timeout != 0 && (req.Timeout < MinTimeout || req.Timeout > MaxTimeout) {
		return nil, nil, fmt.Errorf("%w: timeout %s outside %s-%s", ErrInvalidInput, req.Timeout, MinTimeout, MaxTimeout)
	}
	if req.Concurrency < 0 || req.Concurrency > scheduler.MaxConcurrency {
		return nil, nil, fmt.Errorf("%w: concurrency %d outside 1-%d", ErrInvalidInput, req.Concurrency, scheduler.MaxConcurrency)
	}

	defaultPort := p.Defaults().Port
	if req.Ports == "" || req.Kind != probe.KindTCP {
		return p, target.ParseLines(req.Input, req.Kind.Shape(), defaultPort), nil
	}

	var list []int
	if strings.EqualFold(strings.TrimSpace(req.Ports), "common") {
		list = ports.CommonPorts()
	} else if list, err = target.ParsePortList(req.Ports); err != nil {
		return nil, nil, err
	}
	hosts := target.ParseLines(req.Input, target.ShapeHost, 0)
	return p, target.ExpandHostPorts(hosts, list), nil
}

// Start begins a batch in the background. Any running batch is canceled and
// its late results are discarded by generation.
func (r *Runner) Start(ctx context.Context, req Request) (Handle, error) {
	p, targets, err := r.Prepare(req)
	if err != nil {
		return Handle{}, err
	}
	req = r.withDefaults(req, p)

	r.mu.Lock()
	if req.Exclusive && r.tracker.Running() {
		r.mu.Unlock()
		return Handle{}, ErrBatchRunning
	}
	if r.cancel != nil {
		r.cancel()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	gen, id := r.tracker.Start(req.Kind, targets)
	r.mu.Unlock()

	log := r.logger.With().Str("batch", id).Logger()
	runCtx = log.WithContext(runCtx)

	done := make(chan scheduler.Summary, 1)
	go func() {
		defer cancel()
		sum := r.scheduler.Run(runCtx, scheduler.Job{
			Prober:      p,
			Targets:     targets,
			Concurrency: req.Concurrency,
			Timeout:     req.Timeout,
			RateLimit:   req.RateLimit,
			Sink:        r.tracker.Sink(gen),
		})
		r.tracker.Finish(gen)
		done <- sum
	}()

	return Handle{ID: id, Generation: gen, Total: len(targets), Done: done}, nil
}

// Run starts a batch and waits for it, returning the final snapshot.
func (r *Runner) Run(ctx context.Context, req Request) (batch.State, scheduler.Summary, error) {
	h, err := r.Start(ctx, req)
	if err != nil {
		return batch.State{}, scheduler.Summary{}, err
	}

	var sum scheduler.Summary
	select {
	case sum = <-h.Done:
	case <-ctx.Done():
		r.Cancel()
		sum = <-h.Done
	}
	return r.tracker.Snapshot(), sum, ctx.Err()
}

// Cancel stops the running batch; unclaimed slots resolve as canceled.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) withDefaults(req Request, p probe.Prober) Request {
	if req.Concurrency == 0 {
		req.Concurrency = r.defaults.Concurrency
	}
	if req.RateLimit == 0 {
		req.RateLimit = r.defaults.RateLimit
	}
	if req.Timeout == 0 {
		req.Timeout = p.Defaults().Timeout
	}
	if req.Kind == probe.KindProxy {
		req.Timeout = proxy.ClampTimeout(req.Timeout)
	}
	return req
}
