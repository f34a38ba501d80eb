// Package batch holds the index-addressed state of the current batch and
// guards it against writes from superseded batches.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

type Counters struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Completed int `json:"completed" yaml:"completed"`
}

// State is a point-in-time copy of a batch.
type State struct {
	ID         string          `json:"id" yaml:"id"`
	Kind       probe.Kind      `json:"kind" yaml:"kind"`
	Generation uint64          `json:"generation" yaml:"generation"`
	Targets    []target.Target `json:"targets" yaml:"targets"`
	Results    []probe.Result  `json:"results" yaml:"results"`
	Counters   Counters        `json:"counters" yaml:"counters"`
	Running    bool            `json:"running" yaml:"running"`
	Seq        uint64          `json:"seq" yaml:"seq"` // last published update
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Update is delivered to subscribers for every accepted slot change.
type Update struct {
	BatchID    string       `json:"batch_id"`
	Generation uint64       `json:"generation"`
	Seq        uint64       `json:"seq"`
	Index      int          `json:"index"`
	Result     probe.Result `json:"result"`
	Counters   Counters     `json:"counters"`
	Done       bool         `json:"done"`
}

// Tracker owns the current batch. Writes carry the generation they were
// issued for and are dropped once a newer batch has started.
type Tracker struct {
	mu      sync.RWMutex
	state   State
	subs    map[int]*subscriber
	seq     uint64
	nextSub int
	logger  zerolog.Logger
}

func NewTracker(log zerolog.Logger) *Tracker {
	return &Tracker{
		subs:   make(map[int]*subscriber),
		logger: log.With().Str("component", "tracker").Logger(),
	}
}

// Start replaces the current batch with one Queued slot per target and
// returns the new generation and batch ID.
func (t *Tracker) Start(kind probe.Kind, targets []target.Target) (uint64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gen := t.state.Generation + 1
	results := make([]probe.Result, len(targets))
	for i, tg := range targets {
		results[i] = probe.Result{Kind: kind, Target: tg, Status: probe.StatusQueued, Generation: gen}
	}

	t.state = State{
		ID:         uuid.NewString(),
		Kind:       kind,
		Generation: gen,
		Targets:    append([]target.Target(nil), targets...),
		Results:    results,
		Counters:   Counters{Total: len(targets)},
		Running:    true,
		StartedAt:  time.Now(),
		Seq:        t.seq,
	}

	t.logger.Info().Str("batch", t.state.ID).Uint64("generation", gen).
		Str("kind", string(kind)).Int("targets", len(targets)).Msg("Batch started")
	return gen, t.state.ID
}

func (t *Tracker) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Generation
}

// Mark moves a Queued slot to Scanning. It reports false for stale
// generations and slots that already left Queued.
func (t *Tracker) Mark(gen uint64, idx int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.accepts(gen, idx) || t.state.Results[idx].Status != probe.StatusQueued {
		return false
	}
	t.state.Results[idx].Status = probe.StatusScanning
	t.publish(Update{
		BatchID:    t.state.ID,
		Generation: gen,
		Index:      idx,
		Result:     t.state.Results[idx],
		Counters:   t.state.Counters,
	})
	return true
}

// Record stores a terminal result. A slot is recorded at most once per
// generation; stale or duplicate writes return false and change nothing.
func (t *Tracker) Record(gen uint64, idx int, res probe.Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.accepts(gen, idx) {
		t.logger.Debug().Uint64("generation", gen).Int("index", idx).Msg("Dropped stale result")
		return false
	}
	if t.state.Results[idx].Status.Terminal() || !res.Status.Terminal() {
		return false
	}

	res.Generation = gen
	t.state.Results[idx] = res
	t.state.Counters.Completed++
	if res.Status.Succeeded() {
		t.state.Counters.Succeeded++
	} else {
		t.state.Counters.Failed++
	}

	t.publish(Update{
		BatchID:    t.state.ID,
		Generation: gen,
		Index:      idx,
		Result:     res,
		Counters:   t.state.Counters,
	})
	return true
}

// Finish flips Running off for gen and notifies subscribers.
func (t *Tracker) Finish(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.state.Generation || !t.state.Running {
		return false
	}
	t.state.Running = false
	t.state.FinishedAt = time.Now()
	t.publish(Update{
		BatchID:    t.state.ID,
		Generation: gen,
		Index:      -1,
		Counters:   t.state.Counters,
		Done:       true,
	})

	t.logger.Info().Str("batch", t.state.ID).Uint64("generation", gen).
		Int("succeeded", t.state.Counters.Succeeded).Int("failed", t.state.Counters.Failed).
		Dur("elapsed", t.state.FinishedAt.Sub(t.state.StartedAt)).Msg("Batch finished")
	return true
}

// Snapshot returns a deep copy safe to hand to readers.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.state
	s.Targets = append([]target.Target(nil), t.state.Targets...)
	s.Results = append([]probe.Result(nil), t.state.Results...)
	return s
}

// Running reports whether the current batch is still in flight.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Running
}

type subscriber struct {
	updates chan Update
	lagged  chan struct{}
}

// Subscription delivers batch updates. Updates is lossy: when it is full the
// update is dropped and Lagged fires, after which the reader should resync
// from Snapshot and skip updates whose Seq is not newer than the snapshot.
type Subscription struct {
	Updates <-chan Update
	Lagged  <-chan struct{}
	close   func()
}

// Close detaches the subscription and closes Updates. It is safe to call twice.
func (s *Subscription) Close() { s.close() }

func (t *Tracker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 256
	}
	sub := &subscriber{
		updates: make(chan Update, buffer),
		lagged:  make(chan struct{}, 1),
	}

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = sub
	t.mu.Unlock()

	var once sync.Once
	return &Subscription{
		Updates: sub.updates,
		Lagged:  sub.lagged,
		close: func() {
			once.Do(func() {
				t.mu.Lock()
				delete(t.subs, id)
				t.mu.Unlock()
				close(sub.updates)
			})
		},
	}
}

// Sink binds the tracker to one generation for the scheduler.
func (t *Tracker) Sink(gen uint64) *Sink {
	return &Sink{tracker: t, gen: gen}
}

func (t *Tracker) accepts(gen uint64, idx int) bool {
	return gen == t.state.Generation && idx >= 0 && idx < len(t.state.Results)
}

// publish must be called with mu held. A full subscriber loses the update,
// the Done update included, and is flagged as lagged instead.
func (t *Tracker) publish(u Update) {
	t.seq++
	t.state.Seq = t.seq
	u.Seq = t.seq
	for id, sub := range t.subs {
		select {
		case sub.updates <- u:
			continue
		default:
		}
		select {
		case sub.lagged <- struct{}{}:
		default:
		}
		t.logger.Debug().Int("subscriber", id).Int("index", u.Index).Bool("done", u.Done).Msg("Subscriber lagging, update dropped")
	}
}

// Sink writes slot updates for a single generation.
type Sink struct {
	tracker *Tracker
	gen     uint64
}

func (s *Sink) Mark(idx int) bool { return s.tracker.Mark(s.gen, idx) }

func (s *Sink) Record(idx int, res probe.Result) bool { return s.tracker.Record(s.gen, idx, res) }

func (s *Sink) Generation() uint64 { return s.gen }
