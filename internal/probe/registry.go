package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/target"
)

// ErrUnknownKind is returned for kinds with no registered prober.
var ErrUnknownKind = errors.New("unknown probe kind")

// ParseKind normalises user input into a Kind without consulting a registry.
func ParseKind(s string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(s)))
}

type Registry struct {
	mu      sync.RWMutex
	probers map[Kind]Prober
	logger  zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		probers: make(map[Kind]Prober),
		logger:  log.With().Str("component", "registry").Logger(),
	}
}

// Register adds or replaces the prober for its kind.
func (r *Registry) Register(p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.probers[p.Kind()]; ok {
		r.logger.Warn().Str("kind", string(p.Kind())).Msg("Replacing registered prober")
	}
	r.probers[p.Kind()] = p
}

func (r *Registry) Get(kind Kind) (Prober, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.probers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return p, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.probers))
	for k := range r.probers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute runs p against t while upholding the probe contract: invalid
// targets never reach the network, a zero timeout falls back to the kind
// default, panics become Error results and the result always carries the
// kind, target and a terminal status.
func Execute(ctx context.Context, p Prober, t target.Target, timeout time.Duration) (res Result) {
	kind := p.Kind()
	if !t.Valid() {
		return Invalid(kind, t)
	}
	if timeout <= 0 {
		timeout = p.Defaults().Timeout
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = Failure(kind, t, StatusError, 0, fmt.Errorf("probe panic: %v", rec))
			zerolog.Ctx(ctx).Error().Str("kind", string(kind)).
				Str("target", t.String()).
				Bytes("stack", debug.Stack()).
				Msg("Recovered probe panic")
		}
	}()

	res = p.Probe(ctx, t, timeout)
	res.Kind = kind
	res.Target = t
	if !res.Status.Terminal() {
		res.Status = StatusError
		if res.Error == "" {
			res.Error = "probe returned no status"
		}
	}
	if !res.Status.Succeeded() && kind != KindWhois {
		res.Metadata = nil
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	return res
}
