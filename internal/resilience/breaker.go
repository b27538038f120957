package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// Settings configures a breaker. Zero values fall back to defaults.
type Settings struct {
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
}

func (s Settings) normalized() Settings {
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.FailureRatio > 1 {
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	return s
}

// Breaker is a failure-ratio circuit breaker guarding one named dependency,
// typically a pricing adapter that performs I/O.
type Breaker struct {
	mu        sync.Mutex
	name      string
	settings  Settings
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, settings Settings) *Breaker {
	b := &Breaker{
		name:     strings.TrimSpace(name),
		settings: settings.normalized(),
		state:    Closed,
		now:      time.Now,
	}
	b.publishState()
	return b
}

// Name returns the label used in metrics and logs.
func (b *Breaker) Name() string {
	if b.name == "" {
		return "default"
	}
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker lets one probe
// through after the cool-off period and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.settings.OpenFor {
		return false
	}
	b.transition(ctx, HalfOpen)
	return true
}

// Report records the outcome of a call that Allow admitted.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.settings.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.settings.FailureRatio {
		b.transition(ctx, Open)
		return
	}
	if total > b.settings.MinRequests*2 {
		// decay so old outcomes weigh less
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// Execute runs fn when the breaker admits the call and reports its outcome.
// A panic inside fn counts as a failure and is re-raised.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) (err error) {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.Report(ctx, false)
			panic(rec)
		}
		b.Report(ctx, err == nil)
	}()
	return fn(ctx)
}

func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.publishState()
	countTransition(b.Name(), prev, next)

	evt := zerolog.Ctx(ctx).Info().
		Str("breaker", b.Name()).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.Name()).Set(b.state.gauge())
	}
}

// Backoff returns base*2^(attempt-1) with a symmetric jitter fraction applied.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
