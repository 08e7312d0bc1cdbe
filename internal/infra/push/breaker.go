package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/infra/metrics"
)

// ErrCircuitOpen is returned while the breaker is rejecting pushes.
var ErrCircuitOpen = errors.New("push circuit open")

// BreakerState is the state of a Guarded pusher.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // pushes pass through
	BreakerOpen                         // pushes are skipped
	BreakerHalfOpen                     // probing with live pushes
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerConfig configures a Guarded pusher.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the breaker
	ResetTimeout     time.Duration // time spent open before probing
	HalfOpenProbes   int           // successful probes needed to close again
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenProbes:   2,
	}
}

// Guarded wraps a pusher with a circuit breaker. While open, pushes are
// skipped without calling the provider.
type Guarded struct {
	next domain.Pusher
	cfg  BreakerConfig
	log  *zap.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	probes    int
	trippedAt time.Time
	trips     int
	now       func() time.Time
}

// Guard wraps next with a circuit breaker.
func Guard(next domain.Pusher, cfg BreakerConfig, log *zap.Logger) *Guarded {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenProbes < 1 {
		cfg.HalfOpenProbes = 1
	}
	return &Guarded{next: next, cfg: cfg, log: log.Named("push"), now: time.Now}
}

// Push forwards to the wrapped pusher unless the breaker is open.
func (g *Guarded) Push(ctx context.Context, tokens []domain.DeviceToken, n domain.Notification) error {
	if !g.allow() {
		metrics.PushDeliveries.WithLabelValues("circuit_open").Inc()
		return fmt.Errorf("%s: %w", n.ID, ErrCircuitOpen)
	}
	if err := g.next.Push(ctx, tokens, n); err != nil {
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		g.recordFailure()
		return err
	}
	metrics.PushDeliveries.WithLabelValues("sent").Inc()
	g.recordSuccess()
	return nil
}

// State reports the current breaker state.
func (g *Guarded) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeHalfOpen()
	return g.state
}

// Trips is how many times the breaker has opened.
func (g *Guarded) Trips() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trips
}

func (g *Guarded) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeHalfOpen()
	return g.state != BreakerOpen
}

// maybeHalfOpen moves OPEN to HALF_OPEN once the reset timeout has passed.
// Callers hold mu.
func (g *Guarded) maybeHalfOpen() {
	if g.state == BreakerOpen && g.now().Sub(g.trippedAt) >= g.cfg.ResetTimeout {
		g.state = BreakerHalfOpen
		g.probes = 0
	}
}

func (g *Guarded) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case BreakerHalfOpen:
		g.probes++
		if g.probes >= g.cfg.HalfOpenProbes {
			g.state = BreakerClosed
			g.failures = 0
			g.log.Info("push circuit closed")
		}
	case BreakerClosed:
		g.failures = 0
	}
}

func (g *Guarded) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case BreakerClosed:
		g.failures++
		if g.failures < g.cfg.FailureThreshold {
			return
		}
	case BreakerOpen:
		return
	}
	g.state = BreakerOpen
	g.trippedAt = g.now()
	g.trips++
	g.log.Warn("push circuit opened",
		zap.Int("failures", g.failures),
		zap.Duration("reset_after", g.cfg.ResetTimeout))
}

var _ domain.Pusher = (*Guarded)(nil)
