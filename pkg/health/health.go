// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check turns unhealthy after failureThreshold consecutive failures and
// healthy again after successThreshold consecutive passes, so a single slow
// ping does not take the service out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

const (
	failureThreshold = 3
	successThreshold = 1

	// notReady is reported by /readyz while SetReady(false) is in effect.
	notReady = "_readiness"
)

// Kind selects the probe a check contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// state is an immutable snapshot of a check outcome. streak counts consecutive
// passes when positive and consecutive failures when negative.
type state struct {
	healthy bool
	err     error
	streak  int
}

type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	// Written only by the goroutine running probe, read by handlers.
	state atomic.Pointer[state]
}

func (c *check) current() *state { return c.state.Load() }

// probe runs the check once and stores the resulting state.
func (c *check) probe(ctx context.Context) *state {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	prev := c.current()
	next := &state{healthy: prev.healthy, err: err}
	switch {
	case err != nil && prev.streak < 0:
		next.streak = prev.streak - 1
	case err != nil:
		next.streak = -1
	case prev.streak > 0:
		next.streak = prev.streak + 1
	default:
		next.streak = 1
	}
	if next.streak <= -failureThreshold {
		next.healthy = false
	}
	if next.streak >= successThreshold {
		next.healthy = true
	}
	c.state.Store(next)
	return next
}

// Health owns the registered checks and the manual readiness flag. It starts
// not ready.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that reports whether the process works
// at all.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(Liveness, name, timeout, fn)
}

// AddReadinessCheck registers a check that gates traffic, such as database
// connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(Readiness, name, timeout, fn)
}

func (h *Health) add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, kind: kind, timeout: timeout, fn: fn}
	c.state.Store(&state{healthy: true})

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start probes every check immediately and then every interval until Stop or
// ctx cancellation. Register checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.probe(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness flag: true once wiring is done, false
// when draining before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.Failures(Readiness)) == 0
}

// Failures returns the unhealthy checks of kind mapped to their last error.
func (h *Health) Failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failures := make(map[string]string)
	for _, c := range h.checks {
		if c.kind != kind {
			continue
		}
		s := c.current()
		switch {
		case s.healthy:
		case s.err != nil:
			failures[c.name] = s.err.Error()
		default:
			failures[c.name] = "check is unhealthy"
		}
	}
	return failures
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, h.Failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.Failures(Readiness)
	if !h.ready.Load() {
		failures[notReady] = "service is not ready"
	}
	writeResponse(w, failures)
}

// writeResponse writes 200 {"status":"ok"} or 503 {"status":"unhealthy",
// "checks":{...}} with check names in sorted order.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	status, text := http.StatusOK, "ok"
	if len(failures) > 0 {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	slices.Sort(names)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(text) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}
