package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// MaxGoroutines fails while more than limit goroutines are running, which
// usually means a leak.
func MaxGoroutines(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines running, limit %d", n, limit)
		}
		return nil
	}
}

// MaxGCPause fails when a garbage collection that finished since the previous
// run paused the world for longer than limit. Old pauses do not keep the
// check failing.
func MaxGCPause(limit time.Duration) CheckFunc {
	var (
		mu     sync.Mutex
		lastGC int64
	)
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		mu.Lock()
		fresh := min(stats.NumGC-lastGC, int64(len(stats.Pause)))
		lastGC = stats.NumGC
		mu.Unlock()

		// stats.Pause is ordered most recent first.
		for _, pause := range stats.Pause[:fresh] {
			if pause > limit {
				return errors.Errorf("GC paused for %s, limit %s", pause, limit)
			}
		}
		return nil
	}
}

// Pinger is implemented by database pools such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping fails while p cannot be reached.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}
