// Package usage meters connected session time against a per-user quota.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/wrenlabs/go-wren/internal/log"
)

// DefaultInterval is how often connected seconds are persisted.
const DefaultInterval = 30 * time.Second

// Persister records cumulative connected seconds for a user.
// Satisfied by directory.Directory.
type Persister interface {
	PersistUsageSeconds(ctx context.Context, userID string, seconds int64) error
}

// Meter tracks one session's connected time on top of the seconds a user
// had already consumed before the session began. It persists the running
// total on a fixed interval and fires a callback once when the quota is
// crossed. A zero quota means unmetered.
type Meter struct {
	persister Persister
	userID    string

	priorSeconds int64
	quota        int64
	interval     time.Duration

	// now is the clock; replaced in tests.
	now func() time.Time

	onExceeded func()

	mu       sync.Mutex
	started  time.Time
	exceeded bool
	stopped  bool

	stopCh chan struct{}
	done   sync.WaitGroup
}

// NewMeter creates a meter for one session.
// priorSeconds is the user's consumption before this session; quota is the
// total allowance for the billing period (zero disables enforcement).
func NewMeter(p Persister, userID string, priorSeconds, quota int64, interval time.Duration, onExceeded func()) *Meter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Meter{
		persister:    p,
		userID:       userID,
		priorSeconds: priorSeconds,
		quota:        quota,
		interval:     interval,
		now:          time.Now,
		onExceeded:   onExceeded,
		stopCh:       make(chan struct{}),
	}
}

// Exceeded reports whether the quota was already consumed. Valid before
// Start as a pre-session check and during the session after ticks.
func (m *Meter) Exceeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exceeded {
		return true
	}
	return m.quota > 0 && m.priorSeconds >= m.quota
}

// ElapsedSeconds returns whole seconds since Start.
func (m *Meter) ElapsedSeconds() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsedLocked()
}

func (m *Meter) elapsedLocked() int64 {
	if m.started.IsZero() {
		return 0
	}
	return int64(m.now().Sub(m.started) / time.Second)
}

// TotalSeconds returns prior consumption plus this session's elapsed time.
func (m *Meter) TotalSeconds() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priorSeconds + m.elapsedLocked()
}

// Start marks the session begin and launches the persistence loop.
func (m *Meter) Start(ctx context.Context) {
	m.mu.Lock()
	m.started = m.now()
	m.mu.Unlock()

	m.done.Add(1)
	go m.run(ctx)
}

func (m *Meter) run(ctx context.Context) {
	defer m.done.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick persists the running total and fires onExceeded on the first tick
// that crosses the quota.
func (m *Meter) tick(ctx context.Context) {
	m.mu.Lock()
	total := m.priorSeconds + m.elapsedLocked()
	crossed := m.quota > 0 && total >= m.quota && !m.exceeded
	if crossed {
		m.exceeded = true
	}
	m.mu.Unlock()

	if err := m.persister.PersistUsageSeconds(ctx, m.userID, total); err != nil {
		log.Warn("persist usage failed", "user", m.userID, "error", err)
	}

	if crossed && m.onExceeded != nil {
		m.onExceeded()
	}
}

// Stop halts the loop and persists the final total. Idempotent.
func (m *Meter) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	total := m.priorSeconds + m.elapsedLocked()
	m.mu.Unlock()

	close(m.stopCh)
	m.done.Wait()

	if err := m.persister.PersistUsageSeconds(ctx, m.userID, total); err != nil {
		log.Warn("persist final usage failed", "user", m.userID, "error", err)
	}
}
