package usage

import (
	"context"
	"testing"
	"time"

	"github.com/wrenlabs/go-wren/pkg/directory"
)

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func newTestMeter(t *testing.T, prior, quota int64, onExceeded func()) (*Meter, *directory.Mock, *fakeClock) {
	t.Helper()
	dir := directory.NewMock()
	clock := newFakeClock()
	m := NewMeter(dir, "u-1", prior, quota, time.Second, onExceeded)
	m.now = clock.now
	m.started = clock.now()
	return m, dir, clock
}

func TestExceededPreCheck(t *testing.T) {
	m, _, _ := newTestMeter(t, 600, 600, nil)
	if !m.Exceeded() {
		t.Fatal("Exceeded() = false with prior == quota")
	}

	under, _, _ := newTestMeter(t, 599, 600, nil)
	if under.Exceeded() {
		t.Fatal("Exceeded() = true with prior < quota")
	}

	unmetered, _, _ := newTestMeter(t, 10000, 0, nil)
	if unmetered.Exceeded() {
		t.Fatal("Exceeded() = true with zero quota")
	}
}

func TestTickPersistsRunningTotal(t *testing.T) {
	m, dir, clock := newTestMeter(t, 100, 0, nil)

	clock.advance(30 * time.Second)
	m.tick(context.Background())

	if got := dir.LastPersisted("u-1"); got != 130 {
		t.Fatalf("persisted = %d, want 130", got)
	}

	clock.advance(30 * time.Second)
	m.tick(context.Background())

	if got := dir.LastPersisted("u-1"); got != 160 {
		t.Fatalf("persisted = %d, want 160", got)
	}
}

func TestQuotaCrossedWithinOneTick(t *testing.T) {
	fired := 0
	m, dir, clock := newTestMeter(t, 590, 600, func() { fired++ })

	if m.Exceeded() {
		t.Fatal("Exceeded() = true before any connected time")
	}

	// Ten remaining seconds elapse; the next tick must cross the quota.
	clock.advance(10 * time.Second)
	m.tick(context.Background())

	if fired != 1 {
		t.Fatalf("onExceeded fired %d times, want 1", fired)
	}
	if !m.Exceeded() {
		t.Fatal("Exceeded() = false after crossing tick")
	}
	if got := dir.LastPersisted("u-1"); got != 600 {
		t.Fatalf("persisted = %d, want 600", got)
	}

	// Further ticks keep persisting but never re-fire.
	clock.advance(10 * time.Second)
	m.tick(context.Background())
	if fired != 1 {
		t.Fatalf("onExceeded fired %d times after second tick, want 1", fired)
	}
	if got := dir.LastPersisted("u-1"); got != 610 {
		t.Fatalf("persisted = %d, want 610", got)
	}
}

func TestZeroQuotaNeverFires(t *testing.T) {
	fired := 0
	m, _, clock := newTestMeter(t, 0, 0, func() { fired++ })

	clock.advance(time.Hour)
	m.tick(context.Background())

	if fired != 0 {
		t.Fatalf("onExceeded fired %d times with zero quota", fired)
	}
}

func TestStopPersistsFinalTotal(t *testing.T) {
	dir := directory.NewMock()
	clock := newFakeClock()
	m := NewMeter(dir, "u-1", 50, 0, time.Hour, nil)
	m.now = clock.now

	m.Start(context.Background())
	clock.advance(42 * time.Second)
	m.Stop(context.Background())

	if got := dir.LastPersisted("u-1"); got != 92 {
		t.Fatalf("final persisted = %d, want 92", got)
	}

	// Second Stop is a no-op.
	calls := dir.PersistCalls
	m.Stop(context.Background())
	if dir.PersistCalls != calls {
		t.Fatal("second Stop persisted again")
	}
}

func TestTotalSecondsBeforeStart(t *testing.T) {
	dir := directory.NewMock()
	m := NewMeter(dir, "u-1", 75, 600, 0, nil)

	if m.interval != DefaultInterval {
		t.Fatalf("interval = %v, want %v", m.interval, DefaultInterval)
	}
	if got := m.TotalSeconds(); got != 75 {
		t.Fatalf("TotalSeconds() before Start = %d, want 75", got)
	}
}
