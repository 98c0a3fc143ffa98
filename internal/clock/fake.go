package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Advance fires due AfterFunc callbacks
// synchronously on the calling goroutine, which keeps debounce tests
// deterministic.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn, active: true}
	f.timers = append(f.timers, timer)
	return timer
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticker := &fakeTicker{clock: f, interval: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, ticker)
	return ticker
}

// Advance moves the clock forward, firing expired timers in deadline order
// and delivering at most one pending tick per ticker (matching time.Ticker's
// drop-on-slow-receiver behavior).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var due []*fakeTimer
	for _, timer := range f.timers {
		if timer.active && !timer.deadline.After(now) {
			timer.active = false
			due = append(due, timer)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	for _, ticker := range f.tickers {
		if ticker.stopped || ticker.next.After(now) {
			continue
		}
		for !ticker.next.After(now) {
			ticker.next = ticker.next.Add(ticker.interval)
		}
		select {
		case ticker.ch <- now:
		default:
		}
	}
	f.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	active   bool
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := t.active
	t.deadline = t.clock.now.Add(d)
	t.active = true
	return wasActive
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := t.active
	t.active = false
	return wasActive
}

type fakeTicker struct {
	clock    *Fake
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
